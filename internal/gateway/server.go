package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/crewd/internal/crews"
	"github.com/dohr-michael/crewd/internal/rag"
	"github.com/dohr-michael/crewd/internal/storage"
	"github.com/dohr-michael/crewd/internal/tasks"
)

// Server is the crewd gateway HTTP server.
type Server struct {
	httpServer *http.Server
	tracker    *tasks.Tracker
	runner     *tasks.Runner
	store      storage.Store
	engine     *crews.Engine
	rag        rag.Engine
	backend    string
	host       string
	port       int
}

// ServerConfig wires the server's collaborators. RAG may be nil; the
// search endpoints then answer 503.
type ServerConfig struct {
	Host    string
	Port    int
	APIKey  string
	Tracker *tasks.Tracker
	Runner  *tasks.Runner
	Store   storage.Store
	Engine  *crews.Engine
	RAG     rag.Engine
	Backend string // active storage backend name, surfaced by /health
}

// NewServer creates the gateway server and mounts all routes.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		tracker: cfg.Tracker,
		runner:  cfg.Runner,
		store:   cfg.Store,
		engine:  cfg.Engine,
		rag:     cfg.RAG,
		backend: cfg.Backend,
		host:    cfg.Host,
		port:    cfg.Port,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(logRequests)
	r.Use(requireAPIKey(cfg.APIKey))

	r.Get("/health", s.handleHealth)

	r.Post("/run", s.handleRun)
	r.Post("/run-crew/", s.handleRun)
	r.Post("/train", s.handleTrain)
	r.Post("/train-crew/", s.handleTrain)

	r.Get("/status/{task_id}", s.handleStatus)
	r.Get("/task/{task_id}", s.handleStatus)
	r.Get("/task-blocklist", s.handleBlocklist)
	r.Post("/cleanup-tasks", s.handleCleanupTasks)

	r.Get("/reports", s.handleListReports)
	r.Get("/reports/{crew_name}", s.handleGetReport)
	r.Get("/training-data/{crew_name}", s.handleTrainingData)

	r.Post("/search", s.handleSearch)
	r.Post("/ask", s.handleAsk)
	r.Get("/summary/{crew_name}", s.handleSummary)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: r,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("crewd gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"remote", r.RemoteAddr)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}
