package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dohr-michael/crewd/internal/rag"
	"github.com/dohr-michael/crewd/internal/report"
	"github.com/dohr-michael/crewd/internal/storage"
	"github.com/dohr-michael/crewd/internal/tasks"
)

// requiredEnvVars are checked by /health; the gateway runs without them
// but crews will fail until they are set.
var requiredEnvVars = []string{"OPENAI_API_KEY"}

const defaultTrainingIterations = 5

// reportIndexer is implemented by engines that keep a local vector index.
type reportIndexer interface {
	Index(ctx context.Context, crewName, content string, meta map[string]string) error
}

// summaryLine trims the report summary to a listing-friendly first line.
func summaryLine(summary string) string {
	line := strings.TrimSpace(summary)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if len(line) > 200 {
		line = line[:200]
	}
	return line
}

type crewRequest struct {
	CrewName   string `json:"crew_name"`
	UserGoal   string `json:"user_goal"`
	Iterations int    `json:"iterations,omitempty"`
}

func decodeCrewRequest(w http.ResponseWriter, r *http.Request) (*crewRequest, bool) {
	var req crewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	req.CrewName = strings.TrimSpace(req.CrewName)
	req.UserGoal = strings.TrimSpace(req.UserGoal)
	if req.CrewName == "" || req.UserGoal == "" {
		writeError(w, http.StatusBadRequest, "crew_name and user_goal are required")
		return nil, false
	}
	return &req, true
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCrewRequest(w, r)
	if !ok {
		return
	}

	taskID := tasks.NewTaskID()
	err := s.runner.Submit(r.Context(), tasks.Job{
		TaskID: taskID,
		Run: func(ctx context.Context) (string, error) {
			return s.runCrew(ctx, taskID, req.CrewName, req.UserGoal)
		},
	})
	if err != nil {
		if errors.Is(err, tasks.ErrQueueFull) {
			writeError(w, http.StatusServiceUnavailable, "Server is busy, try again later")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to start task")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  string(tasks.StatusProcessing),
		"task_id": taskID,
		"message": "Task started",
	})
}

// runCrew executes the full pipeline: kickoff, materialize, store, index.
func (s *Server) runCrew(ctx context.Context, taskID, crewName, userGoal string) (string, error) {
	crew, err := s.engine.Construct(crewName)
	if err != nil {
		return "", err
	}
	result, err := crew.Kickoff(ctx, map[string]string{"user_goal": userGoal})
	if err != nil {
		return "", err
	}

	jsonDoc, markdown, err := report.Materialize(result, crewName, userGoal, taskID)
	if err != nil {
		return "", err
	}

	var parsed map[string]any
	if err := json.Unmarshal(jsonDoc, &parsed); err != nil {
		return "", fmt.Errorf("decode report document: %w", err)
	}
	meta := map[string]any{
		"user_goal":    userGoal,
		"task_id":      taskID,
		"summary":      summaryLine(result.Summary),
		"json_content": parsed,
	}
	if err := s.store.SaveReport(ctx, crewName, markdown, meta); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}

	if indexer, ok := s.rag.(reportIndexer); ok {
		if err := indexer.Index(ctx, crewName, markdown, map[string]string{
			"user_goal": userGoal,
			"summary":   summaryLine(result.Summary),
		}); err != nil {
			// Search lags behind but the report is durable.
			slog.Warn("index report for search", "crew", crewName, "error", err)
		}
	}
	return result.Summary, nil
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCrewRequest(w, r)
	if !ok {
		return
	}
	iterations := req.Iterations
	if iterations <= 0 {
		iterations = defaultTrainingIterations
	}

	taskID := tasks.NewTaskID()
	err := s.runner.Submit(r.Context(), tasks.Job{
		TaskID: taskID,
		Run: func(ctx context.Context) (string, error) {
			crew, err := s.engine.Construct(req.CrewName)
			if err != nil {
				return "", err
			}
			runs, err := crew.Train(ctx, map[string]string{"user_goal": req.UserGoal}, iterations)
			if err != nil {
				return "", err
			}
			data, err := json.MarshalIndent(map[string]any{
				"crew_name":  req.CrewName,
				"user_goal":  req.UserGoal,
				"iterations": runs,
			}, "", "  ")
			if err != nil {
				return "", fmt.Errorf("marshal training data: %w", err)
			}
			if err := s.store.SaveTrainingData(ctx, req.CrewName, data); err != nil {
				return "", fmt.Errorf("save training data: %w", err)
			}
			return fmt.Sprintf("Crew training completed with %d iterations", len(runs)), nil
		},
	})
	if err != nil {
		if errors.Is(err, tasks.ErrQueueFull) {
			writeError(w, http.StatusServiceUnavailable, "Server is busy, try again later")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to start training task")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  string(tasks.StatusProcessing),
		"task_id": taskID,
		"message": "Training started",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")

	rec, err := s.tracker.Get(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, tasks.ErrBlocked) {
			writeJSON(w, http.StatusOK, map[string]string{
				"status":  string(tasks.StatusBlocked),
				"result":  "",
				"message": "This task ID is blocked due to known issues",
			})
			return
		}
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load task status")
		return
	}

	// Error tasks with no result surface the message there, so clients
	// that only read result still see what went wrong.
	result := rec.Result
	if result == "" && rec.Status == string(tasks.StatusError) {
		result = rec.Message
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  rec.Status,
		"task_id": rec.ID,
		"result":  result,
		"message": rec.Message,
	})
}

func (s *Server) handleBlocklist(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"blocked_task_ids": s.tracker.Blocklist(),
	})
}

func (s *Server) handleCleanupTasks(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "days must be a non-negative integer")
			return
		}
		days = parsed
	}

	removed, err := s.tracker.Cleanup(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"removed": removed,
		"days":    days,
	})
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListReports(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list reports")
		return
	}
	if list == nil {
		list = []storage.ReportSummary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	crewName := chi.URLParam(r, "crew_name")

	rec, err := s.store.GetReport(r.Context(), crewName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Report not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load report")
		return
	}

	format := report.NormalizeFormat(r.URL.Query().Get("format"))
	body, contentType, err := report.Negotiate(rec, format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render report")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) handleTrainingData(w http.ResponseWriter, r *http.Request) {
	crewName := chi.URLParam(r, "crew_name")

	data, err := s.store.GetTrainingData(r.Context(), crewName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Training data not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load training data")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var missing []string
	for _, name := range requiredEnvVars {
		if os.Getenv(name) == "" {
			missing = append(missing, name)
		}
	}

	status := "healthy"
	if len(missing) > 0 {
		status = "unhealthy"
	}
	payload := map[string]any{
		"status":        status,
		"backend":       s.backend,
		"rag_available": s.rag != nil,
	}
	if len(missing) > 0 {
		payload["missing_environment_variables"] = missing
	}
	writeJSON(w, http.StatusOK, payload)
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.rag == nil {
		writeError(w, http.StatusServiceUnavailable, "Search is not available")
		return
	}
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	hits, err := s.rag.SearchReports(r.Context(), req.Query, req.Limit)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Search backend failed")
		return
	}
	if hits == nil {
		hits = []rag.ReportHit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": hits})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.rag == nil {
		writeError(w, http.StatusServiceUnavailable, "Ask is not available")
		return
	}
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, err := s.rag.Answer(r.Context(), req.Question)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Ask backend failed")
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if s.rag == nil {
		writeError(w, http.StatusServiceUnavailable, "Summary is not available")
		return
	}
	crewName := chi.URLParam(r, "crew_name")

	summary, err := s.rag.Summarize(r.Context(), crewName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Report not found")
			return
		}
		writeError(w, http.StatusServiceUnavailable, "Summary backend failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"crew_name": crewName,
		"summary":   summary,
	})
}
