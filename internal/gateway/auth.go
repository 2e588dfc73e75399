package gateway

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"sync"
)

var insecureWarnOnce sync.Once

// requireAPIKey builds the auth middleware. With no key configured the
// gateway runs in insecure mode: everything is accepted and a warning is
// logged once. Otherwise requests must carry the exact key in X-API-Key.
func requireAPIKey(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				insecureWarnOnce.Do(func() {
					slog.Warn("no API key configured, running in insecure mode")
				})
				next.ServeHTTP(w, r)
				return
			}

			got := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "Invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
