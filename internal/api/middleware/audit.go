package middleware

import (
	"net/http"
	"strings"

	"github.com/solidus-pim/server/internal/audit"
)

// auditSkipPaths are infrastructure endpoints that never produce audit trail.
var auditSkipPaths = []string{"/health", "/healthz", "/readyz", "/metrics", "/version"}

// RequestAudit records successful mutating requests (POST/PUT/PATCH/DELETE
// with status below 400) as an HTTP-level audit trail alongside the
// domain-level entries the services write. It must run inside CorrelationID
// and RequireAuth so the request ID and actor are already in context.
func RequestAudit(recorder *audit.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mutating(r.Method) || skipAudit(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			rw := &responseWriter{ResponseWriter: w}
			next.ServeHTTP(rw, r)

			if rw.status >= 400 {
				return
			}
			recorder.RecordSuccess(r.Context(), audit.Entry{
				Action:     "http.request",
				Actor:      ActorFromContext(r.Context()),
				EntityType: "http",
				IPAddress:  audit.ClientIP(r),
				UserAgent:  r.UserAgent(),
				Changes: map[string]any{
					"method": r.Method,
					"path":   r.URL.Path,
					"status": rw.status,
				},
			})
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func skipAudit(path string) bool {
	for _, prefix := range auditSkipPaths {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
