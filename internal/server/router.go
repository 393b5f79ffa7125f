// Package server provides HTTP server setup for the agent events service.
package server

import (
	"net/http"
	"time"

	"github.com/telhawk-systems/agent-events/common/logging"
	"github.com/telhawk-systems/agent-events/common/middleware"
	"github.com/telhawk-systems/agent-events/internal/auth"
	"github.com/telhawk-systems/agent-events/internal/handlers"
	"github.com/telhawk-systems/agent-events/internal/metrics"
)

// NewRouter constructs a ServeMux with the agent events API routes registered.
// CORS headers are added only when cors allows at least one origin.
func NewRouter(h *handlers.Handler, authMW *auth.Middleware, cors middleware.CORSConfig, logger *logging.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health and metrics
	mux.HandleFunc("GET /healthz", h.HealthCheck)
	mux.Handle("GET /metrics", metrics.Handler())

	// Events
	mux.HandleFunc("GET /api/agent-events", authMW.RequireRole(auth.RoleConsole)(h.QueryEvents))
	mux.HandleFunc("POST /api/agent-events", authMW.RequireRole(auth.RoleAgent)(h.IngestEvents))

	// Agent configuration
	mux.HandleFunc("GET /api/agent-configuration", authMW.RequireAuth(h.GetAgentConfiguration))
	mux.HandleFunc("POST /api/agent-configuration", authMW.RequireRole(auth.RoleConsole)(h.UpdateAgentConfiguration))
	mux.HandleFunc("PUT /api/agent-configuration", authMW.RequireRole(auth.RoleConsole)(h.UpdateAgentConfiguration))

	var handler http.Handler = mux
	if cors.Enabled() {
		handler = middleware.CORS(cors)(handler)
	}
	return middleware.RequestID(accessLog(logging.OrDefault(logger), handler))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// accessLog logs one line per request at debug level, or warn for server errors.
func accessLog(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		attrs := []any{
			logging.Method(r.Method),
			logging.Path(r.URL.Path),
			logging.Status(rec.status),
			logging.Duration(time.Since(start).Milliseconds()),
		}
		if rec.status >= http.StatusInternalServerError {
			logger.WarnContext(r.Context(), "request completed", attrs...)
			return
		}
		logger.DebugContext(r.Context(), "request completed", attrs...)
	})
}
