// Package handlers provides HTTP request handlers for the agent events service.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/telhawk-systems/agent-events/common/httputil"
	"github.com/telhawk-systems/agent-events/common/logging"
	"github.com/telhawk-systems/agent-events/internal/agentconfig"
	"github.com/telhawk-systems/agent-events/internal/codec"
	"github.com/telhawk-systems/agent-events/internal/filter"
	"github.com/telhawk-systems/agent-events/internal/service"
)

// DefaultMaxBodyBytes bounds request bodies when no limit is configured.
const DefaultMaxBodyBytes = 10 << 20

// statusTable maps error kinds to response codes. The first matching row wins;
// anything unmatched is an internal error.
var statusTable = []struct {
	kind   error
	status int
}{
	{filter.ErrInvalidArgument, http.StatusUnprocessableEntity},
	{codec.ErrDecode, http.StatusBadRequest},
	{codec.ErrEncode, http.StatusInternalServerError},
	{agentconfig.ErrInvalidConfiguration, http.StatusBadRequest},
	{agentconfig.ErrNotFound, http.StatusNotFound},
}

// StatusFor returns the HTTP status for err.
func StatusFor(err error) int {
	for _, row := range statusTable {
		if errors.Is(err, row.kind) {
			return row.status
		}
	}
	return http.StatusInternalServerError
}

// IngestErrorResponse is returned when a batch is rejected part way through.
type IngestErrorResponse struct {
	Error     string `json:"error"`
	Published int    `json:"published"`
}

// Handler serves the agent events API.
type Handler struct {
	events       *service.EventService
	agentConfig  *agentconfig.Service
	logger       *logging.Logger
	maxBodyBytes int64
}

// NewHandler creates a Handler. A non-positive maxBodyBytes uses DefaultMaxBodyBytes.
func NewHandler(events *service.EventService, agentConfig *agentconfig.Service, logger *logging.Logger, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{
		events:       events,
		agentConfig:  agentConfig,
		logger:       logging.OrDefault(logger),
		maxBodyBytes: maxBodyBytes,
	}
}

// HealthCheck handles GET /healthz
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// QueryEvents handles GET /api/agent-events
func (h *Handler) QueryEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.Query(r.Context(), filter.ArgsFromQuery(r.URL.Query()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}

// IngestEvents handles POST /api/agent-events
func (h *Handler) IngestEvents(w http.ResponseWriter, r *http.Request) {
	var batch []json.RawMessage
	if err := httputil.DecodeJSON(w, r, &batch, h.maxBodyBytes); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "request body must be a JSON array of events: "+err.Error())
		return
	}

	if _, err := h.events.Ingest(r.Context(), batch); err != nil {
		status := StatusFor(err)
		message := err.Error()
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "failed to ingest events", logging.Error(err))
			message = http.StatusText(status)
		}
		httputil.WriteJSON(w, status, IngestErrorResponse{
			Error:     message,
			Published: service.PublishedBefore(err),
		})
		return
	}

	httputil.WriteNoContent(w)
}

// GetAgentConfiguration handles GET /api/agent-configuration
func (h *Handler) GetAgentConfiguration(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.agentConfig.Get(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cfg)
}

// UpdateAgentConfiguration handles POST and PUT /api/agent-configuration
func (h *Handler) UpdateAgentConfiguration(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if err := h.agentConfig.Update(r.Context(), body); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, struct{}{})
}

// writeServiceError maps err through the status table. Internal errors are
// logged and replaced by an opaque message.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			logging.Method(r.Method),
			logging.Path(r.URL.Path),
			logging.Error(err))
		httputil.WriteError(w, status, http.StatusText(status))
		return
	}
	httputil.WriteError(w, status, err.Error())
}
