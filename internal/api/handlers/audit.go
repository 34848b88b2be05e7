package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/solidus-pim/server/internal/api/problem"
	"github.com/solidus-pim/server/internal/audit"
)

type AuditHandler struct {
	Recorder *audit.Recorder
	Env      string
}

func NewAuditHandler(recorder *audit.Recorder, env string) *AuditHandler {
	return &AuditHandler{Recorder: recorder, Env: env}
}

type auditListResponse struct {
	Items []audit.Entry `json:"items"`
	Total int64         `json:"total"`
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Recorder == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	filters := audit.Filters{
		Actor:      strings.TrimSpace(r.URL.Query().Get("actor")),
		Action:     strings.TrimSpace(r.URL.Query().Get("action")),
		EntityType: strings.TrimSpace(r.URL.Query().Get("entity_type")),
		EntityID:   strings.TrimSpace(r.URL.Query().Get("entity_id")),
		Limit:      queryInt(r, "limit", 50),
		Offset:     queryInt(r, "offset", 0),
	}

	if since := strings.TrimSpace(r.URL.Query().Get("since")); since != "" {
		parsed, err := time.Parse(time.RFC3339, since)
		if err != nil {
			problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", err, h.Env)
			return
		}
		filters.Since = &parsed
	}

	items, total, err := h.Recorder.List(r.Context(), filters)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, auditListResponse{Items: items, Total: total})
}
