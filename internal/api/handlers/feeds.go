package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/solidus-pim/server/internal/api/middleware"
	"github.com/solidus-pim/server/internal/api/problem"
	"github.com/solidus-pim/server/internal/auth"
	"github.com/solidus-pim/server/internal/domain/feeds"
	"github.com/solidus-pim/server/internal/domain/ids"
	"github.com/solidus-pim/server/internal/domain/products"
	"github.com/solidus-pim/server/internal/jobs"
)

type FeedsHandler struct {
	Service  *feeds.Service
	Enqueuer *jobs.EnqueuerHolder
	Env      string
}

func NewFeedsHandler(service *feeds.Service, enqueuer *jobs.EnqueuerHolder, env string) *FeedsHandler {
	return &FeedsHandler{Service: service, Enqueuer: enqueuer, Env: env}
}

type feedRequest struct {
	Name            string               `json:"name"`
	Slug            string               `json:"slug"`
	CustomerID      string               `json:"customer_id"`
	Type            feeds.FeedType       `json:"type"`
	Format          feeds.Format         `json:"format"`
	Filters         feeds.RowFilters     `json:"filters"`
	IncludedFields  []string             `json:"included_fields"`
	FieldMapping    map[string]string    `json:"field_mapping"`
	Frequency       feeds.Frequency      `json:"frequency"`
	CronExpression  string               `json:"cron_expression"`
	ScheduleHour    int                  `json:"schedule_hour"`
	ScheduleWeekday int                  `json:"schedule_weekday"`
	ScheduleDay     int                  `json:"schedule_day"`
	DeliveryMethod  feeds.DeliveryMethod `json:"delivery_method"`
	DeliveryConfig  map[string]string    `json:"delivery_config"`
	IncludeImages   bool                 `json:"include_images"`
	Compress        bool                 `json:"compress"`
}

func (input feedRequest) params() feeds.FeedParams {
	return feeds.FeedParams{
		Name:            input.Name,
		Slug:            input.Slug,
		CustomerID:      input.CustomerID,
		Type:            input.Type,
		Format:          input.Format,
		Filters:         input.Filters,
		IncludedFields:  input.IncludedFields,
		FieldMapping:    input.FieldMapping,
		Frequency:       input.Frequency,
		CronExpression:  input.CronExpression,
		ScheduleHour:    input.ScheduleHour,
		ScheduleWeekday: input.ScheduleWeekday,
		ScheduleDay:     input.ScheduleDay,
		DeliveryMethod:  input.DeliveryMethod,
		DeliveryConfig:  input.DeliveryConfig,
		IncludeImages:   input.IncludeImages,
		Compress:        input.Compress,
	}
}

type feedListResponse struct {
	Items []feeds.DataFeed `json:"items"`
	Total int64            `json:"total"`
}

func (h *FeedsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	customerID := strings.TrimSpace(r.URL.Query().Get("customer_id"))
	claims := middleware.ClaimsFromContext(r.Context())
	if claims != nil && !auth.IsStaff(claims.Role) {
		// Customers only see their own feeds
		customerID = claims.Subject
	}

	items, total, err := h.Service.List(r.Context(), customerID, queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, feedListResponse{Items: items, Total: total})
}

func (h *FeedsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	var input feedRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", err, h.Env)
		return
	}

	feed, err := h.Service.Create(r.Context(), input.params(), middleware.ActorFromContext(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, feeds.ErrSlugTaken):
			problem.Write(w, r, http.StatusConflict, "https://solidus-pim.dev/problems/conflict", "Conflict", err, h.Env)
		case errors.Is(err, feeds.ErrInvalidInput):
			problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", err, h.Env)
		default:
			problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		}
		return
	}

	writeJSON(w, http.StatusCreated, feed)
}

// getOwned loads the feed and enforces that customers only reach their own
// feeds. Foreign feeds 404 rather than 403 so their existence is not leaked.
func (h *FeedsHandler) getOwned(r *http.Request, ulidValue string) (*feeds.DataFeed, error) {
	feed, err := h.Service.Get(r.Context(), ulidValue)
	if err != nil {
		return nil, err
	}
	claims := middleware.ClaimsFromContext(r.Context())
	if claims != nil && !auth.IsStaff(claims.Role) && feed.CustomerID != claims.Subject {
		return nil, feeds.ErrNotFound
	}
	return feed, nil
}

func (h *FeedsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	ulidValue := pathParam(r, "id")
	if err := ids.ValidateULID(ulidValue); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "invalid ULID"}, h.Env)
		return
	}

	feed, err := h.getOwned(r, ulidValue)
	if err != nil {
		if errors.Is(err, feeds.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, "https://solidus-pim.dev/problems/not-found", "Not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, feed)
}

func (h *FeedsHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	ulidValue := pathParam(r, "id")
	if err := ids.ValidateULID(ulidValue); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "invalid ULID"}, h.Env)
		return
	}

	var input feedRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", err, h.Env)
		return
	}

	feed, err := h.Service.Update(r.Context(), ulidValue, input.params(), middleware.ActorFromContext(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, feeds.ErrNotFound):
			problem.Write(w, r, http.StatusNotFound, "https://solidus-pim.dev/problems/not-found", "Not found", err, h.Env)
		case errors.Is(err, feeds.ErrSlugTaken):
			problem.Write(w, r, http.StatusConflict, "https://solidus-pim.dev/problems/conflict", "Conflict", err, h.Env)
		case errors.Is(err, feeds.ErrInvalidInput):
			problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", err, h.Env)
		default:
			problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		}
		return
	}

	writeJSON(w, http.StatusOK, feed)
}

func (h *FeedsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	ulidValue := pathParam(r, "id")
	if err := ids.ValidateULID(ulidValue); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "invalid ULID"}, h.Env)
		return
	}

	if err := h.Service.Delete(r.Context(), ulidValue, middleware.ActorFromContext(r.Context())); err != nil {
		if errors.Is(err, feeds.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, "https://solidus-pim.dev/problems/not-found", "Not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Run triggers a generation. With a job queue wired it enqueues and returns
// 202; without one it generates inline and returns the finished generation.
func (h *FeedsHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	ulidValue := pathParam(r, "id")
	if err := ids.ValidateULID(ulidValue); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "invalid ULID"}, h.Env)
		return
	}

	if _, err := h.getOwned(r, ulidValue); err != nil {
		if errors.Is(err, feeds.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, "https://solidus-pim.dev/problems/not-found", "Not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	if h.Enqueuer != nil && h.Enqueuer.Enqueuer != nil {
		_, err := h.Enqueuer.Enqueuer.Insert(r.Context(), jobs.FeedGenerationArgs{FeedID: ulidValue}, nil)
		if err != nil {
			problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"feed_id": ulidValue, "status": "queued"})
		return
	}

	gen, err := h.Service.Generate(r.Context(), ulidValue, middleware.ActorFromContext(r.Context()))
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, gen)
}

func (h *FeedsHandler) ListGenerations(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	ulidValue := pathParam(r, "id")
	if err := ids.ValidateULID(ulidValue); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "invalid ULID"}, h.Env)
		return
	}

	if _, err := h.getOwned(r, ulidValue); err != nil {
		if errors.Is(err, feeds.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, "https://solidus-pim.dev/problems/not-found", "Not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	generations, err := h.Service.ListGenerations(r.Context(), ulidValue, queryInt(r, "limit", 20))
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": generations})
}

// DownloadGeneration streams a completed generation's output file.
func (h *FeedsHandler) DownloadGeneration(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	ulidValue := pathParam(r, "id")
	generationID := pathParam(r, "generationID")
	if err := ids.ValidateULID(ulidValue); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "invalid ULID"}, h.Env)
		return
	}

	feed, err := h.getOwned(r, ulidValue)
	if err != nil {
		if errors.Is(err, feeds.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, "https://solidus-pim.dev/problems/not-found", "Not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	gen, content, err := h.Service.OpenGeneration(r.Context(), ulidValue, generationID)
	if err != nil {
		if errors.Is(err, feeds.ErrGenerationNotFound) || errors.Is(err, feeds.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, "https://solidus-pim.dev/problems/not-found", "Not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}
	defer func() { _ = content.Close() }()

	name := fmt.Sprintf("%s-%s.%s", feed.Slug, gen.ID, feed.Format)
	if feed.Compress {
		name += ".gz"
	}
	w.Header().Set("Content-Type", contentTypeForFormat(feed.Format, feed.Compress))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, content)
}

func contentTypeForFormat(format feeds.Format, compressed bool) string {
	if compressed {
		return "application/gzip"
	}
	switch format {
	case feeds.FormatCSV:
		return "text/csv"
	case feeds.FormatJSON:
		return "application/json"
	case feeds.FormatXML:
		return "application/xml"
	default:
		return "application/octet-stream"
	}
}
