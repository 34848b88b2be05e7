package audit

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Entry is a single audit record. Changes holds old/new values or other
// structured detail and is stored as JSONB.
type Entry struct {
	ID         string         `json:"id"`
	Time       time.Time      `json:"time"`
	Action     string         `json:"action"`
	Actor      string         `json:"actor"`
	EntityType string         `json:"entity_type,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	Status     string         `json:"status"`
	Changes    map[string]any `json:"changes,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Filters narrow audit listings.
type Filters struct {
	Actor      string
	Action     string
	EntityType string
	EntityID   string
	Since      *time.Time
	Limit      int
	Offset     int
}

// Store is the persistence contract for audit entries.
type Store interface {
	Insert(ctx context.Context, entry Entry) error
	List(ctx context.Context, filters Filters) ([]Entry, int64, error)
	CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// sensitiveFields are redacted from Changes before persisting.
var sensitiveFields = []string{"password", "password_hash", "token", "secret", "api_key", "authorization"}

// Recorder persists audit entries. A failed write never fails the operation
// being audited; it is logged and dropped.
type Recorder struct {
	store  Store
	logger zerolog.Logger
}

func NewRecorder(store Store, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Record persists an entry, filling timestamp and status defaults and
// redacting sensitive change fields.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if r == nil || r.store == nil {
		return
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now().UTC()
	}
	if entry.Status == "" {
		entry.Status = StatusSuccess
	}
	if entry.RequestID == "" {
		entry.RequestID = RequestIDFromContext(ctx)
	}
	entry.Changes = Redact(entry.Changes)

	if err := r.store.Insert(ctx, entry); err != nil {
		r.logger.Warn().Err(err).Str("action", entry.Action).Msg("failed to persist audit entry")
	}
}

// RecordSuccess records an entry with success status.
func (r *Recorder) RecordSuccess(ctx context.Context, entry Entry) {
	entry.Status = StatusSuccess
	r.Record(ctx, entry)
}

// RecordFailure records an entry with failure status.
func (r *Recorder) RecordFailure(ctx context.Context, entry Entry) {
	entry.Status = StatusFailure
	r.Record(ctx, entry)
}

// List returns entries plus the total match count.
func (r *Recorder) List(ctx context.Context, filters Filters) ([]Entry, int64, error) {
	if filters.Limit <= 0 {
		filters.Limit = 50
	}
	return r.store.List(ctx, filters)
}

// Cleanup deletes entries older than the retention cutoff. With dryRun it
// only counts what would be deleted.
func (r *Recorder) Cleanup(ctx context.Context, retentionDays int, dryRun bool) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	if dryRun {
		return r.store.CountOlderThan(ctx, cutoff)
	}
	deleted, err := r.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	r.logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("audit retention cleanup")
	return deleted, nil
}

// Redact replaces values for known sensitive keys. Keys are matched
// case-insensitively on substring so password_confirm is caught too.
func Redact(changes map[string]any) map[string]any {
	if changes == nil {
		return nil
	}
	redacted := make(map[string]any, len(changes))
	for key, value := range changes {
		lower := strings.ToLower(key)
		hidden := false
		for _, field := range sensitiveFields {
			if strings.Contains(lower, field) {
				hidden = true
				break
			}
		}
		if hidden {
			redacted[key] = "[REDACTED]"
		} else {
			redacted[key] = value
		}
	}
	return redacted
}

// ClientIP gets the client IP from request headers or RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For can contain multiple IPs, take the first
		if idx := strings.IndexByte(xff, ','); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host := r.RemoteAddr
	if idx := strings.LastIndexByte(host, ':'); idx > 0 {
		return host[:idx]
	}
	return host
}

type contextKey string

const requestIDKey contextKey = "auditRequestID"

// WithRequestID stores the request correlation ID for audit entries.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the correlation ID or empty string.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
