package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/solidus-pim/server/internal/audit"
)

type memAuditStore struct {
	entries []audit.Entry
}

func (m *memAuditStore) Insert(_ context.Context, entry audit.Entry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memAuditStore) List(_ context.Context, _ audit.Filters) ([]audit.Entry, int64, error) {
	return m.entries, int64(len(m.entries)), nil
}

func (m *memAuditStore) CountOlderThan(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (m *memAuditStore) DeleteOlderThan(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func auditedHandler(store *memAuditStore, status int) http.Handler {
	recorder := audit.NewRecorder(store, zerolog.Nop())
	return RequestAudit(recorder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
}

func TestRequestAudit_RecordsMutation(t *testing.T) {
	store := &memAuditStore{}
	handler := auditedHandler(store, http.StatusCreated)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader("{}"))
	req.Header.Set("User-Agent", "test-agent")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if len(store.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(store.entries))
	}
	entry := store.entries[0]
	if entry.Action != "http.request" {
		t.Errorf("expected action http.request, got %q", entry.Action)
	}
	if entry.Actor != "anonymous" {
		t.Errorf("expected anonymous actor, got %q", entry.Actor)
	}
	if entry.Changes["path"] != "/api/v1/products" {
		t.Errorf("unexpected path in changes: %v", entry.Changes["path"])
	}
	if entry.Changes["status"] != http.StatusCreated {
		t.Errorf("unexpected status in changes: %v", entry.Changes["status"])
	}
	if entry.UserAgent != "test-agent" {
		t.Errorf("unexpected user agent: %q", entry.UserAgent)
	}
}

func TestRequestAudit_SkipsReads(t *testing.T) {
	store := &memAuditStore{}
	handler := auditedHandler(store, http.StatusOK)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(store.entries) != 0 {
		t.Fatalf("expected no audit entries for GET, got %d", len(store.entries))
	}
}

func TestRequestAudit_SkipsFailures(t *testing.T) {
	store := &memAuditStore{}
	handler := auditedHandler(store, http.StatusBadRequest)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(store.entries) != 0 {
		t.Fatalf("expected no audit entries for 4xx, got %d", len(store.entries))
	}
}

func TestRequestAudit_SkipsInfrastructurePaths(t *testing.T) {
	store := &memAuditStore{}
	handler := auditedHandler(store, http.StatusOK)

	for _, path := range []string{"/health", "/healthz", "/metrics"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	if len(store.entries) != 0 {
		t.Fatalf("expected no audit entries for infrastructure paths, got %d", len(store.entries))
	}
}
