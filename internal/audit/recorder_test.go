package audit

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	entries []Entry
	deleted int64
	counted int64
}

func (f *fakeStore) Insert(_ context.Context, entry Entry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeStore) List(_ context.Context, _ Filters) ([]Entry, int64, error) {
	return f.entries, int64(len(f.entries)), nil
}

func (f *fakeStore) CountOlderThan(_ context.Context, _ time.Time) (int64, error) {
	return f.counted, nil
}

func (f *fakeStore) DeleteOlderThan(_ context.Context, _ time.Time) (int64, error) {
	return f.deleted, nil
}

func TestRecordFillsDefaults(t *testing.T) {
	store := &fakeStore{}
	recorder := NewRecorder(store, zerolog.Nop())

	ctx := WithRequestID(context.Background(), "req-123")
	recorder.Record(ctx, Entry{Action: "product.created", Actor: "admin"})

	require.Len(t, store.entries, 1)
	entry := store.entries[0]
	require.Equal(t, StatusSuccess, entry.Status)
	require.Equal(t, "req-123", entry.RequestID)
	require.False(t, entry.Time.IsZero())
}

func TestRecordRedactsSensitiveChanges(t *testing.T) {
	store := &fakeStore{}
	recorder := NewRecorder(store, zerolog.Nop())

	recorder.RecordSuccess(context.Background(), Entry{
		Action: "user.created",
		Actor:  "admin",
		Changes: map[string]any{
			"username":      "jdoe",
			"password_hash": "secret-hash",
			"api_key":       "abc123",
		},
	})

	require.Len(t, store.entries, 1)
	changes := store.entries[0].Changes
	require.Equal(t, "jdoe", changes["username"])
	require.Equal(t, "[REDACTED]", changes["password_hash"])
	require.Equal(t, "[REDACTED]", changes["api_key"])
}

func TestRecordFailureStatus(t *testing.T) {
	store := &fakeStore{}
	recorder := NewRecorder(store, zerolog.Nop())

	recorder.RecordFailure(context.Background(), Entry{Action: "auth.login", Actor: "jdoe"})

	require.Len(t, store.entries, 1)
	require.Equal(t, StatusFailure, store.entries[0].Status)
}

func TestCleanupDryRunCountsOnly(t *testing.T) {
	store := &fakeStore{counted: 42, deleted: 99}
	recorder := NewRecorder(store, zerolog.Nop())

	count, err := recorder.Cleanup(context.Background(), 365, true)
	require.NoError(t, err)
	require.Equal(t, int64(42), count)

	deleted, err := recorder.Cleanup(context.Background(), 365, false)
	require.NoError(t, err)
	require.Equal(t, int64(99), deleted)
}

func TestRedactNil(t *testing.T) {
	require.Nil(t, Redact(nil))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:4321"
	require.Equal(t, "10.0.0.1", ClientIP(r))

	r.Header.Set("X-Real-IP", "192.168.1.5")
	require.Equal(t, "192.168.1.5", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	require.Equal(t, "203.0.113.9", ClientIP(r))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var recorder *Recorder
	recorder.Record(context.Background(), Entry{Action: "noop"})
}
