package jobs

import (
	"testing"
	"time"

	"github.com/riverqueue/river/rivertype"

	"github.com/solidus-pim/server/internal/config"
)

func TestNewRetryPolicy(t *testing.T) {
	policy := NewRetryPolicy(config.JobsConfig{})

	if policy == nil {
		t.Fatal("NewRetryPolicy() returned nil")
	}

	if policy.Default.MaxAttempts != 3 {
		t.Errorf("Default.MaxAttempts = %d, want 3", policy.Default.MaxAttempts)
	}
	if policy.Default.BaseDelay != 30*time.Second {
		t.Errorf("Default.BaseDelay = %v, want 30s", policy.Default.BaseDelay)
	}

	tests := []struct {
		kind                string
		expectedMaxAttempts int
		expectedBaseDelay   time.Duration
		expectedMaxDelay    time.Duration
	}{
		{
			kind:                JobKindAssetProcessing,
			expectedMaxAttempts: AssetProcessingMaxAttempts,
			expectedBaseDelay:   30 * time.Second,
			expectedMaxDelay:    10 * time.Minute,
		},
		{
			kind:                JobKindFeedGeneration,
			expectedMaxAttempts: FeedGenerationMaxAttempts,
			expectedBaseDelay:   1 * time.Minute,
			expectedMaxDelay:    1 * time.Hour,
		},
		{
			kind:                JobKindFeedScheduler,
			expectedMaxAttempts: 1,
			expectedBaseDelay:   0,
			expectedMaxDelay:    0,
		},
		{
			kind:                JobKindAuditCleanup,
			expectedMaxAttempts: AuditCleanupMaxAttempts,
			expectedBaseDelay:   5 * time.Minute,
			expectedMaxDelay:    1 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			retryConfig, ok := policy.ByKind[tt.kind]
			if !ok {
				t.Fatalf("kind %s not found in ByKind map", tt.kind)
			}

			if retryConfig.MaxAttempts != tt.expectedMaxAttempts {
				t.Errorf("MaxAttempts = %d, want %d", retryConfig.MaxAttempts, tt.expectedMaxAttempts)
			}
			if retryConfig.BaseDelay != tt.expectedBaseDelay {
				t.Errorf("BaseDelay = %v, want %v", retryConfig.BaseDelay, tt.expectedBaseDelay)
			}
			if retryConfig.MaxDelay != tt.expectedMaxDelay {
				t.Errorf("MaxDelay = %v, want %v", retryConfig.MaxDelay, tt.expectedMaxDelay)
			}
		})
	}
}

func TestRetryPolicyHonorsConfigOverrides(t *testing.T) {
	policy := NewRetryPolicy(config.JobsConfig{
		RetryAssetProcessing: 7,
		RetryFeedGeneration:  5,
	})

	if got := policy.ByKind[JobKindAssetProcessing].MaxAttempts; got != 7 {
		t.Errorf("asset processing MaxAttempts = %d, want 7", got)
	}
	if got := policy.ByKind[JobKindFeedGeneration].MaxAttempts; got != 5 {
		t.Errorf("feed generation MaxAttempts = %d, want 5", got)
	}
}

func TestNextRetryExponentialBackoff(t *testing.T) {
	policy := NewRetryPolicy(config.JobsConfig{})
	attemptedAt := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{attempt: 1, expected: 1 * time.Minute},
		{attempt: 2, expected: 2 * time.Minute},
		{attempt: 3, expected: 4 * time.Minute},
		{attempt: 10, expected: 1 * time.Hour}, // capped at MaxDelay
	}

	for _, tt := range tests {
		job := &rivertype.JobRow{
			Kind:        JobKindFeedGeneration,
			Attempt:     tt.attempt,
			AttemptedAt: &attemptedAt,
		}
		got := policy.NextRetry(job)
		want := attemptedAt.Add(tt.expected)
		if !got.Equal(want) {
			t.Errorf("attempt %d: NextRetry = %v, want %v", tt.attempt, got, want)
		}
	}
}

func TestNextRetryZeroDelayRetriesImmediately(t *testing.T) {
	policy := NewRetryPolicy(config.JobsConfig{})
	before := time.Now()
	got := policy.NextRetry(&rivertype.JobRow{Kind: JobKindFeedScheduler, Attempt: 1})
	if got.Before(before) || got.After(time.Now().Add(time.Second)) {
		t.Errorf("NextRetry for zero base delay = %v, want approximately now", got)
	}
}

func TestInsertOptsForKind(t *testing.T) {
	opts := InsertOptsForKind(config.JobsConfig{RetryFeedGeneration: 4}, JobKindFeedGeneration)
	if opts.MaxAttempts != 4 {
		t.Errorf("MaxAttempts = %d, want 4", opts.MaxAttempts)
	}

	opts = InsertOptsForKind(config.JobsConfig{}, "unknown_kind")
	if opts.MaxAttempts != 3 {
		t.Errorf("MaxAttempts for unknown kind = %d, want default 3", opts.MaxAttempts)
	}
}
