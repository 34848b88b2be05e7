package jobs

import (
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"

	"github.com/solidus-pim/server/internal/config"
	"github.com/solidus-pim/server/internal/metrics"
)

const (
	JobKindAssetProcessing = "asset_processing"
	JobKindFeedGeneration  = "feed_generation"
	JobKindFeedScheduler   = "feed_scheduler"
	JobKindAuditCleanup    = "audit_cleanup"
)

const (
	AssetProcessingMaxAttempts = 3
	FeedGenerationMaxAttempts  = 3
	AuditCleanupMaxAttempts    = 2
)

// RetryConfig controls per-kind retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RetryPolicy implements River's ClientRetryPolicy with per-kind exponential backoff.
type RetryPolicy struct {
	Default RetryConfig
	ByKind  map[string]RetryConfig
}

// NewRetryPolicy builds the retry policy, taking per-kind attempt overrides
// from configuration.
func NewRetryPolicy(cfg config.JobsConfig) *RetryPolicy {
	assetAttempts := cfg.RetryAssetProcessing
	if assetAttempts <= 0 {
		assetAttempts = AssetProcessingMaxAttempts
	}
	feedAttempts := cfg.RetryFeedGeneration
	if feedAttempts <= 0 {
		feedAttempts = FeedGenerationMaxAttempts
	}

	return &RetryPolicy{
		Default: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   30 * time.Second,
			MaxDelay:    30 * time.Minute,
		},
		ByKind: map[string]RetryConfig{
			JobKindAssetProcessing: {
				MaxAttempts: assetAttempts,
				BaseDelay:   30 * time.Second,
				MaxDelay:    10 * time.Minute,
			},
			JobKindFeedGeneration: {
				MaxAttempts: feedAttempts,
				BaseDelay:   1 * time.Minute,
				MaxDelay:    1 * time.Hour,
			},
			JobKindFeedScheduler: {
				// The scheduler tick is periodic; a missed tick is picked up
				// by the next one.
				MaxAttempts: 1,
				BaseDelay:   0,
				MaxDelay:    0,
			},
			JobKindAuditCleanup: {
				MaxAttempts: AuditCleanupMaxAttempts,
				BaseDelay:   5 * time.Minute,
				MaxDelay:    1 * time.Hour,
			},
		},
	}
}

// NextRetry determines the next retry time for a failed job.
func (p *RetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	retryConfig := p.configFor(job.Kind)
	if retryConfig.BaseDelay == 0 {
		return time.Now()
	}

	attempt := job.Attempt
	if attempt < 1 {
		attempt = 1
	}

	delay := time.Duration(float64(retryConfig.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if retryConfig.MaxDelay > 0 && delay > retryConfig.MaxDelay {
		delay = retryConfig.MaxDelay
	}

	if job.AttemptedAt != nil {
		return job.AttemptedAt.Add(delay)
	}

	return time.Now().Add(delay)
}

// InsertOptsForKind returns default insert options for a job kind.
func InsertOptsForKind(cfg config.JobsConfig, kind string) river.InsertOpts {
	retryConfig := NewRetryPolicy(cfg).configFor(kind)
	return river.InsertOpts{MaxAttempts: retryConfig.MaxAttempts}
}

// NewClientConfig builds a River client configuration with retry policy.
func NewClientConfig(cfg config.JobsConfig, workers *river.Workers, logger *slog.Logger, periodicJobs []*river.PeriodicJob) *river.Config {
	policy := NewRetryPolicy(cfg)
	riverConfig := &river.Config{
		Workers:      workers,
		RetryPolicy:  policy,
		MaxAttempts:  policy.Default.MaxAttempts,
		PeriodicJobs: periodicJobs,
		Hooks:        []rivertype.Hook{metrics.NewRiverMetricsHook()},
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
			// Feed generation can be IO heavy; cap concurrency.
			"feeds": {MaxWorkers: 2},
		},
	}
	if logger != nil {
		riverConfig.Logger = logger
	}
	return riverConfig
}

// NewClient creates a River client using pgx v5.
func NewClient(cfg config.JobsConfig, pool *pgxpool.Pool, workers *river.Workers, logger *slog.Logger, periodicJobs []*river.PeriodicJob) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), NewClientConfig(cfg, workers, logger, periodicJobs))
}

// NewPeriodicJobs creates the recurring job schedule:
// - Feed scheduler tick: every minute, enqueues due feed generations
// - Asset processing sweep: every 5 minutes, picks up pending files
// - Audit cleanup: daily
func NewPeriodicJobs(auditRetentionDays int) []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(time.Minute),
			func() (river.JobArgs, *river.InsertOpts) {
				return FeedSchedulerArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(5*time.Minute),
			func() (river.JobArgs, *river.InsertOpts) {
				return AssetProcessingArgs{BatchSize: 25}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(24*time.Hour),
			func() (river.JobArgs, *river.InsertOpts) {
				return AuditCleanupArgs{RetentionDays: auditRetentionDays}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: false},
		),
	}
}

func (p *RetryPolicy) configFor(kind string) RetryConfig {
	if p == nil {
		return RetryConfig{MaxAttempts: 3, BaseDelay: 1 * time.Minute, MaxDelay: 1 * time.Hour}
	}
	if retryConfig, ok := p.ByKind[kind]; ok {
		return retryConfig
	}
	return p.Default
}
