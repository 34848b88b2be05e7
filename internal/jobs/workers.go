package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"

	"github.com/solidus-pim/server/internal/audit"
	"github.com/solidus-pim/server/internal/domain/assets"
	"github.com/solidus-pim/server/internal/domain/feeds"
	"github.com/solidus-pim/server/internal/metrics"
)

// AssetProcessingArgs sweeps pending asset files through the processing
// pipeline. BatchSize bounds one sweep.
type AssetProcessingArgs struct {
	BatchSize int `json:"batch_size"`
}

func (AssetProcessingArgs) Kind() string { return JobKindAssetProcessing }

// FeedGenerationArgs generates one feed run.
type FeedGenerationArgs struct {
	FeedID string `json:"feed_id"`
}

func (FeedGenerationArgs) Kind() string { return JobKindFeedGeneration }

func (FeedGenerationArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: "feeds"}
}

// FeedSchedulerArgs is the periodic tick that enqueues due feeds.
type FeedSchedulerArgs struct{}

func (FeedSchedulerArgs) Kind() string { return JobKindFeedScheduler }

// AuditCleanupArgs enforces audit log retention.
type AuditCleanupArgs struct {
	RetentionDays int `json:"retention_days"`
}

func (AuditCleanupArgs) Kind() string { return JobKindAuditCleanup }

type AssetProcessingWorker struct {
	river.WorkerDefaults[AssetProcessingArgs]
	Assets *assets.Service
	Logger zerolog.Logger
}

func (AssetProcessingWorker) Kind() string { return JobKindAssetProcessing }

func (w AssetProcessingWorker) Work(ctx context.Context, job *river.Job[AssetProcessingArgs]) error {
	if w.Assets == nil {
		return fmt.Errorf("asset service not configured")
	}

	batchSize := job.Args.BatchSize
	if batchSize <= 0 {
		batchSize = 25
	}

	processed, err := w.Assets.ProcessPending(ctx, batchSize)
	if err != nil {
		return fmt.Errorf("process pending assets: %w", err)
	}
	if processed > 0 {
		w.Logger.Info().Int("processed", processed).Msg("asset processing sweep completed")
	}
	return nil
}

type FeedGenerationWorker struct {
	river.WorkerDefaults[FeedGenerationArgs]
	Feeds  *feeds.Service
	Logger zerolog.Logger
}

func (FeedGenerationWorker) Kind() string { return JobKindFeedGeneration }

func (w FeedGenerationWorker) Work(ctx context.Context, job *river.Job[FeedGenerationArgs]) error {
	if w.Feeds == nil {
		return fmt.Errorf("feed service not configured")
	}
	if job.Args.FeedID == "" {
		return fmt.Errorf("feed ID is required")
	}

	gen, err := w.Feeds.Generate(ctx, job.Args.FeedID, "scheduler")
	if err != nil {
		metrics.FeedGenerationsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("generate feed %s: %w", job.Args.FeedID, err)
	}
	metrics.FeedGenerationsTotal.WithLabelValues("completed").Inc()
	w.Logger.Info().
		Str("feed_id", job.Args.FeedID).
		Str("generation_id", gen.ID).
		Str("status", string(gen.Status)).
		Int("rows", gen.RowCount).
		Msg("feed generation completed")
	return nil
}

// Enqueuer inserts jobs; satisfied by river.Client.
type Enqueuer interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// EnqueuerHolder breaks the construction cycle between workers and the
// client that owns them. Set Enqueuer after building the client, before
// starting it.
type EnqueuerHolder struct {
	Enqueuer Enqueuer
}

// FeedSchedulerWorker enqueues a generation job for every feed whose
// next_run_at has passed.
type FeedSchedulerWorker struct {
	river.WorkerDefaults[FeedSchedulerArgs]
	Feeds  *feeds.Service
	Holder *EnqueuerHolder
	Logger zerolog.Logger
}

func (FeedSchedulerWorker) Kind() string { return JobKindFeedScheduler }

func (w FeedSchedulerWorker) Work(ctx context.Context, _ *river.Job[FeedSchedulerArgs]) error {
	if w.Feeds == nil || w.Holder == nil || w.Holder.Enqueuer == nil {
		return fmt.Errorf("feed scheduler not configured")
	}

	due, err := w.Feeds.DueFeeds(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("list due feeds: %w", err)
	}

	for _, feed := range due {
		if _, err := w.Holder.Enqueuer.Insert(ctx, FeedGenerationArgs{FeedID: feed.ID}, nil); err != nil {
			w.Logger.Error().Err(err).Str("feed_id", feed.ID).Msg("failed to enqueue feed generation")
			continue
		}
		w.Logger.Info().Str("feed_id", feed.ID).Str("slug", feed.Slug).Msg("enqueued due feed")
	}
	return nil
}

type AuditCleanupWorker struct {
	river.WorkerDefaults[AuditCleanupArgs]
	Recorder *audit.Recorder
	Logger   zerolog.Logger
}

func (AuditCleanupWorker) Kind() string { return JobKindAuditCleanup }

func (w AuditCleanupWorker) Work(ctx context.Context, job *river.Job[AuditCleanupArgs]) error {
	if w.Recorder == nil {
		return fmt.Errorf("audit recorder not configured")
	}

	retention := job.Args.RetentionDays
	if retention <= 0 {
		retention = 365
	}

	deleted, err := w.Recorder.Cleanup(ctx, retention, false)
	if err != nil {
		return fmt.Errorf("audit cleanup: %w", err)
	}
	w.Logger.Info().Int64("deleted", deleted).Int("retention_days", retention).Msg("audit cleanup completed")
	return nil
}

// NewWorkers registers every worker. The holder's enqueuer must be set to
// the River client before the client starts.
func NewWorkers(assetService *assets.Service, feedService *feeds.Service, recorder *audit.Recorder, holder *EnqueuerHolder, logger zerolog.Logger) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[AssetProcessingArgs](workers, AssetProcessingWorker{Assets: assetService, Logger: logger})
	river.AddWorker[FeedGenerationArgs](workers, FeedGenerationWorker{Feeds: feedService, Logger: logger})
	river.AddWorker[FeedSchedulerArgs](workers, FeedSchedulerWorker{Feeds: feedService, Holder: holder, Logger: logger})
	river.AddWorker[AuditCleanupArgs](workers, AuditCleanupWorker{Recorder: recorder, Logger: logger})
	return workers
}
