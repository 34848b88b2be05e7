package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/solidus-pim/server/internal/config"
)

var (
	feedsGenerateFeedID string
	feedsGenerateForce  bool
)

var feedsCmd = &cobra.Command{
	Use:   "feeds",
	Short: "Manage data feeds",
}

var feedsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate due feeds, or one specific feed",
	Long: `Run feed generation synchronously, outside the job queue.

Without flags, every feed whose next run time has passed is generated.
With --feed, only that feed runs; --force runs it even when not due.

Examples:
  server feeds generate
  server feeds generate --feed 01JWFEED0000000000000000FD --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		logger := config.NewLogger(cfg.Logging)
		ctx := context.Background()

		application, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer application.Close()

		if feedsGenerateFeedID != "" {
			feed, err := application.feeds.Get(ctx, feedsGenerateFeedID)
			if err != nil {
				return fmt.Errorf("load feed: %w", err)
			}
			if !feedsGenerateForce {
				if feed.NextRunAt == nil || feed.NextRunAt.After(time.Now().UTC()) {
					return fmt.Errorf("feed %s is not due; use --force to run anyway", feed.Slug)
				}
			}
			gen, err := application.feeds.Generate(ctx, feed.ID, "cli")
			if err != nil {
				return fmt.Errorf("generate feed %s: %w", feed.Slug, err)
			}
			fmt.Printf("Generated %s: %d rows, %d bytes (%s)\n", feed.Slug, gen.RowCount, gen.FileSizeBytes, gen.Status)
			return nil
		}

		due, err := application.feeds.DueFeeds(ctx, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("list due feeds: %w", err)
		}
		if len(due) == 0 {
			fmt.Println("No feeds due")
			return nil
		}
		for _, feed := range due {
			gen, err := application.feeds.Generate(ctx, feed.ID, "cli")
			if err != nil {
				logger.Error().Err(err).Str("feed", feed.Slug).Msg("feed generation failed")
				continue
			}
			fmt.Printf("Generated %s: %d rows, %d bytes\n", feed.Slug, gen.RowCount, gen.FileSizeBytes)
		}
		return nil
	},
}

func init() {
	feedsGenerateCmd.Flags().StringVar(&feedsGenerateFeedID, "feed", "", "feed ULID to generate")
	feedsGenerateCmd.Flags().BoolVar(&feedsGenerateForce, "force", false, "generate even if the feed is not due")
	feedsCmd.AddCommand(feedsGenerateCmd)
}
