package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solidus-pim/server/internal/config"
)

var assetsProcessBatchSize int

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "Manage digital assets",
}

var assetsProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Process pending asset files",
	Long: `Drain the pending asset file queue synchronously, extracting image
dimensions and marking files completed or failed. The same work normally
runs as a periodic background job.`,
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

		total := 0
		for {
			processed, err := application.assets.ProcessPending(ctx, assetsProcessBatchSize)
			if err != nil {
				return fmt.Errorf("process pending assets: %w", err)
			}
			total += processed
			if processed < assetsProcessBatchSize {
				break
			}
		}
		fmt.Printf("Processed %d asset file(s)\n", total)
		return nil
	},
}

func init() {
	assetsProcessCmd.Flags().IntVar(&assetsProcessBatchSize, "batch-size", 25, "files per batch")
	assetsCmd.AddCommand(assetsProcessCmd)
}
