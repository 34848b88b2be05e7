package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solidus-pim/server/internal/config"
)

var (
	auditCleanupDays   int
	auditCleanupDryRun bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Manage the audit log",
}

var auditCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete audit entries older than the retention window",
	Long: `Delete audit log entries older than --days. With --dry-run, reports
how many rows would be deleted without deleting them.

Examples:
  server audit cleanup --days 365
  server audit cleanup --days 90 --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if auditCleanupDays <= 0 {
			return fmt.Errorf("--days must be positive")
		}
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

		affected, err := application.recorder.Cleanup(ctx, auditCleanupDays, auditCleanupDryRun)
		if err != nil {
			return fmt.Errorf("audit cleanup: %w", err)
		}
		if auditCleanupDryRun {
			fmt.Printf("Would delete %d audit entries older than %d days\n", affected, auditCleanupDays)
		} else {
			fmt.Printf("Deleted %d audit entries older than %d days\n", affected, auditCleanupDays)
		}
		return nil
	},
}

func init() {
	auditCleanupCmd.Flags().IntVar(&auditCleanupDays, "days", 365, "retention window in days")
	auditCleanupCmd.Flags().BoolVar(&auditCleanupDryRun, "dry-run", false, "report without deleting")
	auditCmd.AddCommand(auditCleanupCmd)
}
