package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/solidus-pim/server/internal/config"
	"github.com/solidus-pim/server/internal/seed"
)

var seedFixturesPath string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load fixtures and bootstrap the admin user",
	Long: `Load catalog fixtures and bootstrap the admin account, without the
readiness waits and migrations that setup performs. Useful against an
already-migrated database.`,
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

		bootstrapCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		created, err := application.users.Bootstrap(bootstrapCtx, cfg.AdminBootstrap.Username, cfg.AdminBootstrap.Password, cfg.AdminBootstrap.Email)
		if err != nil {
			return fmt.Errorf("admin bootstrap: %w", err)
		}
		if created {
			logger.Info().Str("username", cfg.AdminBootstrap.Username).Msg("bootstrapped admin user")
		}

		path := seedFixturesPath
		if path == "" {
			path = cfg.Seed.FixturesPath
		}
		summary, err := seed.Load(ctx, path, application.repo.Products(), logger)
		if err != nil {
			return fmt.Errorf("load fixtures: %w", err)
		}
		fmt.Printf("Seeded %d brands, %d categories, %d products, %d fitments\n",
			summary.Brands, summary.Categories, summary.Products, summary.Fitments)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFixturesPath, "fixtures", "", "fixture file path (default: FIXTURES_PATH)")
}
