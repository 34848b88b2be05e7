package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/solidus-pim/server/internal/cache"
	"github.com/solidus-pim/server/internal/config"
	"github.com/solidus-pim/server/internal/seed"
)

const (
	setupWaitAttempts = 30
	setupWaitInterval = 2 * time.Second
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Prepare the database and initial data",
	Long: `Prepare the server for first use. Intended as the container entrypoint
step before serve.

The command:
  1. Waits for PostgreSQL and Redis to accept connections (bounded retries)
  2. Applies schema migrations (application + job queue)
  3. Creates the admin account if ADMIN_USERNAME/ADMIN_PASSWORD/ADMIN_EMAIL are set
  4. Loads catalog fixtures when LOAD_INITIAL_DATA=true (failure is a warning)

Exits non-zero if the database never becomes reachable or migrations fail.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetup()
	},
}

func runSetup() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger := config.NewLogger(cfg.Logging)
	ctx := context.Background()

	// Postgres must come up; setup is useless without it.
	if err := waitFor(ctx, "postgres", logger, func(ctx context.Context) error {
		pool, err := newPool(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		return pool.Ping(ctx)
	}); err != nil {
		return fmt.Errorf("postgres never became ready: %w", err)
	}

	// Redis is a cache; a missing one degrades but does not block.
	cacheClient := cache.New(cfg.Redis, logger)
	if err := waitFor(ctx, "redis", logger, cacheClient.Ping); err != nil {
		logger.Warn().Err(err).Msg("redis not reachable, continuing without cache")
	}
	_ = cacheClient.Close()

	logger.Info().Msg("running migrations")
	if err := runMigrations(cfg); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

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

	if cfg.Seed.LoadInitialData {
		if _, err := seed.Load(ctx, cfg.Seed.FixturesPath, application.repo.Products(), logger); err != nil {
			logger.Warn().Err(err).Str("path", cfg.Seed.FixturesPath).Msg("fixture load failed, continuing")
		}
	}

	logger.Info().Msg("setup complete")
	return nil
}

// waitFor retries ping on a fixed interval up to setupWaitAttempts times.
func waitFor(ctx context.Context, name string, logger zerolog.Logger, ping func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= setupWaitAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		lastErr = ping(pingCtx)
		cancel()
		if lastErr == nil {
			logger.Info().Str("service", name).Int("attempt", attempt).Msg("service ready")
			return nil
		}
		time.Sleep(setupWaitInterval)
	}
	return lastErr
}
