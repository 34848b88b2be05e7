package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/solidus-pim/server/internal/api"
	"github.com/solidus-pim/server/internal/api/handlers"
	"github.com/solidus-pim/server/internal/config"
	"github.com/solidus-pim/server/internal/jobs"
	"github.com/solidus-pim/server/internal/metrics"
	"github.com/solidus-pim/server/internal/telemetry"
)

var (
	// Server flags (override config/env)
	serverHost string
	serverPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the PIM HTTP server",
	Long: `Start the PIM HTTP server and begin accepting API requests.

The server will:
- Load configuration from environment variables (or --config file if provided)
- Bootstrap the admin user if ADMIN_* env vars are set
- Start River background job workers and the feed scheduler
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  server serve

  # Start on a specific host and port
  server serve --host 127.0.0.1 --port 9090

  # Start with debug logging
  server serve --log-level debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host address (default: 0.0.0.0)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (default: 8080)")
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Msg("starting solidus server")

	metrics.Init(Version, GitCommit, BuildDate)

	ctx := context.Background()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		traceCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(traceCtx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown error")
		}
	}()

	application, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	bootstrapCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if created, err := application.users.Bootstrap(bootstrapCtx, cfg.AdminBootstrap.Username, cfg.AdminBootstrap.Password, cfg.AdminBootstrap.Email); err != nil {
		logger.Error().Err(err).Msg("admin bootstrap failed")
	} else if created {
		logger.Info().Str("username", cfg.AdminBootstrap.Username).Msg("bootstrapped admin user")
	}
	cancel()

	// Database pool metrics, collected every 15 seconds.
	dbCollector := metrics.NewDBCollector(application.pool)
	collectorCtx, collectorCancel := context.WithCancel(ctx)
	go dbCollector.Start(collectorCtx, 15*time.Second)
	defer collectorCancel()
	defer dbCollector.Stop()

	workers := jobs.NewWorkers(application.assets, application.feeds, application.recorder, application.holder, logger)
	periodicJobs := jobs.NewPeriodicJobs(cfg.Jobs.AuditRetentionDays)
	riverClient, err := jobs.NewClient(cfg.Jobs, application.pool, workers, nil, periodicJobs)
	if err != nil {
		return fmt.Errorf("init river client: %w", err)
	}
	application.holder.Enqueuer = riverClient

	riverCtx, riverCancel := context.WithCancel(ctx)
	defer riverCancel()
	if err := riverClient.Start(riverCtx); err != nil {
		return fmt.Errorf("river workers failed to start: %w", err)
	}
	logger.Info().Msg("river background job workers started")
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := riverClient.Stop(stopCtx); err != nil {
			logger.Error().Err(err).Msg("river workers shutdown error")
		} else {
			logger.Info().Msg("river workers stopped")
		}
	}()

	healthChecker := handlers.NewHealthChecker(application.pool, riverClient, application.cache, Version, GitCommit)

	router := api.NewRouter(api.Deps{
		Config:    cfg,
		Logger:    logger,
		JWT:       application.jwt,
		Products:  application.products,
		Assets:    application.assets,
		Feeds:     application.feeds,
		Users:     application.users,
		Audit:     handlers.NewAuditHandler(application.recorder, cfg.Environment),
		Health:    healthChecker,
		Enqueuer:  application.holder,
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	return gracefulShutdown(server, logger)
}

func gracefulShutdown(server *http.Server, logger zerolog.Logger) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}
