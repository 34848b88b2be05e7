package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/solidus-pim/server/internal/audit"
	"github.com/solidus-pim/server/internal/auth"
	"github.com/solidus-pim/server/internal/cache"
	"github.com/solidus-pim/server/internal/config"
	"github.com/solidus-pim/server/internal/domain/assets"
	"github.com/solidus-pim/server/internal/domain/feeds"
	"github.com/solidus-pim/server/internal/domain/products"
	"github.com/solidus-pim/server/internal/domain/users"
	"github.com/solidus-pim/server/internal/email"
	"github.com/solidus-pim/server/internal/jobs"
	"github.com/solidus-pim/server/internal/storage/files"
	"github.com/solidus-pim/server/internal/storage/postgres"
)

const jwtIssuer = "solidus-pim"

// app holds the wired service graph shared by the CLI commands. Close
// releases the database pool and cache connection.
type app struct {
	cfg    config.Config
	logger zerolog.Logger

	pool     *pgxpool.Pool
	repo     *postgres.Repository
	cache    *cache.Cache
	blobs    *files.Store
	email    *email.Service
	recorder *audit.Recorder
	jwt      *auth.JWTManager

	products *products.Service
	assets   *assets.Service
	feeds    *feeds.Service
	users    *users.Service

	holder *jobs.EnqueuerHolder
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return cfg, nil
}

func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections)
	}
	if cfg.MaxIdle > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdle)
	}

	poolCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(poolCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return pool, nil
}

func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	repo, err := postgres.NewRepository(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	blobs, err := files.NewStore(cfg.Storage.Root)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init file store: %w", err)
	}

	cacheClient := cache.New(cfg.Redis, logger)
	emailService := email.NewService(cfg.Email, logger)
	recorder := audit.NewRecorder(repo.Audit(), logger)
	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, jwtIssuer)

	deliverer := feeds.NewDeliverer(emailService, nil, cfg.Server.BaseURL, logger)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		pool:     pool,
		repo:     repo,
		cache:    cacheClient,
		blobs:    blobs,
		email:    emailService,
		recorder: recorder,
		jwt:      jwtManager,
		products: products.NewService(repo.Products(), cacheClient, recorder, logger),
		assets:   assets.NewService(repo.Assets(), blobs, recorder, logger),
		feeds:    feeds.NewService(repo.Feeds(), postgres.NewFeedSource(pool), blobs, deliverer, recorder, logger),
		users:    users.NewService(repo.Users(), jwtManager, emailService, recorder, logger),
		holder:   &jobs.EnqueuerHolder{},
	}
	return a, nil
}

func (a *app) Close() {
	if err := a.cache.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("cache close error")
	}
	a.pool.Close()
}
