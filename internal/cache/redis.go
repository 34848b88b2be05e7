// Package cache wraps Redis for values that are expensive to recompute:
// per-product fitment counts and hot product payloads. Every method tolerates
// an unavailable Redis; callers fall back to the database.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/solidus-pim/server/internal/config"
	"github.com/solidus-pim/server/internal/domain/products"
	"github.com/solidus-pim/server/internal/metrics"
)

const (
	fitmentCountTTL = time.Hour
	productTTL      = 5 * time.Minute
)

type Cache struct {
	client *redis.Client
	logger zerolog.Logger
}

func New(cfg config.RedisConfig, logger zerolog.Logger) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
	}
}

// Ping verifies connectivity, used by readiness checks.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func fitmentCountKey(productULID string) string {
	return "fitments:count:" + productULID
}

// GetFitmentCount returns the cached count and whether it was present.
func (c *Cache) GetFitmentCount(ctx context.Context, productULID string) (int64, bool, error) {
	value, err := c.client.Get(ctx, fitmentCountKey(productULID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.FitmentCacheMisses.Inc()
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get fitment count: %w", err)
	}
	count, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		// A corrupt entry behaves like a miss.
		metrics.FitmentCacheMisses.Inc()
		return 0, false, nil
	}
	metrics.FitmentCacheHits.Inc()
	return count, true, nil
}

func (c *Cache) SetFitmentCount(ctx context.Context, productULID string, count int64) error {
	if err := c.client.Set(ctx, fitmentCountKey(productULID), strconv.FormatInt(count, 10), fitmentCountTTL).Err(); err != nil {
		return fmt.Errorf("set fitment count: %w", err)
	}
	return nil
}

func (c *Cache) InvalidateFitmentCount(ctx context.Context, productULID string) error {
	if err := c.client.Del(ctx, fitmentCountKey(productULID)).Err(); err != nil {
		return fmt.Errorf("invalidate fitment count: %w", err)
	}
	return nil
}

func productKey(productULID string) string {
	return "product:" + productULID
}

// GetProduct returns the cached payload and whether it was present.
func (c *Cache) GetProduct(ctx context.Context, productULID string) (*products.Product, bool, error) {
	value, err := c.client.Get(ctx, productKey(productULID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get product: %w", err)
	}
	var product products.Product
	if err := json.Unmarshal(value, &product); err != nil {
		// A corrupt entry behaves like a miss.
		return nil, false, nil
	}
	return &product, true, nil
}

func (c *Cache) SetProduct(ctx context.Context, product products.Product) error {
	payload, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("encode product: %w", err)
	}
	if err := c.client.Set(ctx, productKey(product.ID), payload, productTTL).Err(); err != nil {
		return fmt.Errorf("set product: %w", err)
	}
	return nil
}

func (c *Cache) InvalidateProduct(ctx context.Context, productULID string) error {
	if err := c.client.Del(ctx, productKey(productULID)).Err(); err != nil {
		return fmt.Errorf("invalidate product: %w", err)
	}
	return nil
}
