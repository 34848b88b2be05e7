package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solidus-pim/server/internal/audit"
	"github.com/solidus-pim/server/internal/domain/assets"
	"github.com/solidus-pim/server/internal/domain/feeds"
	"github.com/solidus-pim/server/internal/domain/products"
	"github.com/solidus-pim/server/internal/domain/users"
	"github.com/solidus-pim/server/internal/storage"
)

type Repository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewRepository(pool *pgxpool.Pool) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres repository: pool is nil")
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Products() products.Repository {
	return &ProductRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Assets() assets.Repository {
	return &AssetRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Feeds() feeds.Repository {
	return &FeedRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Users() users.Repository {
	return &UserRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Audit() audit.Store {
	return &AuditRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, storage.Repository) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	wrapped := &Repository{pool: r.pool, tx: tx}
	if err := fn(ctx, wrapped); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// queryer is satisfied by both the pool and an open transaction.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type ProductRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *ProductRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

type AssetRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *AssetRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

type FeedRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *FeedRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

type UserRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *UserRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

type AuditRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *AuditRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}
