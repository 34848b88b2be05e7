package storage

import (
	"context"

	"github.com/solidus-pim/server/internal/audit"
	"github.com/solidus-pim/server/internal/domain/assets"
	"github.com/solidus-pim/server/internal/domain/feeds"
	"github.com/solidus-pim/server/internal/domain/products"
	"github.com/solidus-pim/server/internal/domain/users"
)

// Repository groups data access by domain.
type Repository interface {
	Products() products.Repository
	Assets() assets.Repository
	Feeds() feeds.Repository
	Users() users.Repository
	Audit() audit.Store

	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}
