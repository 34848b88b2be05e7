package products

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/solidus-pim/server/internal/audit"
	"github.com/solidus-pim/server/internal/domain/ids"
	"github.com/solidus-pim/server/internal/sanitize"
)

var (
	ErrNotFound        = errors.New("product not found")
	ErrBrandNotFound   = errors.New("brand not found")
	ErrFitmentNotFound = errors.New("fitment not found")
	ErrSKUTaken        = errors.New("sku is already taken")
	ErrInvalidInput    = errors.New("invalid input")
)

// Repository is the persistence contract for the product catalog.
type Repository interface {
	List(ctx context.Context, filters Filters, pagination Pagination) (ListResult, error)
	GetByULID(ctx context.Context, ulid string) (*Product, error)
	GetBySKU(ctx context.Context, sku string) (*Product, error)
	Create(ctx context.Context, product Product) error
	Update(ctx context.Context, product Product) error
	SoftDelete(ctx context.Context, ulid string) error

	ListBrands(ctx context.Context) ([]Brand, error)
	CreateBrand(ctx context.Context, brand Brand) error
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, category Category) error

	ListFitments(ctx context.Context, productULID string) ([]Fitment, error)
	AddFitment(ctx context.Context, fitment Fitment) error
	DeleteFitment(ctx context.Context, productULID, fitmentID string) error
	CountFitments(ctx context.Context, productULID string) (int64, error)

	ActiveCustomerPrice(ctx context.Context, productULID, customerID string, at time.Time) (*CustomerPrice, error)
	UpsertCustomerPrice(ctx context.Context, price CustomerPrice) error
}

// FitmentCountCache caches per-product fitment counts. Implementations must
// tolerate a cold or unavailable cache; the service falls back to the
// repository on any cache error.
type FitmentCountCache interface {
	GetFitmentCount(ctx context.Context, productULID string) (int64, bool, error)
	SetFitmentCount(ctx context.Context, productULID string, count int64) error
	InvalidateFitmentCount(ctx context.Context, productULID string) error
}

// ProductCache holds whole product payloads for hot ULID reads. Entries are
// short-lived and invalidated on every product mutation.
type ProductCache interface {
	GetProduct(ctx context.Context, productULID string) (*Product, bool, error)
	SetProduct(ctx context.Context, product Product) error
	InvalidateProduct(ctx context.Context, productULID string) error
}

// Cache is the combined cache surface the service uses.
type Cache interface {
	FitmentCountCache
	ProductCache
}

type Service struct {
	repo     Repository
	cache    Cache
	recorder *audit.Recorder
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewService(repo Repository, cache Cache, recorder *audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		cache:    cache,
		recorder: recorder,
		validate: validator.New(),
		logger:   logger.With().Str("component", "products").Logger(),
	}
}

// CreateProductParams carries validated input for product creation.
type CreateProductParams struct {
	SKU              string `validate:"required,max=64"`
	PartNumber       string `validate:"required,max=64"`
	Title            string `validate:"required,max=255"`
	ShortDescription string `validate:"max=500"`
	LongDescription  string
	BrandID          string
	CategoryID       string
	UPC              string `validate:"omitempty,max=14"`
	CountryOfOrigin  string `validate:"omitempty,len=2"`
	WeightGrams      int64  `validate:"gte=0"`
	LengthMM         int64  `validate:"gte=0"`
	WidthMM          int64  `validate:"gte=0"`
	HeightMM         int64  `validate:"gte=0"`
	MSRPCents        int64  `validate:"gte=0"`
	MAPCents         int64  `validate:"gte=0"`
	JobberCents      int64  `validate:"gte=0"`
	CostCents        int64  `validate:"gte=0"`
	IsFeatured       bool
	IsHazmat         bool
	IsOversized      bool
	LaunchDate       *time.Time
	DiscontinueDate  *time.Time
	Keywords         []string
	Tags             []string
}

// UpdateProductParams mirrors CreateProductParams minus the immutable SKU.
type UpdateProductParams struct {
	PartNumber       string `validate:"required,max=64"`
	Title            string `validate:"required,max=255"`
	ShortDescription string `validate:"max=500"`
	LongDescription  string
	BrandID          string
	CategoryID       string
	UPC              string `validate:"omitempty,max=14"`
	CountryOfOrigin  string `validate:"omitempty,len=2"`
	WeightGrams      int64  `validate:"gte=0"`
	LengthMM         int64  `validate:"gte=0"`
	WidthMM          int64  `validate:"gte=0"`
	HeightMM         int64  `validate:"gte=0"`
	MSRPCents        int64  `validate:"gte=0"`
	MAPCents         int64  `validate:"gte=0"`
	JobberCents      int64  `validate:"gte=0"`
	CostCents        int64  `validate:"gte=0"`
	IsActive         bool
	IsFeatured       bool
	IsHazmat         bool
	IsOversized      bool
	LaunchDate       *time.Time
	DiscontinueDate  *time.Time
	Keywords         []string
	Tags             []string
}

func (s *Service) List(ctx context.Context, filters Filters, pagination Pagination) (ListResult, error) {
	return s.repo.List(ctx, filters, pagination)
}

// Get resolves by ULID first, falling back to SKU lookup so both identifier
// styles work on the same endpoint.
func (s *Service) Get(ctx context.Context, idOrSKU string) (*Product, error) {
	if ids.IsULID(idOrSKU) {
		if s.cache != nil {
			cached, ok, err := s.cache.GetProduct(ctx, idOrSKU)
			if err != nil {
				s.logger.Warn().Err(err).Str("product_id", idOrSKU).Msg("product cache read failed")
			} else if ok {
				return cached, nil
			}
		}
		product, err := s.repo.GetByULID(ctx, idOrSKU)
		if err == nil {
			if s.cache != nil {
				if err := s.cache.SetProduct(ctx, *product); err != nil {
					s.logger.Warn().Err(err).Str("product_id", product.ID).Msg("product cache write failed")
				}
			}
			return product, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return s.repo.GetBySKU(ctx, idOrSKU)
}

func (s *Service) Create(ctx context.Context, params CreateProductParams, actor string) (*Product, error) {
	if err := s.validate.Struct(params); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}

	existing, err := s.repo.GetBySKU(ctx, params.SKU)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check sku: %w", err)
	}
	if existing != nil {
		return nil, ErrSKUTaken
	}

	ulid, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("generate ulid: %w", err)
	}

	now := time.Now().UTC()
	product := Product{
		ID:               ulid,
		SKU:              sanitize.Text(params.SKU),
		PartNumber:       sanitize.Text(params.PartNumber),
		Title:            sanitize.Text(params.Title),
		ShortDescription: sanitize.Text(params.ShortDescription),
		LongDescription:  sanitize.HTML(params.LongDescription),
		BrandID:          params.BrandID,
		CategoryID:       params.CategoryID,
		UPC:              sanitize.Text(params.UPC),
		CountryOfOrigin:  sanitize.Text(params.CountryOfOrigin),
		WeightGrams:      params.WeightGrams,
		LengthMM:         params.LengthMM,
		WidthMM:          params.WidthMM,
		HeightMM:         params.HeightMM,
		MSRPCents:        params.MSRPCents,
		MAPCents:         params.MAPCents,
		JobberCents:      params.JobberCents,
		CostCents:        params.CostCents,
		IsActive:         true,
		IsFeatured:       params.IsFeatured,
		IsHazmat:         params.IsHazmat,
		IsOversized:      params.IsOversized,
		LaunchDate:       params.LaunchDate,
		DiscontinueDate:  params.DiscontinueDate,
		Keywords:         sanitize.TextSlice(params.Keywords),
		Tags:             sanitize.TextSlice(params.Tags),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	s.recorder.RecordSuccess(ctx, audit.Entry{
		Action:     "product.created",
		Actor:      actor,
		EntityType: "product",
		EntityID:   product.ID,
		Changes:    map[string]any{"sku": product.SKU, "title": product.Title},
	})
	return &product, nil
}

func (s *Service) Update(ctx context.Context, ulid string, params UpdateProductParams, actor string) (*Product, error) {
	if err := s.validate.Struct(params); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}

	product, err := s.repo.GetByULID(ctx, ulid)
	if err != nil {
		return nil, err
	}

	product.PartNumber = sanitize.Text(params.PartNumber)
	product.Title = sanitize.Text(params.Title)
	product.ShortDescription = sanitize.Text(params.ShortDescription)
	product.LongDescription = sanitize.HTML(params.LongDescription)
	product.BrandID = params.BrandID
	product.CategoryID = params.CategoryID
	product.UPC = sanitize.Text(params.UPC)
	product.CountryOfOrigin = sanitize.Text(params.CountryOfOrigin)
	product.WeightGrams = params.WeightGrams
	product.LengthMM = params.LengthMM
	product.WidthMM = params.WidthMM
	product.HeightMM = params.HeightMM
	product.MSRPCents = params.MSRPCents
	product.MAPCents = params.MAPCents
	product.JobberCents = params.JobberCents
	product.CostCents = params.CostCents
	product.IsActive = params.IsActive
	product.IsFeatured = params.IsFeatured
	product.IsHazmat = params.IsHazmat
	product.IsOversized = params.IsOversized
	product.LaunchDate = params.LaunchDate
	product.DiscontinueDate = params.DiscontinueDate
	product.Keywords = sanitize.TextSlice(params.Keywords)
	product.Tags = sanitize.TextSlice(params.Tags)
	product.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, *product); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}

	s.invalidateProduct(ctx, product.ID)

	s.recorder.RecordSuccess(ctx, audit.Entry{
		Action:     "product.updated",
		Actor:      actor,
		EntityType: "product",
		EntityID:   product.ID,
		Changes:    map[string]any{"sku": product.SKU},
	})
	return product, nil
}

// Delete soft deletes: the row survives for feeds history and audit, the
// product just stops being listable.
func (s *Service) Delete(ctx context.Context, ulid string, actor string) error {
	product, err := s.repo.GetByULID(ctx, ulid)
	if err != nil {
		return err
	}

	if err := s.repo.SoftDelete(ctx, ulid); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	s.invalidateProduct(ctx, ulid)

	s.recorder.RecordSuccess(ctx, audit.Entry{
		Action:     "product.deleted",
		Actor:      actor,
		EntityType: "product",
		EntityID:   ulid,
		Changes:    map[string]any{"sku": product.SKU},
	})
	return nil
}

func (s *Service) ListBrands(ctx context.Context) ([]Brand, error) {
	return s.repo.ListBrands(ctx)
}

func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) ListFitments(ctx context.Context, productULID string) ([]Fitment, error) {
	if _, err := s.repo.GetByULID(ctx, productULID); err != nil {
		return nil, err
	}
	return s.repo.ListFitments(ctx, productULID)
}

// AddFitmentParams carries validated input for a new vehicle application.
type AddFitmentParams struct {
	Make      string `validate:"required,max=64"`
	Model     string `validate:"required,max=64"`
	YearStart int    `validate:"required,gte=1900,lte=2100"`
	YearEnd   int    `validate:"required,gte=1900,lte=2100"`
	Engine    string `validate:"max=64"`
	Position  string `validate:"max=64"`
	Notes     string `validate:"max=500"`
}

func (s *Service) AddFitment(ctx context.Context, productULID string, params AddFitmentParams, actor string) (*Fitment, error) {
	if err := s.validate.Struct(params); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}
	if params.YearEnd < params.YearStart {
		return nil, fmt.Errorf("%w: year_end must be on or after year_start", ErrInvalidInput)
	}

	if _, err := s.repo.GetByULID(ctx, productULID); err != nil {
		return nil, err
	}

	id, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("generate ulid: %w", err)
	}

	fitment := Fitment{
		ID:        id,
		ProductID: productULID,
		Make:      sanitize.Text(params.Make),
		Model:     sanitize.Text(params.Model),
		YearStart: params.YearStart,
		YearEnd:   params.YearEnd,
		Engine:    sanitize.Text(params.Engine),
		Position:  sanitize.Text(params.Position),
		Notes:     sanitize.Text(params.Notes),
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.AddFitment(ctx, fitment); err != nil {
		return nil, fmt.Errorf("add fitment: %w", err)
	}

	s.invalidateFitmentCount(ctx, productULID)

	s.recorder.RecordSuccess(ctx, audit.Entry{
		Action:     "product.fitment_added",
		Actor:      actor,
		EntityType: "product",
		EntityID:   productULID,
		Changes:    map[string]any{"make": fitment.Make, "model": fitment.Model},
	})
	return &fitment, nil
}

func (s *Service) DeleteFitment(ctx context.Context, productULID, fitmentID string, actor string) error {
	if err := s.repo.DeleteFitment(ctx, productULID, fitmentID); err != nil {
		return err
	}

	s.invalidateFitmentCount(ctx, productULID)

	s.recorder.RecordSuccess(ctx, audit.Entry{
		Action:     "product.fitment_removed",
		Actor:      actor,
		EntityType: "product",
		EntityID:   productULID,
		Changes:    map[string]any{"fitment_id": fitmentID},
	})
	return nil
}

// FitmentCount returns the number of vehicle applications, preferring the
// cache and repairing it on a miss.
func (s *Service) FitmentCount(ctx context.Context, productULID string) (int64, error) {
	if s.cache != nil {
		count, ok, err := s.cache.GetFitmentCount(ctx, productULID)
		if err != nil {
			s.logger.Warn().Err(err).Str("product_id", productULID).Msg("fitment count cache read failed")
		} else if ok {
			return count, nil
		}
	}

	count, err := s.repo.CountFitments(ctx, productULID)
	if err != nil {
		return 0, fmt.Errorf("count fitments: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetFitmentCount(ctx, productULID, count); err != nil {
			s.logger.Warn().Err(err).Str("product_id", productULID).Msg("fitment count cache write failed")
		}
	}
	return count, nil
}

func (s *Service) invalidateFitmentCount(ctx context.Context, productULID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateFitmentCount(ctx, productULID); err != nil {
		s.logger.Warn().Err(err).Str("product_id", productULID).Msg("fitment count cache invalidation failed")
	}
}

func (s *Service) invalidateProduct(ctx context.Context, productULID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateProduct(ctx, productULID); err != nil {
		s.logger.Warn().Err(err).Str("product_id", productULID).Msg("product cache invalidation failed")
	}
}

// PriceSource identifies where an effective price came from.
type PriceSource string

const (
	PriceSourceCustomer PriceSource = "customer"
	PriceSourceMSRP     PriceSource = "msrp"
)

// EffectivePrice resolves the price for a customer: an active customer
// override wins, otherwise MSRP.
func (s *Service) EffectivePrice(ctx context.Context, productULID, customerID string, at time.Time) (int64, PriceSource, error) {
	product, err := s.repo.GetByULID(ctx, productULID)
	if err != nil {
		return 0, "", err
	}

	if customerID != "" {
		price, err := s.repo.ActiveCustomerPrice(ctx, productULID, customerID, at)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return 0, "", fmt.Errorf("customer price: %w", err)
		}
		if price != nil {
			return price.PriceCents, PriceSourceCustomer, nil
		}
	}
	return product.MSRPCents, PriceSourceMSRP, nil
}

// SetCustomerPrice creates or replaces the customer override for a product.
func (s *Service) SetCustomerPrice(ctx context.Context, price CustomerPrice, actor string) error {
	if price.PriceCents < 0 {
		return fmt.Errorf("%w: price_cents must not be negative", ErrInvalidInput)
	}
	if price.ValidFrom != nil && price.ValidUntil != nil && price.ValidUntil.Before(*price.ValidFrom) {
		return fmt.Errorf("%w: valid_until must be on or after valid_from", ErrInvalidInput)
	}

	if _, err := s.repo.GetByULID(ctx, price.ProductID); err != nil {
		return err
	}

	if price.ID == "" {
		id, err := ids.NewULID()
		if err != nil {
			return fmt.Errorf("generate ulid: %w", err)
		}
		price.ID = id
	}
	if price.CreatedAt.IsZero() {
		price.CreatedAt = time.Now().UTC()
	}

	if err := s.repo.UpsertCustomerPrice(ctx, price); err != nil {
		return fmt.Errorf("set customer price: %w", err)
	}

	s.recorder.RecordSuccess(ctx, audit.Entry{
		Action:     "product.customer_price_set",
		Actor:      actor,
		EntityType: "product",
		EntityID:   price.ProductID,
		Changes:    map[string]any{"customer_id": price.CustomerID, "price_cents": price.PriceCents},
	})
	return nil
}
