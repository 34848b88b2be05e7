package products

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/solidus-pim/server/internal/audit"
)

type fakeRepo struct {
	products       map[string]*Product
	bySKU          map[string]*Product
	fitments       map[string][]Fitment
	customerPrices map[string]*CustomerPrice
	brands         []Brand
	categories     []Category
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		products:       map[string]*Product{},
		bySKU:          map[string]*Product{},
		fitments:       map[string][]Fitment{},
		customerPrices: map[string]*CustomerPrice{},
	}
}

func (f *fakeRepo) List(_ context.Context, _ Filters, _ Pagination) (ListResult, error) {
	result := ListResult{}
	for _, p := range f.products {
		result.Products = append(result.Products, *p)
	}
	return result, nil
}

func (f *fakeRepo) GetByULID(_ context.Context, ulid string) (*Product, error) {
	p, ok := f.products[ulid]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (f *fakeRepo) GetBySKU(_ context.Context, sku string) (*Product, error) {
	p, ok := f.bySKU[sku]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (f *fakeRepo) Create(_ context.Context, product Product) error {
	f.products[product.ID] = &product
	f.bySKU[product.SKU] = &product
	return nil
}

func (f *fakeRepo) Update(_ context.Context, product Product) error {
	f.products[product.ID] = &product
	f.bySKU[product.SKU] = &product
	return nil
}

func (f *fakeRepo) SoftDelete(_ context.Context, ulid string) error {
	p, ok := f.products[ulid]
	if !ok {
		return ErrNotFound
	}
	p.IsActive = false
	return nil
}

func (f *fakeRepo) ListBrands(_ context.Context) ([]Brand, error) { return f.brands, nil }
func (f *fakeRepo) CreateBrand(_ context.Context, brand Brand) error {
	f.brands = append(f.brands, brand)
	return nil
}
func (f *fakeRepo) ListCategories(_ context.Context) ([]Category, error) { return f.categories, nil }
func (f *fakeRepo) CreateCategory(_ context.Context, category Category) error {
	f.categories = append(f.categories, category)
	return nil
}

func (f *fakeRepo) ListFitments(_ context.Context, productULID string) ([]Fitment, error) {
	return f.fitments[productULID], nil
}

func (f *fakeRepo) AddFitment(_ context.Context, fitment Fitment) error {
	f.fitments[fitment.ProductID] = append(f.fitments[fitment.ProductID], fitment)
	return nil
}

func (f *fakeRepo) DeleteFitment(_ context.Context, productULID, fitmentID string) error {
	list := f.fitments[productULID]
	for i, fit := range list {
		if fit.ID == fitmentID {
			f.fitments[productULID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return ErrFitmentNotFound
}

func (f *fakeRepo) CountFitments(_ context.Context, productULID string) (int64, error) {
	return int64(len(f.fitments[productULID])), nil
}

func (f *fakeRepo) ActiveCustomerPrice(_ context.Context, productULID, customerID string, at time.Time) (*CustomerPrice, error) {
	price, ok := f.customerPrices[productULID+":"+customerID]
	if !ok {
		return nil, ErrNotFound
	}
	if price.ValidFrom != nil && at.Before(*price.ValidFrom) {
		return nil, ErrNotFound
	}
	if price.ValidUntil != nil && at.After(*price.ValidUntil) {
		return nil, ErrNotFound
	}
	return price, nil
}

func (f *fakeRepo) UpsertCustomerPrice(_ context.Context, price CustomerPrice) error {
	f.customerPrices[price.ProductID+":"+price.CustomerID] = &price
	return nil
}

type fakeCache struct {
	counts        map[string]int64
	products      map[string]Product
	invalidations []string
	failing       bool
}

func (f *fakeCache) GetFitmentCount(_ context.Context, productULID string) (int64, bool, error) {
	if f.failing {
		return 0, false, errors.New("cache down")
	}
	count, ok := f.counts[productULID]
	return count, ok, nil
}

func (f *fakeCache) SetFitmentCount(_ context.Context, productULID string, count int64) error {
	if f.failing {
		return errors.New("cache down")
	}
	f.counts[productULID] = count
	return nil
}

func (f *fakeCache) InvalidateFitmentCount(_ context.Context, productULID string) error {
	f.invalidations = append(f.invalidations, productULID)
	delete(f.counts, productULID)
	return nil
}

func (f *fakeCache) GetProduct(_ context.Context, productULID string) (*Product, bool, error) {
	if f.failing {
		return nil, false, errors.New("cache down")
	}
	if product, ok := f.products[productULID]; ok {
		return &product, true, nil
	}
	return nil, false, nil
}

func (f *fakeCache) SetProduct(_ context.Context, product Product) error {
	if f.failing {
		return errors.New("cache down")
	}
	if f.products == nil {
		f.products = map[string]Product{}
	}
	f.products[product.ID] = product
	return nil
}

func (f *fakeCache) InvalidateProduct(_ context.Context, productULID string) error {
	delete(f.products, productULID)
	return nil
}

type nopAuditStore struct{}

func (nopAuditStore) Insert(context.Context, audit.Entry) error { return nil }
func (nopAuditStore) List(context.Context, audit.Filters) ([]audit.Entry, int64, error) {
	return nil, 0, nil
}
func (nopAuditStore) CountOlderThan(context.Context, time.Time) (int64, error)  { return 0, nil }
func (nopAuditStore) DeleteOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

func newTestService(repo Repository, cache Cache) *Service {
	recorder := audit.NewRecorder(nopAuditStore{}, zerolog.Nop())
	return NewService(repo, cache, recorder, zerolog.Nop())
}

func TestCreateProduct(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	product, err := svc.Create(context.Background(), CreateProductParams{
		SKU:        "BRK-1001",
		PartNumber: "BP1001",
		Title:      "Ceramic Brake Pad Set",
		MSRPCents:  8999,
	}, "admin")

	require.NoError(t, err)
	require.NotEmpty(t, product.ID)
	require.True(t, product.IsActive)
	require.Equal(t, "BRK-1001", product.SKU)
}

func TestCreateProductDuplicateSKU(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	_, err := svc.Create(context.Background(), CreateProductParams{
		SKU: "BRK-1001", PartNumber: "BP1001", Title: "Ceramic Brake Pad Set",
	}, "admin")
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateProductParams{
		SKU: "BRK-1001", PartNumber: "BP1001-B", Title: "Another Pad Set",
	}, "admin")
	require.ErrorIs(t, err, ErrSKUTaken)
}

func TestCreateProductValidation(t *testing.T) {
	svc := newTestService(newFakeRepo(), nil)

	_, err := svc.Create(context.Background(), CreateProductParams{Title: "No SKU"}, "admin")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateProductSanitizesHTML(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	product, err := svc.Create(context.Background(), CreateProductParams{
		SKU:             "BRK-1002",
		PartNumber:      "BP1002",
		Title:           "Pad Set <script>alert(1)</script>",
		LongDescription: "<p>Good pads</p><script>alert(1)</script>",
	}, "admin")

	require.NoError(t, err)
	require.Equal(t, "Pad Set ", product.Title)
	require.Equal(t, "<p>Good pads</p>", product.LongDescription)
}

func TestDeleteSoftDeletes(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	product, err := svc.Create(context.Background(), CreateProductParams{
		SKU: "BRK-1003", PartNumber: "BP1003", Title: "Rotor",
	}, "admin")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), product.ID, "admin"))
	stored, err := repo.GetByULID(context.Background(), product.ID)
	require.NoError(t, err)
	require.False(t, stored.IsActive)
}

func TestGetFallsBackToSKU(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	created, err := svc.Create(context.Background(), CreateProductParams{
		SKU: "BRK-1004", PartNumber: "BP1004", Title: "Caliper",
	}, "admin")
	require.NoError(t, err)

	byID, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, byID.ID)

	bySKU, err := svc.Get(context.Background(), "BRK-1004")
	require.NoError(t, err)
	require.Equal(t, created.ID, bySKU.ID)
}

func TestAddFitmentInvalidYearRange(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	product, err := svc.Create(context.Background(), CreateProductParams{
		SKU: "BRK-1005", PartNumber: "BP1005", Title: "Pad Set",
	}, "admin")
	require.NoError(t, err)

	_, err = svc.AddFitment(context.Background(), product.ID, AddFitmentParams{
		Make: "Honda", Model: "Civic", YearStart: 2020, YearEnd: 2018,
	}, "admin")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestAddFitmentInvalidatesCache(t *testing.T) {
	repo := newFakeRepo()
	cache := &fakeCache{counts: map[string]int64{}}
	svc := newTestService(repo, cache)

	product, err := svc.Create(context.Background(), CreateProductParams{
		SKU: "BRK-1006", PartNumber: "BP1006", Title: "Pad Set",
	}, "admin")
	require.NoError(t, err)

	cache.counts[product.ID] = 99

	_, err = svc.AddFitment(context.Background(), product.ID, AddFitmentParams{
		Make: "Honda", Model: "Civic", YearStart: 2016, YearEnd: 2021,
	}, "admin")
	require.NoError(t, err)
	require.Contains(t, cache.invalidations, product.ID)

	count, err := svc.FitmentCount(context.Background(), product.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
	require.Equal(t, int64(1), cache.counts[product.ID])
}

func TestFitmentCountSurvivesCacheFailure(t *testing.T) {
	repo := newFakeRepo()
	cache := &fakeCache{counts: map[string]int64{}, failing: true}
	svc := newTestService(repo, cache)

	product, err := svc.Create(context.Background(), CreateProductParams{
		SKU: "BRK-1007", PartNumber: "BP1007", Title: "Pad Set",
	}, "admin")
	require.NoError(t, err)

	count, err := svc.FitmentCount(context.Background(), product.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), count)
}

func TestGetUsesProductCache(t *testing.T) {
	repo := newFakeRepo()
	cache := &fakeCache{counts: map[string]int64{}}
	svc := newTestService(repo, cache)

	product, err := svc.Create(context.Background(), CreateProductParams{
		SKU: "BRK-1008", PartNumber: "BP1008", Title: "Pad Set",
	}, "admin")
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), product.ID)
	require.NoError(t, err)
	require.Contains(t, cache.products, product.ID)

	// Served from the cache even when the row changes underneath.
	repo.products[product.ID].Title = "Stale"
	got, err = svc.Get(context.Background(), product.ID)
	require.NoError(t, err)
	require.Equal(t, "Pad Set", got.Title)

	_, err = svc.Update(context.Background(), product.ID, UpdateProductParams{
		PartNumber: "BP1008", Title: "New Title",
	}, "admin")
	require.NoError(t, err)
	require.NotContains(t, cache.products, product.ID)

	got, err = svc.Get(context.Background(), product.ID)
	require.NoError(t, err)
	require.Equal(t, "New Title", got.Title)
}

func TestEffectivePrice(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	product, err := svc.Create(context.Background(), CreateProductParams{
		SKU: "BRK-1008", PartNumber: "BP1008", Title: "Pad Set", MSRPCents: 10000,
	}, "admin")
	require.NoError(t, err)

	now := time.Now().UTC()
	until := now.Add(24 * time.Hour)
	err = svc.SetCustomerPrice(context.Background(), CustomerPrice{
		ProductID:  product.ID,
		CustomerID: "CUST-1",
		PriceCents: 7500,
		ValidUntil: &until,
	}, "admin")
	require.NoError(t, err)

	cents, source, err := svc.EffectivePrice(context.Background(), product.ID, "CUST-1", now)
	require.NoError(t, err)
	require.Equal(t, int64(7500), cents)
	require.Equal(t, PriceSourceCustomer, source)

	cents, source, err = svc.EffectivePrice(context.Background(), product.ID, "CUST-2", now)
	require.NoError(t, err)
	require.Equal(t, int64(10000), cents)
	require.Equal(t, PriceSourceMSRP, source)

	cents, source, err = svc.EffectivePrice(context.Background(), product.ID, "CUST-1", until.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(10000), cents)
	require.Equal(t, PriceSourceMSRP, source)
}

func TestSetCustomerPriceInvalidWindow(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	product, err := svc.Create(context.Background(), CreateProductParams{
		SKU: "BRK-1009", PartNumber: "BP1009", Title: "Pad Set",
	}, "admin")
	require.NoError(t, err)

	from := time.Now().UTC()
	until := from.Add(-time.Hour)
	err = svc.SetCustomerPrice(context.Background(), CustomerPrice{
		ProductID:  product.ID,
		CustomerID: "CUST-1",
		PriceCents: 100,
		ValidFrom:  &from,
		ValidUntil: &until,
	}, "admin")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseFilters(t *testing.T) {
	values := url.Values{}
	values.Set("q", " brake ")
	values.Set("brand", "akebono")
	values.Set("active", "true")
	values.Set("limit", "25")

	filters, pagination, err := ParseFilters(values)
	require.NoError(t, err)
	require.Equal(t, "brake", filters.Query)
	require.Equal(t, "akebono", filters.Brand)
	require.NotNil(t, filters.Active)
	require.True(t, *filters.Active)
	require.Equal(t, 25, pagination.Limit)
}

func TestParseFiltersInvalidBool(t *testing.T) {
	values := url.Values{}
	values.Set("featured", "maybe")

	_, _, err := ParseFilters(values)
	var filterErr FilterError
	require.ErrorAs(t, err, &filterErr)
	require.Equal(t, "featured", filterErr.Field)
}

func TestParseFiltersLimitClamped(t *testing.T) {
	values := url.Values{}
	values.Set("limit", "5000")

	_, pagination, err := ParseFilters(values)
	require.NoError(t, err)
	require.Equal(t, maxLimit, pagination.Limit)
}
