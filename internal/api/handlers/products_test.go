package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/solidus-pim/server/internal/api/middleware"
	"github.com/solidus-pim/server/internal/audit"
	"github.com/solidus-pim/server/internal/auth"
	"github.com/solidus-pim/server/internal/domain/products"
	"github.com/stretchr/testify/require"
)

const (
	testProductID = "01J0KXMQZ8RPXJPN8J9Q6TK0WP"
	testFitmentID = "01J0KXMQZ8RPXJPN8J9Q6TK0WQ"
)

type fakeProductRepo struct {
	products map[string]products.Product
	fitments map[string][]products.Fitment
	prices   map[string]products.CustomerPrice
	created  []products.Product
	listErr  error
}

func newFakeProductRepo(items ...products.Product) *fakeProductRepo {
	repo := &fakeProductRepo{
		products: map[string]products.Product{},
		fitments: map[string][]products.Fitment{},
		prices:   map[string]products.CustomerPrice{},
	}
	for _, item := range items {
		repo.products[item.ID] = item
	}
	return repo
}

func (f *fakeProductRepo) List(_ context.Context, _ products.Filters, _ products.Pagination) (products.ListResult, error) {
	if f.listErr != nil {
		return products.ListResult{}, f.listErr
	}
	result := products.ListResult{}
	for _, p := range f.products {
		result.Products = append(result.Products, p)
	}
	return result, nil
}

func (f *fakeProductRepo) GetByULID(_ context.Context, ulid string) (*products.Product, error) {
	if p, ok := f.products[ulid]; ok {
		return &p, nil
	}
	return nil, products.ErrNotFound
}

func (f *fakeProductRepo) GetBySKU(_ context.Context, sku string) (*products.Product, error) {
	for _, p := range f.products {
		if p.SKU == sku {
			return &p, nil
		}
	}
	return nil, products.ErrNotFound
}

func (f *fakeProductRepo) Create(_ context.Context, product products.Product) error {
	f.products[product.ID] = product
	f.created = append(f.created, product)
	return nil
}

func (f *fakeProductRepo) Update(_ context.Context, product products.Product) error {
	if _, ok := f.products[product.ID]; !ok {
		return products.ErrNotFound
	}
	f.products[product.ID] = product
	return nil
}

func (f *fakeProductRepo) SoftDelete(_ context.Context, ulid string) error {
	if _, ok := f.products[ulid]; !ok {
		return products.ErrNotFound
	}
	delete(f.products, ulid)
	return nil
}

func (f *fakeProductRepo) ListBrands(_ context.Context) ([]products.Brand, error) {
	return nil, nil
}

func (f *fakeProductRepo) CreateBrand(_ context.Context, _ products.Brand) error { return nil }

func (f *fakeProductRepo) ListCategories(_ context.Context) ([]products.Category, error) {
	return nil, nil
}

func (f *fakeProductRepo) CreateCategory(_ context.Context, _ products.Category) error { return nil }

func (f *fakeProductRepo) ListFitments(_ context.Context, productULID string) ([]products.Fitment, error) {
	return f.fitments[productULID], nil
}

func (f *fakeProductRepo) AddFitment(_ context.Context, fitment products.Fitment) error {
	f.fitments[fitment.ProductID] = append(f.fitments[fitment.ProductID], fitment)
	return nil
}

func (f *fakeProductRepo) DeleteFitment(_ context.Context, productULID, fitmentID string) error {
	remaining := f.fitments[productULID][:0]
	found := false
	for _, fit := range f.fitments[productULID] {
		if fit.ID == fitmentID {
			found = true
			continue
		}
		remaining = append(remaining, fit)
	}
	if !found {
		return products.ErrFitmentNotFound
	}
	f.fitments[productULID] = remaining
	return nil
}

func (f *fakeProductRepo) CountFitments(_ context.Context, productULID string) (int64, error) {
	return int64(len(f.fitments[productULID])), nil
}

func (f *fakeProductRepo) ActiveCustomerPrice(_ context.Context, productULID, customerID string, at time.Time) (*products.CustomerPrice, error) {
	price, ok := f.prices[productULID+"/"+customerID]
	if !ok {
		return nil, nil
	}
	if price.ValidFrom != nil && at.Before(*price.ValidFrom) {
		return nil, nil
	}
	if price.ValidUntil != nil && at.After(*price.ValidUntil) {
		return nil, nil
	}
	return &price, nil
}

func (f *fakeProductRepo) UpsertCustomerPrice(_ context.Context, price products.CustomerPrice) error {
	f.prices[price.ProductID+"/"+price.CustomerID] = price
	return nil
}

type fakeAuditStore struct {
	entries []audit.Entry
}

func (f *fakeAuditStore) Insert(_ context.Context, entry audit.Entry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditStore) List(_ context.Context, _ audit.Filters) ([]audit.Entry, int64, error) {
	return f.entries, int64(len(f.entries)), nil
}

func (f *fakeAuditStore) CountOlderThan(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeAuditStore) DeleteOlderThan(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func newTestProductsHandler(repo products.Repository) (*ProductsHandler, *fakeAuditStore) {
	store := &fakeAuditStore{}
	recorder := audit.NewRecorder(store, zerolog.Nop())
	service := products.NewService(repo, nil, recorder, zerolog.Nop())
	return NewProductsHandler(service, "test"), store
}

func testProduct() products.Product {
	now := time.Now().UTC()
	return products.Product{
		ID:         testProductID,
		SKU:        "APX-BP-1042",
		PartNumber: "BP-1042",
		Title:      "Ceramic Brake Pad Set",
		MSRPCents:  8999,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestProductsHandlerGetByULID(t *testing.T) {
	h, _ := newTestProductsHandler(newFakeProductRepo(testProduct()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/"+testProductID, nil)
	req.SetPathValue("id", testProductID)
	res := httptest.NewRecorder()

	h.Get(res, req)

	require.Equal(t, http.StatusOK, res.Code)

	var got products.Product
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
	require.Equal(t, "APX-BP-1042", got.SKU)
	require.Equal(t, int64(8999), got.MSRPCents)
}

func TestProductsHandlerGetBySKU(t *testing.T) {
	h, _ := newTestProductsHandler(newFakeProductRepo(testProduct()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/APX-BP-1042", nil)
	req.SetPathValue("id", "APX-BP-1042")
	res := httptest.NewRecorder()

	h.Get(res, req)

	require.Equal(t, http.StatusOK, res.Code)

	var got products.Product
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
	require.Equal(t, testProductID, got.ID)
}

func TestProductsHandlerGetNotFound(t *testing.T) {
	h, _ := newTestProductsHandler(newFakeProductRepo())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/NOPE-404", nil)
	req.SetPathValue("id", "NOPE-404")
	res := httptest.NewRecorder()

	h.Get(res, req)

	require.Equal(t, http.StatusNotFound, res.Code)
	require.Equal(t, "application/problem+json", res.Header().Get("Content-Type"))
}

func TestProductsHandlerList(t *testing.T) {
	h, _ := newTestProductsHandler(newFakeProductRepo(testProduct()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products?brand=apex-performance", nil)
	res := httptest.NewRecorder()

	h.List(res, req)

	require.Equal(t, http.StatusOK, res.Code)

	var payload productListResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	require.Len(t, payload.Items, 1)
}

func TestProductsHandlerListInvalidFilter(t *testing.T) {
	h, _ := newTestProductsHandler(newFakeProductRepo())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products?active=maybe", nil)
	res := httptest.NewRecorder()

	h.List(res, req)

	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestProductsHandlerCreate(t *testing.T) {
	repo := newFakeProductRepo()
	h, store := newTestProductsHandler(repo)

	body := `{"sku":"IRN-RT-3308","part_number":"RT-3308","title":"Slotted Rotor","msrp_cents":12499}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewBufferString(body))
	res := httptest.NewRecorder()

	h.Create(res, req)

	require.Equal(t, http.StatusCreated, res.Code)
	require.Len(t, repo.created, 1)
	require.Equal(t, "IRN-RT-3308", repo.created[0].SKU)
	require.True(t, repo.created[0].IsActive)

	require.Len(t, store.entries, 1)
	require.Equal(t, "product.created", store.entries[0].Action)
	require.Equal(t, "anonymous", store.entries[0].Actor)
}

func TestProductsHandlerCreateDuplicateSKU(t *testing.T) {
	h, _ := newTestProductsHandler(newFakeProductRepo(testProduct()))

	body := `{"sku":"APX-BP-1042","part_number":"BP-1042","title":"Duplicate"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewBufferString(body))
	res := httptest.NewRecorder()

	h.Create(res, req)

	require.Equal(t, http.StatusConflict, res.Code)
}

func TestProductsHandlerCreateMissingTitle(t *testing.T) {
	h, _ := newTestProductsHandler(newFakeProductRepo())

	body := `{"sku":"IRN-RT-3308","part_number":"RT-3308"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewBufferString(body))
	res := httptest.NewRecorder()

	h.Create(res, req)

	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestProductsHandlerAddFitment(t *testing.T) {
	repo := newFakeProductRepo(testProduct())
	h, _ := newTestProductsHandler(repo)

	body := `{"make":"Honda","model":"Civic","year_start":2016,"year_end":2021,"position":"Front"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products/"+testProductID+"/fitments", bytes.NewBufferString(body))
	req.SetPathValue("id", testProductID)
	res := httptest.NewRecorder()

	h.AddFitment(res, req)

	require.Equal(t, http.StatusCreated, res.Code)

	var got products.Fitment
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
	require.Equal(t, "Honda", got.Make)
	require.Len(t, repo.fitments[testProductID], 1)
}

func TestProductsHandlerAddFitmentInvalidYears(t *testing.T) {
	h, _ := newTestProductsHandler(newFakeProductRepo(testProduct()))

	body := `{"make":"Honda","model":"Civic","year_start":2021,"year_end":2016}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products/"+testProductID+"/fitments", bytes.NewBufferString(body))
	req.SetPathValue("id", testProductID)
	res := httptest.NewRecorder()

	h.AddFitment(res, req)

	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestProductsHandlerAddFitmentInvalidULID(t *testing.T) {
	h, _ := newTestProductsHandler(newFakeProductRepo())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products/not-a-ulid/fitments", bytes.NewBufferString(`{}`))
	req.SetPathValue("id", "not-a-ulid")
	res := httptest.NewRecorder()

	h.AddFitment(res, req)

	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestProductsHandlerDeleteFitmentNotFound(t *testing.T) {
	h, _ := newTestProductsHandler(newFakeProductRepo(testProduct()))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/products/"+testProductID+"/fitments/"+testFitmentID, nil)
	req.SetPathValue("id", testProductID)
	req.SetPathValue("fitmentID", testFitmentID)
	res := httptest.NewRecorder()

	h.DeleteFitment(res, req)

	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestProductsHandlerFitmentCount(t *testing.T) {
	repo := newFakeProductRepo(testProduct())
	repo.fitments[testProductID] = []products.Fitment{
		{ID: testFitmentID, ProductID: testProductID, Make: "Honda", Model: "Civic", YearStart: 2016, YearEnd: 2021},
	}
	h, _ := newTestProductsHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/"+testProductID+"/fitments/count", nil)
	req.SetPathValue("id", testProductID)
	res := httptest.NewRecorder()

	h.FitmentCount(res, req)

	require.Equal(t, http.StatusOK, res.Code)

	var payload map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	require.Equal(t, float64(1), payload["count"])
}

func TestProductsHandlerEffectivePriceAnonymousGetsMSRP(t *testing.T) {
	h, _ := newTestProductsHandler(newFakeProductRepo(testProduct()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/"+testProductID+"/price", nil)
	req.SetPathValue("id", testProductID)
	res := httptest.NewRecorder()

	h.EffectivePrice(res, req)

	require.Equal(t, http.StatusOK, res.Code)

	var payload map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	require.Equal(t, float64(8999), payload["price_cents"])
	require.Equal(t, "msrp", payload["source"])
}

func TestProductsHandlerEffectivePriceStaffOverride(t *testing.T) {
	repo := newFakeProductRepo(testProduct())
	repo.prices[testProductID+"/cust-123"] = products.CustomerPrice{
		ProductID:  testProductID,
		CustomerID: "cust-123",
		PriceCents: 7499,
	}
	h, _ := newTestProductsHandler(repo)

	manager := auth.NewJWTManager("test-secret", time.Hour, "solidus-pim")
	token, err := manager.Generate("staff-1", "jordan", string(auth.RoleEmployee))
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("GET /api/v1/products/{id}/price", middleware.RequireAuth(manager, "test")(http.HandlerFunc(h.EffectivePrice)))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/"+testProductID+"/price?customer_id=cust-123", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()

	mux.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)

	var payload map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	require.Equal(t, float64(7499), payload["price_cents"])
	require.Equal(t, "customer", payload["source"])
}

func TestProductsHandlerSetCustomerPrice(t *testing.T) {
	repo := newFakeProductRepo(testProduct())
	h, store := newTestProductsHandler(repo)

	body := `{"customer_id":"cust-123","price_cents":7499}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/products/"+testProductID+"/price", bytes.NewBufferString(body))
	req.SetPathValue("id", testProductID)
	res := httptest.NewRecorder()

	h.SetCustomerPrice(res, req)

	require.Equal(t, http.StatusNoContent, res.Code)
	require.Contains(t, repo.prices, testProductID+"/cust-123")
	require.Len(t, store.entries, 1)
	require.Equal(t, "product.customer_price_set", store.entries[0].Action)
}

func TestProductsHandlerSetCustomerPriceNegative(t *testing.T) {
	h, _ := newTestProductsHandler(newFakeProductRepo(testProduct()))

	body := `{"customer_id":"cust-123","price_cents":-1}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/products/"+testProductID+"/price", bytes.NewBufferString(body))
	req.SetPathValue("id", testProductID)
	res := httptest.NewRecorder()

	h.SetCustomerPrice(res, req)

	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestProductsHandlerDelete(t *testing.T) {
	repo := newFakeProductRepo(testProduct())
	h, store := newTestProductsHandler(repo)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/products/"+testProductID, nil)
	req.SetPathValue("id", testProductID)
	res := httptest.NewRecorder()

	h.Delete(res, req)

	require.Equal(t, http.StatusNoContent, res.Code)
	require.NotContains(t, repo.products, testProductID)
	require.Len(t, store.entries, 1)
	require.Equal(t, "product.deleted", store.entries[0].Action)
}
