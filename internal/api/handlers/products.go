package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/solidus-pim/server/internal/api/middleware"
	"github.com/solidus-pim/server/internal/api/problem"
	"github.com/solidus-pim/server/internal/auth"
	"github.com/solidus-pim/server/internal/domain/ids"
	"github.com/solidus-pim/server/internal/domain/products"
)

type ProductsHandler struct {
	Service *products.Service
	Env     string
}

func NewProductsHandler(service *products.Service, env string) *ProductsHandler {
	return &ProductsHandler{Service: service, Env: env}
}

type productListResponse struct {
	Items      []products.Product `json:"items"`
	NextCursor string             `json:"next_cursor"`
}

func (h *ProductsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	filters, pagination, err := products.ParseFilters(r.URL.Query())
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", err, h.Env)
		return
	}

	result, err := h.Service.List(r.Context(), filters, pagination)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, productListResponse{Items: result.Products, NextCursor: result.NextCursor})
}

type productRequest struct {
	SKU              string     `json:"sku"`
	PartNumber       string     `json:"part_number"`
	Title            string     `json:"title"`
	ShortDescription string     `json:"short_description"`
	LongDescription  string     `json:"long_description"`
	BrandID          string     `json:"brand_id"`
	CategoryID       string     `json:"category_id"`
	UPC              string     `json:"upc"`
	CountryOfOrigin  string     `json:"country_of_origin"`
	WeightGrams      int64      `json:"weight_grams"`
	LengthMM         int64      `json:"length_mm"`
	WidthMM          int64      `json:"width_mm"`
	HeightMM         int64      `json:"height_mm"`
	MSRPCents        int64      `json:"msrp_cents"`
	MAPCents         int64      `json:"map_cents"`
	JobberCents      int64      `json:"jobber_cents"`
	CostCents        int64      `json:"cost_cents"`
	IsActive         bool       `json:"is_active"`
	IsFeatured       bool       `json:"is_featured"`
	IsHazmat         bool       `json:"is_hazmat"`
	IsOversized      bool       `json:"is_oversized"`
	LaunchDate       *time.Time `json:"launch_date"`
	DiscontinueDate  *time.Time `json:"discontinue_date"`
	Keywords         []string   `json:"keywords"`
	Tags             []string   `json:"tags"`
}

func (h *ProductsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	var input productRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", err, h.Env)
		return
	}

	params := products.CreateProductParams{
		SKU:              input.SKU,
		PartNumber:       input.PartNumber,
		Title:            input.Title,
		ShortDescription: input.ShortDescription,
		LongDescription:  input.LongDescription,
		BrandID:          input.BrandID,
		CategoryID:       input.CategoryID,
		UPC:              input.UPC,
		CountryOfOrigin:  input.CountryOfOrigin,
		WeightGrams:      input.WeightGrams,
		LengthMM:         input.LengthMM,
		WidthMM:          input.WidthMM,
		HeightMM:         input.HeightMM,
		MSRPCents:        input.MSRPCents,
		MAPCents:         input.MAPCents,
		JobberCents:      input.JobberCents,
		CostCents:        input.CostCents,
		IsFeatured:       input.IsFeatured,
		IsHazmat:         input.IsHazmat,
		IsOversized:      input.IsOversized,
		LaunchDate:       input.LaunchDate,
		DiscontinueDate:  input.DiscontinueDate,
		Keywords:         input.Keywords,
		Tags:             input.Tags,
	}

	product, err := h.Service.Create(r.Context(), params, middleware.ActorFromContext(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, products.ErrSKUTaken):
			problem.Write(w, r, http.StatusConflict, "https://solidus-pim.dev/problems/conflict", "Conflict", err, h.Env)
		case errors.Is(err, products.ErrInvalidInput), errors.Is(err, products.ErrBrandNotFound):
			problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", err, h.Env)
		default:
			problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		}
		return
	}

	writeJSON(w, http.StatusCreated, product)
}

func (h *ProductsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	idOrSKU := pathParam(r, "id")
	if idOrSKU == "" {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "missing"}, h.Env)
		return
	}

	product, err := h.Service.Get(r.Context(), idOrSKU)
	if err != nil {
		if errors.Is(err, products.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, "https://solidus-pim.dev/problems/not-found", "Not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, product)
}

func (h *ProductsHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	ulidValue := pathParam(r, "id")
	if err := ids.ValidateULID(ulidValue); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "invalid ULID"}, h.Env)
		return
	}

	var input productRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", err, h.Env)
		return
	}

	params := products.UpdateProductParams{
		PartNumber:       input.PartNumber,
		Title:            input.Title,
		ShortDescription: input.ShortDescription,
		LongDescription:  input.LongDescription,
		BrandID:          input.BrandID,
		CategoryID:       input.CategoryID,
		UPC:              input.UPC,
		CountryOfOrigin:  input.CountryOfOrigin,
		WeightGrams:      input.WeightGrams,
		LengthMM:         input.LengthMM,
		WidthMM:          input.WidthMM,
		HeightMM:         input.HeightMM,
		MSRPCents:        input.MSRPCents,
		MAPCents:         input.MAPCents,
		JobberCents:      input.JobberCents,
		CostCents:        input.CostCents,
		IsActive:         input.IsActive,
		IsFeatured:       input.IsFeatured,
		IsHazmat:         input.IsHazmat,
		IsOversized:      input.IsOversized,
		LaunchDate:       input.LaunchDate,
		DiscontinueDate:  input.DiscontinueDate,
		Keywords:         input.Keywords,
		Tags:             input.Tags,
	}

	product, err := h.Service.Update(r.Context(), ulidValue, params, middleware.ActorFromContext(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, products.ErrNotFound):
			problem.Write(w, r, http.StatusNotFound, "https://solidus-pim.dev/problems/not-found", "Not found", err, h.Env)
		case errors.Is(err, products.ErrInvalidInput), errors.Is(err, products.ErrBrandNotFound):
			problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", err, h.Env)
		default:
			problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		}
		return
	}

	writeJSON(w, http.StatusOK, product)
}

func (h *ProductsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	ulidValue := pathParam(r, "id")
	if err := ids.ValidateULID(ulidValue); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "invalid ULID"}, h.Env)
		return
	}

	if err := h.Service.Delete(r.Context(), ulidValue, middleware.ActorFromContext(r.Context())); err != nil {
		if errors.Is(err, products.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, "https://solidus-pim.dev/problems/not-found", "Not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductsHandler) ListBrands(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	brands, err := h.Service.ListBrands(r.Context())
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": brands})
}

func (h *ProductsHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	categories, err := h.Service.ListCategories(r.Context())
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": categories})
}

func (h *ProductsHandler) ListFitments(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	ulidValue := pathParam(r, "id")
	if err := ids.ValidateULID(ulidValue); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "invalid ULID"}, h.Env)
		return
	}

	fitments, err := h.Service.ListFitments(r.Context(), ulidValue)
	if err != nil {
		if errors.Is(err, products.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, "https://solidus-pim.dev/problems/not-found", "Not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": fitments})
}

type fitmentRequest struct {
	Make      string `json:"make"`
	Model     string `json:"model"`
	YearStart int    `json:"year_start"`
	YearEnd   int    `json:"year_end"`
	Engine    string `json:"engine"`
	Position  string `json:"position"`
	Notes     string `json:"notes"`
}

func (h *ProductsHandler) AddFitment(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	ulidValue := pathParam(r, "id")
	if err := ids.ValidateULID(ulidValue); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "invalid ULID"}, h.Env)
		return
	}

	var input fitmentRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", err, h.Env)
		return
	}

	params := products.AddFitmentParams{
		Make:      input.Make,
		Model:     input.Model,
		YearStart: input.YearStart,
		YearEnd:   input.YearEnd,
		Engine:    input.Engine,
		Position:  input.Position,
		Notes:     input.Notes,
	}

	fitment, err := h.Service.AddFitment(r.Context(), ulidValue, params, middleware.ActorFromContext(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, products.ErrNotFound):
			problem.Write(w, r, http.StatusNotFound, "https://solidus-pim.dev/problems/not-found", "Not found", err, h.Env)
		case errors.Is(err, products.ErrInvalidInput):
			problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", err, h.Env)
		default:
			problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		}
		return
	}

	writeJSON(w, http.StatusCreated, fitment)
}

func (h *ProductsHandler) DeleteFitment(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	ulidValue := pathParam(r, "id")
	fitmentID := pathParam(r, "fitmentID")
	if err := ids.ValidateULID(ulidValue); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "invalid ULID"}, h.Env)
		return
	}
	if err := ids.ValidateULID(fitmentID); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "fitmentID", Message: "invalid ULID"}, h.Env)
		return
	}

	if err := h.Service.DeleteFitment(r.Context(), ulidValue, fitmentID, middleware.ActorFromContext(r.Context())); err != nil {
		if errors.Is(err, products.ErrFitmentNotFound) || errors.Is(err, products.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, "https://solidus-pim.dev/problems/not-found", "Not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductsHandler) FitmentCount(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	ulidValue := pathParam(r, "id")
	if err := ids.ValidateULID(ulidValue); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "invalid ULID"}, h.Env)
		return
	}

	count, err := h.Service.FitmentCount(r.Context(), ulidValue)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"product_id": ulidValue, "count": count})
}

// EffectivePrice resolves the price a customer pays right now. Staff can ask
// on behalf of any customer via the customer_id parameter; customers always
// get their own price.
func (h *ProductsHandler) EffectivePrice(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	ulidValue := pathParam(r, "id")
	if err := ids.ValidateULID(ulidValue); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "invalid ULID"}, h.Env)
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	customerID := middleware.SubjectFromContext(r.Context())
	if claims != nil && auth.IsStaff(claims.Role) {
		if override := r.URL.Query().Get("customer_id"); override != "" {
			customerID = override
		}
	}

	cents, source, err := h.Service.EffectivePrice(r.Context(), ulidValue, customerID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, products.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, "https://solidus-pim.dev/problems/not-found", "Not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"product_id":  ulidValue,
		"price_cents": cents,
		"source":      source,
	})
}

type customerPriceRequest struct {
	CustomerID string     `json:"customer_id"`
	PriceCents int64      `json:"price_cents"`
	ValidFrom  *time.Time `json:"valid_from"`
	ValidUntil *time.Time `json:"valid_until"`
}

func (h *ProductsHandler) SetCustomerPrice(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	ulidValue := pathParam(r, "id")
	if err := ids.ValidateULID(ulidValue); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "invalid ULID"}, h.Env)
		return
	}

	var input customerPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", err, h.Env)
		return
	}

	price := products.CustomerPrice{
		ProductID:  ulidValue,
		CustomerID: input.CustomerID,
		PriceCents: input.PriceCents,
		ValidFrom:  input.ValidFrom,
		ValidUntil: input.ValidUntil,
	}

	if err := h.Service.SetCustomerPrice(r.Context(), price, middleware.ActorFromContext(r.Context())); err != nil {
		switch {
		case errors.Is(err, products.ErrNotFound):
			problem.Write(w, r, http.StatusNotFound, "https://solidus-pim.dev/problems/not-found", "Not found", err, h.Env)
		case errors.Is(err, products.ErrInvalidInput):
			problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", err, h.Env)
		default:
			problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
