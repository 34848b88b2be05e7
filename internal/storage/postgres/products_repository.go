package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/solidus-pim/server/internal/api/pagination"
	"github.com/solidus-pim/server/internal/domain/products"
)

var _ products.Repository = (*ProductRepository)(nil)

const productColumns = `id, sku, part_number, title, short_description, long_description,
       brand_id, category_id, upc, country_of_origin,
       weight_grams, length_mm, width_mm, height_mm,
       msrp_cents, map_cents, jobber_cents, cost_cents,
       is_active, is_featured, is_hazmat, is_oversized,
       launch_date, discontinue_date, keywords, tags, created_at, updated_at`

type productRow struct {
	ID               string
	SKU              string
	PartNumber       string
	Title            string
	ShortDescription *string
	LongDescription  *string
	BrandID          *string
	CategoryID       *string
	UPC              *string
	CountryOfOrigin  *string
	WeightGrams      int64
	LengthMM         int64
	WidthMM          int64
	HeightMM         int64
	MSRPCents        int64
	MAPCents         int64
	JobberCents      int64
	CostCents        int64
	IsActive         bool
	IsFeatured       bool
	IsHazmat         bool
	IsOversized      bool
	LaunchDate       pgtype.Timestamptz
	DiscontinueDate  pgtype.Timestamptz
	Keywords         []string
	Tags             []string
	CreatedAt        pgtype.Timestamptz
	UpdatedAt        pgtype.Timestamptz
}

func scanProduct(row pgx.Row) (*products.Product, error) {
	var data productRow
	if err := row.Scan(
		&data.ID,
		&data.SKU,
		&data.PartNumber,
		&data.Title,
		&data.ShortDescription,
		&data.LongDescription,
		&data.BrandID,
		&data.CategoryID,
		&data.UPC,
		&data.CountryOfOrigin,
		&data.WeightGrams,
		&data.LengthMM,
		&data.WidthMM,
		&data.HeightMM,
		&data.MSRPCents,
		&data.MAPCents,
		&data.JobberCents,
		&data.CostCents,
		&data.IsActive,
		&data.IsFeatured,
		&data.IsHazmat,
		&data.IsOversized,
		&data.LaunchDate,
		&data.DiscontinueDate,
		&data.Keywords,
		&data.Tags,
		&data.CreatedAt,
		&data.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return data.toDomain(), nil
}

func (data *productRow) toDomain() *products.Product {
	product := &products.Product{
		ID:               data.ID,
		SKU:              data.SKU,
		PartNumber:       data.PartNumber,
		Title:            data.Title,
		ShortDescription: derefString(data.ShortDescription),
		LongDescription:  derefString(data.LongDescription),
		BrandID:          derefString(data.BrandID),
		CategoryID:       derefString(data.CategoryID),
		UPC:              derefString(data.UPC),
		CountryOfOrigin:  derefString(data.CountryOfOrigin),
		WeightGrams:      data.WeightGrams,
		LengthMM:         data.LengthMM,
		WidthMM:          data.WidthMM,
		HeightMM:         data.HeightMM,
		MSRPCents:        data.MSRPCents,
		MAPCents:         data.MAPCents,
		JobberCents:      data.JobberCents,
		CostCents:        data.CostCents,
		IsActive:         data.IsActive,
		IsFeatured:       data.IsFeatured,
		IsHazmat:         data.IsHazmat,
		IsOversized:      data.IsOversized,
		Keywords:         data.Keywords,
		Tags:             data.Tags,
		CreatedAt:        data.CreatedAt.Time,
		UpdatedAt:        data.UpdatedAt.Time,
	}
	if data.LaunchDate.Valid {
		value := data.LaunchDate.Time
		product.LaunchDate = &value
	}
	if data.DiscontinueDate.Valid {
		value := data.DiscontinueDate.Time
		product.DiscontinueDate = &value
	}
	return product
}

func (r *ProductRepository) List(ctx context.Context, filters products.Filters, paginationArgs products.Pagination) (products.ListResult, error) {
	queryer := r.queryer()

	var cursorTimestamp *time.Time
	var cursorULID *string
	if strings.TrimSpace(paginationArgs.After) != "" {
		cursor, err := pagination.Decode(paginationArgs.After)
		if err != nil {
			return products.ListResult{}, err
		}
		value := cursor.Timestamp.UTC()
		cursorTimestamp = &value
		ulid := cursor.ULID
		cursorULID = &ulid
	}

	limit := paginationArgs.Limit
	if limit <= 0 {
		limit = 50
	}
	limitPlusOne := limit + 1

	rows, err := queryer.Query(ctx, `
SELECT `+productQualified("p")+`
  FROM products p
  LEFT JOIN brands b ON b.id = p.brand_id
  LEFT JOIN categories c ON c.id = p.category_id
  WHERE p.deleted_at IS NULL
    AND ($1 = '' OR p.sku ILIKE '%' || $1 || '%' OR p.part_number ILIKE '%' || $1 || '%' OR p.title ILIKE '%' || $1 || '%')
    AND ($2 = '' OR b.slug = $2)
    AND ($3 = '' OR c.slug = $3)
    AND ($4 = '' OR $4 = ANY(p.tags))
    AND ($5::boolean IS NULL OR p.is_active = $5)
    AND ($6::boolean IS NULL OR p.is_featured = $6)
    AND (
      $7::timestamptz IS NULL OR
      p.created_at > $7::timestamptz OR
      (p.created_at = $7::timestamptz AND p.id > $8)
    )
 ORDER BY p.created_at ASC, p.id ASC
 LIMIT $9
`,
		filters.Query,
		filters.Brand,
		filters.Category,
		filters.Tag,
		filters.Active,
		filters.Featured,
		cursorTimestamp,
		cursorULID,
		limitPlusOne,
	)
	if err != nil {
		return products.ListResult{}, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	items := make([]products.Product, 0, limitPlusOne)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return products.ListResult{}, fmt.Errorf("scan product: %w", err)
		}
		items = append(items, *product)
	}
	if err := rows.Err(); err != nil {
		return products.ListResult{}, fmt.Errorf("list products: %w", err)
	}

	result := products.ListResult{Products: items}
	if len(items) > limit {
		result.Products = items[:limit]
		last := result.Products[len(result.Products)-1]
		result.NextCursor = pagination.Encode(last.CreatedAt, last.ID)
	}
	return result, nil
}

// productQualified prefixes every product column with the given alias.
func productQualified(alias string) string {
	parts := strings.Split(productColumns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

func (r *ProductRepository) GetByULID(ctx context.Context, ulid string) (*products.Product, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT `+productColumns+`
  FROM products
 WHERE id = $1 AND deleted_at IS NULL
`, ulid)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, products.ErrNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}

func (r *ProductRepository) GetBySKU(ctx context.Context, sku string) (*products.Product, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT `+productColumns+`
  FROM products
 WHERE sku = $1 AND deleted_at IS NULL
`, sku)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, products.ErrNotFound
		}
		return nil, fmt.Errorf("get product by sku: %w", err)
	}
	return product, nil
}

func (r *ProductRepository) Create(ctx context.Context, product products.Product) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO products (
    id, sku, part_number, title, short_description, long_description,
    brand_id, category_id, upc, country_of_origin,
    weight_grams, length_mm, width_mm, height_mm,
    msrp_cents, map_cents, jobber_cents, cost_cents,
    is_active, is_featured, is_hazmat, is_oversized,
    launch_date, discontinue_date, keywords, tags, created_at, updated_at
) VALUES (
    $1, $2, $3, $4, $5, $6,
    $7, $8, $9, $10,
    $11, $12, $13, $14,
    $15, $16, $17, $18,
    $19, $20, $21, $22,
    $23, $24, $25, $26, $27, $28
)
`,
		product.ID,
		product.SKU,
		product.PartNumber,
		product.Title,
		nullIfEmpty(product.ShortDescription),
		nullIfEmpty(product.LongDescription),
		nullIfEmpty(product.BrandID),
		nullIfEmpty(product.CategoryID),
		nullIfEmpty(product.UPC),
		nullIfEmpty(product.CountryOfOrigin),
		product.WeightGrams,
		product.LengthMM,
		product.WidthMM,
		product.HeightMM,
		product.MSRPCents,
		product.MAPCents,
		product.JobberCents,
		product.CostCents,
		product.IsActive,
		product.IsFeatured,
		product.IsHazmat,
		product.IsOversized,
		product.LaunchDate,
		product.DiscontinueDate,
		product.Keywords,
		product.Tags,
		product.CreatedAt,
		product.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *ProductRepository) Update(ctx context.Context, product products.Product) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE products SET
    part_number = $2, title = $3, short_description = $4, long_description = $5,
    brand_id = $6, category_id = $7, upc = $8, country_of_origin = $9,
    weight_grams = $10, length_mm = $11, width_mm = $12, height_mm = $13,
    msrp_cents = $14, map_cents = $15, jobber_cents = $16, cost_cents = $17,
    is_active = $18, is_featured = $19, is_hazmat = $20, is_oversized = $21,
    launch_date = $22, discontinue_date = $23, keywords = $24, tags = $25,
    updated_at = now()
 WHERE id = $1 AND deleted_at IS NULL
`,
		product.ID,
		product.PartNumber,
		product.Title,
		nullIfEmpty(product.ShortDescription),
		nullIfEmpty(product.LongDescription),
		nullIfEmpty(product.BrandID),
		nullIfEmpty(product.CategoryID),
		nullIfEmpty(product.UPC),
		nullIfEmpty(product.CountryOfOrigin),
		product.WeightGrams,
		product.LengthMM,
		product.WidthMM,
		product.HeightMM,
		product.MSRPCents,
		product.MAPCents,
		product.JobberCents,
		product.CostCents,
		product.IsActive,
		product.IsFeatured,
		product.IsHazmat,
		product.IsOversized,
		product.LaunchDate,
		product.DiscontinueDate,
		product.Keywords,
		product.Tags,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return products.ErrNotFound
	}
	return nil
}

func (r *ProductRepository) SoftDelete(ctx context.Context, ulid string) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE products SET deleted_at = now(), is_active = false, updated_at = now()
 WHERE id = $1 AND deleted_at IS NULL
`, ulid)
	if err != nil {
		return fmt.Errorf("soft delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return products.ErrNotFound
	}
	return nil
}

func (r *ProductRepository) ListBrands(ctx context.Context) ([]products.Brand, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT id, name, slug, website, is_active, created_at, updated_at
  FROM brands
 ORDER BY name ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list brands: %w", err)
	}
	defer rows.Close()

	var brands []products.Brand
	for rows.Next() {
		var brand products.Brand
		var website *string
		var createdAt, updatedAt pgtype.Timestamptz
		if err := rows.Scan(&brand.ID, &brand.Name, &brand.Slug, &website, &brand.IsActive, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan brand: %w", err)
		}
		brand.Website = derefString(website)
		brand.CreatedAt = createdAt.Time
		brand.UpdatedAt = updatedAt.Time
		brands = append(brands, brand)
	}
	return brands, rows.Err()
}

func (r *ProductRepository) CreateBrand(ctx context.Context, brand products.Brand) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO brands (id, name, slug, website, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, brand.ID, brand.Name, brand.Slug, nullIfEmpty(brand.Website), brand.IsActive, brand.CreatedAt, brand.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert brand: %w", err)
	}
	return nil
}

func (r *ProductRepository) ListCategories(ctx context.Context) ([]products.Category, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT id, name, slug, parent_id, created_at, updated_at
  FROM categories
 ORDER BY name ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []products.Category
	for rows.Next() {
		var category products.Category
		var parentID *string
		var createdAt, updatedAt pgtype.Timestamptz
		if err := rows.Scan(&category.ID, &category.Name, &category.Slug, &parentID, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		category.ParentID = derefString(parentID)
		category.CreatedAt = createdAt.Time
		category.UpdatedAt = updatedAt.Time
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

func (r *ProductRepository) CreateCategory(ctx context.Context, category products.Category) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO categories (id, name, slug, parent_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, category.ID, category.Name, category.Slug, nullIfEmpty(category.ParentID), category.CreatedAt, category.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (r *ProductRepository) ListFitments(ctx context.Context, productULID string) ([]products.Fitment, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT id, product_id, make, model, year_start, year_end, engine, position, notes, created_at
  FROM fitments
 WHERE product_id = $1
 ORDER BY make ASC, model ASC, year_start ASC
`, productULID)
	if err != nil {
		return nil, fmt.Errorf("list fitments: %w", err)
	}
	defer rows.Close()

	var fitments []products.Fitment
	for rows.Next() {
		fitment, err := scanFitment(rows)
		if err != nil {
			return nil, err
		}
		fitments = append(fitments, *fitment)
	}
	return fitments, rows.Err()
}

func scanFitment(row pgx.Row) (*products.Fitment, error) {
	var fitment products.Fitment
	var engine, position, notes *string
	var createdAt pgtype.Timestamptz
	if err := row.Scan(
		&fitment.ID,
		&fitment.ProductID,
		&fitment.Make,
		&fitment.Model,
		&fitment.YearStart,
		&fitment.YearEnd,
		&engine,
		&position,
		&notes,
		&createdAt,
	); err != nil {
		return nil, fmt.Errorf("scan fitment: %w", err)
	}
	fitment.Engine = derefString(engine)
	fitment.Position = derefString(position)
	fitment.Notes = derefString(notes)
	fitment.CreatedAt = createdAt.Time
	return &fitment, nil
}

func (r *ProductRepository) AddFitment(ctx context.Context, fitment products.Fitment) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO fitments (id, product_id, make, model, year_start, year_end, engine, position, notes, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`,
		fitment.ID,
		fitment.ProductID,
		fitment.Make,
		fitment.Model,
		fitment.YearStart,
		fitment.YearEnd,
		nullIfEmpty(fitment.Engine),
		nullIfEmpty(fitment.Position),
		nullIfEmpty(fitment.Notes),
		fitment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert fitment: %w", err)
	}
	return nil
}

func (r *ProductRepository) DeleteFitment(ctx context.Context, productULID, fitmentID string) error {
	tag, err := r.queryer().Exec(ctx, `
DELETE FROM fitments WHERE id = $1 AND product_id = $2
`, fitmentID, productULID)
	if err != nil {
		return fmt.Errorf("delete fitment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return products.ErrFitmentNotFound
	}
	return nil
}

func (r *ProductRepository) CountFitments(ctx context.Context, productULID string) (int64, error) {
	var count int64
	err := r.queryer().QueryRow(ctx, `
SELECT count(*) FROM fitments WHERE product_id = $1
`, productULID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count fitments: %w", err)
	}
	return count, nil
}

func (r *ProductRepository) ActiveCustomerPrice(ctx context.Context, productULID, customerID string, at time.Time) (*products.CustomerPrice, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT id, product_id, customer_id, price_cents, valid_from, valid_until, created_at
  FROM customer_prices
 WHERE product_id = $1
   AND customer_id = $2
   AND (valid_from IS NULL OR valid_from <= $3)
   AND (valid_until IS NULL OR valid_until >= $3)
 ORDER BY created_at DESC
 LIMIT 1
`, productULID, customerID, at)

	var price products.CustomerPrice
	var validFrom, validUntil, createdAt pgtype.Timestamptz
	if err := row.Scan(&price.ID, &price.ProductID, &price.CustomerID, &price.PriceCents, &validFrom, &validUntil, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get customer price: %w", err)
	}
	if validFrom.Valid {
		value := validFrom.Time
		price.ValidFrom = &value
	}
	if validUntil.Valid {
		value := validUntil.Time
		price.ValidUntil = &value
	}
	price.CreatedAt = createdAt.Time
	return &price, nil
}

func (r *ProductRepository) UpsertCustomerPrice(ctx context.Context, price products.CustomerPrice) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO customer_prices (id, product_id, customer_id, price_cents, valid_from, valid_until, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (product_id, customer_id) DO UPDATE SET
    price_cents = EXCLUDED.price_cents,
    valid_from = EXCLUDED.valid_from,
    valid_until = EXCLUDED.valid_until
`, price.ID, price.ProductID, price.CustomerID, price.PriceCents, price.ValidFrom, price.ValidUntil, price.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert customer price: %w", err)
	}
	return nil
}
