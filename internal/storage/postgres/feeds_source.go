package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solidus-pim/server/internal/domain/feeds"
)

var _ feeds.Source = (*FeedSource)(nil)

// FeedSource materializes feed rows straight from the catalog tables. Every
// value is rendered to a string here so the generator stays format-only.
type FeedSource struct {
	pool *pgxpool.Pool
}

func NewFeedSource(pool *pgxpool.Pool) *FeedSource {
	return &FeedSource{pool: pool}
}

func (s *FeedSource) Rows(ctx context.Context, feed feeds.DataFeed) ([]feeds.Row, error) {
	switch feed.Type {
	case feeds.FeedTypeCatalog:
		return s.catalogRows(ctx, feed)
	case feeds.FeedTypeAssets:
		return s.assetRows(ctx, feed)
	case feeds.FeedTypeFitment:
		return s.fitmentRows(ctx, feed)
	case feeds.FeedTypePricing:
		return s.pricingRows(ctx, feed)
	default:
		return nil, fmt.Errorf("unknown feed type %q", feed.Type)
	}
}

// productFilter builds the WHERE clause shared by all feed types. The
// products table is always aliased p, brands b, categories c.
func productFilter(filters feeds.RowFilters) (string, []any) {
	conditions := []string{"p.deleted_at IS NULL"}
	var args []any

	if filters.ActiveOnly {
		conditions = append(conditions, "p.is_active")
	}
	if filters.Brand != "" {
		args = append(args, filters.Brand)
		conditions = append(conditions, fmt.Sprintf("b.slug = $%d", len(args)))
	}
	if filters.Category != "" {
		args = append(args, filters.Category)
		conditions = append(conditions, fmt.Sprintf("c.slug = $%d", len(args)))
	}
	if filters.Tag != "" {
		args = append(args, filters.Tag)
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(p.tags)", len(args)))
	}

	return strings.Join(conditions, " AND "), args
}

func (s *FeedSource) catalogRows(ctx context.Context, feed feeds.DataFeed) ([]feeds.Row, error) {
	where, args := productFilter(feed.Filters)
	query := `
SELECT p.sku, p.part_number, p.title, p.short_description, p.long_description,
       COALESCE(b.name, ''), COALESCE(c.name, ''), p.upc, p.country_of_origin,
       p.weight_grams, p.length_mm, p.width_mm, p.height_mm,
       p.msrp_cents, p.map_cents, p.jobber_cents,
       p.is_active, p.is_featured, p.is_hazmat, p.is_oversized,
       p.keywords, p.tags,
       COALESCE(img.storage_path, '')
FROM products p
LEFT JOIN brands b ON b.id = p.brand_id
LEFT JOIN categories c ON c.id = p.category_id
LEFT JOIN LATERAL (
    SELECT a.storage_path
    FROM product_assets pa
    JOIN assets a ON a.id = pa.asset_id
    WHERE pa.product_id = p.id AND pa.is_primary
    LIMIT 1
) img ON true
WHERE ` + where + `
ORDER BY p.sku`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query catalog rows: %w", err)
	}
	defer rows.Close()

	var out []feeds.Row
	for rows.Next() {
		var (
			sku, partNumber, title          string
			shortDesc, longDesc, upc, coo   *string
			brand, category, imagePath      string
			weight, length, width, height   int64
			msrp, mapPrice, jobber          int64
			active, featured, hazmat, large bool
			keywords, tags                  []string
		)
		if err := rows.Scan(
			&sku, &partNumber, &title, &shortDesc, &longDesc,
			&brand, &category, &upc, &coo,
			&weight, &length, &width, &height,
			&msrp, &mapPrice, &jobber,
			&active, &featured, &hazmat, &large,
			&keywords, &tags,
			&imagePath,
		); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}

		row := feeds.Row{
			"sku":               sku,
			"part_number":       partNumber,
			"title":             title,
			"short_description": derefString(shortDesc),
			"long_description":  derefString(longDesc),
			"brand":             brand,
			"category":          category,
			"upc":               derefString(upc),
			"country_of_origin": derefString(coo),
			"weight_grams":      strconv.FormatInt(weight, 10),
			"length_mm":         strconv.FormatInt(length, 10),
			"width_mm":          strconv.FormatInt(width, 10),
			"height_mm":         strconv.FormatInt(height, 10),
			"msrp_cents":        strconv.FormatInt(msrp, 10),
			"map_cents":         strconv.FormatInt(mapPrice, 10),
			"jobber_cents":      strconv.FormatInt(jobber, 10),
			"is_active":         strconv.FormatBool(active),
			"is_featured":       strconv.FormatBool(featured),
			"is_hazmat":         strconv.FormatBool(hazmat),
			"is_oversized":      strconv.FormatBool(large),
			"keywords":          strings.Join(keywords, "|"),
			"tags":              strings.Join(tags, "|"),
		}
		if feed.IncludeImages {
			row["image_path"] = imagePath
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog rows: %w", err)
	}
	return out, nil
}

func (s *FeedSource) assetRows(ctx context.Context, feed feeds.DataFeed) ([]feeds.Row, error) {
	where, args := productFilter(feed.Filters)
	query := `
SELECT p.sku, a.file_name, a.mime_type, a.asset_type, a.size_bytes,
       a.storage_path, a.title, a.alt_text, pa.is_primary, pa.sort_order
FROM product_assets pa
JOIN products p ON p.id = pa.product_id
JOIN assets a ON a.id = pa.asset_id
LEFT JOIN brands b ON b.id = p.brand_id
LEFT JOIN categories c ON c.id = p.category_id
WHERE ` + where + `
ORDER BY p.sku, pa.sort_order`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query asset rows: %w", err)
	}
	defer rows.Close()

	var out []feeds.Row
	for rows.Next() {
		var (
			sku, fileName, mimeType, assetType, storagePath string
			title, altText                                  *string
			sizeBytes                                       int64
			isPrimary                                       bool
			sortOrder                                       int
		)
		if err := rows.Scan(&sku, &fileName, &mimeType, &assetType, &sizeBytes,
			&storagePath, &title, &altText, &isPrimary, &sortOrder); err != nil {
			return nil, fmt.Errorf("scan asset row: %w", err)
		}
		out = append(out, feeds.Row{
			"sku":          sku,
			"file_name":    fileName,
			"mime_type":    mimeType,
			"asset_type":   assetType,
			"size_bytes":   strconv.FormatInt(sizeBytes, 10),
			"storage_path": storagePath,
			"title":        derefString(title),
			"alt_text":     derefString(altText),
			"is_primary":   strconv.FormatBool(isPrimary),
			"sort_order":   strconv.Itoa(sortOrder),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate asset rows: %w", err)
	}
	return out, nil
}

func (s *FeedSource) fitmentRows(ctx context.Context, feed feeds.DataFeed) ([]feeds.Row, error) {
	where, args := productFilter(feed.Filters)
	query := `
SELECT p.sku, f.make, f.model, f.year_start, f.year_end, f.engine, f.position, f.notes
FROM fitments f
JOIN products p ON p.id = f.product_id
LEFT JOIN brands b ON b.id = p.brand_id
LEFT JOIN categories c ON c.id = p.category_id
WHERE ` + where + `
ORDER BY p.sku, f.make, f.model, f.year_start`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query fitment rows: %w", err)
	}
	defer rows.Close()

	var out []feeds.Row
	for rows.Next() {
		var (
			sku, vehicleMake, model string
			yearStart, yearEnd      int
			engine, position, notes *string
		)
		if err := rows.Scan(&sku, &vehicleMake, &model, &yearStart, &yearEnd, &engine, &position, &notes); err != nil {
			return nil, fmt.Errorf("scan fitment row: %w", err)
		}
		out = append(out, feeds.Row{
			"sku":        sku,
			"make":       vehicleMake,
			"model":      model,
			"year_start": strconv.Itoa(yearStart),
			"year_end":   strconv.Itoa(yearEnd),
			"engine":     derefString(engine),
			"position":   derefString(position),
			"notes":      derefString(notes),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fitment rows: %w", err)
	}
	return out, nil
}

// pricingRows exports list prices, plus the customer's contract price when
// the feed belongs to a customer and the price is inside its validity window.
func (s *FeedSource) pricingRows(ctx context.Context, feed feeds.DataFeed) ([]feeds.Row, error) {
	where, args := productFilter(feed.Filters)

	join := ""
	columns := "0::bigint, false"
	if feed.CustomerID != "" {
		args = append(args, feed.CustomerID, time.Now().UTC())
		join = fmt.Sprintf(`
LEFT JOIN customer_prices cp ON cp.product_id = p.id
    AND cp.customer_id = $%d
    AND (cp.valid_from IS NULL OR cp.valid_from <= $%d)
    AND (cp.valid_until IS NULL OR cp.valid_until >= $%d)`, len(args)-1, len(args), len(args))
		columns = "COALESCE(cp.price_cents, 0), cp.price_cents IS NOT NULL"
	}

	query := `
SELECT p.sku, p.msrp_cents, p.map_cents, p.jobber_cents, ` + columns + `
FROM products p
LEFT JOIN brands b ON b.id = p.brand_id
LEFT JOIN categories c ON c.id = p.category_id` + join + `
WHERE ` + where + `
ORDER BY p.sku`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pricing rows: %w", err)
	}
	defer rows.Close()

	var out []feeds.Row
	for rows.Next() {
		var (
			sku                  string
			msrp, mapPrice       int64
			jobber, contract     int64
			hasContract          bool
		)
		if err := rows.Scan(&sku, &msrp, &mapPrice, &jobber, &contract, &hasContract); err != nil {
			return nil, fmt.Errorf("scan pricing row: %w", err)
		}
		row := feeds.Row{
			"sku":          sku,
			"msrp_cents":   strconv.FormatInt(msrp, 10),
			"map_cents":    strconv.FormatInt(mapPrice, 10),
			"jobber_cents": strconv.FormatInt(jobber, 10),
		}
		if feed.CustomerID != "" {
			if hasContract {
				row["contract_cents"] = strconv.FormatInt(contract, 10)
			} else {
				row["contract_cents"] = ""
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pricing rows: %w", err)
	}
	return out, nil
}
