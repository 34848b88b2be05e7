// Package seed loads initial catalog data from a JSON fixture file. Loading
// is idempotent: records that already exist (matched by slug or SKU) are
// skipped, so it is safe to run on every container start.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/solidus-pim/server/internal/domain/ids"
	"github.com/solidus-pim/server/internal/domain/products"
)

type BrandFixture struct {
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	Website string `json:"website,omitempty"`
}

type CategoryFixture struct {
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	ParentSlug string `json:"parent_slug,omitempty"`
}

type FitmentFixture struct {
	Make      string `json:"make"`
	Model     string `json:"model"`
	YearStart int    `json:"year_start"`
	YearEnd   int    `json:"year_end"`
	Engine    string `json:"engine,omitempty"`
	Position  string `json:"position,omitempty"`
}

type ProductFixture struct {
	SKU              string           `json:"sku"`
	PartNumber       string           `json:"part_number"`
	Title            string           `json:"title"`
	ShortDescription string           `json:"short_description,omitempty"`
	BrandSlug        string           `json:"brand_slug,omitempty"`
	CategorySlug     string           `json:"category_slug,omitempty"`
	UPC              string           `json:"upc,omitempty"`
	WeightGrams      int64            `json:"weight_grams,omitempty"`
	MSRPCents        int64            `json:"msrp_cents,omitempty"`
	MAPCents         int64            `json:"map_cents,omitempty"`
	JobberCents      int64            `json:"jobber_cents,omitempty"`
	CostCents        int64            `json:"cost_cents,omitempty"`
	IsFeatured       bool             `json:"is_featured,omitempty"`
	IsHazmat         bool             `json:"is_hazmat,omitempty"`
	Keywords         []string         `json:"keywords,omitempty"`
	Tags             []string         `json:"tags,omitempty"`
	Fitments         []FitmentFixture `json:"fitments,omitempty"`
}

type Fixtures struct {
	Brands     []BrandFixture     `json:"brands"`
	Categories []CategoryFixture  `json:"categories"`
	Products   []ProductFixture   `json:"products"`
}

// Summary reports what one load pass actually wrote.
type Summary struct {
	Brands     int
	Categories int
	Products   int
	Fitments   int
}

// Load reads the fixture file and writes missing records through the
// repository. Individual record failures are logged and skipped; only
// file-level problems return an error.
func Load(ctx context.Context, path string, repo products.Repository, logger zerolog.Logger) (Summary, error) {
	var summary Summary

	data, err := os.ReadFile(path)
	if err != nil {
		return summary, fmt.Errorf("read fixtures: %w", err)
	}
	var fixtures Fixtures
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return summary, fmt.Errorf("parse fixtures: %w", err)
	}

	log := logger.With().Str("component", "seed").Logger()
	now := time.Now().UTC()

	brandIDs, err := existingBrandIDs(ctx, repo)
	if err != nil {
		return summary, err
	}
	for _, fixture := range fixtures.Brands {
		if _, ok := brandIDs[fixture.Slug]; ok {
			continue
		}
		id, err := ids.NewULID()
		if err != nil {
			return summary, fmt.Errorf("generate ulid: %w", err)
		}
		brand := products.Brand{
			ID:        id,
			Name:      fixture.Name,
			Slug:      fixture.Slug,
			Website:   fixture.Website,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repo.CreateBrand(ctx, brand); err != nil {
			log.Warn().Err(err).Str("slug", fixture.Slug).Msg("skipping brand")
			continue
		}
		brandIDs[fixture.Slug] = id
		summary.Brands++
	}

	categoryIDs, err := existingCategoryIDs(ctx, repo)
	if err != nil {
		return summary, err
	}
	// Fixture order must list parents before children.
	for _, fixture := range fixtures.Categories {
		if _, ok := categoryIDs[fixture.Slug]; ok {
			continue
		}
		id, err := ids.NewULID()
		if err != nil {
			return summary, fmt.Errorf("generate ulid: %w", err)
		}
		category := products.Category{
			ID:        id,
			Name:      fixture.Name,
			Slug:      fixture.Slug,
			ParentID:  categoryIDs[fixture.ParentSlug],
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repo.CreateCategory(ctx, category); err != nil {
			log.Warn().Err(err).Str("slug", fixture.Slug).Msg("skipping category")
			continue
		}
		categoryIDs[fixture.Slug] = id
		summary.Categories++
	}

	for _, fixture := range fixtures.Products {
		existing, err := repo.GetBySKU(ctx, fixture.SKU)
		if err == nil && existing != nil {
			continue
		}

		id, err := ids.NewULID()
		if err != nil {
			return summary, fmt.Errorf("generate ulid: %w", err)
		}
		product := products.Product{
			ID:               id,
			SKU:              fixture.SKU,
			PartNumber:       fixture.PartNumber,
			Title:            fixture.Title,
			ShortDescription: fixture.ShortDescription,
			BrandID:          brandIDs[fixture.BrandSlug],
			CategoryID:       categoryIDs[fixture.CategorySlug],
			UPC:              fixture.UPC,
			WeightGrams:      fixture.WeightGrams,
			MSRPCents:        fixture.MSRPCents,
			MAPCents:         fixture.MAPCents,
			JobberCents:      fixture.JobberCents,
			CostCents:        fixture.CostCents,
			IsActive:         true,
			IsFeatured:       fixture.IsFeatured,
			IsHazmat:         fixture.IsHazmat,
			Keywords:         fixture.Keywords,
			Tags:             fixture.Tags,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := repo.Create(ctx, product); err != nil {
			log.Warn().Err(err).Str("sku", fixture.SKU).Msg("skipping product")
			continue
		}
		summary.Products++

		for _, fit := range fixture.Fitments {
			fitID, err := ids.NewULID()
			if err != nil {
				return summary, fmt.Errorf("generate ulid: %w", err)
			}
			fitment := products.Fitment{
				ID:        fitID,
				ProductID: id,
				Make:      fit.Make,
				Model:     fit.Model,
				YearStart: fit.YearStart,
				YearEnd:   fit.YearEnd,
				Engine:    fit.Engine,
				Position:  fit.Position,
				CreatedAt: now,
			}
			if err := repo.AddFitment(ctx, fitment); err != nil {
				log.Warn().Err(err).Str("sku", fixture.SKU).Msg("skipping fitment")
				continue
			}
			summary.Fitments++
		}
	}

	log.Info().
		Int("brands", summary.Brands).
		Int("categories", summary.Categories).
		Int("products", summary.Products).
		Int("fitments", summary.Fitments).
		Msg("fixtures loaded")
	return summary, nil
}

func existingBrandIDs(ctx context.Context, repo products.Repository) (map[string]string, error) {
	brands, err := repo.ListBrands(ctx)
	if err != nil {
		return nil, fmt.Errorf("list brands: %w", err)
	}
	bySlug := make(map[string]string, len(brands))
	for _, brand := range brands {
		bySlug[brand.Slug] = brand.ID
	}
	return bySlug, nil
}

func existingCategoryIDs(ctx context.Context, repo products.Repository) (map[string]string, error) {
	categories, err := repo.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	bySlug := make(map[string]string, len(categories))
	for _, category := range categories {
		bySlug[category.Slug] = category.ID
	}
	return bySlug, nil
}
