package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/solidus-pim/server/internal/domain/assets"
)

var _ assets.Repository = (*AssetRepository)(nil)

const assetColumns = `id, file_name, file_hash, mime_type, asset_type, size_bytes, storage_path,
       title, alt_text, download_count, view_count, last_accessed_at, created_at, updated_at`

func scanAsset(row pgx.Row) (*assets.Asset, error) {
	var asset assets.Asset
	var title, altText *string
	var assetType string
	var lastAccessed, createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(
		&asset.ID,
		&asset.FileName,
		&asset.FileHash,
		&asset.MIMEType,
		&assetType,
		&asset.SizeBytes,
		&asset.StoragePath,
		&title,
		&altText,
		&asset.DownloadCount,
		&asset.ViewCount,
		&lastAccessed,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	asset.Type = assets.Type(assetType)
	asset.Title = derefString(title)
	asset.AltText = derefString(altText)
	if lastAccessed.Valid {
		value := lastAccessed.Time
		asset.LastAccessedAt = &value
	}
	asset.CreatedAt = createdAt.Time
	asset.UpdatedAt = updatedAt.Time
	return &asset, nil
}

func (r *AssetRepository) GetByHash(ctx context.Context, hash string) (*assets.Asset, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT `+assetColumns+`
  FROM assets
 WHERE file_hash = $1
`, hash)
	asset, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, assets.ErrNotFound
		}
		return nil, fmt.Errorf("get asset by hash: %w", err)
	}
	return asset, nil
}

func (r *AssetRepository) GetByULID(ctx context.Context, ulid string) (*assets.Asset, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT `+assetColumns+`
  FROM assets
 WHERE id = $1
`, ulid)
	asset, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, assets.ErrNotFound
		}
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return asset, nil
}

func (r *AssetRepository) Create(ctx context.Context, asset assets.Asset, original assets.File) error {
	queryer := r.queryer()

	_, err := queryer.Exec(ctx, `
INSERT INTO assets (
    id, file_name, file_hash, mime_type, asset_type, size_bytes, storage_path,
    title, alt_text, download_count, view_count, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, 0, $10, $11)
`,
		asset.ID,
		asset.FileName,
		asset.FileHash,
		asset.MIMEType,
		string(asset.Type),
		asset.SizeBytes,
		asset.StoragePath,
		nullIfEmpty(asset.Title),
		nullIfEmpty(asset.AltText),
		asset.CreatedAt,
		asset.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}

	_, err = queryer.Exec(ctx, `
INSERT INTO asset_files (id, asset_id, version, storage_path, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`,
		original.ID,
		original.AssetID,
		original.Version,
		original.StoragePath,
		string(original.Status),
		original.CreatedAt,
		original.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert asset file: %w", err)
	}
	return nil
}

func (r *AssetRepository) List(ctx context.Context, filters assets.Filters) ([]assets.Asset, int64, error) {
	queryer := r.queryer()

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}

	var total int64
	err := queryer.QueryRow(ctx, `
SELECT count(*)
  FROM assets
 WHERE ($1 = '' OR asset_type = $1)
   AND ($2 = '' OR file_name ILIKE '%' || $2 || '%' OR title ILIKE '%' || $2 || '%')
`, string(filters.Type), filters.Query).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count assets: %w", err)
	}

	rows, err := queryer.Query(ctx, `
SELECT `+assetColumns+`
  FROM assets
 WHERE ($1 = '' OR asset_type = $1)
   AND ($2 = '' OR file_name ILIKE '%' || $2 || '%' OR title ILIKE '%' || $2 || '%')
 ORDER BY created_at DESC, id DESC
 LIMIT $3 OFFSET $4
`, string(filters.Type), filters.Query, limit, filters.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var items []assets.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan asset: %w", err)
		}
		items = append(items, *asset)
	}
	return items, total, rows.Err()
}

func (r *AssetRepository) IncrementDownloadCount(ctx context.Context, ulid string) error {
	_, err := r.queryer().Exec(ctx, `
UPDATE assets SET download_count = download_count + 1, last_accessed_at = now() WHERE id = $1
`, ulid)
	if err != nil {
		return fmt.Errorf("increment download count: %w", err)
	}
	return nil
}

func (r *AssetRepository) IncrementViewCount(ctx context.Context, ulid string) error {
	_, err := r.queryer().Exec(ctx, `
UPDATE assets SET view_count = view_count + 1, last_accessed_at = now() WHERE id = $1
`, ulid)
	if err != nil {
		return fmt.Errorf("increment view count: %w", err)
	}
	return nil
}

const assetFileColumns = `id, asset_id, version, storage_path, status, width, height, process_error, created_at, updated_at`

func scanAssetFile(row pgx.Row) (*assets.File, error) {
	var file assets.File
	var status string
	var width, height *int
	var processError *string
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(
		&file.ID,
		&file.AssetID,
		&file.Version,
		&file.StoragePath,
		&status,
		&width,
		&height,
		&processError,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	file.Status = assets.FileStatus(status)
	if width != nil {
		file.Width = *width
	}
	if height != nil {
		file.Height = *height
	}
	file.ProcessError = derefString(processError)
	file.CreatedAt = createdAt.Time
	file.UpdatedAt = updatedAt.Time
	return &file, nil
}

func (r *AssetRepository) ListFiles(ctx context.Context, assetULID string) ([]assets.File, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT `+assetFileColumns+`
  FROM asset_files
 WHERE asset_id = $1
 ORDER BY version ASC
`, assetULID)
	if err != nil {
		return nil, fmt.Errorf("list asset files: %w", err)
	}
	defer rows.Close()

	var files []assets.File
	for rows.Next() {
		file, err := scanAssetFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset file: %w", err)
		}
		files = append(files, *file)
	}
	return files, rows.Err()
}

// NextPendingFiles claims pending files oldest-first. SKIP LOCKED keeps
// concurrent workers from claiming the same batch.
func (r *AssetRepository) NextPendingFiles(ctx context.Context, limit int) ([]assets.File, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.queryer().Query(ctx, `
SELECT `+assetFileColumns+`
  FROM asset_files
 WHERE status = 'pending'
 ORDER BY created_at ASC
 LIMIT $1
 FOR UPDATE SKIP LOCKED
`, limit)
	if err != nil {
		return nil, fmt.Errorf("next pending files: %w", err)
	}
	defer rows.Close()

	var files []assets.File
	for rows.Next() {
		file, err := scanAssetFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset file: %w", err)
		}
		files = append(files, *file)
	}
	return files, rows.Err()
}

func (r *AssetRepository) MarkFileProcessing(ctx context.Context, fileID string) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE asset_files SET status = 'processing', updated_at = now() WHERE id = $1 AND status = 'pending'
`, fileID)
	if err != nil {
		return fmt.Errorf("mark file processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return assets.ErrFileNotFound
	}
	return nil
}

func (r *AssetRepository) CompleteFile(ctx context.Context, fileID string, width, height int) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE asset_files SET status = 'completed', width = $2, height = $3, process_error = NULL, updated_at = now()
 WHERE id = $1
`, fileID, width, height)
	if err != nil {
		return fmt.Errorf("complete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return assets.ErrFileNotFound
	}
	return nil
}

func (r *AssetRepository) FailFile(ctx context.Context, fileID, reason string) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE asset_files SET status = 'failed', process_error = $2, updated_at = now() WHERE id = $1
`, fileID, reason)
	if err != nil {
		return fmt.Errorf("fail file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return assets.ErrFileNotFound
	}
	return nil
}

func (r *AssetRepository) LinkProduct(ctx context.Context, link assets.ProductLink) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO product_assets (id, product_id, asset_id, is_primary, sort_order, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (product_id, asset_id) DO UPDATE SET
    sort_order = EXCLUDED.sort_order
`, link.ID, link.ProductID, link.AssetID, link.IsPrimary, link.SortOrder, link.CreatedAt)
	if err != nil {
		return fmt.Errorf("link product asset: %w", err)
	}
	return nil
}

func (r *AssetRepository) UnlinkProduct(ctx context.Context, productULID, assetULID string) error {
	tag, err := r.queryer().Exec(ctx, `
DELETE FROM product_assets WHERE product_id = $1 AND asset_id = $2
`, productULID, assetULID)
	if err != nil {
		return fmt.Errorf("unlink product asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return assets.ErrLinkNotFound
	}
	return nil
}

func (r *AssetRepository) ListLinksForProduct(ctx context.Context, productULID string) ([]assets.ProductLink, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT id, product_id, asset_id, is_primary, sort_order, created_at
  FROM product_assets
 WHERE product_id = $1
 ORDER BY sort_order ASC, created_at ASC
`, productULID)
	if err != nil {
		return nil, fmt.Errorf("list product assets: %w", err)
	}
	defer rows.Close()

	var links []assets.ProductLink
	for rows.Next() {
		var link assets.ProductLink
		var createdAt pgtype.Timestamptz
		if err := rows.Scan(&link.ID, &link.ProductID, &link.AssetID, &link.IsPrimary, &link.SortOrder, &createdAt); err != nil {
			return nil, fmt.Errorf("scan product asset: %w", err)
		}
		link.CreatedAt = createdAt.Time
		links = append(links, link)
	}
	return links, rows.Err()
}

// SetPrimaryImage demotes any existing primary before promoting the new one,
// inside one transaction so the single-primary invariant holds.
func (r *AssetRepository) SetPrimaryImage(ctx context.Context, productULID, assetULID string) error {
	run := func(q queryer) error {
		if _, err := q.Exec(ctx, `
UPDATE product_assets SET is_primary = false WHERE product_id = $1 AND is_primary = true
`, productULID); err != nil {
			return fmt.Errorf("demote primary: %w", err)
		}
		tag, err := q.Exec(ctx, `
UPDATE product_assets SET is_primary = true WHERE product_id = $1 AND asset_id = $2
`, productULID, assetULID)
		if err != nil {
			return fmt.Errorf("promote primary: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return assets.ErrLinkNotFound
		}
		return nil
	}

	if r.tx != nil {
		return run(r.tx)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := run(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
