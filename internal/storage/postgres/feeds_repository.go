package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/solidus-pim/server/internal/domain/feeds"
)

var _ feeds.Repository = (*FeedRepository)(nil)

const feedColumns = `id, name, slug, customer_id, feed_type, format, filters,
       included_fields, field_mapping, frequency, cron_expression,
       schedule_hour, schedule_weekday, schedule_day,
       delivery_method, delivery_config, include_images, compress, is_active,
       last_run_at, next_run_at, created_at, updated_at`

func scanFeed(row pgx.Row) (*feeds.DataFeed, error) {
	var feed feeds.DataFeed
	var customerID, cronExpression *string
	var feedType, format, frequency, deliveryMethod string
	var lastRun, nextRun, createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(
		&feed.ID,
		&feed.Name,
		&feed.Slug,
		&customerID,
		&feedType,
		&format,
		&feed.Filters,
		&feed.IncludedFields,
		&feed.FieldMapping,
		&frequency,
		&cronExpression,
		&feed.ScheduleHour,
		&feed.ScheduleWeekday,
		&feed.ScheduleDay,
		&deliveryMethod,
		&feed.DeliveryConfig,
		&feed.IncludeImages,
		&feed.Compress,
		&feed.IsActive,
		&lastRun,
		&nextRun,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	feed.CustomerID = derefString(customerID)
	feed.Type = feeds.FeedType(feedType)
	feed.Format = feeds.Format(format)
	feed.Frequency = feeds.Frequency(frequency)
	feed.CronExpression = derefString(cronExpression)
	feed.DeliveryMethod = feeds.DeliveryMethod(deliveryMethod)
	if lastRun.Valid {
		value := lastRun.Time
		feed.LastRunAt = &value
	}
	if nextRun.Valid {
		value := nextRun.Time
		feed.NextRunAt = &value
	}
	feed.CreatedAt = createdAt.Time
	feed.UpdatedAt = updatedAt.Time
	return &feed, nil
}

func (r *FeedRepository) GetByULID(ctx context.Context, ulid string) (*feeds.DataFeed, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT `+feedColumns+`
  FROM data_feeds
 WHERE id = $1
`, ulid)
	feed, err := scanFeed(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, feeds.ErrNotFound
		}
		return nil, fmt.Errorf("get feed: %w", err)
	}
	return feed, nil
}

func (r *FeedRepository) GetBySlug(ctx context.Context, slug string) (*feeds.DataFeed, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT `+feedColumns+`
  FROM data_feeds
 WHERE slug = $1
`, slug)
	feed, err := scanFeed(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, feeds.ErrNotFound
		}
		return nil, fmt.Errorf("get feed by slug: %w", err)
	}
	return feed, nil
}

func (r *FeedRepository) List(ctx context.Context, customerID string, limit, offset int) ([]feeds.DataFeed, int64, error) {
	queryer := r.queryer()
	if limit <= 0 {
		limit = 50
	}

	var total int64
	err := queryer.QueryRow(ctx, `
SELECT count(*) FROM data_feeds WHERE ($1 = '' OR customer_id = $1)
`, customerID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count feeds: %w", err)
	}

	rows, err := queryer.Query(ctx, `
SELECT `+feedColumns+`
  FROM data_feeds
 WHERE ($1 = '' OR customer_id = $1)
 ORDER BY created_at DESC, id DESC
 LIMIT $2 OFFSET $3
`, customerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list feeds: %w", err)
	}
	defer rows.Close()

	var items []feeds.DataFeed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan feed: %w", err)
		}
		items = append(items, *feed)
	}
	return items, total, rows.Err()
}

func (r *FeedRepository) Create(ctx context.Context, feed feeds.DataFeed) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO data_feeds (
    id, name, slug, customer_id, feed_type, format, filters,
    included_fields, field_mapping, frequency, cron_expression,
    schedule_hour, schedule_weekday, schedule_day,
    delivery_method, delivery_config, include_images, compress, is_active,
    next_run_at, created_at, updated_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7,
    $8, $9, $10, $11,
    $12, $13, $14,
    $15, $16, $17, $18, $19,
    $20, $21, $22
)
`,
		feed.ID,
		feed.Name,
		feed.Slug,
		nullIfEmpty(feed.CustomerID),
		string(feed.Type),
		string(feed.Format),
		feed.Filters,
		feed.IncludedFields,
		feed.FieldMapping,
		string(feed.Frequency),
		nullIfEmpty(feed.CronExpression),
		feed.ScheduleHour,
		feed.ScheduleWeekday,
		feed.ScheduleDay,
		string(feed.DeliveryMethod),
		feed.DeliveryConfig,
		feed.IncludeImages,
		feed.Compress,
		feed.IsActive,
		feed.NextRunAt,
		feed.CreatedAt,
		feed.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert feed: %w", err)
	}
	return nil
}

func (r *FeedRepository) Update(ctx context.Context, feed feeds.DataFeed) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE data_feeds SET
    name = $2, customer_id = $3, feed_type = $4, format = $5, filters = $6,
    included_fields = $7, field_mapping = $8, frequency = $9, cron_expression = $10,
    schedule_hour = $11, schedule_weekday = $12, schedule_day = $13,
    delivery_method = $14, delivery_config = $15, include_images = $16,
    compress = $17, is_active = $18, next_run_at = $19, updated_at = now()
 WHERE id = $1
`,
		feed.ID,
		feed.Name,
		nullIfEmpty(feed.CustomerID),
		string(feed.Type),
		string(feed.Format),
		feed.Filters,
		feed.IncludedFields,
		feed.FieldMapping,
		string(feed.Frequency),
		nullIfEmpty(feed.CronExpression),
		feed.ScheduleHour,
		feed.ScheduleWeekday,
		feed.ScheduleDay,
		string(feed.DeliveryMethod),
		feed.DeliveryConfig,
		feed.IncludeImages,
		feed.Compress,
		feed.IsActive,
		feed.NextRunAt,
	)
	if err != nil {
		return fmt.Errorf("update feed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return feeds.ErrNotFound
	}
	return nil
}

func (r *FeedRepository) Delete(ctx context.Context, ulid string) error {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM data_feeds WHERE id = $1`, ulid)
	if err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return feeds.ErrNotFound
	}
	return nil
}

func (r *FeedRepository) ListDue(ctx context.Context, now time.Time) ([]feeds.DataFeed, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT `+feedColumns+`
  FROM data_feeds
 WHERE is_active = true
   AND frequency <> 'manual'
   AND next_run_at IS NOT NULL
   AND next_run_at <= $1
 ORDER BY next_run_at ASC
`, now)
	if err != nil {
		return nil, fmt.Errorf("list due feeds: %w", err)
	}
	defer rows.Close()

	var items []feeds.DataFeed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		items = append(items, *feed)
	}
	return items, rows.Err()
}

func (r *FeedRepository) MarkRun(ctx context.Context, ulid string, lastRun time.Time, nextRun *time.Time) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE data_feeds SET last_run_at = $2, next_run_at = $3, updated_at = now() WHERE id = $1
`, ulid, lastRun, nextRun)
	if err != nil {
		return fmt.Errorf("mark feed run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return feeds.ErrNotFound
	}
	return nil
}

const generationColumns = `id, feed_id, status, file_path, file_size_bytes, row_count, error,
       started_at, completed_at, created_at`

func scanGeneration(row pgx.Row) (*feeds.Generation, error) {
	var gen feeds.Generation
	var status string
	var filePath, genError *string
	var startedAt, completedAt, createdAt pgtype.Timestamptz
	if err := row.Scan(
		&gen.ID,
		&gen.FeedID,
		&status,
		&filePath,
		&gen.FileSizeBytes,
		&gen.RowCount,
		&genError,
		&startedAt,
		&completedAt,
		&createdAt,
	); err != nil {
		return nil, err
	}
	gen.Status = feeds.GenerationStatus(status)
	gen.FilePath = derefString(filePath)
	gen.Error = derefString(genError)
	if startedAt.Valid {
		value := startedAt.Time
		gen.StartedAt = &value
	}
	if completedAt.Valid {
		value := completedAt.Time
		gen.CompletedAt = &value
	}
	gen.CreatedAt = createdAt.Time
	return &gen, nil
}

func (r *FeedRepository) CreateGeneration(ctx context.Context, gen feeds.Generation) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO feed_generations (id, feed_id, status, created_at)
VALUES ($1, $2, $3, $4)
`, gen.ID, gen.FeedID, string(gen.Status), gen.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	return nil
}

func (r *FeedRepository) UpdateGeneration(ctx context.Context, gen feeds.Generation) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE feed_generations SET
    status = $2, file_path = $3, file_size_bytes = $4, row_count = $5,
    error = $6, started_at = $7, completed_at = $8
 WHERE id = $1
`,
		gen.ID,
		string(gen.Status),
		nullIfEmpty(gen.FilePath),
		gen.FileSizeBytes,
		gen.RowCount,
		nullIfEmpty(gen.Error),
		gen.StartedAt,
		gen.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update generation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return feeds.ErrGenerationNotFound
	}
	return nil
}

func (r *FeedRepository) GetGeneration(ctx context.Context, id string) (*feeds.Generation, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT `+generationColumns+`
  FROM feed_generations
 WHERE id = $1
`, id)
	gen, err := scanGeneration(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, feeds.ErrGenerationNotFound
		}
		return nil, fmt.Errorf("get generation: %w", err)
	}
	return gen, nil
}

func (r *FeedRepository) ListGenerations(ctx context.Context, feedULID string, limit int) ([]feeds.Generation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.queryer().Query(ctx, `
SELECT `+generationColumns+`
  FROM feed_generations
 WHERE feed_id = $1
 ORDER BY created_at DESC
 LIMIT $2
`, feedULID, limit)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var items []feeds.Generation
	for rows.Next() {
		gen, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		items = append(items, *gen)
	}
	return items, rows.Err()
}
