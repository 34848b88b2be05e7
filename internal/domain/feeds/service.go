package feeds

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/solidus-pim/server/internal/audit"
	"github.com/solidus-pim/server/internal/domain/ids"
	"github.com/solidus-pim/server/internal/sanitize"
	"github.com/solidus-pim/server/internal/validation"
)

var (
	ErrNotFound           = errors.New("feed not found")
	ErrGenerationNotFound = errors.New("feed generation not found")
	ErrSlugTaken          = errors.New("feed slug is already taken")
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotDue             = errors.New("feed is not due")
)

// Repository is the persistence contract for feeds and their generations.
type Repository interface {
	GetByULID(ctx context.Context, ulid string) (*DataFeed, error)
	GetBySlug(ctx context.Context, slug string) (*DataFeed, error)
	List(ctx context.Context, customerID string, limit, offset int) ([]DataFeed, int64, error)
	Create(ctx context.Context, feed DataFeed) error
	Update(ctx context.Context, feed DataFeed) error
	Delete(ctx context.Context, ulid string) error
	ListDue(ctx context.Context, now time.Time) ([]DataFeed, error)
	MarkRun(ctx context.Context, ulid string, lastRun time.Time, nextRun *time.Time) error

	CreateGeneration(ctx context.Context, gen Generation) error
	UpdateGeneration(ctx context.Context, gen Generation) error
	GetGeneration(ctx context.Context, id string) (*Generation, error)
	ListGenerations(ctx context.Context, feedULID string, limit int) ([]Generation, error)
}

// Source produces the rows a feed exports.
type Source interface {
	Rows(ctx context.Context, feed DataFeed) ([]Row, error)
}

// Storage persists generated feed files.
type Storage interface {
	Create(ctx context.Context, path string) (io.WriteCloser, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

type Service struct {
	repo      Repository
	source    Source
	storage   Storage
	deliverer *Deliverer
	recorder  *audit.Recorder
	validate  *validator.Validate
	logger    zerolog.Logger
}

func NewService(repo Repository, source Source, storage Storage, deliverer *Deliverer, recorder *audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		source:    source,
		storage:   storage,
		deliverer: deliverer,
		recorder:  recorder,
		validate:  validator.New(),
		logger:    logger.With().Str("component", "feeds").Logger(),
	}
}

// FeedParams carries validated input for feed creation and update.
type FeedParams struct {
	Name            string `validate:"required,max=255"`
	Slug            string `validate:"omitempty,max=255"`
	CustomerID      string
	Type            FeedType       `validate:"required"`
	Format          Format         `validate:"required"`
	Filters         RowFilters     `validate:"-"`
	IncludedFields  []string       `validate:"-"`
	FieldMapping    map[string]string `validate:"-"`
	Frequency       Frequency      `validate:"required"`
	CronExpression  string         `validate:"-"`
	ScheduleHour    int            `validate:"gte=0,lte=23"`
	ScheduleWeekday int            `validate:"gte=0,lte=6"`
	ScheduleDay     int            `validate:"gte=0,lte=31"`
	DeliveryMethod  DeliveryMethod `validate:"required"`
	DeliveryConfig  map[string]string `validate:"-"`
	IncludeImages   bool
	Compress        bool
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases and collapses non-alphanumerics to hyphens.
func Slugify(name string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(slug, "-")
}

func (s *Service) validateParams(params FeedParams) error {
	if err := s.validate.Struct(params); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}
	switch params.Type {
	case FeedTypeCatalog, FeedTypeAssets, FeedTypeFitment, FeedTypePricing:
	default:
		return fmt.Errorf("%w: unknown feed type %q", ErrInvalidInput, params.Type)
	}
	switch params.Format {
	case FormatCSV, FormatJSON, FormatXML:
	default:
		return fmt.Errorf("%w: unknown format %q", ErrInvalidInput, params.Format)
	}
	switch params.Frequency {
	case FrequencyManual, FrequencyHourly, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	case FrequencyCron:
		if _, err := cronParser.Parse(params.CronExpression); err != nil {
			return fmt.Errorf("%w: invalid cron expression: %s", ErrInvalidInput, err.Error())
		}
	default:
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidInput, params.Frequency)
	}
	switch params.DeliveryMethod {
	case DeliveryDownload:
	case DeliveryEmail:
		if params.DeliveryConfig["recipient"] == "" {
			return fmt.Errorf("%w: email delivery requires delivery_config.recipient", ErrInvalidInput)
		}
	case DeliveryWebhook:
		if params.DeliveryConfig["url"] == "" {
			return fmt.Errorf("%w: webhook delivery requires delivery_config.url", ErrInvalidInput)
		}
		if err := validation.ValidateWebhookURL(params.DeliveryConfig["url"], "delivery_config.url", false); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
		}
	default:
		return fmt.Errorf("%w: unknown delivery method %q", ErrInvalidInput, params.DeliveryMethod)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, params FeedParams, actor string) (*DataFeed, error) {
	if err := s.validateParams(params); err != nil {
		return nil, err
	}

	slug := params.Slug
	if slug == "" {
		slug = Slugify(params.Name)
	}
	if slug == "" {
		return nil, fmt.Errorf("%w: slug cannot be empty", ErrInvalidInput)
	}

	existing, err := s.repo.GetBySlug(ctx, slug)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check slug: %w", err)
	}
	if existing != nil {
		return nil, ErrSlugTaken
	}

	ulid, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("generate ulid: %w", err)
	}

	now := time.Now().UTC()
	feed := DataFeed{
		ID:              ulid,
		Name:            sanitize.Text(params.Name),
		Slug:            slug,
		CustomerID:      params.CustomerID,
		Type:            params.Type,
		Format:          params.Format,
		Filters:         params.Filters,
		IncludedFields:  params.IncludedFields,
		FieldMapping:    params.FieldMapping,
		Frequency:       params.Frequency,
		CronExpression:  params.CronExpression,
		ScheduleHour:    params.ScheduleHour,
		ScheduleWeekday: params.ScheduleWeekday,
		ScheduleDay:     params.ScheduleDay,
		DeliveryMethod:  params.DeliveryMethod,
		DeliveryConfig:  params.DeliveryConfig,
		IncludeImages:   params.IncludeImages,
		Compress:        params.Compress,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	next, err := NextRun(feed, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}
	feed.NextRunAt = next

	if err := s.repo.Create(ctx, feed); err != nil {
		return nil, fmt.Errorf("create feed: %w", err)
	}

	s.recorder.RecordSuccess(ctx, audit.Entry{
		Action:     "feed.created",
		Actor:      actor,
		EntityType: "feed",
		EntityID:   feed.ID,
		Changes:    map[string]any{"slug": feed.Slug, "type": string(feed.Type), "format": string(feed.Format)},
	})
	return &feed, nil
}

func (s *Service) Update(ctx context.Context, ulid string, params FeedParams, actor string) (*DataFeed, error) {
	if err := s.validateParams(params); err != nil {
		return nil, err
	}

	feed, err := s.repo.GetByULID(ctx, ulid)
	if err != nil {
		return nil, err
	}

	if params.Slug != "" && params.Slug != feed.Slug {
		existing, err := s.repo.GetBySlug(ctx, params.Slug)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("check slug: %w", err)
		}
		if existing != nil && existing.ID != feed.ID {
			return nil, ErrSlugTaken
		}
		feed.Slug = params.Slug
	}

	feed.Name = sanitize.Text(params.Name)
	feed.CustomerID = params.CustomerID
	feed.Type = params.Type
	feed.Format = params.Format
	feed.Filters = params.Filters
	feed.IncludedFields = params.IncludedFields
	feed.FieldMapping = params.FieldMapping
	feed.Frequency = params.Frequency
	feed.CronExpression = params.CronExpression
	feed.ScheduleHour = params.ScheduleHour
	feed.ScheduleWeekday = params.ScheduleWeekday
	feed.ScheduleDay = params.ScheduleDay
	feed.DeliveryMethod = params.DeliveryMethod
	feed.DeliveryConfig = params.DeliveryConfig
	feed.IncludeImages = params.IncludeImages
	feed.Compress = params.Compress
	feed.UpdatedAt = time.Now().UTC()

	next, err := NextRun(*feed, feed.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}
	feed.NextRunAt = next

	if err := s.repo.Update(ctx, *feed); err != nil {
		return nil, fmt.Errorf("update feed: %w", err)
	}

	s.recorder.RecordSuccess(ctx, audit.Entry{
		Action:     "feed.updated",
		Actor:      actor,
		EntityType: "feed",
		EntityID:   feed.ID,
		Changes:    map[string]any{"slug": feed.Slug},
	})
	return feed, nil
}

func (s *Service) Get(ctx context.Context, ulid string) (*DataFeed, error) {
	return s.repo.GetByULID(ctx, ulid)
}

func (s *Service) List(ctx context.Context, customerID string, limit, offset int) ([]DataFeed, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.List(ctx, customerID, limit, offset)
}

func (s *Service) Delete(ctx context.Context, ulid string, actor string) error {
	feed, err := s.repo.GetByULID(ctx, ulid)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, ulid); err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}
	s.recorder.RecordSuccess(ctx, audit.Entry{
		Action:     "feed.deleted",
		Actor:      actor,
		EntityType: "feed",
		EntityID:   ulid,
		Changes:    map[string]any{"slug": feed.Slug},
	})
	return nil
}

// DueFeeds lists active feeds whose next run is at or before now.
func (s *Service) DueFeeds(ctx context.Context, now time.Time) ([]DataFeed, error) {
	return s.repo.ListDue(ctx, now)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Generate runs one feed end to end: pending → generating → generated →
// delivering → completed, with any error captured on the generation.
func (s *Service) Generate(ctx context.Context, feedULID string, actor string) (*Generation, error) {
	feed, err := s.repo.GetByULID(ctx, feedULID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	gen := Generation{
		ID:        ids.NewUUID(),
		FeedID:    feed.ID,
		Status:    StatusPending,
		CreatedAt: now,
	}
	if err := s.repo.CreateGeneration(ctx, gen); err != nil {
		return nil, fmt.Errorf("create generation: %w", err)
	}

	gen.Status = StatusGenerating
	gen.StartedAt = &now
	if err := s.repo.UpdateGeneration(ctx, gen); err != nil {
		return nil, fmt.Errorf("update generation: %w", err)
	}

	if err := s.generate(ctx, *feed, &gen); err != nil {
		s.fail(ctx, &gen, err)
		return &gen, fmt.Errorf("generate feed %s: %w", feed.Slug, err)
	}

	gen.Status = StatusDelivering
	if err := s.repo.UpdateGeneration(ctx, gen); err != nil {
		return nil, fmt.Errorf("update generation: %w", err)
	}

	if err := s.deliverer.Deliver(ctx, *feed, gen); err != nil {
		s.fail(ctx, &gen, err)
		return &gen, fmt.Errorf("deliver feed %s: %w", feed.Slug, err)
	}

	completed := time.Now().UTC()
	gen.Status = StatusCompleted
	gen.CompletedAt = &completed
	if err := s.repo.UpdateGeneration(ctx, gen); err != nil {
		return nil, fmt.Errorf("update generation: %w", err)
	}

	next, err := NextRun(*feed, completed)
	if err != nil {
		s.logger.Warn().Err(err).Str("feed", feed.Slug).Msg("failed to compute next run")
	} else if err := s.repo.MarkRun(ctx, feed.ID, completed, next); err != nil {
		s.logger.Warn().Err(err).Str("feed", feed.Slug).Msg("failed to record feed run")
	}

	s.recorder.RecordSuccess(ctx, audit.Entry{
		Action:     "feed.generated",
		Actor:      actor,
		EntityType: "feed",
		EntityID:   feed.ID,
		Changes:    map[string]any{"generation_id": gen.ID, "rows": gen.RowCount},
	})
	return &gen, nil
}

func (s *Service) generate(ctx context.Context, feed DataFeed, gen *Generation) error {
	rows, err := s.source.Rows(ctx, feed)
	if err != nil {
		return fmt.Errorf("load rows: %w", err)
	}

	customer := feed.CustomerID
	if customer == "" {
		customer = "public"
	}
	ext := string(feed.Format)
	if feed.Compress {
		ext += ".gz"
	}
	path := fmt.Sprintf("feeds/%s/%s/%s_%s.%s", customer, gen.ID, feed.Slug, gen.ID[:8], ext)

	wc, err := s.storage.Create(ctx, path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}

	counter := &countingWriter{w: wc}
	var target io.Writer = counter
	var gz *gzip.Writer
	if feed.Compress {
		gz = gzip.NewWriter(counter)
		target = gz
	}

	count, renderErr := Render(target, feed, rows)
	if gz != nil {
		if err := gz.Close(); err != nil && renderErr == nil {
			renderErr = fmt.Errorf("close gzip: %w", err)
		}
	}
	if err := wc.Close(); err != nil && renderErr == nil {
		renderErr = fmt.Errorf("close output file: %w", err)
	}
	if renderErr != nil {
		return renderErr
	}

	gen.FilePath = path
	gen.FileSizeBytes = counter.n
	gen.RowCount = count
	gen.Status = StatusGenerated
	if err := s.repo.UpdateGeneration(ctx, *gen); err != nil {
		return fmt.Errorf("record generated file: %w", err)
	}
	return nil
}

func (s *Service) fail(ctx context.Context, gen *Generation, cause error) {
	completed := time.Now().UTC()
	gen.Status = StatusFailed
	gen.Error = cause.Error()
	gen.CompletedAt = &completed
	if err := s.repo.UpdateGeneration(ctx, *gen); err != nil {
		s.logger.Error().Err(err).Str("generation_id", gen.ID).Msg("failed to record generation failure")
	}
}

func (s *Service) GetGeneration(ctx context.Context, id string) (*Generation, error) {
	return s.repo.GetGeneration(ctx, id)
}

func (s *Service) ListGenerations(ctx context.Context, feedULID string, limit int) ([]Generation, error) {
	if limit <= 0 {
		limit = 20
	}
	if _, err := s.repo.GetByULID(ctx, feedULID); err != nil {
		return nil, err
	}
	return s.repo.ListGenerations(ctx, feedULID, limit)
}

// OpenGeneration returns the generated file content for download.
func (s *Service) OpenGeneration(ctx context.Context, feedULID, generationID string) (*Generation, io.ReadCloser, error) {
	gen, err := s.repo.GetGeneration(ctx, generationID)
	if err != nil {
		return nil, nil, err
	}
	if gen.FeedID != feedULID {
		return nil, nil, ErrGenerationNotFound
	}
	if gen.FilePath == "" {
		return nil, nil, fmt.Errorf("%w: generation has no file", ErrGenerationNotFound)
	}
	rc, err := s.storage.Open(ctx, gen.FilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open feed file: %w", err)
	}
	return gen, rc, nil
}
