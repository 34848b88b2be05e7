package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	// Registered decoders for dimension extraction during processing.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog"

	"github.com/solidus-pim/server/internal/audit"
	"github.com/solidus-pim/server/internal/domain/ids"
	"github.com/solidus-pim/server/internal/metrics"
	"github.com/solidus-pim/server/internal/sanitize"
)

var (
	ErrNotFound     = errors.New("asset not found")
	ErrFileNotFound = errors.New("asset file not found")
	ErrLinkNotFound = errors.New("product asset link not found")
	ErrDuplicate    = errors.New("asset with identical content already exists")
	ErrInvalidInput = errors.New("invalid input")
)

// Repository is the persistence contract for assets.
type Repository interface {
	GetByHash(ctx context.Context, hash string) (*Asset, error)
	GetByULID(ctx context.Context, ulid string) (*Asset, error)
	Create(ctx context.Context, asset Asset, original File) error
	List(ctx context.Context, filters Filters) ([]Asset, int64, error)
	IncrementDownloadCount(ctx context.Context, ulid string) error
	IncrementViewCount(ctx context.Context, ulid string) error

	ListFiles(ctx context.Context, assetULID string) ([]File, error)
	NextPendingFiles(ctx context.Context, limit int) ([]File, error)
	MarkFileProcessing(ctx context.Context, fileID string) error
	CompleteFile(ctx context.Context, fileID string, width, height int) error
	FailFile(ctx context.Context, fileID, reason string) error

	LinkProduct(ctx context.Context, link ProductLink) error
	UnlinkProduct(ctx context.Context, productULID, assetULID string) error
	ListLinksForProduct(ctx context.Context, productULID string) ([]ProductLink, error)
	SetPrimaryImage(ctx context.Context, productULID, assetULID string) error
}

// BlobStore persists asset bytes. Content is staged first because the final
// path depends on the hash, which is only known after the full read.
type BlobStore interface {
	SaveTemp(ctx context.Context, r io.Reader) (tempPath string, size int64, err error)
	Promote(ctx context.Context, tempPath, finalPath string) error
	Discard(ctx context.Context, tempPath string) error
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

type Service struct {
	repo     Repository
	blobs    BlobStore
	recorder *audit.Recorder
	logger   zerolog.Logger
}

func NewService(repo Repository, blobs BlobStore, recorder *audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		blobs:    blobs,
		recorder: recorder,
		logger:   logger.With().Str("component", "assets").Logger(),
	}
}

// RegisterParams describes an upload.
type RegisterParams struct {
	FileName string
	MIMEType string
	Title    string
	AltText  string
}

// Register stores the upload and creates the asset plus its version-1 file
// in pending state. When the content hash already exists the staged bytes
// are discarded and ErrDuplicate is returned together with the existing
// asset so callers can point at it.
func (s *Service) Register(ctx context.Context, params RegisterParams, content io.Reader, actor string) (*Asset, error) {
	if params.FileName == "" {
		return nil, fmt.Errorf("%w: file_name is required", ErrInvalidInput)
	}
	if params.MIMEType == "" {
		return nil, fmt.Errorf("%w: mime_type is required", ErrInvalidInput)
	}

	hasher := sha256.New()
	tempPath, size, err := s.blobs.SaveTemp(ctx, io.TeeReader(content, hasher))
	if err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	hash := hex.EncodeToString(hasher.Sum(nil))

	existing, err := s.repo.GetByHash(ctx, hash)
	if err != nil && !errors.Is(err, ErrNotFound) {
		_ = s.blobs.Discard(ctx, tempPath)
		return nil, fmt.Errorf("check hash: %w", err)
	}
	if existing != nil {
		if err := s.blobs.Discard(ctx, tempPath); err != nil {
			s.logger.Warn().Err(err).Str("temp", tempPath).Msg("failed to discard duplicate upload")
		}
		return existing, ErrDuplicate
	}

	now := time.Now().UTC()
	assetType := Classify(params.MIMEType)
	finalPath := StoragePath(assetType, hash, params.FileName, now)

	if err := s.blobs.Promote(ctx, tempPath, finalPath); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	assetID, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("generate ulid: %w", err)
	}
	fileID, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("generate ulid: %w", err)
	}

	asset := Asset{
		ID:          assetID,
		FileName:    sanitize.Text(params.FileName),
		FileHash:    hash,
		MIMEType:    params.MIMEType,
		Type:        assetType,
		SizeBytes:   size,
		StoragePath: finalPath,
		Title:       sanitize.Text(params.Title),
		AltText:     sanitize.Text(params.AltText),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	original := File{
		ID:          fileID,
		AssetID:     assetID,
		Version:     1,
		StoragePath: finalPath,
		Status:      FileStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, asset, original); err != nil {
		return nil, fmt.Errorf("create asset: %w", err)
	}

	s.recorder.RecordSuccess(ctx, audit.Entry{
		Action:     "asset.registered",
		Actor:      actor,
		EntityType: "asset",
		EntityID:   asset.ID,
		Changes:    map[string]any{"file_name": asset.FileName, "sha256": hash, "type": string(assetType)},
	})
	return &asset, nil
}

func (s *Service) Get(ctx context.Context, ulid string) (*Asset, error) {
	return s.repo.GetByULID(ctx, ulid)
}

func (s *Service) List(ctx context.Context, filters Filters) ([]Asset, int64, error) {
	if filters.Limit <= 0 {
		filters.Limit = 50
	}
	return s.repo.List(ctx, filters)
}

func (s *Service) ListFiles(ctx context.Context, assetULID string) ([]File, error) {
	if _, err := s.repo.GetByULID(ctx, assetULID); err != nil {
		return nil, err
	}
	return s.repo.ListFiles(ctx, assetULID)
}

// Open returns the asset content for download. The download counter is
// incremented best-effort.
func (s *Service) Open(ctx context.Context, ulid string) (*Asset, io.ReadCloser, error) {
	asset, err := s.repo.GetByULID(ctx, ulid)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, asset.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open asset content: %w", err)
	}
	if err := s.repo.IncrementDownloadCount(ctx, ulid); err != nil {
		s.logger.Warn().Err(err).Str("asset_id", ulid).Msg("failed to record download")
	}
	return asset, rc, nil
}

// RecordView bumps the view counter.
func (s *Service) RecordView(ctx context.Context, ulid string) error {
	if _, err := s.repo.GetByULID(ctx, ulid); err != nil {
		return err
	}
	return s.repo.IncrementViewCount(ctx, ulid)
}

// LinkToProduct associates an asset with a product. A primary link demotes
// any previous primary image.
func (s *Service) LinkToProduct(ctx context.Context, productULID, assetULID string, isPrimary bool, sortOrder int, actor string) (*ProductLink, error) {
	asset, err := s.repo.GetByULID(ctx, assetULID)
	if err != nil {
		return nil, err
	}
	if isPrimary && asset.Type != TypeImage {
		return nil, fmt.Errorf("%w: only image assets can be a primary image", ErrInvalidInput)
	}

	id, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("generate ulid: %w", err)
	}

	link := ProductLink{
		ID:        id,
		ProductID: productULID,
		AssetID:   assetULID,
		IsPrimary: isPrimary,
		SortOrder: sortOrder,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.LinkProduct(ctx, link); err != nil {
		return nil, fmt.Errorf("link asset: %w", err)
	}
	if isPrimary {
		if err := s.repo.SetPrimaryImage(ctx, productULID, assetULID); err != nil {
			return nil, fmt.Errorf("set primary image: %w", err)
		}
	}

	s.recorder.RecordSuccess(ctx, audit.Entry{
		Action:     "asset.linked",
		Actor:      actor,
		EntityType: "product",
		EntityID:   productULID,
		Changes:    map[string]any{"asset_id": assetULID, "is_primary": isPrimary},
	})
	return &link, nil
}

func (s *Service) UnlinkFromProduct(ctx context.Context, productULID, assetULID string, actor string) error {
	if err := s.repo.UnlinkProduct(ctx, productULID, assetULID); err != nil {
		return err
	}
	s.recorder.RecordSuccess(ctx, audit.Entry{
		Action:     "asset.unlinked",
		Actor:      actor,
		EntityType: "product",
		EntityID:   productULID,
		Changes:    map[string]any{"asset_id": assetULID},
	})
	return nil
}

func (s *Service) ListProductAssets(ctx context.Context, productULID string) ([]ProductLink, error) {
	return s.repo.ListLinksForProduct(ctx, productULID)
}

// SetPrimaryImage promotes an existing link to primary, demoting the rest.
func (s *Service) SetPrimaryImage(ctx context.Context, productULID, assetULID string, actor string) error {
	asset, err := s.repo.GetByULID(ctx, assetULID)
	if err != nil {
		return err
	}
	if asset.Type != TypeImage {
		return fmt.Errorf("%w: only image assets can be a primary image", ErrInvalidInput)
	}
	if err := s.repo.SetPrimaryImage(ctx, productULID, assetULID); err != nil {
		return err
	}
	s.recorder.RecordSuccess(ctx, audit.Entry{
		Action:     "asset.primary_image_set",
		Actor:      actor,
		EntityType: "product",
		EntityID:   productULID,
		Changes:    map[string]any{"asset_id": assetULID},
	})
	return nil
}

// ProcessPending drains up to batchSize pending files: each is marked
// processing, images get their dimensions extracted, and the file ends up
// completed or failed. Returns the number of files handled.
func (s *Service) ProcessPending(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	files, err := s.repo.NextPendingFiles(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending files: %w", err)
	}

	processed := 0
	for _, file := range files {
		if err := s.repo.MarkFileProcessing(ctx, file.ID); err != nil {
			s.logger.Warn().Err(err).Str("file_id", file.ID).Msg("failed to claim pending file")
			continue
		}
		if err := s.processFile(ctx, file); err != nil {
			s.logger.Warn().Err(err).Str("file_id", file.ID).Msg("asset file processing failed")
			if failErr := s.repo.FailFile(ctx, file.ID, err.Error()); failErr != nil {
				s.logger.Error().Err(failErr).Str("file_id", file.ID).Msg("failed to record processing failure")
			}
			metrics.AssetFilesProcessed.WithLabelValues("failed").Inc()
		} else {
			metrics.AssetFilesProcessed.WithLabelValues("completed").Inc()
		}
		processed++
	}
	return processed, nil
}

func (s *Service) processFile(ctx context.Context, file File) error {
	asset, err := s.repo.GetByULID(ctx, file.AssetID)
	if err != nil {
		return fmt.Errorf("load asset: %w", err)
	}

	width, height := 0, 0
	if asset.Type == TypeImage {
		rc, err := s.blobs.Open(ctx, file.StoragePath)
		if err != nil {
			return fmt.Errorf("open content: %w", err)
		}
		cfg, _, err := image.DecodeConfig(rc)
		_ = rc.Close()
		if err != nil {
			return fmt.Errorf("decode image: %w", err)
		}
		width, height = cfg.Width, cfg.Height
	}

	if err := s.repo.CompleteFile(ctx, file.ID, width, height); err != nil {
		return fmt.Errorf("complete file: %w", err)
	}
	return nil
}
