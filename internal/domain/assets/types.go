package assets

import "time"

// Type classifies an asset by its MIME type.
type Type string

const (
	TypeImage    Type = "image"
	TypeVideo    Type = "video"
	TypeDocument Type = "document"
	TypeArchive  Type = "archive"
	TypeOther    Type = "other"
)

// FileStatus tracks an asset file through the processing pipeline.
type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusFailed     FileStatus = "failed"
)

// Asset is a registered digital file, addressed by its SHA-256 content hash.
type Asset struct {
	ID             string     `json:"id"`
	FileName       string     `json:"file_name"`
	FileHash       string     `json:"file_hash"`
	MIMEType       string     `json:"mime_type"`
	Type           Type       `json:"type"`
	SizeBytes      int64      `json:"size_bytes"`
	StoragePath    string     `json:"storage_path"`
	Title          string     `json:"title,omitempty"`
	AltText        string     `json:"alt_text,omitempty"`
	DownloadCount  int64      `json:"download_count"`
	ViewCount      int64      `json:"view_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// File is one processed version of an asset. Version 1 is the original
// upload; reprocessing appends higher versions.
type File struct {
	ID           string     `json:"id"`
	AssetID      string     `json:"asset_id"`
	Version      int        `json:"version"`
	StoragePath  string     `json:"storage_path"`
	Status       FileStatus `json:"status"`
	Width        int        `json:"width,omitempty"`
	Height       int        `json:"height,omitempty"`
	ProcessError string     `json:"process_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ProductLink associates an asset with a product. At most one link per
// product has IsPrimary set.
type ProductLink struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	AssetID   string    `json:"asset_id"`
	IsPrimary bool      `json:"is_primary"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
}

// Filters narrow asset listings.
type Filters struct {
	Type   Type
	Query  string
	Limit  int
	Offset int
}
