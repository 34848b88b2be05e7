package feeds

import "time"

// FeedType selects which dataset a feed exports.
type FeedType string

const (
	FeedTypeCatalog FeedType = "catalog"
	FeedTypeAssets  FeedType = "assets"
	FeedTypeFitment FeedType = "fitment"
	FeedTypePricing FeedType = "pricing"
)

// Format is the output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXML  Format = "xml"
)

// Frequency controls automatic scheduling. Manual feeds only run on demand.
type Frequency string

const (
	FrequencyManual  Frequency = "manual"
	FrequencyHourly  Frequency = "hourly"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyCron    Frequency = "cron"
)

// DeliveryMethod says how generated output reaches the customer.
type DeliveryMethod string

const (
	DeliveryDownload DeliveryMethod = "download"
	DeliveryEmail    DeliveryMethod = "email"
	DeliveryWebhook  DeliveryMethod = "webhook"
)

// GenerationStatus is the feed generation state machine:
// pending → generating → generated → delivering → completed | failed.
type GenerationStatus string

const (
	StatusPending    GenerationStatus = "pending"
	StatusGenerating GenerationStatus = "generating"
	StatusGenerated  GenerationStatus = "generated"
	StatusDelivering GenerationStatus = "delivering"
	StatusCompleted  GenerationStatus = "completed"
	StatusFailed     GenerationStatus = "failed"
)

// RowFilters narrow the dataset a feed exports.
type RowFilters struct {
	Brand      string `json:"brand,omitempty"`
	Category   string `json:"category,omitempty"`
	Tag        string `json:"tag,omitempty"`
	ActiveOnly bool   `json:"active_only,omitempty"`
}

// DataFeed is a customer-facing export configuration.
type DataFeed struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Slug            string            `json:"slug"`
	CustomerID      string            `json:"customer_id,omitempty"`
	Type            FeedType          `json:"type"`
	Format          Format            `json:"format"`
	Filters         RowFilters        `json:"filters"`
	IncludedFields  []string          `json:"included_fields,omitempty"`
	FieldMapping    map[string]string `json:"field_mapping,omitempty"`
	Frequency       Frequency         `json:"frequency"`
	CronExpression  string            `json:"cron_expression,omitempty"`
	ScheduleHour    int               `json:"schedule_hour"`
	ScheduleWeekday int               `json:"schedule_weekday"`
	ScheduleDay     int               `json:"schedule_day"`
	DeliveryMethod  DeliveryMethod    `json:"delivery_method"`
	DeliveryConfig  map[string]string `json:"delivery_config,omitempty"`
	IncludeImages   bool              `json:"include_images"`
	Compress        bool              `json:"compress"`
	IsActive        bool              `json:"is_active"`
	LastRunAt       *time.Time        `json:"last_run_at,omitempty"`
	NextRunAt       *time.Time        `json:"next_run_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Generation is one run of a feed. ID is a UUID so delivered files can be
// referenced externally without leaking sequence information.
type Generation struct {
	ID            string           `json:"id"`
	FeedID        string           `json:"feed_id"`
	Status        GenerationStatus `json:"status"`
	FilePath      string           `json:"file_path,omitempty"`
	FileSizeBytes int64            `json:"file_size_bytes,omitempty"`
	RowCount      int              `json:"row_count,omitempty"`
	Error         string           `json:"error,omitempty"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Row is one record of feed output. Values are pre-rendered strings; the
// generator only handles layout.
type Row map[string]string
