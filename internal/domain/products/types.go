package products

import "time"

// Brand is a product manufacturer or house brand.
type Brand struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Website   string    `json:"website,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Category is a node in the catalog taxonomy. ParentID is empty for roots.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	ParentID  string    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Product is a catalog item. All money fields are integer cents; callers
// format for display.
type Product struct {
	ID               string     `json:"id"`
	SKU              string     `json:"sku"`
	PartNumber       string     `json:"part_number"`
	Title            string     `json:"title"`
	ShortDescription string     `json:"short_description,omitempty"`
	LongDescription  string     `json:"long_description,omitempty"`
	BrandID          string     `json:"brand_id,omitempty"`
	CategoryID       string     `json:"category_id,omitempty"`
	UPC              string     `json:"upc,omitempty"`
	CountryOfOrigin  string     `json:"country_of_origin,omitempty"`
	WeightGrams      int64      `json:"weight_grams,omitempty"`
	LengthMM         int64      `json:"length_mm,omitempty"`
	WidthMM          int64      `json:"width_mm,omitempty"`
	HeightMM         int64      `json:"height_mm,omitempty"`
	MSRPCents        int64      `json:"msrp_cents,omitempty"`
	MAPCents         int64      `json:"map_cents,omitempty"`
	JobberCents      int64      `json:"jobber_cents,omitempty"`
	CostCents        int64      `json:"cost_cents,omitempty"`
	IsActive         bool       `json:"is_active"`
	IsFeatured       bool       `json:"is_featured"`
	IsHazmat         bool       `json:"is_hazmat"`
	IsOversized      bool       `json:"is_oversized"`
	LaunchDate       *time.Time `json:"launch_date,omitempty"`
	DiscontinueDate  *time.Time `json:"discontinue_date,omitempty"`
	Keywords         []string   `json:"keywords,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Fitment links a product to a vehicle application over an inclusive year range.
type Fitment struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Make      string    `json:"make"`
	Model     string    `json:"model"`
	YearStart int       `json:"year_start"`
	YearEnd   int       `json:"year_end"`
	Engine    string    `json:"engine,omitempty"`
	Position  string    `json:"position,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CustomerPrice is a customer-specific price override with a validity window.
// A nil ValidFrom/ValidUntil means unbounded on that side.
type CustomerPrice struct {
	ID         string     `json:"id"`
	ProductID  string     `json:"product_id"`
	CustomerID string     `json:"customer_id"`
	PriceCents int64      `json:"price_cents"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Filters narrow product listings. Empty string / nil means "no filter".
type Filters struct {
	Query    string
	Brand    string
	Category string
	Tag      string
	Active   *bool
	Featured *bool
}

// Pagination carries cursor pagination parameters for product listings.
type Pagination struct {
	Limit int
	After string
}

// ListResult is a page of products plus the cursor for the next page.
// NextCursor is empty on the last page.
type ListResult struct {
	Products   []Product
	NextCursor string
}
