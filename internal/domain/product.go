package domain

import "time"

// Marketplace tags a source or target storefront.
type Marketplace string

const (
	MarketplaceAmazon  Marketplace = "amazon"
	MarketplaceWalmart Marketplace = "walmart"
	MarketplaceEbay    Marketplace = "ebay"
)

// Product is the page data a scraper extracts from a source marketplace.
type Product struct {
	Title           string      `json:"title"`
	Price           float64     `json:"price"`
	Currency        string      `json:"currency"`
	Brand           string      `json:"brand"`
	ImageURLs       []string    `json:"image_urls"`
	Description     string      `json:"description"`
	Category        string      `json:"category"`
	Availability    string      `json:"availability,omitempty"`
	Source          Marketplace `json:"source_marketplace"`
	SourceURL       string      `json:"source_url"`
	SourceProductID string      `json:"source_product_id"`
	ScrapedAt       time.Time   `json:"scraped_at"`
}

// RiskLevel grades a policy check outcome. Only RiskBlocked stops the pipeline.
type RiskLevel string

const (
	RiskClear   RiskLevel = "clear"
	RiskWarning RiskLevel = "warning"
	RiskBlocked RiskLevel = "blocked"
)

// PolicyResult is the brand/IP policy verdict for a product.
type PolicyResult struct {
	Compliant  bool      `json:"is_compliant"`
	RiskLevel  RiskLevel `json:"risk_level"`
	Violations []string  `json:"violations"`
	Brand      string    `json:"brand"`
	CheckedAt  time.Time `json:"checked_at"`
}

// Listing limits enforced by the target storefront.
const (
	MaxTitleLength = 80
	MaxImages      = 12
)

// ListingDraft is a listing ready to be published.
type ListingDraft struct {
	Title           string      `json:"title"`
	DescriptionHTML string      `json:"description_html"`
	DescriptionText string      `json:"description_text"`
	Price           float64     `json:"price"`
	Currency        string      `json:"currency"`
	ImageURLs       []string    `json:"image_urls"`
	CategoryID      string      `json:"category_id,omitempty"`
	Condition       string      `json:"condition"`
	SKU             string      `json:"sku"`
	Quantity        int         `json:"quantity"`
	Target          Marketplace `json:"target_marketplace"`
	SourceProductID string      `json:"source_product_id"`
	Source          Marketplace `json:"source_marketplace,omitempty"`
}

// Fee is a single line of the fee breakdown.
type Fee struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// PriceBreakdown itemizes fees and margin for a sell price.
type PriceBreakdown struct {
	Cost      float64 `json:"cost"`
	SellPrice float64 `json:"sell_price"`
	Fees      []Fee   `json:"fees"`
	NetProfit float64 `json:"profit"`
	MarginPct float64 `json:"margin_pct"`
}

// TotalFees sums every fee line.
func (p PriceBreakdown) TotalFees() float64 {
	var total float64
	for _, fee := range p.Fees {
		total += fee.Amount
	}
	return total
}

// Profitable reports whether the sell price clears cost and fees.
func (p PriceBreakdown) Profitable() bool {
	return p.NetProfit > 0
}

// ListingStatus is the state of a listing on the target marketplace.
type ListingStatus string

const (
	ListingDraftOnly ListingStatus = "draft"
	ListingActive    ListingStatus = "active"
	ListingEnded     ListingStatus = "ended"
	ListingError     ListingStatus = "error"
)

// PublishResult describes the outcome of publishing a draft.
type PublishResult struct {
	MarketplaceItemID string        `json:"marketplace_item_id"`
	Status            ListingStatus `json:"status"`
	URL               string        `json:"url"`
	FeeEstimate       float64       `json:"fees_estimate"`
	CreatedAt         time.Time     `json:"created_at"`
}
