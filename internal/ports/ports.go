package ports

import (
	"context"
	"time"

	"ListingConverter/internal/domain"
)

// Scraper fetches a product page and extracts its data.
type Scraper interface {
	Scrape(ctx context.Context, url string) (domain.Product, error)
}

// PolicyChecker grades a product against brand/IP policy. It never fails.
type PolicyChecker interface {
	Check(product domain.Product) domain.PolicyResult
}

// Transformer builds a listing draft from a scraped product.
type Transformer interface {
	Transform(product domain.Product) (domain.ListingDraft, error)
}

// Pricer suggests sell prices and itemizes fees. It never fails.
type Pricer interface {
	Suggest(cost, targetMargin float64) float64
	Breakdown(cost, sellPrice float64, category string) domain.PriceBreakdown
}

// Publisher pushes a draft to the target marketplace.
type Publisher interface {
	Publish(ctx context.Context, draft domain.ListingDraft) (domain.PublishResult, error)
}

// ConversionRecord is the history row stored per finished item.
type ConversionRecord struct {
	ActorID           string
	SourceURL         string
	Source            domain.Marketplace
	SourceProductID   string
	Title             string
	Status            string
	Step              string
	SellPrice         float64
	NetProfit         float64
	Violations        []string
	MarketplaceItemID string
	ErrorMessage      string
	StartedAt         time.Time
	CompletedAt       time.Time
}

// ConversionFilter narrows a history query.
type ConversionFilter struct {
	ActorID string
	Status  string
	Limit   uint64
	Offset  uint64
}

// ConversionRepository persists conversion history.
type ConversionRepository interface {
	SaveConversion(ctx context.Context, record ConversionRecord) error
	ListConversions(ctx context.Context, filter ConversionFilter) ([]ConversionRecord, error)
}

// Notifier sends a short batch summary to an outbound channel.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when recurring housekeeping executes.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
