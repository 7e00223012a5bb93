package source

import (
	"net/url"
	"strings"

	"ListingConverter/internal/domain"
	"ListingConverter/internal/ports"
)

// Classify maps a product URL to the marketplace it belongs to.
func Classify(rawURL string) (domain.Marketplace, error) {
	host := strings.ToLower(rawURL)
	if parsed, err := url.Parse(strings.TrimSpace(rawURL)); err == nil && parsed.Host != "" {
		host = strings.ToLower(parsed.Host)
	}

	switch {
	case strings.Contains(host, "amazon.") || strings.Contains(host, "amzn."):
		return domain.MarketplaceAmazon, nil
	case strings.Contains(host, "walmart."):
		return domain.MarketplaceWalmart, nil
	default:
		return "", domain.UnsupportedSource(rawURL)
	}
}

// Registry keeps a mapping from marketplace tags to their scrapers.
type Registry struct {
	scrapers map[domain.Marketplace]ports.Scraper
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scrapers: map[domain.Marketplace]ports.Scraper{}}
}

// Register adds or replaces the scraper for a marketplace.
func (r *Registry) Register(tag domain.Marketplace, scraper ports.Scraper) {
	if r.scrapers == nil {
		r.scrapers = map[domain.Marketplace]ports.Scraper{}
	}
	r.scrapers[tag] = scraper
}

// Resolve classifies the URL and returns the scraper registered for it.
func (r *Registry) Resolve(rawURL string) (ports.Scraper, domain.Marketplace, error) {
	tag, err := Classify(rawURL)
	if err != nil {
		return nil, "", err
	}
	if scraper, ok := r.scrapers[tag]; ok {
		return scraper, tag, nil
	}
	return nil, tag, domain.UnsupportedSource(rawURL)
}

// Supported lists the registered marketplace tags.
func (r *Registry) Supported() []domain.Marketplace {
	tags := make([]domain.Marketplace, 0, len(r.scrapers))
	for tag := range r.scrapers {
		tags = append(tags, tag)
	}
	return tags
}
