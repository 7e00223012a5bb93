package source

import (
	"context"
	"testing"

	"ListingConverter/internal/domain"
)

type stubScraper struct{ name string }

func (s stubScraper) Scrape(context.Context, string) (domain.Product, error) {
	return domain.Product{Title: s.name}, nil
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		url  string
		want domain.Marketplace
	}{
		{"https://www.amazon.com/dp/B09C5RG6KV", domain.MarketplaceAmazon},
		{"https://amzn.to/3xyz", domain.MarketplaceAmazon},
		{"https://www.AMAZON.co.uk/gp/product/B000", domain.MarketplaceAmazon},
		{"https://www.walmart.com/ip/123456", domain.MarketplaceWalmart},
	}

	for _, tc := range cases {
		got, err := Classify(tc.url)
		if err != nil {
			t.Fatalf("Classify(%q) error: %v", tc.url, err)
		}
		if got != tc.want {
			t.Fatalf("Classify(%q) = %s, want %s", tc.url, got, tc.want)
		}
	}
}

func TestClassifyUnsupported(t *testing.T) {
	t.Parallel()

	_, err := Classify("https://www.etsy.com/listing/1")
	if err == nil {
		t.Fatal("expected error for unsupported source")
	}
	if domain.KindOf(err) != domain.KindUnsupportedSource {
		t.Fatalf("unexpected kind: %s", domain.KindOf(err))
	}
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(domain.MarketplaceAmazon, stubScraper{name: "amazon"})

	scraper, tag, err := reg.Resolve("https://www.amazon.com/dp/B000")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if tag != domain.MarketplaceAmazon {
		t.Fatalf("unexpected tag: %s", tag)
	}
	product, _ := scraper.Scrape(context.Background(), "")
	if product.Title != "amazon" {
		t.Fatalf("resolved wrong scraper: %s", product.Title)
	}

	_, _, err = reg.Resolve("https://www.walmart.com/ip/1")
	if domain.KindOf(err) != domain.KindUnsupportedSource {
		t.Fatalf("expected unsupported source for unregistered walmart, got %v", err)
	}
}
