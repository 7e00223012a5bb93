package scraper

import (
	"regexp"
	"strings"

	"ListingConverter/internal/domain"
)

// SelectorSet lists CSS selectors per product field, tried in order.
type SelectorSet struct {
	Title        []string
	Price        []string
	Brand        []string
	Images       []string
	Description  []string
	Category     []string
	Availability []string
	// ProductID extracts the marketplace product identifier from the URL.
	ProductID *regexp.Regexp
	// CleanBrand normalizes byline text such as "Visit the Acme Store".
	CleanBrand func(string) string
}

var amazonSelectors = SelectorSet{
	Title: []string{"#productTitle", "span#title", "#title_feature_div span", "h1#title span"},
	Price: []string{
		"#priceblock_ourprice",
		"#priceblock_dealprice",
		"#corePrice_feature_div .a-offscreen",
		"#corePriceDisplay_desktop_feature_div .a-offscreen",
		".a-price .a-offscreen",
	},
	Brand:        []string{"#bylineInfo", "a#brand", "#brand"},
	Images:       []string{"#imgTagWrapperId img", "#landingImage", "#imgBlkFront", "#altImages img"},
	Description:  []string{"#feature-bullets", "#productDescription", "#aplus_feature_div"},
	Category:     []string{"#wayfinding-breadcrumbs_feature_div a"},
	Availability: []string{"#availability span", "#availability"},
	ProductID:    regexp.MustCompile(`/(?:dp|gp/product)/([A-Z0-9]{10})`),
	CleanBrand:   cleanAmazonBrand,
}

var walmartSelectors = SelectorSet{
	Title: []string{"h1[itemprop='name']", "#main-title", "h1.prod-ProductTitle", "[data-testid='product-title']", "h1"},
	Price: []string{
		"[itemprop='price']",
		"[data-testid='price-wrap'] .f2",
		"span.price-group",
		".price-characteristic",
		"[data-automation-id='product-price'] .f2",
	},
	Brand: []string{"a[itemprop='brand']", "[data-testid='product-brand']", ".prod-brandName a", "span.brand"},
	Images: []string{
		"[data-testid='hero-image'] img",
		".prod-HeroImage img",
		"img.prod-hero-image",
		"[data-testid='media-thumbnail'] img",
	},
	Description: []string{
		"[data-testid='product-description']",
		".about-desc .about-product-description",
		".prod-ProductDescription",
		"#product-description-section",
	},
	Category:  []string{"[data-testid='breadcrumb'] a", ".breadcrumb a", "nav.breadcrumb a"},
	ProductID: regexp.MustCompile(`/ip/(?:[^/]+/)?(\d+)`),
}

// SelectorsFor returns the built-in selector set of a source marketplace.
func SelectorsFor(source domain.Marketplace) (SelectorSet, bool) {
	switch source {
	case domain.MarketplaceAmazon:
		return amazonSelectors, true
	case domain.MarketplaceWalmart:
		return walmartSelectors, true
	default:
		return SelectorSet{}, false
	}
}

func cleanAmazonBrand(text string) string {
	text = strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(text, "Visit the ") && strings.HasSuffix(text, " Store"):
		text = strings.TrimSuffix(strings.TrimPrefix(text, "Visit the "), " Store")
	case strings.HasPrefix(text, "Brand:"):
		text = strings.TrimPrefix(text, "Brand:")
	}
	return strings.TrimSpace(text)
}
