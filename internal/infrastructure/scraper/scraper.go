package scraper

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"ListingConverter/internal/domain"
	"ListingConverter/internal/ports"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"

var (
	priceExpr     = regexp.MustCompile(`([\d,]+\.?\d*)`)
	botIndicators = []string{"captcha", "robot check", "automated access", "please verify", "access denied"}
)

// PageScraper fetches a product page and extracts fields with a selector set.
type PageScraper struct {
	source    domain.Marketplace
	selectors SelectorSet
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	now       func() time.Time
}

var _ ports.Scraper = (*PageScraper)(nil)

// Option configures a PageScraper.
type Option func(*PageScraper)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *PageScraper) {
		if c != nil {
			s.client = c
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *PageScraper) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(s *PageScraper) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// New builds a scraper for source using its built-in selector set.
func New(source domain.Marketplace, opts ...Option) (*PageScraper, error) {
	selectors, ok := SelectorsFor(source)
	if !ok {
		return nil, fmt.Errorf("no selector set for %s", source)
	}
	return NewWithSelectors(source, selectors, opts...), nil
}

// NewWithSelectors builds a scraper with a custom selector set.
func NewWithSelectors(source domain.Marketplace, selectors SelectorSet, opts ...Option) *PageScraper {
	s := &PageScraper{
		source:    source,
		selectors: selectors,
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Inf, 1),
		userAgent: defaultUserAgent,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Scrape downloads pageURL and extracts the product.
func (s *PageScraper) Scrape(ctx context.Context, pageURL string) (domain.Product, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return domain.Product{}, domain.ScrapingError("rate limiter", err)
	}

	doc, err := s.fetchDocument(ctx, pageURL)
	if err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		Title:        firstText(doc, s.selectors.Title),
		Price:        s.extractPrice(doc),
		Currency:     "USD",
		Brand:        firstText(doc, s.selectors.Brand),
		ImageURLs:    extractImages(doc, s.selectors.Images),
		Description:  extractDescription(doc, s.selectors.Description),
		Category:     extractCategory(doc, s.selectors.Category),
		Availability: firstText(doc, s.selectors.Availability),
		Source:       s.source,
		SourceURL:    pageURL,
		ScrapedAt:    s.now().UTC(),
	}
	if s.selectors.CleanBrand != nil {
		product.Brand = s.selectors.CleanBrand(product.Brand)
	}
	if s.selectors.ProductID != nil {
		if m := s.selectors.ProductID.FindStringSubmatch(pageURL); len(m) == 2 {
			product.SourceProductID = m[1]
		}
	}

	if product.Title == "" {
		if looksBlocked(doc) {
			return domain.Product{}, domain.ScrapingError("captcha detected on "+string(s.source)+" page", nil)
		}
		return domain.Product{}, domain.ScrapingError("product title not found", nil)
	}
	if product.Price <= 0 {
		return domain.Product{}, domain.ScrapingError("product price not found", nil)
	}
	return product, nil
}

func (s *PageScraper) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, domain.ScrapingError("build request", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, domain.ScrapingError("request page", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.ScrapingError(fmt.Sprintf("%s returned %s", s.source, resp.Status), nil)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, domain.ScrapingError("parse page", err)
	}
	return doc, nil
}

func (s *PageScraper) extractPrice(doc *goquery.Document) float64 {
	for _, selector := range s.selectors.Price {
		var price float64
		doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			if content, ok := sel.Attr("content"); ok {
				if v, err := strconv.ParseFloat(strings.TrimSpace(content), 64); err == nil && v > 0 {
					price = v
					return false
				}
			}
			if v := parsePrice(sel.Text()); v > 0 {
				price = v
				return false
			}
			return true
		})
		if price > 0 {
			return price
		}
	}
	return 0
}

func parsePrice(text string) float64 {
	match := priceExpr.FindString(strings.TrimSpace(text))
	if match == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}

func firstText(doc *goquery.Document, selectors []string) string {
	for _, selector := range selectors {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if text != "" {
			return strings.Join(strings.Fields(text), " ")
		}
	}
	return ""
}

func extractImages(doc *goquery.Document, selectors []string) []string {
	seen := map[string]struct{}{}
	var images []string
	for _, selector := range selectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			for _, attr := range []string{"data-old-hires", "src"} {
				src, ok := sel.Attr(attr)
				src = strings.TrimSpace(src)
				if !ok || src == "" || strings.HasPrefix(src, "data:") {
					continue
				}
				if _, dup := seen[src]; !dup {
					seen[src] = struct{}{}
					images = append(images, src)
				}
				break
			}
		})
	}
	return images
}

func extractDescription(doc *goquery.Document, selectors []string) string {
	for _, selector := range selectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		var bullets []string
		sel.Find("li").Each(func(_ int, li *goquery.Selection) {
			if text := strings.TrimSpace(li.Text()); text != "" {
				bullets = append(bullets, strings.Join(strings.Fields(text), " "))
			}
		})
		if len(bullets) > 0 {
			return strings.Join(bullets, "\n")
		}
		if text := strings.TrimSpace(sel.Text()); text != "" {
			return strings.Join(strings.Fields(text), " ")
		}
	}
	return ""
}

func extractCategory(doc *goquery.Document, selectors []string) string {
	for _, selector := range selectors {
		var parts []string
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			if text := strings.TrimSpace(sel.Text()); text != "" {
				parts = append(parts, text)
			}
		})
		if len(parts) > 0 {
			return strings.Join(parts, " > ")
		}
	}
	return ""
}

func looksBlocked(doc *goquery.Document) bool {
	text := strings.ToLower(doc.Text())
	for _, marker := range botIndicators {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
