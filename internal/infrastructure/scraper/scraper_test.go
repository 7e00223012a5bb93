package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ListingConverter/internal/domain"
)

const amazonPage = `
<html><body>
  <span id="productTitle">  Acme   Stainless Water Bottle 32oz </span>
  <a id="bylineInfo">Visit the Acme Store</a>
  <div id="corePrice_feature_div"><span class="a-offscreen">$1,024.50</span></div>
  <div id="imgTagWrapperId"><img src="https://m.media-amazon.com/images/I/a.jpg" data-old-hires="https://m.media-amazon.com/images/I/a_SL1500_.jpg"></div>
  <div id="altImages"><img src="https://m.media-amazon.com/images/I/b.jpg"><img src="data:image/gif;base64,xx"></div>
  <div id="feature-bullets"><ul>
    <li><span class="a-list-item">Keeps drinks cold for 24 hours</span></li>
    <li><span class="a-list-item">Leak proof lid</span></li>
  </ul></div>
  <div id="wayfinding-breadcrumbs_feature_div"><a>Sports</a><a>Water Bottles</a></div>
  <div id="availability"><span>In Stock</span></div>
</body></html>`

const walmartPage = `
<html><body>
  <h1 itemprop="name">Mainstays Desk Lamp</h1>
  <span itemprop="price" content="12.97">$12.97</span>
  <a itemprop="brand">Mainstays</a>
  <div data-testid="hero-image"><img src="https://i5.walmartimages.com/lamp.jpg"></div>
  <div data-testid="product-description">A simple lamp.</div>
  <nav class="breadcrumb"><a>Home</a><a>Lighting</a></nav>
</body></html>`

func newPageServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "TestAgent/1.0" {
			t.Errorf("unexpected user agent: %q", r.Header.Get("User-Agent"))
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestScrapeAmazon(t *testing.T) {
	t.Parallel()

	srv := newPageServer(t, http.StatusOK, amazonPage)
	s, err := New(domain.MarketplaceAmazon, WithHTTPClient(srv.Client()), WithUserAgent("TestAgent/1.0"), WithRateLimit(100))
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}

	p, err := s.Scrape(context.Background(), srv.URL+"/Acme-Bottle/dp/B0TEST1234?th=1")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}

	if p.Title != "Acme Stainless Water Bottle 32oz" {
		t.Fatalf("unexpected title: %q", p.Title)
	}
	if p.Brand != "Acme" {
		t.Fatalf("unexpected brand: %q", p.Brand)
	}
	if p.Price != 1024.50 {
		t.Fatalf("unexpected price: %v", p.Price)
	}
	if p.SourceProductID != "B0TEST1234" || p.Source != domain.MarketplaceAmazon {
		t.Fatalf("unexpected identity: %q %q", p.SourceProductID, p.Source)
	}
	if len(p.ImageURLs) != 2 || !strings.HasSuffix(p.ImageURLs[0], "a_SL1500_.jpg") {
		t.Fatalf("unexpected images: %v", p.ImageURLs)
	}
	if p.Description != "Keeps drinks cold for 24 hours\nLeak proof lid" {
		t.Fatalf("unexpected description: %q", p.Description)
	}
	if p.Category != "Sports > Water Bottles" {
		t.Fatalf("unexpected category: %q", p.Category)
	}
	if p.Availability != "In Stock" {
		t.Fatalf("unexpected availability: %q", p.Availability)
	}
}

func TestScrapeWalmart(t *testing.T) {
	t.Parallel()

	srv := newPageServer(t, http.StatusOK, walmartPage)
	s, err := New(domain.MarketplaceWalmart, WithHTTPClient(srv.Client()), WithUserAgent("TestAgent/1.0"))
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}

	p, err := s.Scrape(context.Background(), srv.URL+"/ip/Mainstays-Desk-Lamp/123456789")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if p.Title != "Mainstays Desk Lamp" || p.Price != 12.97 || p.Brand != "Mainstays" {
		t.Fatalf("unexpected product: %+v", p)
	}
	if p.SourceProductID != "123456789" {
		t.Fatalf("unexpected id: %q", p.SourceProductID)
	}
	if p.Category != "Home > Lighting" {
		t.Fatalf("unexpected category: %q", p.Category)
	}
}

func TestScrapeFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{name: "http status", status: http.StatusServiceUnavailable, body: "", wantMsg: "503"},
		{name: "captcha", status: http.StatusOK, body: "<html><body>Enter the characters you see below. Type the CAPTCHA.</body></html>", wantMsg: "captcha detected"},
		{name: "no title", status: http.StatusOK, body: "<html><body><p>nothing</p></body></html>", wantMsg: "title not found"},
		{name: "no price", status: http.StatusOK, body: `<html><body><span id="productTitle">Thing</span></body></html>`, wantMsg: "price not found"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := newPageServer(t, tc.status, tc.body)
			s, _ := New(domain.MarketplaceAmazon, WithHTTPClient(srv.Client()), WithUserAgent("TestAgent/1.0"))

			_, err := s.Scrape(context.Background(), srv.URL+"/dp/B0TEST1234")
			if err == nil {
				t.Fatal("expected error")
			}
			if domain.KindOf(err) != domain.KindScraping {
				t.Fatalf("expected scraping error, got %v (%s)", err, domain.KindOf(err))
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("error %q does not mention %q", err, tc.wantMsg)
			}
		})
	}
}

func TestNewUnknownSource(t *testing.T) {
	t.Parallel()

	if _, err := New(domain.MarketplaceEbay); err == nil {
		t.Fatal("expected error for a source without selectors")
	}
}

func TestCleanAmazonBrand(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Visit the Acme Store": "Acme",
		"Brand: Zeta":          "Zeta",
		"  Plain ":             "Plain",
	}
	for in, want := range cases {
		if got := cleanAmazonBrand(in); got != want {
			t.Fatalf("cleanAmazonBrand(%q) = %q, want %q", in, got, want)
		}
	}
}
