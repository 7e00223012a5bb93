package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ListingConverter/internal/domain"
	"ListingConverter/internal/ports"
)

// Client publishes listing drafts to the target storefront's REST API.
type Client struct {
	endpoint string
	token    string
	siteURL  string
	http     *http.Client
	now      func() time.Time
}

var _ ports.Publisher = (*Client)(nil)

// NewClient creates a reusable HTTP client. siteURL builds canonical item
// links when the API does not return one.
func NewClient(endpoint, token, siteURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		siteURL:  strings.TrimRight(siteURL, "/"),
		http:     httpClient,
		now:      time.Now,
	}
}

type listingRequest struct {
	SKU         string   `json:"sku"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Currency    string   `json:"currency"`
	Quantity    int      `json:"quantity"`
	Condition   string   `json:"condition"`
	CategoryID  string   `json:"category_id,omitempty"`
	ImageURLs   []string `json:"image_urls"`
}

type listingResponse struct {
	ItemID string  `json:"item_id"`
	Status string  `json:"status"`
	URL    string  `json:"url"`
	Fees   float64 `json:"fees"`
}

type apiError struct {
	Message string `json:"message"`
}

// Publish creates the listing. Credential failures surface as AuthError,
// every other rejection as PublishError.
func (c *Client) Publish(ctx context.Context, draft domain.ListingDraft) (domain.PublishResult, error) {
	if c.token == "" {
		return domain.PublishResult{}, domain.AuthError("marketplace token is not configured", nil)
	}

	payload := listingRequest{
		SKU:         draft.SKU,
		Title:       draft.Title,
		Description: draft.DescriptionHTML,
		Price:       draft.Price,
		Currency:    draft.Currency,
		Quantity:    draft.Quantity,
		Condition:   draft.Condition,
		CategoryID:  draft.CategoryID,
		ImageURLs:   draft.ImageURLs,
	}

	var resp listingResponse
	if err := c.post(ctx, "/listings", payload, &resp); err != nil {
		return domain.PublishResult{}, err
	}
	if resp.ItemID == "" {
		return domain.PublishResult{}, domain.PublishError("marketplace response has no item id", nil)
	}

	result := domain.PublishResult{
		MarketplaceItemID: resp.ItemID,
		Status:            toStatus(resp.Status),
		URL:               resp.URL,
		FeeEstimate:       resp.Fees,
		CreatedAt:         c.now().UTC(),
	}
	if result.URL == "" && c.siteURL != "" {
		result.URL = c.siteURL + "/itm/" + resp.ItemID
	}
	return result, nil
}

func toStatus(s string) domain.ListingStatus {
	switch strings.ToLower(s) {
	case "active", "published", "":
		return domain.ListingActive
	case "draft":
		return domain.ListingDraftOnly
	case "ended":
		return domain.ListingEnded
	default:
		return domain.ListingError
	}
}

func (c *Client) post(ctx context.Context, path string, payload, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.PublishError("marshal payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return domain.PublishError("new request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.PublishError("do request", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.AuthError(fmt.Sprintf("marketplace rejected credentials: %s", resp.Status), nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return domain.PublishError(fmt.Sprintf("marketplace returned %s%s", resp.Status, errorDetail(resp.Body)), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return domain.PublishError("decode response", err)
	}
	return nil
}

func errorDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4<<10))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var e apiError
	if json.Unmarshal(raw, &e) == nil && e.Message != "" {
		return ": " + e.Message
	}
	return ": " + strings.TrimSpace(string(raw))
}
