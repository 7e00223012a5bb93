package usecase

import (
	"encoding/json"
	"testing"

	"ListingConverter/internal/domain"
)

func TestItemResultJSONKeys(t *testing.T) {
	t.Parallel()

	res := ItemResult{
		SourceURL: "https://www.amazon.com/dp/B0KEYS",
		Status:    StatusCompleted,
		Step:      StepComplete,
		Product:   &domain.Product{Title: "Kettle"},
		Policy:    &domain.PolicyResult{Compliant: true, RiskLevel: domain.RiskClear},
		Draft:     &domain.ListingDraft{Title: "Kettle"},
		Price:     &domain.PriceBreakdown{Cost: 10, SellPrice: 20},
		Publish:   &domain.PublishResult{MarketplaceItemID: "123"},
	}
	raw, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]json.RawMessage
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"url", "status", "step", "product", "compliance", "draft", "profit", "listing", "error"} {
		if _, ok := got[key]; !ok {
			t.Errorf("missing key %q in %s", key, raw)
		}
	}
	for _, key := range []string{"policy", "price"} {
		if _, ok := got[key]; ok {
			t.Errorf("unexpected key %q in %s", key, raw)
		}
	}
}
