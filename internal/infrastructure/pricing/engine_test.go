package pricing

import "testing"

func TestSuggest(t *testing.T) {
	t.Parallel()

	e := NewEngine(Schedule{}, nil)
	if got := e.Suggest(20, 0.20); got != 39.62 {
		t.Fatalf("Suggest(20, 0.20) = %v, want 39.62", got)
	}
	if got, want := e.Suggest(20, 0.90), e.BreakEven(20); got != want {
		t.Fatalf("unreachable margin must fall back to break-even: got %v want %v", got, want)
	}
	if got := e.BreakEven(20); got != 30.17 {
		t.Fatalf("BreakEven(20) = %v, want 30.17", got)
	}
}

func TestBreakdown(t *testing.T) {
	t.Parallel()

	e := NewEngine(Schedule{}, nil)
	b := e.Breakdown(20, 99.99, "")

	if b.SellPrice != 99.99 || b.Cost != 20 {
		t.Fatalf("unexpected inputs echoed: %+v", b)
	}
	want := map[string]float64{FeeMarketplace: 13.25, FeePayment: 3.20, FeeShipping: 5}
	for _, f := range b.Fees {
		if want[f.Name] != f.Amount {
			t.Fatalf("fee %s = %v, want %v", f.Name, f.Amount, want[f.Name])
		}
	}
	if b.NetProfit != 58.54 || b.MarginPct != 58.55 {
		t.Fatalf("profit=%v margin=%v, want 58.54 / 58.55", b.NetProfit, b.MarginPct)
	}
	if !b.Profitable() {
		t.Fatal("expected a profitable breakdown")
	}
}

func TestBreakdownZeroPrice(t *testing.T) {
	t.Parallel()

	b := NewEngine(Schedule{}, nil).Breakdown(12, 0, "")
	if b.NetProfit != -12 || b.MarginPct != -100 || len(b.Fees) != 0 {
		t.Fatalf("unexpected zero-price breakdown: %+v", b)
	}
}

func TestSuggestedPriceHitsTargetMargin(t *testing.T) {
	t.Parallel()

	e := NewEngine(Schedule{}, nil)
	price := e.Suggest(35, 0.25)
	b := e.Breakdown(35, price, "")
	if b.MarginPct < 24.9 || b.MarginPct > 25.1 {
		t.Fatalf("suggested price %v yields margin %v, want about 25", price, b.MarginPct)
	}
}

func TestFeeRate(t *testing.T) {
	t.Parallel()

	e := NewEngine(Schedule{}, nil)
	cases := map[string]float64{
		"":                     DefaultFeeRate,
		"Books":                0.1455,
		"Jewelry & Watches":    0.1550,
		"Musical Instruments":  0.0635,
		"Home & Garden":        0.1325,
		"Something Else":       DefaultFeeRate,
	}
	for category, want := range cases {
		if got := e.FeeRate(category); got != want {
			t.Fatalf("FeeRate(%q) = %v, want %v", category, got, want)
		}
	}

	custom := NewEngine(Schedule{DefaultRate: 0.10, CategoryRates: map[string]float64{"toys": 0.05}}, nil)
	if custom.FeeRate("Toys & Games") != 0.05 || custom.FeeRate("Books") != 0.10 {
		t.Fatal("custom schedule not applied")
	}
}
