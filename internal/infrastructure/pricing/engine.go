package pricing

import (
	"log/slog"
	"math"
	"sort"
	"strings"

	"ListingConverter/internal/domain"
	"ListingConverter/internal/ports"
)

// Default fee schedule of the target storefront.
const (
	DefaultFeeRate      = 0.1325
	PaymentRate         = 0.029
	PaymentFixed        = 0.30
	DefaultShippingCost = 5.00
)

// DefaultCategoryRates overrides the final value fee for specific categories.
var DefaultCategoryRates = map[string]float64{
	"books":               0.1455,
	"clothing":            0.1325,
	"electronics":         0.1325,
	"collectibles":        0.1325,
	"home_garden":         0.1325,
	"sporting_goods":      0.1325,
	"toys":                0.1325,
	"jewelry":             0.1550,
	"musical_instruments": 0.0635,
	"business_industrial": 0.0525,
}

// Fee line names.
const (
	FeeMarketplace = "final_value_fee"
	FeePayment     = "payment_fee"
	FeeShipping    = "shipping"
)

// Schedule configures the engine. Zero values fall back to the defaults.
type Schedule struct {
	DefaultRate   float64
	CategoryRates map[string]float64
	PaymentRate   float64
	PaymentFixed  float64
	Shipping      float64
}

type categoryRate struct {
	key  string
	rate float64
}

// Engine computes fees, margins and suggested prices.
type Engine struct {
	defaultRate  float64
	categories   []categoryRate
	paymentRate  float64
	paymentFixed float64
	shipping     float64
	logger       *slog.Logger
}

var _ ports.Pricer = (*Engine)(nil)

// NewEngine builds an engine from schedule.
func NewEngine(schedule Schedule, logger *slog.Logger) *Engine {
	e := &Engine{
		defaultRate:  orDefault(schedule.DefaultRate, DefaultFeeRate),
		paymentRate:  orDefault(schedule.PaymentRate, PaymentRate),
		paymentFixed: orDefault(schedule.PaymentFixed, PaymentFixed),
		shipping:     orDefault(schedule.Shipping, DefaultShippingCost),
		logger:       logger,
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}

	rates := schedule.CategoryRates
	if rates == nil {
		rates = DefaultCategoryRates
	}
	for key, rate := range rates {
		e.categories = append(e.categories, categoryRate{key: key, rate: rate})
	}
	// Longest key first so "home_garden" wins over shorter overlapping keys.
	sort.Slice(e.categories, func(i, j int) bool {
		if len(e.categories[i].key) != len(e.categories[j].key) {
			return len(e.categories[i].key) > len(e.categories[j].key)
		}
		return e.categories[i].key < e.categories[j].key
	})
	return e
}

// FeeRate returns the final value fee rate applied to category.
func (e *Engine) FeeRate(category string) float64 {
	if category == "" {
		return e.defaultRate
	}
	normalized := strings.ToLower(category)
	normalized = strings.ReplaceAll(normalized, "&", "")
	normalized = strings.Join(strings.Fields(normalized), "_")
	for _, c := range e.categories {
		if strings.Contains(normalized, c.key) {
			return c.rate
		}
	}
	return e.defaultRate
}

// Suggest returns the price that yields targetMargin after default fees and
// shipping. An unreachable margin falls back to the break-even price.
func (e *Engine) Suggest(cost, targetMargin float64) float64 {
	denominator := 1 - e.defaultRate - e.paymentRate - targetMargin
	if denominator <= 0 {
		e.logger.Warn("target margin unreachable, using break-even price", "target_margin", targetMargin)
		return e.BreakEven(cost)
	}
	return round2((cost + e.shipping + e.paymentFixed) / denominator)
}

// BreakEven returns the lowest price with zero profit.
func (e *Engine) BreakEven(cost float64) float64 {
	denominator := 1 - e.defaultRate - e.paymentRate
	if denominator <= 0 {
		return cost * 2
	}
	return round2((cost + e.shipping + e.paymentFixed) / denominator)
}

// Breakdown itemizes fees and profit for sellPrice.
func (e *Engine) Breakdown(cost, sellPrice float64, category string) domain.PriceBreakdown {
	if sellPrice <= 0 {
		margin := 0.0
		if cost > 0 {
			margin = -100
		}
		return domain.PriceBreakdown{Cost: cost, SellPrice: sellPrice, Fees: []domain.Fee{}, NetProfit: -cost, MarginPct: margin}
	}

	fees := []domain.Fee{
		{Name: FeeMarketplace, Amount: round2(sellPrice * e.FeeRate(category))},
		{Name: FeePayment, Amount: round2(sellPrice*e.paymentRate + e.paymentFixed)},
		{Name: FeeShipping, Amount: e.shipping},
	}
	b := domain.PriceBreakdown{Cost: cost, SellPrice: sellPrice, Fees: fees}
	b.NetProfit = round2(sellPrice - cost - b.TotalFees())
	b.MarginPct = round2(b.NetProfit / sellPrice * 100)
	return b
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func orDefault(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}
