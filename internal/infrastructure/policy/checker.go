package policy

import (
	"fmt"
	"strings"
	"time"

	"ListingConverter/internal/domain"
	"ListingConverter/internal/ports"
)

// DefaultRestrictedKeywords flag wording typical for counterfeit listings.
var DefaultRestrictedKeywords = []string{
	"replica",
	"counterfeit",
	"knockoff",
	"fake",
	"imitation",
	"inspired by",
	"style of",
	"not authentic",
	"unauthorized",
	"bootleg",
}

// DefaultFuzzyThreshold is the similarity ratio above which a brand is treated
// as a near match of a protected one.
const DefaultFuzzyThreshold = 0.85

// Rules configures the checker.
type Rules struct {
	ProtectedBrands    []string
	RestrictedKeywords []string
	FuzzyThreshold     float64
}

// BrandChecker grades products against a protected brand list and
// restricted keywords.
type BrandChecker struct {
	protected map[string]string
	keywords  []string
	threshold float64
	now       func() time.Time
}

var _ ports.PolicyChecker = (*BrandChecker)(nil)

// NewBrandChecker builds a checker from rules.
func NewBrandChecker(rules Rules) *BrandChecker {
	c := &BrandChecker{
		protected: make(map[string]string, len(rules.ProtectedBrands)),
		keywords:  rules.RestrictedKeywords,
		threshold: rules.FuzzyThreshold,
		now:       time.Now,
	}
	for _, b := range rules.ProtectedBrands {
		if name := strings.TrimSpace(b); name != "" {
			c.protected[strings.ToLower(name)] = name
		}
	}
	if c.keywords == nil {
		c.keywords = DefaultRestrictedKeywords
	}
	if c.threshold <= 0 || c.threshold > 1 {
		c.threshold = DefaultFuzzyThreshold
	}
	return c
}

// BrandCount is the number of protected brands loaded.
func (c *BrandChecker) BrandCount() int {
	return len(c.protected)
}

// Check returns the highest risk found across brand and keyword checks.
func (c *BrandChecker) Check(product domain.Product) domain.PolicyResult {
	brand := strings.TrimSpace(product.Brand)
	level, violations := c.checkBrand(brand)

	text := strings.ToLower(product.Title + " " + product.Description)
	for _, kw := range c.keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			violations = append(violations, fmt.Sprintf("Restricted keyword '%s' found in product text", kw))
			if level == domain.RiskClear {
				level = domain.RiskWarning
			}
		}
	}

	if violations == nil {
		violations = []string{}
	}
	return domain.PolicyResult{
		Compliant:  level != domain.RiskBlocked,
		RiskLevel:  level,
		Violations: violations,
		Brand:      brand,
		CheckedAt:  c.now().UTC(),
	}
}

func (c *BrandChecker) checkBrand(brand string) (domain.RiskLevel, []string) {
	if brand == "" {
		return domain.RiskWarning, []string{"No brand specified, manual review recommended"}
	}

	lower := strings.ToLower(brand)
	if _, ok := c.protected[lower]; ok {
		return domain.RiskBlocked, []string{fmt.Sprintf("Brand '%s' is on the protected brands list", brand)}
	}

	if match, ok := c.closestProtected(lower); ok {
		return domain.RiskWarning, []string{
			fmt.Sprintf("Brand '%s' closely matches protected brand '%s'", brand, match),
		}
	}
	return domain.RiskClear, nil
}

func (c *BrandChecker) closestProtected(brand string) (string, bool) {
	var (
		best      string
		bestRatio float64
	)
	for lower, name := range c.protected {
		if r := similarity(brand, lower); r >= c.threshold && r > bestRatio {
			best, bestRatio = name, r
		}
	}
	return best, best != ""
}

// similarity is 1 - normalized Levenshtein distance over runes.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return 1 - float64(prev[len(rb)])/float64(longest)
}
