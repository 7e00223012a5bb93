package usecase

import (
	"encoding/json"
	"math"
	"time"

	"ListingConverter/internal/domain"
)

// Step is a phase of the conversion pipeline.
type Step string

const (
	StepFetching     Step = "fetching"
	StepPolicyCheck  Step = "policy_check"
	StepTransforming Step = "transforming"
	StepPricing      Step = "pricing"
	StepPublishing   Step = "publishing"
	StepComplete     Step = "complete"
	StepFailed       Step = "failed"
)

// ItemStatus is the lifecycle status of a single conversion.
type ItemStatus string

const (
	StatusPending    ItemStatus = "pending"
	StatusProcessing ItemStatus = "processing"
	StatusCompleted  ItemStatus = "completed"
	StatusFailed     ItemStatus = "failed"
)

// ItemResult is one conversion attempt. Fields are populated in pipeline
// order; a failure leaves every later field nil.
type ItemResult struct {
	SourceURL    string                 `json:"url"`
	Status       ItemStatus             `json:"status"`
	Step         Step                   `json:"step"`
	Product      *domain.Product        `json:"product"`
	Policy       *domain.PolicyResult   `json:"compliance"`
	Draft        *domain.ListingDraft   `json:"draft"`
	Price        *domain.PriceBreakdown `json:"profit"`
	Publish      *domain.PublishResult  `json:"listing"`
	ErrorMessage string                 `json:"error"`
	StartedAt    time.Time              `json:"started_at"`
	CompletedAt  *time.Time             `json:"completed_at"`
}

// Succeeded reports whether the item reached the Completed status.
func (r *ItemResult) Succeeded() bool {
	return r != nil && r.Status == StatusCompleted
}

// BatchProgress aggregates the results of a list of source URLs. Items that
// were never started (cancelled batch) are absent from Results but still
// counted in Total.
type BatchProgress struct {
	Total     int
	Completed int
	Failed    int
	Results   []*ItemResult
}

// Pending is the number of items not yet finished.
func (b *BatchProgress) Pending() int {
	return b.Total - b.Completed - b.Failed
}

// ProgressPct is the finished share rounded to one decimal, 0 for an empty batch.
func (b *BatchProgress) ProgressPct() float64 {
	if b.Total == 0 {
		return 0
	}
	return roundTo(float64(b.Completed+b.Failed)/float64(b.Total)*100, 1)
}

// Done reports whether no items remain pending.
func (b *BatchProgress) Done() bool {
	return b.Pending() == 0
}

func (b *BatchProgress) MarshalJSON() ([]byte, error) {
	results := b.Results
	if results == nil {
		results = []*ItemResult{}
	}
	return json.Marshal(struct {
		Total       int           `json:"total"`
		Completed   int           `json:"completed"`
		Failed      int           `json:"failed"`
		Pending     int           `json:"pending"`
		ProgressPct float64       `json:"progress_pct"`
		Results     []*ItemResult `json:"results"`
	}{
		Total:       b.Total,
		Completed:   b.Completed,
		Failed:      b.Failed,
		Pending:     b.Pending(),
		ProgressPct: b.ProgressPct(),
		Results:     results,
	})
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
