package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ListingConverter/internal/domain"
	"ListingConverter/internal/ports"
)

// DefaultTargetMargin is used when PipelineDeps leaves TargetMargin unset.
const DefaultTargetMargin = 0.20

// SourceResolver picks the scraper responsible for a URL.
type SourceResolver interface {
	Resolve(rawURL string) (ports.Scraper, domain.Marketplace, error)
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
// Publisher and Repository are optional.
type PipelineDeps struct {
	Sources      SourceResolver
	Policy       ports.PolicyChecker
	Transformer  ports.Transformer
	Pricer       ports.Pricer
	Publisher    ports.Publisher
	Repository   ports.ConversionRepository
	TargetMargin float64
	Logger       *slog.Logger
	Now          func() time.Time
}

// ConvertOptions carries the per-request parameters of a conversion.
type ConvertOptions struct {
	ActorID string
	Publish bool
	// PriceOverride replaces the suggested sell price when set and positive.
	PriceOverride *float64
}

// Pipeline implements the fetch, policy check, transform, price, publish workflow.
type Pipeline struct {
	sources      SourceResolver
	policy       ports.PolicyChecker
	transformer  ports.Transformer
	pricer       ports.Pricer
	publisher    ports.Publisher
	canPublish   bool
	repository   ports.ConversionRepository
	targetMargin float64
	logger       *slog.Logger
	now          func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		sources:      deps.Sources,
		policy:       deps.Policy,
		transformer:  deps.Transformer,
		pricer:       deps.Pricer,
		publisher:    deps.Publisher,
		canPublish:   deps.Publisher != nil,
		repository:   deps.Repository,
		targetMargin: deps.TargetMargin,
		logger:       deps.Logger,
		now:          deps.Now,
	}
	if p.targetMargin <= 0 {
		p.targetMargin = DefaultTargetMargin
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// CanPublish reports whether a publish collaborator is configured.
func (p *Pipeline) CanPublish() bool {
	return p.canPublish
}

// ConvertOne drives a single URL through the pipeline. Failures never escape:
// they are reported on the returned result.
func (p *Pipeline) ConvertOne(ctx context.Context, url string, opts ConvertOptions, hooks Hooks) *ItemResult {
	if hooks == nil {
		hooks = HookFuncs{}
	}
	return p.convert(ctx, 0, url, opts, hooks)
}

// ConvertMany converts the URLs in order. Cancellation is polled before each
// item; an item that has started always runs to its own conclusion.
func (p *Pipeline) ConvertMany(ctx context.Context, urls []string, opts ConvertOptions, hooks Hooks) *BatchProgress {
	if hooks == nil {
		hooks = HookFuncs{}
	}

	progress := &BatchProgress{
		Total:   len(urls),
		Results: make([]*ItemResult, 0, len(urls)),
	}
	p.logger.Info("batch started", "total", len(urls), "actor", opts.ActorID, "publish", opts.Publish)

	for i, url := range urls {
		if hooks.Cancelled() {
			p.logger.Info("batch cancelled", "at_item", i+1, "total", len(urls))
			break
		}

		hooks.OnItemStarted(ctx, i, url)
		result := p.convert(ctx, i, url, opts, hooks)
		progress.Results = append(progress.Results, result)

		success := result.Succeeded()
		if success {
			progress.Completed++
		} else {
			progress.Failed++
		}

		var payload *ItemResult
		if success {
			payload = result
		}
		hooks.OnItemCompleted(ctx, i, url, success, payload, result.ErrorMessage)

		p.logger.Info("batch progress",
			"completed", progress.Completed,
			"failed", progress.Failed,
			"pending", progress.Pending(),
			"progress_pct", progress.ProgressPct(),
		)
	}

	p.logger.Info("batch finished", "completed", progress.Completed, "total", progress.Total)
	return progress
}

func (p *Pipeline) convert(ctx context.Context, index int, url string, opts ConvertOptions, hooks Hooks) (result *ItemResult) {
	result = &ItemResult{
		SourceURL: url,
		Status:    StatusProcessing,
		Step:      StepFetching,
		StartedAt: p.now(),
	}
	log := p.logger.With("url", url, "index", index)
	log.Info("conversion started", "actor", opts.ActorID)

	defer func() {
		if r := recover(); r != nil {
			p.fail(result, fmt.Errorf("panic: %v", r))
			log.Error("conversion panicked", "panic", r)
		}
		p.record(ctx, opts.ActorID, result)
	}()

	if err := p.run(ctx, log, index, url, opts, hooks, result); err != nil {
		p.fail(result, err)
		if domain.KindOf(err) == domain.KindUncategorized {
			log.Error("conversion failed", "step", result.Step, "error", err)
		} else {
			log.Warn("conversion failed", "kind", domain.KindOf(err), "error", err)
		}
		return result
	}

	p.enterStep(ctx, index, url, result, hooks, StepComplete)
	result.Status = StatusCompleted
	completedAt := p.now()
	result.CompletedAt = &completedAt
	log.Info("conversion complete")
	return result
}

func (p *Pipeline) run(ctx context.Context, log *slog.Logger, index int, url string, opts ConvertOptions, hooks Hooks, result *ItemResult) error {
	p.enterStep(ctx, index, url, result, hooks, StepFetching)
	scraper, tag, err := p.sources.Resolve(url)
	if err != nil {
		return err
	}
	product, err := scraper.Scrape(ctx, url)
	if err != nil {
		return err
	}
	if product.Source == "" {
		product.Source = tag
	}
	result.Product = &product

	p.enterStep(ctx, index, url, result, hooks, StepPolicyCheck)
	verdict := p.policy.Check(product)
	result.Policy = &verdict
	switch verdict.RiskLevel {
	case domain.RiskBlocked:
		return domain.PolicyViolation(verdict.Brand, verdict.Violations)
	case domain.RiskWarning:
		log.Warn("policy warning", "brand", product.Brand, "violations", verdict.Violations)
	}

	p.enterStep(ctx, index, url, result, hooks, StepTransforming)
	draft, err := p.transformer.Transform(product)
	if err != nil {
		return err
	}

	p.enterStep(ctx, index, url, result, hooks, StepPricing)
	cost := product.Price
	var sellPrice float64
	if opts.PriceOverride != nil && *opts.PriceOverride > 0 {
		sellPrice = *opts.PriceOverride
	} else {
		sellPrice = p.pricer.Suggest(cost, p.targetMargin)
	}
	draft.Price = sellPrice
	result.Draft = &draft
	breakdown := p.pricer.Breakdown(cost, sellPrice, product.Category)
	result.Price = &breakdown

	if !opts.Publish || !p.canPublish {
		result.Publish = &domain.PublishResult{Status: domain.ListingDraftOnly, CreatedAt: p.now()}
		return nil
	}

	p.enterStep(ctx, index, url, result, hooks, StepPublishing)
	published, err := p.publisher.Publish(ctx, draft)
	if err != nil {
		return err
	}
	result.Publish = &published
	return nil
}

func (p *Pipeline) enterStep(ctx context.Context, index int, url string, result *ItemResult, hooks Hooks, step Step) {
	result.Step = step
	hooks.OnStep(ctx, index, url, step)
}

func (p *Pipeline) fail(result *ItemResult, err error) {
	result.Step = StepFailed
	result.Status = StatusFailed
	result.ErrorMessage = FailureMessage(err)
	completedAt := p.now()
	result.CompletedAt = &completedAt
}

func (p *Pipeline) record(ctx context.Context, actorID string, result *ItemResult) {
	if p.repository == nil {
		return
	}
	if err := p.repository.SaveConversion(ctx, toRecord(actorID, result)); err != nil {
		p.logger.Error("record conversion", "url", result.SourceURL, "error", err)
	}
}

// FailureMessage renders err as a stage-labeled, human readable message.
func FailureMessage(err error) string {
	switch domain.KindOf(err) {
	case domain.KindUnsupportedSource:
		return "Unsupported source: " + err.Error()
	case domain.KindScraping:
		return "Scraping failed: " + err.Error()
	case domain.KindPolicyViolation:
		return "Policy violation for " + err.Error()
	case domain.KindTransform:
		return "Transform failed: " + err.Error()
	case domain.KindPublish, domain.KindAuth:
		return "Listing failed: " + err.Error()
	default:
		return "Unexpected error: " + err.Error()
	}
}

func toRecord(actorID string, result *ItemResult) ports.ConversionRecord {
	record := ports.ConversionRecord{
		ActorID:      actorID,
		SourceURL:    result.SourceURL,
		Status:       string(result.Status),
		Step:         string(result.Step),
		ErrorMessage: result.ErrorMessage,
		StartedAt:    result.StartedAt,
	}
	if result.CompletedAt != nil {
		record.CompletedAt = *result.CompletedAt
	}
	if result.Product != nil {
		record.Source = result.Product.Source
		record.SourceProductID = result.Product.SourceProductID
		record.Title = result.Product.Title
	}
	if result.Policy != nil {
		record.Violations = result.Policy.Violations
	}
	if result.Price != nil {
		record.SellPrice = result.Price.SellPrice
		record.NetProfit = result.Price.NetProfit
	}
	if result.Publish != nil {
		record.MarketplaceItemID = result.Publish.MarketplaceItemID
	}
	return record
}
