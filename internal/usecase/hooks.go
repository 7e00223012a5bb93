package usecase

import "context"

// Hooks observes pipeline transitions. The orchestrator calls them
// synchronously and knows nothing about what sits behind them.
type Hooks interface {
	// OnStep fires before each pipeline stage of the item at index.
	OnStep(ctx context.Context, index int, url string, step Step)
	// OnItemStarted fires before a batch item enters the pipeline.
	OnItemStarted(ctx context.Context, index int, url string)
	// OnItemCompleted fires after a batch item finished. result is nil for
	// failed items.
	OnItemCompleted(ctx context.Context, index int, url string, success bool, result *ItemResult, errMsg string)
	// Cancelled is polled before each batch item starts.
	Cancelled() bool
}

// HookFuncs adapts optional plain functions to Hooks. Nil fields are no-ops.
type HookFuncs struct {
	Step          func(ctx context.Context, index int, url string, step Step)
	ItemStarted   func(ctx context.Context, index int, url string)
	ItemCompleted func(ctx context.Context, index int, url string, success bool, result *ItemResult, errMsg string)
	CancelCheck   func() bool
}

var _ Hooks = HookFuncs{}

func (h HookFuncs) OnStep(ctx context.Context, index int, url string, step Step) {
	if h.Step != nil {
		h.Step(ctx, index, url, step)
	}
}

func (h HookFuncs) OnItemStarted(ctx context.Context, index int, url string) {
	if h.ItemStarted != nil {
		h.ItemStarted(ctx, index, url)
	}
}

func (h HookFuncs) OnItemCompleted(ctx context.Context, index int, url string, success bool, result *ItemResult, errMsg string) {
	if h.ItemCompleted != nil {
		h.ItemCompleted(ctx, index, url, success, result, errMsg)
	}
}

func (h HookFuncs) Cancelled() bool {
	return h.CancelCheck != nil && h.CancelCheck()
}
