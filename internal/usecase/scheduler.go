package usecase

import (
	"context"
	"log/slog"
	"time"

	"ListingConverter/internal/ports"
)

// JobSweeper removes finished stream jobs. *stream.Manager satisfies it.
type JobSweeper interface {
	CleanupFinished(ctx context.Context, olderThan time.Duration) (int, error)
}

// Janitor wires the ticker driver with finished-job sweeping.
type Janitor struct {
	driver    ports.Scheduler
	sweeper   JobSweeper
	retention time.Duration
	logger    *slog.Logger
}

// NewJanitor returns a helper to start/stop recurring sweeps.
func NewJanitor(driver ports.Scheduler, sweeper JobSweeper, retention time.Duration, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Janitor{driver: driver, sweeper: sweeper, retention: retention, logger: logger}
}

// Start registers the sweep with the provided scheduler.
func (j *Janitor) Start(ctx context.Context) error {
	if j.driver == nil || j.sweeper == nil {
		return nil
	}

	return j.driver.Start(ctx, func(trigger time.Time) {
		j.Sweep(ctx, trigger)
	})
}

// Sweep runs one cleanup pass.
func (j *Janitor) Sweep(ctx context.Context, trigger time.Time) {
	removed, err := j.sweeper.CleanupFinished(ctx, j.retention)
	if err != nil {
		j.logger.Error("sweep finished jobs", "trigger", trigger, "error", err)
		return
	}
	if removed > 0 {
		j.logger.Debug("sweep complete", "removed", removed, "trigger", trigger)
	}
}

// Stop gracefully tears down the underlying scheduler.
func (j *Janitor) Stop(ctx context.Context) error {
	if j.driver == nil {
		return nil
	}

	return j.driver.Stop(ctx)
}
