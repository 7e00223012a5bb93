package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ListingConverter/internal/ports"
	"ListingConverter/internal/stream"
)

// DefaultDrainTimeout bounds how long a torn down stream waits for its batch.
const DefaultDrainTimeout = 5 * time.Second

const digestTimeout = 10 * time.Second

// ErrEmptyBatch is returned when a batch carries no URLs.
var ErrEmptyBatch = errors.New("batch has no urls")

// BatchRunner converts a list of URLs with hooks. *Pipeline satisfies it.
type BatchRunner interface {
	ConvertMany(ctx context.Context, urls []string, opts ConvertOptions, hooks Hooks) *BatchProgress
}

// BatchRequest is an accepted bulk conversion.
type BatchRequest struct {
	URLs    []string
	Options ConvertOptions
}

// CoordinatorDeps wires a StreamCoordinator. Notifier is optional.
type CoordinatorDeps struct {
	Runner       BatchRunner
	Manager      *stream.Manager
	Notifier     ports.Notifier
	DrainTimeout time.Duration
	Logger       *slog.Logger
}

// StreamCoordinator runs batches in the background and forwards their
// progress stream to a transport.
type StreamCoordinator struct {
	runner       BatchRunner
	manager      *stream.Manager
	notifier     ports.Notifier
	drainTimeout time.Duration
	logger       *slog.Logger

	abandoned sync.WaitGroup
	digests   sync.WaitGroup
}

// NewStreamCoordinator builds the coordinator.
func NewStreamCoordinator(deps CoordinatorDeps) *StreamCoordinator {
	c := &StreamCoordinator{
		runner:       deps.Runner,
		manager:      deps.Manager,
		notifier:     deps.Notifier,
		drainTimeout: deps.DrainTimeout,
		logger:       deps.Logger,
	}
	if c.drainTimeout <= 0 {
		c.drainTimeout = DefaultDrainTimeout
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Session is an opened batch stream bound to one job.
type Session struct {
	c     *StreamCoordinator
	jobID string
	req   BatchRequest
}

// Open registers a job for the batch. Nothing runs until Forward.
func (c *StreamCoordinator) Open(ctx context.Context, req BatchRequest) (*Session, error) {
	if len(req.URLs) == 0 {
		return nil, ErrEmptyBatch
	}
	jobID, err := c.manager.CreateJob(ctx, req.URLs)
	if err != nil {
		return nil, err
	}
	return &Session{c: c, jobID: jobID, req: req}, nil
}

// JobID identifies the session's job for the control surface.
func (s *Session) JobID() string {
	return s.jobID
}

// Forward starts the batch and hands every rendered event to write until the
// stream ends, write fails or ctx is done. On return the batch has either
// finished or been cancelled; the job is released once the batch exits.
func (s *Session) Forward(ctx context.Context, write func(string) error) error {
	c := s.c
	runCtx, abandon := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		progress := c.run(runCtx, s.jobID, s.req)
		digest := c.notifier != nil && progress != nil
		if digest {
			c.digests.Add(1)
		}
		close(done)
		if digest {
			defer c.digests.Done()
			c.notify(s.jobID, progress)
		}
	}()

	var writeErr error
	for block := range c.manager.Subscribe(ctx, s.jobID) {
		if err := write(block); err != nil {
			writeErr = fmt.Errorf("write event: %w", err)
			break
		}
	}

	c.settle(s.jobID, done, abandon)
	return writeErr
}

// settle drives a possibly running batch to a conclusion and releases the job.
func (c *StreamCoordinator) settle(jobID string, done <-chan struct{}, abandon context.CancelFunc) {
	ctx := context.Background()
	release := func() {
		abandon()
		c.manager.CleanupJob(ctx, jobID)
	}

	select {
	case <-done:
		release()
		return
	default:
	}

	if c.manager.CancelJob(ctx, jobID) {
		c.logger.Info("stream closed early, batch cancelled", "job_id", jobID)
	}

	timer := time.NewTimer(c.drainTimeout)
	defer timer.Stop()
	select {
	case <-done:
		release()
	case <-timer.C:
		c.logger.Warn("batch did not stop in time, abandoning", "job_id", jobID, "timeout", c.drainTimeout)
		abandon()
		c.abandoned.Add(1)
		go func() {
			defer c.abandoned.Done()
			<-done
			c.manager.CleanupJob(ctx, jobID)
			c.logger.Info("abandoned batch drained", "job_id", jobID)
		}()
	}
}

// Wait blocks until abandoned batches have exited and batch digests are sent,
// or ctx is done.
func (c *StreamCoordinator) Wait(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		c.abandoned.Wait()
		c.digests.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run returns the batch outcome, or nil when the batch did not complete.
func (c *StreamCoordinator) run(ctx context.Context, jobID string, req BatchRequest) (progress *BatchProgress) {
	log := c.logger.With("job_id", jobID)
	defer func() {
		if r := recover(); r != nil {
			progress = nil
			log.Error("batch panicked", "panic", r)
			if err := c.manager.EmitError(ctx, jobID, fmt.Sprintf("panic: %v", r)); err != nil {
				log.Error("emit error event", "error", err)
			}
		}
	}()

	if err := c.manager.EmitJobStarted(ctx, jobID); err != nil {
		log.Error("start batch", "error", err)
		if emitErr := c.manager.EmitError(ctx, jobID, err.Error()); emitErr != nil {
			log.Error("emit error event", "error", emitErr)
		}
		return nil
	}

	hooks := &jobHooks{ctx: ctx, jobID: jobID, manager: c.manager, logger: log}
	result := c.runner.ConvertMany(ctx, req.URLs, req.Options, hooks)

	if err := c.manager.EmitJobCompleted(ctx, jobID); err != nil {
		log.Error("complete batch", "error", err)
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}
	return result
}

// notify sends the batch digest on its own bounded context.
func (c *StreamCoordinator) notify(jobID string, progress *BatchProgress) {
	ctx, cancel := context.WithTimeout(context.Background(), digestTimeout)
	defer cancel()
	if err := c.notifier.PublishDigest(ctx, BatchDigest(jobID, progress)); err != nil {
		c.logger.Warn("batch digest not sent", "job_id", jobID, "error", err)
	}
}

// BatchDigest summarizes a finished batch in a few lines.
func BatchDigest(jobID string, progress *BatchProgress) string {
	digest := fmt.Sprintf("Batch %s finished: %d/%d completed, %d failed", jobID, progress.Completed, progress.Total, progress.Failed)
	if skipped := progress.Pending(); skipped > 0 {
		digest += fmt.Sprintf(", %d skipped after cancel", skipped)
	}
	return digest
}

// jobHooks forwards pipeline transitions to the stream manager.
type jobHooks struct {
	ctx     context.Context
	jobID   string
	manager *stream.Manager
	logger  *slog.Logger
}

var _ Hooks = (*jobHooks)(nil)

func (h *jobHooks) OnStep(ctx context.Context, index int, url string, step Step) {
	if err := h.manager.EmitItemStep(ctx, h.jobID, index, url, string(step)); err != nil {
		h.logger.Warn("emit item step", "index", index, "error", err)
	}
}

func (h *jobHooks) OnItemStarted(ctx context.Context, index int, url string) {
	if err := h.manager.EmitItemStarted(ctx, h.jobID, index, url); err != nil {
		h.logger.Warn("emit item started", "index", index, "error", err)
	}
}

func (h *jobHooks) OnItemCompleted(ctx context.Context, index int, url string, success bool, result *ItemResult, errMsg string) {
	var payload any
	if result != nil {
		payload = result
	}
	if err := h.manager.EmitItemCompleted(ctx, h.jobID, index, url, success, payload, errMsg); err != nil {
		h.logger.Warn("emit item completed", "index", index, "error", err)
	}
}

// Cancelled treats a vanished job or an abandoned run as cancelled.
func (h *jobHooks) Cancelled() bool {
	if h.ctx.Err() != nil {
		return true
	}
	job, err := h.manager.GetJob(h.ctx, h.jobID)
	if err != nil {
		return true
	}
	return job.Cancelled
}
