package stream

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultHeartbeat is the idle interval after which subscribers receive a heartbeat.
const DefaultHeartbeat = 15 * time.Second

var errAlreadyDone = errors.New("stream: job already done")

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithHeartbeat sets the subscriber idle interval.
func WithHeartbeat(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.heartbeat = d
		}
	}
}

// WithRetryHint attaches a reconnection hint to the job_started event.
func WithRetryHint(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			ms := int(d.Milliseconds())
			m.retryHint = &ms
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides the job ID generator.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) { m.newID = gen }
}

// Manager tracks streamed batch jobs and renders their progress as
// text/event-stream blocks.
type Manager struct {
	store     Store
	logger    *slog.Logger
	heartbeat time.Duration
	retryHint *int
	now       func() time.Time
	newID     func() string
}

// NewManager builds a Manager on top of store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		logger:    slog.New(slog.DiscardHandler),
		heartbeat: DefaultHeartbeat,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// CreateJob registers a job for urls and returns its ID.
func (m *Manager) CreateJob(ctx context.Context, urls []string) (string, error) {
	job := &Job{
		ID:        m.newID(),
		Total:     len(urls),
		URLs:      append([]string(nil), urls...),
		StartedAt: m.now(),
	}
	if err := m.store.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	m.logger.Info("job created", "job_id", job.ID, "total", job.Total)
	return job.ID, nil
}

// GetJob returns the job or ErrJobNotFound.
func (m *Manager) GetJob(ctx context.Context, id string) (*Job, error) {
	return m.store.Get(ctx, id)
}

// CancelJob flags a running job as cancelled. It reports false for unknown
// or already finished jobs.
func (m *Manager) CancelJob(ctx context.Context, id string) bool {
	_, err := m.store.Update(ctx, id, func(j *Job) error {
		if j.Done() {
			return errAlreadyDone
		}
		j.cancel()
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrJobNotFound) && !errors.Is(err, errAlreadyDone) {
			m.logger.Error("cancel job", "job_id", id, "error", err)
		}
		return false
	}
	m.logger.Info("job cancelled", "job_id", id)
	return true
}

// CleanupJob removes the job and its queue.
func (m *Manager) CleanupJob(ctx context.Context, id string) {
	if err := m.store.Delete(ctx, id); err != nil {
		m.logger.Error("cleanup job", "job_id", id, "error", err)
		return
	}
	m.logger.Debug("job cleaned up", "job_id", id)
}

// CleanupFinished removes jobs whose batch finished before now-olderThan and
// returns how many were removed. A cancelled job still counts as running until
// its batch emits job_completed.
func (m *Manager) CleanupFinished(ctx context.Context, olderThan time.Duration) (int, error) {
	jobs, err := m.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list jobs: %w", err)
	}
	cutoff := m.now().Add(-olderThan)

	removed := 0
	for _, j := range jobs {
		if j.FinishedAt == nil || j.FinishedAt.After(cutoff) {
			continue
		}
		if err := m.store.Delete(ctx, j.ID); err != nil {
			return removed, fmt.Errorf("delete job %s: %w", j.ID, err)
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info("finished jobs swept", "removed", removed)
	}
	return removed, nil
}

// ActiveJobs lists jobs that are not done.
func (m *Manager) ActiveJobs(ctx context.Context) ([]*Job, error) {
	jobs, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	active := jobs[:0]
	for _, j := range jobs {
		if !j.Done() {
			active = append(active, j)
		}
	}
	return active, nil
}

func (m *Manager) emit(ctx context.Context, id string, kind Kind, payload any) error {
	event, err := NewEvent(kind, payload)
	if err != nil {
		return err
	}
	return m.push(ctx, id, event)
}

func (m *Manager) push(ctx context.Context, id string, event *Event) error {
	if err := m.store.Push(ctx, id, event); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			m.logger.Warn("emit to unknown job", "job_id", id)
		}
		return fmt.Errorf("push %s: %w", eventKind(event), err)
	}
	return nil
}

func (m *Manager) EmitJobStarted(ctx context.Context, id string) error {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	event, err := NewEvent(KindJobStarted, jobStartedData{
		JobID:     id,
		Total:     job.Total,
		URLs:      job.URLs,
		StartedAt: job.StartedAt,
	})
	if err != nil {
		return err
	}
	event.Retry = m.retryHint
	return m.push(ctx, id, event)
}

func (m *Manager) EmitItemStarted(ctx context.Context, id string, index int, url string) error {
	return m.emit(ctx, id, KindItemStarted, itemData{JobID: id, Index: index, URL: url})
}

func (m *Manager) EmitItemStep(ctx context.Context, id string, index int, url, step string) error {
	return m.emit(ctx, id, KindItemStep, itemStepData{
		itemData: itemData{JobID: id, Index: index, URL: url},
		Step:     step,
	})
}

// EmitItemCompleted counts the item on the job and emits item_completed
// followed by a job_progress snapshot. A nil result is sent as an empty object.
func (m *Manager) EmitItemCompleted(ctx context.Context, id string, index int, url string, success bool, result any, errMsg string) error {
	job, err := m.store.Update(ctx, id, func(j *Job) error {
		if success {
			j.Completed++
		} else {
			j.Failed++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("count item: %w", err)
	}

	if result == nil {
		result = struct{}{}
	}
	if err := m.emit(ctx, id, KindItemCompleted, itemCompletedData{
		itemData: itemData{JobID: id, Index: index, URL: url},
		Success:  success,
		Result:   result,
		Error:    errMsg,
	}); err != nil {
		return err
	}
	return m.emit(ctx, id, KindJobProgress, job.Snapshot())
}

// EmitJobCompleted stamps the finish time, emits job_completed and ends the stream.
func (m *Manager) EmitJobCompleted(ctx context.Context, id string) error {
	job, err := m.store.Update(ctx, id, func(j *Job) error {
		at := m.now()
		j.FinishedAt = &at
		return nil
	})
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}

	if err := m.emit(ctx, id, KindJobCompleted, jobCompletedData{
		Snapshot:        job.Snapshot(),
		FinishedAt:      *job.FinishedAt,
		DurationSeconds: job.FinishedAt.Sub(job.StartedAt).Seconds(),
	}); err != nil {
		return err
	}
	return m.push(ctx, id, nil)
}

// EmitError emits an error event and ends the stream.
func (m *Manager) EmitError(ctx context.Context, id, message string) error {
	if err := m.emit(ctx, id, KindError, errorData{JobID: id, Error: message}); err != nil {
		return err
	}
	return m.push(ctx, id, nil)
}

// Subscribe yields rendered events of the job until the end of the stream.
// Idle periods longer than the heartbeat interval yield heartbeat events. An
// unknown job yields a single error event.
func (m *Manager) Subscribe(ctx context.Context, id string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if _, err := m.store.Get(ctx, id); err != nil {
			yield(m.errorBlock("", "Unknown job: "+id))
			return
		}

		for {
			event, err := m.store.Pop(ctx, id, m.heartbeat)
			switch {
			case errors.Is(err, ErrPopTimeout):
				if !yield(m.heartbeatBlock(id)) {
					return
				}
				continue
			case err != nil:
				if ctx.Err() != nil {
					return
				}
				m.logger.Error("subscribe", "job_id", id, "error", err)
				yield(m.errorBlock(id, "stream interrupted"))
				return
			}

			if event == nil {
				return
			}
			if !yield(event.Render()) {
				return
			}
		}
	}
}

func (m *Manager) heartbeatBlock(id string) string {
	event, err := NewEvent(KindHeartbeat, heartbeatData{JobID: id, Timestamp: m.now()})
	if err != nil {
		return (&Event{Kind: KindHeartbeat}).Render()
	}
	return event.Render()
}

func (m *Manager) errorBlock(id, message string) string {
	event, err := NewEvent(KindError, errorData{JobID: id, Error: message})
	if err != nil {
		return (&Event{Kind: KindError}).Render()
	}
	return event.Render()
}

func eventKind(e *Event) string {
	if e == nil {
		return "end of stream"
	}
	return string(e.Kind)
}
