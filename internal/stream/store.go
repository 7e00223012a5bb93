package stream

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrJobNotFound is returned for unknown or cleaned up jobs.
	ErrJobNotFound = errors.New("stream: job not found")
	// ErrJobExists is returned when creating a job under a taken ID.
	ErrJobExists = errors.New("stream: job already exists")
	// ErrPopTimeout is returned by Store.Pop when no event arrived in time.
	ErrPopTimeout = errors.New("stream: pop timed out")
)

// Store keeps job state and a FIFO event queue per job. A nil event on the
// queue marks the end of the stream.
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	// Update applies fn to the stored job atomically and returns the result.
	// An error from fn aborts the update and is returned unchanged.
	Update(ctx context.Context, id string, fn func(*Job) error) (*Job, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Job, error)
	Push(ctx context.Context, id string, event *Event) error
	// Pop waits up to timeout for the next event.
	Pop(ctx context.Context, id string, timeout time.Duration) (*Event, error)
}

var _ Store = (*MemoryStore)(nil)

type memoryEntry struct {
	job    *Job
	queue  []*Event
	notify chan struct{}
}

// MemoryStore is the process-local Store. Safe for concurrent access.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

func (m *MemoryStore) Create(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[job.ID]; ok {
		return ErrJobExists
	}
	m.entries[job.ID] = &memoryEntry{job: job.clone(), notify: make(chan struct{})}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return e.job.clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, id string, fn func(*Job) error) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	next := e.job.clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	e.job = next
	return next.clone(), nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, id)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.entries))
	for _, e := range m.entries {
		jobs = append(jobs, e.job.clone())
	}
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].StartedAt.Before(jobs[k].StartedAt)
	})
	return jobs, nil
}

func (m *MemoryStore) Push(_ context.Context, id string, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return ErrJobNotFound
	}
	e.queue = append(e.queue, event)
	close(e.notify)
	e.notify = make(chan struct{})
	return nil
}

func (m *MemoryStore) Pop(ctx context.Context, id string, timeout time.Duration) (*Event, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		m.mu.Lock()
		e, ok := m.entries[id]
		if !ok {
			m.mu.Unlock()
			return nil, ErrJobNotFound
		}
		if len(e.queue) > 0 {
			event := e.queue[0]
			e.queue[0] = nil
			e.queue = e.queue[1:]
			m.mu.Unlock()
			return event, nil
		}
		notify := e.notify
		m.mu.Unlock()

		select {
		case <-notify:
		case <-timer.C:
			return nil, ErrPopTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
