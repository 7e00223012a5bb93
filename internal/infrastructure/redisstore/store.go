// Package redisstore implements stream.Store on Redis so job state and event
// queues can be shared by several service instances. Jobs are msgpack blobs,
// queues are Redis lists consumed with BLPOP.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"ListingConverter/internal/stream"
)

var _ stream.Store = (*Store)(nil)

const maxUpdateAttempts = 10

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithTTL bounds how long an abandoned job survives in Redis.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// Store is a Redis-backed stream.Store.
type Store struct {
	client redis.UniversalClient
	logger *slog.Logger
	ttl    time.Duration
}

// envelope wraps queue entries so the end-of-stream marker survives encoding.
type envelope struct {
	End   bool          `msgpack:"end,omitempty"`
	Event *stream.Event `msgpack:"event,omitempty"`
}

// New creates a Store. The caller owns the client lifecycle.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default(), ttl: time.Hour}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Create(ctx context.Context, job *stream.Job) error {
	raw, err := msgpack.Marshal(job)
	if err != nil {
		return fmt.Errorf("redisstore: encode job: %w", err)
	}

	ok, err := s.client.SetNX(ctx, jobKey(job.ID), raw, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redisstore: create job: %w", err)
	}
	if !ok {
		return stream.ErrJobExists
	}
	if err := s.client.SAdd(ctx, jobIDsKey, job.ID).Err(); err != nil {
		return fmt.Errorf("redisstore: index job: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*stream.Job, error) {
	raw, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, stream.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: get job: %w", err)
	}
	return decodeJob(raw)
}

func (s *Store) Update(ctx context.Context, id string, fn func(*stream.Job) error) (*stream.Job, error) {
	key := jobKey(id)
	var updated *stream.Job

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return stream.ErrJobNotFound
		}
		if err != nil {
			return fmt.Errorf("redisstore: read job: %w", err)
		}
		job, err := decodeJob(raw)
		if err != nil {
			return err
		}
		if err := fn(job); err != nil {
			return err
		}
		next, err := msgpack.Marshal(job)
		if err != nil {
			return fmt.Errorf("redisstore: encode job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		updated = job
		return nil
	}

	for range maxUpdateAttempts {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("redisstore: update job %s: too many concurrent writers", id)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, jobKey(id), queueKey(id))
	pipe.SRem(ctx, jobIDsKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstore: delete job: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]*stream.Job, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list job ids: %w", err)
	}

	jobs := make([]*stream.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if errors.Is(err, stream.ErrJobNotFound) {
			// Expired through TTL; drop the stale index entry.
			s.client.SRem(ctx, jobIDsKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *Store) Push(ctx context.Context, id string, event *stream.Event) error {
	exists, err := s.client.Exists(ctx, jobKey(id)).Result()
	if err != nil {
		return fmt.Errorf("redisstore: push check exists: %w", err)
	}
	if exists == 0 {
		return stream.ErrJobNotFound
	}

	raw, err := msgpack.Marshal(envelope{End: event == nil, Event: event})
	if err != nil {
		return fmt.Errorf("redisstore: encode event: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, queueKey(id), raw)
	pipe.Expire(ctx, queueKey(id), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstore: push event: %w", err)
	}
	return nil
}

func (s *Store) Pop(ctx context.Context, id string, timeout time.Duration) (*stream.Event, error) {
	exists, err := s.client.Exists(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: pop check exists: %w", err)
	}
	if exists == 0 {
		return nil, stream.ErrJobNotFound
	}

	res, err := s.client.BLPop(ctx, timeout, queueKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, stream.ErrPopTimeout
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("redisstore: pop event: %w", err)
	}
	// BLPOP replies with [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("redisstore: unexpected BLPOP reply of %d elements", len(res))
	}

	var env envelope
	if err := msgpack.Unmarshal([]byte(res[1]), &env); err != nil {
		return nil, fmt.Errorf("redisstore: decode event: %w", err)
	}
	if env.End {
		return nil, nil
	}
	return env.Event, nil
}

func decodeJob(raw []byte) (*stream.Job, error) {
	var job stream.Job
	if err := msgpack.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("redisstore: decode job: %w", err)
	}
	return &job, nil
}
