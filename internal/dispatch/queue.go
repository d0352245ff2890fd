// Package dispatch runs integration calls (postgres, minio, kafka) on a
// background worker so the monitor loop only pays for an enqueue.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultQueueSize = 256
	DefaultTimeout   = 10 * time.Second
)

var (
	ErrQueueFull   = errors.New("dispatch queue is full")
	ErrQueueClosed = errors.New("dispatch queue is closed")
)

// Job is one call to an integration. ctx carries the per-job timeout.
type Job func(ctx context.Context) error

// Queue executes jobs one at a time in submission order.
type Queue struct {
	name    string
	timeout time.Duration
	jobs    chan Job
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewQueue(name string, size int, timeout time.Duration, logger zerolog.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		name:    name,
		timeout: timeout,
		jobs:    make(chan Job, size),
		log:     logger.With().Str("queue", name).Logger(),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go q.work()
	return q
}

func (q *Queue) Name() string {
	return q.name
}

// Submit enqueues job without blocking.
func (q *Queue) Submit(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) work() {
	defer close(q.done)
	for job := range q.jobs {
		if q.ctx.Err() != nil {
			q.log.Warn().Msg("Dropping job after shutdown deadline")
			continue
		}
		ctx, cancel := context.WithTimeout(q.ctx, q.timeout)
		err := job(ctx)
		cancel()
		if err != nil {
			q.log.Error().Err(err).Msg("Dispatched job failed")
		}
	}
}

// Close stops intake and waits for queued jobs. When ctx ends first the
// remaining jobs are cancelled and ctx.Err() is returned.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-q.done
		return ctx.Err()
	}
}
