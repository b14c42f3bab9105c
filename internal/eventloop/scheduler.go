// Package eventloop runs engine state changes on a single logical thread.
// Blocking work runs through Go and hands its result back with Post.
package eventloop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Scheduler is the cooperative loop every engine component runs on.
type Scheduler interface {
	// Post queues fn to run on the loop.
	Post(fn func())
	// Go runs fn off the loop.
	Go(fn func())
	// AfterFunc posts fn to the loop once d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
	Now() time.Time
}

type Timer interface {
	// Stop prevents the callback from running. It reports whether the
	// callback was still pending.
	Stop() bool
}

// Queue is a Scheduler drained by its owner, either by calling Drain when
// Ready fires or by Run.
type Queue struct {
	mu      sync.Mutex
	pending []func()
	ready   chan struct{}
	closed  atomic.Bool
	workers sync.WaitGroup
	log     *zap.Logger
}

func NewQueue(log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{ready: make(chan struct{}, 1), log: log}
}

func (q *Queue) Post(fn func()) {
	if q.closed.Load() {
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *Queue) Go(fn func()) {
	// Add must not race the Wait in Close.
	q.mu.Lock()
	if q.closed.Load() {
		q.mu.Unlock()
		return
	}
	q.workers.Add(1)
	q.mu.Unlock()
	go func() {
		defer q.workers.Done()
		defer func() {
			if r := recover(); r != nil {
				q.log.Error("background task panicked", zap.Any("panic", r))
			}
		}()
		fn()
	}()
}

func (q *Queue) AfterFunc(d time.Duration, fn func()) Timer {
	t := &queueTimer{}
	t.timer = time.AfterFunc(d, func() {
		q.Post(func() {
			if t.stopped.CompareAndSwap(false, true) {
				fn()
			}
		})
	})
	return t
}

func (q *Queue) Now() time.Time { return time.Now() }

// Ready signals that tasks are waiting to be drained.
func (q *Queue) Ready() <-chan struct{} { return q.ready }

// Drain runs every queued task, including tasks queued while draining.
// It returns the number of tasks run.
func (q *Queue) Drain() int {
	n := 0
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()
		if len(batch) == 0 {
			return n
		}
		for _, fn := range batch {
			if q.closed.Load() {
				return n
			}
			fn()
			n++
		}
	}
}

// Run drains the queue until ctx is done or the queue is closed.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.ready:
			q.Drain()
			if q.closed.Load() {
				return nil
			}
		}
	}
}

// Close stops accepting work and waits for background tasks to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed.Swap(true) {
		q.mu.Unlock()
		return
	}
	q.pending = nil
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
	q.workers.Wait()
}

type queueTimer struct {
	timer   *time.Timer
	stopped atomic.Bool
}

func (t *queueTimer) Stop() bool {
	t.timer.Stop()
	return t.stopped.CompareAndSwap(false, true)
}
