// Package dispatch provides the serial execution contexts used by the cache:
// one owner context for every mutation and one delivery context for every
// delegate call.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattcache/internal/groutine"
)

// ErrClosed is returned when work is submitted to a closed queue.
var ErrClosed = errors.New("dispatch queue closed")

// Executor runs submitted functions one at a time, in submission order.
type Executor interface {
	// Post schedules fn and reports whether it was accepted.
	Post(fn func()) bool
}

// Inline runs every function immediately on the caller's goroutine.
type Inline struct{}

// Post runs fn before returning.
func (Inline) Post(fn func()) bool {
	fn()
	return true
}

// Queue is a goroutine-backed serial executor with an unbounded backlog;
// Post never blocks.
type Queue struct {
	name   string
	logger *logrus.Logger

	mu     sync.Mutex
	tasks  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
	gid  atomic.Uint64
}

// NewQueue starts a queue whose worker lives until Close is called or ctx is cancelled.
func NewQueue(ctx context.Context, name string, capacity int, logger *logrus.Logger) *Queue {
	if logger == nil {
		logger = logrus.New()
	}
	if capacity < 0 {
		capacity = 0
	}
	q := &Queue{
		name:   name,
		logger: logger,
		tasks:  make([]func(), 0, capacity),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	groutine.Go(ctx, name, q.run)
	return q
}

// Post appends fn to the backlog. Returns false once the queue is closed.
func (q *Queue) Post(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.WithField("queue", q.name).Debug("Dropping task posted to closed queue")
		return false
	}
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()

	q.signal()
	return true
}

// OnQueue reports whether the caller is running on the queue's worker goroutine.
func (q *Queue) OnQueue() bool {
	gid := q.gid.Load()
	return gid != 0 && gid == groutine.GetGID()
}

// Close stops accepting work. Tasks already posted still run.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// Done is closed once the worker has drained the backlog and exited.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run(ctx context.Context) {
	q.gid.Store(groutine.GetGID())
	defer close(q.done)

	for {
		q.mu.Lock()
		tasks := q.tasks
		q.tasks = nil
		closed := q.closed
		q.mu.Unlock()

		for _, fn := range tasks {
			q.exec(fn)
		}
		if len(tasks) > 0 {
			continue
		}
		if closed {
			return
		}

		select {
		case <-q.wake:
		case <-ctx.Done():
			q.Close()
		}
	}
}

func (q *Queue) exec(fn func()) {
	defer groutine.Recover(q.name, q.logger)
	fn()
}

// Sync runs fn on e and waits for it to finish. When the caller is already
// on e's worker goroutine, fn runs in place.
func Sync(e Executor, fn func()) error {
	if oq, ok := e.(interface{ OnQueue() bool }); ok && oq.OnQueue() {
		fn()
		return nil
	}

	done := make(chan struct{})
	if !e.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrClosed
	}
	<-done
	return nil
}
