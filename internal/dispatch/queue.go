// Package dispatch provides the single-goroutine task queue that serializes
// session tree mutation. OS notification goroutines post closures to it and
// never wait; consumers that need a consistent read use Invoke.
package dispatch

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/tphakala/audiosessions/internal/errors"
	"github.com/tphakala/audiosessions/internal/logger"
)

// ErrClosed is returned by Invoke once the queue has been closed.
var ErrClosed = errors.NewStd("dispatch queue closed")

// Task is a unit of work run on the queue goroutine.
type Task func()

// Queue is an unbounded FIFO drained by one goroutine.
type Queue struct {
	name   string
	logger logger.Logger

	mu      sync.Mutex
	pending []Task
	closed  bool

	wake chan struct{}
	done chan struct{}

	depthObserver func(depth int)

	posted    atomic.Uint64
	executed  atomic.Uint64
	recovered atomic.Uint64

	closeOnce sync.Once
}

// Option configures a Queue.
type Option func(*Queue)

// WithName sets the queue name used in logs.
func WithName(name string) Option {
	return func(q *Queue) {
		q.name = name
	}
}

// WithLogger sets the logger used for task panics.
func WithLogger(l logger.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithDepthObserver registers a callback invoked with the pending depth after
// every post and every executed task. It runs without the queue lock held.
func WithDepthObserver(fn func(depth int)) Option {
	return func(q *Queue) {
		q.depthObserver = fn
	}
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Posted    uint64
	Executed  uint64
	Recovered uint64
	Pending   int
}

// New creates a queue and starts its goroutine.
func New(opts ...Option) *Queue {
	q := &Queue{
		name: "dispatch",
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = logger.Global().Module("dispatch")
	}
	q.logger = q.logger.With(logger.String("queue", q.name))

	go q.run()
	return q
}

// Post appends task to the queue. It never blocks and reports false when
// the queue is closed.
func (q *Queue) Post(task Task) bool {
	if task == nil {
		return false
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, task)
	depth := len(q.pending)
	q.mu.Unlock()

	q.posted.Add(1)
	q.observeDepth(depth)

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Invoke runs fn on the queue goroutine and waits for it to finish.
// Calling it from a task deadlocks until ctx is done.
func (q *Queue) Invoke(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !q.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrClosed
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		// The drain on close runs everything posted before it, so done may
		// already be closed as well.
		select {
		case <-done:
			return nil
		default:
			return ErrClosed
		}
	}
}

// Flush waits until every task posted before the call has run.
func (q *Queue) Flush(ctx context.Context) error {
	return q.Invoke(ctx, func() {})
}

// Len returns the number of tasks waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Posted:    q.posted.Load(),
		Executed:  q.executed.Load(),
		Recovered: q.recovered.Load(),
		Pending:   q.Len(),
	}
}

// Done is closed once the queue goroutine has run its last task and exited.
func (q *Queue) Done() <-chan struct{} { return q.done }

// Close stops accepting tasks, runs the ones already queued and waits for
// the goroutine to exit. Safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()

		select {
		case q.wake <- struct{}{}:
		default:
		}
	})
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)

	for range q.wake {
		for {
			q.mu.Lock()
			if len(q.pending) == 0 {
				closed := q.closed
				q.pending = nil
				q.mu.Unlock()
				if closed {
					return
				}
				break
			}
			task := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]
			depth := len(q.pending)
			q.mu.Unlock()

			q.execute(task)
			q.observeDepth(depth)
		}
	}
}

func (q *Queue) execute(task Task) {
	defer func() {
		q.executed.Add(1)
		if r := recover(); r != nil {
			q.recovered.Add(1)
			err := errors.Newf("dispatch task panicked: %v", r).
				Component("dispatch").
				Category(errors.CategoryDispatch).
				Priority(errors.PriorityHigh).
				Context("queue", q.name).
				Build()
			q.logger.Error("task panicked",
				logger.Error(err),
				logger.String("stack", string(debug.Stack())))
		}
	}()
	task()
}

func (q *Queue) observeDepth(depth int) {
	if q.depthObserver != nil {
		q.depthObserver(depth)
	}
}
