package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Unit is one deferred piece of work.
type Unit func()

// Loop executes deferred units one at a time in the order they were posted.
type Loop struct {
	mu      sync.Mutex // protects queue and closed
	queue   []Unit
	closed  bool
	running atomic.Bool

	// turn serializes units and Do calls between Drain callers, the worker
	// and sync passes.
	turn turn

	executor *Executor
	signal   chan struct{}
	stop     chan struct{}
	done     chan struct{}

	// Stats
	posted      atomic.Uint64
	executed    atomic.Uint64
	panicked    atomic.Uint64
	rejected    atomic.Uint64
	totalTimeNs atomic.Int64
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLoopPanicHandler sets the handler for panics escaping a unit.
func WithLoopPanicHandler(h PanicHandler) LoopOption {
	return func(l *Loop) {
		l.executor = NewExecutor(WithPanicHandler(h))
	}
}

// NewLoop creates a loop. It does not run anything until Drain, RunOnce
// or Start is called.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		executor: NewExecutor(),
		signal:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post appends a unit to the queue.
// Returns ErrLoopClosed once the loop has been closed or stopped.
func (l *Loop) Post(u Unit) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.rejected.Add(1)
		return ErrLoopClosed
	}
	l.queue = append(l.queue, u)
	l.mu.Unlock()

	l.posted.Add(1)

	select {
	case l.signal <- struct{}{}:
	default:
	}
	return nil
}

// pop removes the oldest unit.
func (l *Loop) pop() (Unit, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		return nil, false
	}
	u := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return u, true
}

// RunOnce runs the oldest pending unit, if any.
// It reports whether a unit was run.
func (l *Loop) RunOnce() bool {
	l.turn.enter()
	defer l.turn.exit()

	u, ok := l.pop()
	if !ok {
		return false
	}
	l.run(u)
	return true
}

// Drain runs pending units until the queue is empty, including units posted
// by the units it runs. It returns the number of units run.
func (l *Loop) Drain() int {
	n := 0
	for l.RunOnce() {
		n++
	}
	return n
}

// run executes a unit with panic recovery.
func (l *Loop) run(u Unit) {
	result := l.executor.Execute(func() error {
		u()
		return nil
	})
	l.executed.Add(1)
	l.totalTimeNs.Add(result.Duration.Nanoseconds())
	if result.Panicked {
		l.panicked.Add(1)
	}
}

// Do runs fn in the loop's turn: never alongside a unit or another Do call
// on a different goroutine. Calls made from inside a unit or a Do call run
// inline.
func (l *Loop) Do(fn func()) {
	l.turn.enter()
	defer l.turn.exit()
	fn()
}

// Pending returns the number of queued units.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Close rejects further posts. Units already queued can still be drained.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
}

// IsClosed returns true if the loop rejects new units.
func (l *Loop) IsClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Start runs queued units on a background goroutine.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLoopClosed
	}
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.worker(l.stop, l.done)
	return nil
}

// worker drains the queue whenever a unit is posted.
func (l *Loop) worker(stop, done chan struct{}) {
	defer close(done)

	for {
		l.Drain()
		select {
		case <-l.signal:
		case <-stop:
			l.Drain()
			return
		}
	}
}

// Stop closes the loop and waits for the worker to run the remaining units
// or until the context is cancelled.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.running.Load() {
		l.mu.Unlock()
		return ErrNotRunning
	}
	l.closed = true
	l.running.Store(false)
	close(l.stop)
	done := l.done
	l.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning returns true if the background worker is running.
func (l *Loop) IsRunning() bool {
	return l.running.Load()
}

// Stats returns loop statistics.
func (l *Loop) Stats() LoopStats {
	executed := l.executed.Load()
	totalNs := l.totalTimeNs.Load()

	var avgNs int64
	if executed > 0 {
		avgNs = totalNs / int64(executed)
	}

	return LoopStats{
		Posted:        l.posted.Load(),
		Executed:      executed,
		Panicked:      l.panicked.Load(),
		Rejected:      l.rejected.Load(),
		Pending:       l.Pending(),
		TotalDuration: time.Duration(totalNs),
		AvgDuration:   time.Duration(avgNs),
	}
}

// LoopStats contains statistics for a Loop.
type LoopStats struct {
	// Posted is the number of units accepted by Post.
	Posted uint64

	// Executed is the number of units that have run.
	Executed uint64

	// Panicked is the number of units that panicked.
	Panicked uint64

	// Rejected is the number of units refused because the loop was closed.
	Rejected uint64

	// Pending is the current number of queued units.
	Pending int

	// TotalDuration is the cumulative time spent running units.
	TotalDuration time.Duration

	// AvgDuration is the average unit run time.
	AvgDuration time.Duration
}
