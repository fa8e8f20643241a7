package dispatch

import (
	"runtime/debug"
	"time"
)

// Executor runs units of work with panic recovery and timing.
type Executor struct {
	panicHandler PanicHandler
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithPanicHandler sets the panic handler for the executor.
func WithPanicHandler(h PanicHandler) ExecutorOption {
	return func(e *Executor) {
		if h != nil {
			e.panicHandler = h
		}
	}
}

// Execute runs fn and returns the result.
// It recovers from panics and captures timing information.
func (e *Executor) Execute(fn func() error) (result Result) {
	start := time.Now()

	defer func() {
		result.Duration = time.Since(start)

		if r := recover(); r != nil {
			stack := debug.Stack()

			result.Panicked = true
			result.PanicValue = r
			result.PanicStack = stack

			if e.panicHandler == nil {
				return
			}
			// A panicking panic handler must not escape either.
			func() {
				defer func() {
					_ = recover()
				}()
				e.panicHandler(r, stack)
			}()
		}
	}()

	result.Error = fn()
	return result
}
