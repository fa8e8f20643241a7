package dispatch

import "time"

// Result describes one executed unit.
type Result struct {
	// Error is what the unit returned. It stays nil when the unit panicked.
	Error error

	// Panicked reports a recovered panic; PanicValue and PanicStack hold
	// its value and the goroutine stack at recovery.
	Panicked   bool
	PanicValue any
	PanicStack []byte

	Duration time.Duration
}

// OK reports whether the unit returned nil without panicking.
func (r Result) OK() bool {
	return r.Error == nil && !r.Panicked
}

// PanicHandler observes recovered panics. It runs before Execute returns.
type PanicHandler func(panicValue any, stack []byte)
