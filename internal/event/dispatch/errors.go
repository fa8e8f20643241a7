package dispatch

import "errors"

// Sentinel errors for the dispatch package.
var (
	// ErrAlreadyRunning is returned when Start is called on a running loop.
	ErrAlreadyRunning = errors.New("loop is already running")

	// ErrNotRunning is returned when Stop is called on a loop that was never started.
	ErrNotRunning = errors.New("loop is not running")

	// ErrLoopClosed is returned when work is posted to a closed loop.
	ErrLoopClosed = errors.New("loop is closed")
)
