package event

import (
	"errors"
	"fmt"

	"github.com/dshills/databus/internal/event/channel"
)

// Sentinel errors for the event bus.
var (
	// ErrInvalidArgument is returned when a channel is not a string or
	// integer, when no listener is supplied, or when a dual-order call is
	// ambiguous.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNilListener is returned when a nil listener is provided.
	ErrNilListener = fmt.Errorf("%w: listener cannot be nil", ErrInvalidArgument)

	// ErrListenerPanic matches listener failures caused by a panic.
	ErrListenerPanic = errors.New("listener panicked")
)

// FailureKind classifies a listener failure.
type FailureKind string

const (
	// FailureError means the listener returned an error.
	FailureError FailureKind = "error"

	// FailurePanic means the listener panicked.
	FailurePanic FailureKind = "panic"
)

// ListenerFailure wraps an error or panic raised by a listener.
type ListenerFailure struct {
	// Kind is FailureError or FailurePanic.
	Kind FailureKind

	// Channel is the triggered channel.
	Channel channel.Name

	// ListenerID is the ID of the failing listener.
	ListenerID string

	// Err is the returned error, or the panic value as an error.
	Err error

	// PanicValue is the value passed to panic(), if any.
	PanicValue any

	// Stack is the stack trace at the time of the panic.
	Stack string
}

// Error implements the error interface.
func (f *ListenerFailure) Error() string {
	if f.Kind == FailurePanic {
		return fmt.Sprintf("listener %s panicked on channel %s: %v", f.ListenerID, f.Channel, f.PanicValue)
	}
	return fmt.Sprintf("listener %s failed on channel %s: %v", f.ListenerID, f.Channel, f.Err)
}

// Unwrap returns the underlying error.
func (f *ListenerFailure) Unwrap() error {
	return f.Err
}

// Is allows errors.Is to match panics with ErrListenerPanic.
func (f *ListenerFailure) Is(target error) bool {
	return target == ErrListenerPanic && f.Kind == FailurePanic
}

// Name returns the error kind used in logs: the Go type of the returned
// error, or "panic".
func (f *ListenerFailure) Name() string {
	if f.Kind == FailurePanic {
		return "panic"
	}
	if f.Err == nil {
		return "error"
	}
	return fmt.Sprintf("%T", f.Err)
}

// panicError converts a panic value into an error.
func panicError(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return fmt.Errorf("%v", v)
}
