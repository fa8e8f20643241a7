package event

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dshills/databus/internal/event/channel"
)

// Flow specifies whether listeners run within the trigger call or later.
type Flow int

const (
	// FlowAsync posts the listener pass to the bus loop.
	FlowAsync Flow = iota

	// FlowSync runs the listener pass before Trigger returns.
	FlowSync
)

// String returns a human-readable flow name.
func (f Flow) String() string {
	switch f {
	case FlowAsync:
		return "async"
	case FlowSync:
		return "sync"
	default:
		return "unknown"
	}
}

// ParseFlow parses "sync" or "async" (case-insensitive).
func ParseFlow(s string) (Flow, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "async", "asynchronous":
		return FlowAsync, nil
	case "sync", "synchronous":
		return FlowSync, nil
	default:
		return FlowAsync, fmt.Errorf("unknown flow type %q", s)
	}
}

// ListenerFunc is the signature of an event listener.
type ListenerFunc func(payload any, info DispatchInfo) error

// Listener is a subscribable callback. Identity is pointer identity: the
// same *Listener subscribed twice runs twice, and Unsubscribe removes every
// occurrence of it.
type Listener struct {
	id string
	fn ListenerFunc
}

// NewListener wraps fn in a Listener with a fresh ID.
func NewListener(fn ListenerFunc) *Listener {
	return &Listener{
		id: uuid.NewString(),
		fn: fn,
	}
}

// ID returns the listener ID. It is only used for logs and failures.
func (l *Listener) ID() string {
	return l.id
}

// Call invokes the listener.
func (l *Listener) Call(payload any, info DispatchInfo) error {
	return l.fn(payload, info)
}

// valid reports whether l can be subscribed.
func (l *Listener) valid() bool {
	return l != nil && l.fn != nil
}

// DispatchInfo describes the trigger call a listener is running for.
type DispatchInfo struct {
	// Channel is the triggered channel, not the channel the listener
	// subscribed to.
	Channel channel.Name

	// Subscribers is the number of listeners in this pass.
	Subscribers int

	// Async is true when the pass was deferred to the loop.
	Async bool

	index int
}

// Index returns the position of the current listener in the pass.
func (i DispatchInfo) Index() int {
	return i.index
}

// QueueLength returns how many listeners of this pass run after the current one.
func (i DispatchInfo) QueueLength() int {
	if i.Subscribers == 0 {
		return 0
	}
	return i.Subscribers - (i.index + 1)
}

// Stats contains event bus statistics.
type Stats struct {
	// Triggered is the total number of trigger calls.
	Triggered uint64

	// SyncPasses is the number of passes run synchronously.
	SyncPasses uint64

	// DeferredPasses is the number of passes posted to the loop.
	DeferredPasses uint64

	// ListenersExecuted is the total number of listener invocations.
	ListenersExecuted uint64

	// ListenerFailures is the number of invocations that returned an error or panicked.
	ListenerFailures uint64

	// ListenerPanics is the number of invocations that panicked.
	ListenerPanics uint64

	// Subscribers is the current number of registered listeners, duplicates included.
	Subscribers int

	// Channels is the current number of channels with listeners.
	Channels int

	// PendingUnits is the number of units waiting on the loop.
	PendingUnits int
}
