package event

import "github.com/dshills/databus/internal/event/channel"

// SubscriptionEvent is the payload of "EventBus.subscribe" and
// "EventBus.unsubscribe".
type SubscriptionEvent struct {
	// Listener is the listener that was added or removed.
	Listener *Listener

	// Channel is the channel it was added to or removed from.
	Channel channel.Name

	// Bus is the bus that changed.
	Bus *Bus
}

// ErrorEvent is the payload of "EventBus.error".
type ErrorEvent struct {
	// Failure is the listener failure.
	Failure *ListenerFailure

	// Info describes the trigger call the failing listener was running for.
	Info DispatchInfo
}
