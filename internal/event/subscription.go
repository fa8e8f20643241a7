package event

import "github.com/dshills/databus/internal/event/channel"

// Unsubscriber removes one subscription from the bus it came from.
// The zero value does nothing.
type Unsubscriber struct {
	bus      *Bus
	listener *Listener
	channel  channel.Name
}

// Unsubscribe removes the listener from its channel. Calling it more than
// once is harmless.
func (u Unsubscriber) Unsubscribe() {
	if u.bus == nil {
		return
	}
	_ = u.bus.Unsubscribe(u.channel, u.listener)
}

// Func returns Unsubscribe as a plain function.
func (u Unsubscriber) Func() func() {
	return u.Unsubscribe
}

// Listener returns the subscribed listener.
func (u Unsubscriber) Listener() *Listener {
	return u.listener
}

// Channel returns the channel the listener was subscribed to.
func (u Unsubscriber) Channel() channel.Name {
	return u.channel
}
