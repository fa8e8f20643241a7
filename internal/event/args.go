package event

import (
	"fmt"

	"github.com/dshills/databus/internal/event/channel"
)

// SubscribeArgs is Subscribe for callers that pass the listener and channel
// in either order: (listener), (listener, channel) or (channel, listener).
// See ResolveArgs for the accepted values.
func (b *Bus) SubscribeArgs(args ...any) (Unsubscriber, error) {
	ch, l, err := ResolveArgs(args...)
	if err != nil {
		return Unsubscriber{}, err
	}
	return b.Subscribe(ch, l)
}

// UnsubscribeArgs is Unsubscribe with dual-order arguments. The listener
// must be the *Listener that was subscribed; bare functions have no identity.
func (b *Bus) UnsubscribeArgs(args ...any) error {
	ch, l, err := ResolveArgs(args...)
	if err != nil {
		return err
	}
	for _, a := range args {
		if _, ok := a.(*Listener); ok {
			return b.Unsubscribe(ch, l)
		}
	}
	return fmt.Errorf("%w: unsubscribe needs the subscribed *Listener", ErrInvalidArgument)
}

// OnceArgs is Once with dual-order arguments.
func (b *Bus) OnceArgs(args ...any) (Unsubscriber, error) {
	ch, l, err := ResolveArgs(args...)
	if err != nil {
		return Unsubscriber{}, err
	}
	return b.Once(ch, l)
}

// TriggerArgs is Trigger for dynamic callers: (), (channel), (channel,
// payload) or (channel, payload, async). No arguments means the wildcard.
// An async argument of exactly false forces a synchronous pass; any other
// value uses the default flow.
func (b *Bus) TriggerArgs(args ...any) error {
	if len(args) > 3 {
		return fmt.Errorf("%w: trigger takes at most 3 arguments, got %d", ErrInvalidArgument, len(args))
	}
	if len(args) == 0 {
		return b.trigger(channel.Wildcard, nil, false)
	}

	ch, err := channel.Parse(args[0])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	var payload any
	if len(args) > 1 {
		payload = args[1]
	}

	forceSync := false
	if len(args) > 2 {
		if async, ok := args[2].(bool); ok && !async {
			forceSync = true
		}
	}
	return b.trigger(ch, payload, forceSync)
}

// ResolveArgs resolves a dual-order listener/channel argument list.
//
// With one argument it must be callable and the channel is the wildcard.
// With two, exactly one must be callable and the other must be a string or
// integer channel. Callable values are *Listener, ListenerFunc,
// func(any, DispatchInfo) error and func(any, DispatchInfo).
func ResolveArgs(args ...any) (channel.Name, *Listener, error) {
	switch len(args) {
	case 1:
		l, ok := asListener(args[0])
		if !ok {
			return "", nil, fmt.Errorf("%w: only functions may be used as listeners, got %T", ErrInvalidArgument, args[0])
		}
		return channel.Wildcard, l, nil

	case 2:
		first, firstOK := asListener(args[0])
		second, secondOK := asListener(args[1])
		if firstOK == secondOK {
			return "", nil, fmt.Errorf("%w: one argument must be a listener, the other a channel", ErrInvalidArgument)
		}

		l, raw := first, args[1]
		if secondOK {
			l, raw = second, args[0]
		}

		ch, err := channel.Parse(raw)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		return ch, l, nil

	default:
		return "", nil, fmt.Errorf("%w: expected 1 or 2 arguments, got %d", ErrInvalidArgument, len(args))
	}
}

// IsCallable reports whether v can be used as a listener.
func IsCallable(v any) bool {
	_, ok := asListener(v)
	return ok
}

// asListener converts a callable value.
func asListener(v any) (*Listener, bool) {
	switch fn := v.(type) {
	case *Listener:
		if !fn.valid() {
			return nil, false
		}
		return fn, true
	case ListenerFunc:
		if fn == nil {
			return nil, false
		}
		return NewListener(fn), true
	case func(any, DispatchInfo) error:
		if fn == nil {
			return nil, false
		}
		return NewListener(fn), true
	case func(any, DispatchInfo):
		if fn == nil {
			return nil, false
		}
		return NewListener(func(payload any, info DispatchInfo) error {
			fn(payload, info)
			return nil
		}), true
	default:
		return nil, false
	}
}
