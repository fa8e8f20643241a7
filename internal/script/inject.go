package script

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/databus/internal/event"
	"github.com/dshills/databus/internal/event/channel"
	"github.com/dshills/databus/internal/event/dispatch"
)

// Binding connects a Lua table to a private bus.
type Binding struct {
	L    *lua.LState
	tbl  *lua.LTable
	bus  *event.Bus
	loop *dispatch.Loop

	// teardownSub survives the reset it performs.
	teardownSub event.Unsubscriber

	// listeners maps each Lua function to the listener it was wrapped in,
	// so unsubscribe finds the same listener.
	mu        sync.Mutex
	listeners map[*lua.LFunction]*event.Listener
}

// Inject creates a bus and attaches its API to tbl. The bus runs deferred
// passes on a cooperative loop; call Drain from the goroutine that owns L.
// A WithLoop option is overridden.
func Inject(L *lua.LState, tbl *lua.LTable, opts ...event.Option) *Binding {
	loop := dispatch.NewLoop()
	b := &Binding{
		L:         L,
		tbl:       tbl,
		loop:      loop,
		listeners: make(map[*lua.LFunction]*event.Listener),
	}
	b.bus = event.New(append(opts, event.WithLoop(loop))...)

	L.SetField(tbl, "subscribe", L.NewFunction(b.subscribe))
	L.SetField(tbl, "unsubscribe", L.NewFunction(b.unsubscribe))
	L.SetField(tbl, "once", L.NewFunction(b.once))
	L.SetField(tbl, "trigger", L.NewFunction(b.trigger))
	L.SetField(tbl, "triggerSync", L.NewFunction(b.triggerSync))
	L.SetField(tbl, "triggerAsync", L.NewFunction(b.triggerAsync))

	b.teardownSub, _ = b.bus.Subscribe(channel.Destroyed, event.NewListener(b.teardown))
	return b
}

// Bus returns the bus behind the table.
func (b *Binding) Bus() *event.Bus {
	return b.bus
}

// Loop returns the loop holding deferred passes.
func (b *Binding) Loop() *dispatch.Loop {
	return b.loop
}

// Drain runs deferred passes until none are left.
func (b *Binding) Drain() int {
	return b.loop.Drain()
}

// teardown clears the bus when "destroyed" is triggered. The bus stays
// usable afterwards and a later "destroyed" clears it again.
func (b *Binding) teardown(any, event.DispatchInfo) error {
	b.bus.Reset(b.teardownSub)

	b.mu.Lock()
	b.listeners = make(map[*lua.LFunction]*event.Listener)
	b.mu.Unlock()
	return nil
}

// listenerFor returns the listener wrapping fn, creating it on first use.
func (b *Binding) listenerFor(fn *lua.LFunction) *event.Listener {
	b.mu.Lock()
	defer b.mu.Unlock()

	if l, ok := b.listeners[fn]; ok {
		return l
	}
	l := event.NewListener(func(payload any, info event.DispatchInfo) error {
		return b.L.CallByParam(lua.P{
			Fn:      fn,
			NRet:    0,
			Protect: true,
		}, b.toLua(payload), b.infoTable(info))
	})
	b.listeners[fn] = l
	return l
}

// functionFor maps a listener back to its Lua function, or nil when it was
// not created from Lua.
func (b *Binding) functionFor(l *event.Listener) lua.LValue {
	b.mu.Lock()
	defer b.mu.Unlock()

	for fn, candidate := range b.listeners {
		if candidate == l {
			return fn
		}
	}
	return lua.LNil
}

// listenerArgs converts the call arguments for the dual-order resolvers,
// wrapping Lua functions as listeners.
func (b *Binding) listenerArgs(L *lua.LState) []any {
	return b.args(L, true)
}

// valueArgs converts the call arguments of a trigger. Functions in the
// payload are passed through untouched.
func (b *Binding) valueArgs(L *lua.LState) []any {
	return b.args(L, false)
}

// args drops trailing nils since Lua does not distinguish them from absent
// values.
func (b *Binding) args(L *lua.LState, wrapFuncs bool) []any {
	top := L.GetTop()
	for top > 0 && L.Get(top) == lua.LNil {
		top--
	}

	args := make([]any, top)
	for i := 1; i <= top; i++ {
		if fn, ok := L.Get(i).(*lua.LFunction); ok && wrapFuncs {
			args[i-1] = b.listenerFor(fn)
			continue
		}
		args[i-1] = toGo(L.Get(i))
	}
	return args
}

// unsubscriber wraps an Unsubscriber as a Lua function.
func unsubscriber(L *lua.LState, u event.Unsubscriber) *lua.LFunction {
	return L.NewFunction(func(*lua.LState) int {
		u.Unsubscribe()
		return 0
	})
}

// subscribe(listener, channel) or subscribe(channel, listener) -> unsubscribe
func (b *Binding) subscribe(L *lua.LState) int {
	u, err := b.bus.SubscribeArgs(b.listenerArgs(L)...)
	if err != nil {
		L.RaiseError("subscribe: %v", err)
		return 0
	}
	L.Push(unsubscriber(L, u))
	return 1
}

// unsubscribe(listener, channel) or unsubscribe(channel, listener)
func (b *Binding) unsubscribe(L *lua.LState) int {
	if err := b.bus.UnsubscribeArgs(b.listenerArgs(L)...); err != nil {
		L.RaiseError("unsubscribe: %v", err)
	}
	return 0
}

// once(listener, channel) or once(channel, listener) -> unsubscribe
func (b *Binding) once(L *lua.LState) int {
	u, err := b.bus.OnceArgs(b.listenerArgs(L)...)
	if err != nil {
		L.RaiseError("once: %v", err)
		return 0
	}
	L.Push(unsubscriber(L, u))
	return 1
}

// trigger(channel, data, async)
// async defaults to true; only false forces a synchronous pass.
func (b *Binding) trigger(L *lua.LState) int {
	if err := b.bus.TriggerArgs(b.valueArgs(L)...); err != nil {
		L.RaiseError("trigger: %v", err)
	}
	return 0
}

// triggerSync(channel, data)
func (b *Binding) triggerSync(L *lua.LState) int {
	ch, payload, err := b.channelAndPayload(L)
	if err == nil {
		err = b.bus.TriggerSync(ch, payload)
	}
	if err != nil {
		L.RaiseError("triggerSync: %v", err)
	}
	return 0
}

// triggerAsync(channel, data)
func (b *Binding) triggerAsync(L *lua.LState) int {
	ch, payload, err := b.channelAndPayload(L)
	if err == nil {
		err = b.bus.TriggerAsync(ch, payload)
	}
	if err != nil {
		L.RaiseError("triggerAsync: %v", err)
	}
	return 0
}

// channelAndPayload reads the first two arguments. A missing channel means
// the wildcard.
func (b *Binding) channelAndPayload(L *lua.LState) (channel.Name, any, error) {
	args := b.valueArgs(L)
	if len(args) == 0 {
		return channel.Wildcard, nil, nil
	}
	ch, err := channel.Parse(args[0])
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", event.ErrInvalidArgument, err)
	}
	var payload any
	if len(args) > 1 {
		payload = args[1]
	}
	return ch, payload, nil
}
