// Package script exposes the event bus to Lua.
//
// Inject attaches the bus API to any Lua table:
//
//	L := lua.NewState()
//	mod := L.NewTable()
//	binding := script.Inject(L, mod)
//	L.SetGlobal("bus", mod)
//
// The table gains subscribe, unsubscribe, once, trigger, triggerSync and
// triggerAsync. Listener and channel may be passed in either order, as with
// event.ResolveArgs. Triggering "destroyed" clears every subscription.
//
// gopher-lua states are not goroutine-safe, so deferred passes run on a
// cooperative loop that the owner drains on the goroutine holding the state.
//
// # Host
//
// Host owns a Lua state with a "bus" global and drains the loop after each
// chunk it runs:
//
//	h := script.NewHost(script.WithLogger(logger))
//	defer h.Close()
//
//	if err := h.DoFile("handlers.lua"); err != nil {
//	    return err
//	}
package script
