// Package event provides the in-process event bus.
//
// A Bus decouples producers and consumers of events inside one process.
// Listeners subscribe to hierarchical, dot-namespaced channels; a trigger
// on a channel reaches every listener on that channel, on each of its
// namespace prefixes, and on the wildcard channel "*".
//
// # Matching
//
// For a trigger on "app.user.created" the listeners run in this order:
//
//	app                 - subscription order within each channel
//	app.user
//	app.user.created
//	*                   - wildcard listeners always run last
//
// A trigger on "*" itself runs only the wildcard listeners, once.
//
// The full ordered list is copied before the first listener runs. Listeners
// that subscribe or unsubscribe during a pass, including a listener that
// removes itself, only affect later triggers.
//
// # Flow Types
//
// Trigger uses the bus's default flow (FlowAsync unless configured):
//
//   - FlowSync: every listener has run when Trigger returns.
//   - FlowAsync: the pass is posted as one unit on the bus's dispatch.Loop
//     and Trigger returns immediately.
//
// TriggerSync always runs synchronously. TriggerAsync requests the
// asynchronous path, which resolves to the default flow.
//
// # Failures
//
// A listener that returns an error or panics never interrupts its siblings
// or the caller of Trigger. Each failure becomes a *ListenerFailure that is
// republished on "EventBus.error" and, unless WithInterceptErrors is set,
// handed to the unhandled-failure handler in a separate loop unit.
//
// # Basic Usage
//
//	bus := event.New(event.WithDefaultFlow(event.FlowSync))
//	defer bus.Close(context.Background())
//
//	unsub, err := bus.Subscribe("app.user", event.NewListener(
//	    func(payload any, info event.DispatchInfo) error {
//	        fmt.Println(info.Channel, payload)
//	        return nil
//	    }))
//
//	bus.Trigger("app.user.created", map[string]any{"id": 1})
//	unsub.Unsubscribe()
//
// # Dynamic Arguments
//
// SubscribeArgs, UnsubscribeArgs, OnceArgs and TriggerArgs serve embedding
// layers (such as the Lua host) where the listener and channel may arrive in
// either order. Exactly one argument must be callable and the channel must
// be a string or integer; anything else fails with ErrInvalidArgument.
//
// # Deferred Passes
//
// By default a bus owns a cooperative loop: deferred passes run when the
// owner calls Drain or RunOnce, so a sync trigger issued before that always
// runs first. WithBackground drains the loop on its own goroutine.
//
// # Thread Safety
//
// The registry is guarded by a lock, so a Bus may be used from several
// goroutines. Listener code never runs in parallel: sync passes and
// deferred units share the loop's turn, which listeners may re-enter by
// triggering again.
package event
