// Package dispatch provides the execution primitives behind the event bus.
//
// # Executor
//
// Executor runs a single unit of listener work, recovering panics and
// capturing timing. A failing listener never unwinds into the caller or
// into sibling listeners:
//
//	result := executor.Execute(func() error {
//	    return listener(payload, info)
//	})
//	if !result.OK() {
//	    // report result.Error or result.PanicValue
//	}
//
// # Loop
//
// Loop is a serial, first-in-first-out queue of deferred units. A deferred
// trigger posts its entire listener pass as one unit, so listener order
// inside a pass is preserved and passes never interleave.
//
// A Loop can be driven in two ways:
//
//   - Cooperatively, by its owner calling Drain or RunOnce. This gives
//     single-threaded turn semantics: work posted now runs only after the
//     current synchronous code returns to the owner.
//   - By a background goroutine started with Start and stopped with Stop.
//
// Do runs a function in the same turn as the units, so synchronous work on
// other goroutines never overlaps a running unit. The turn is reentrant for
// the goroutine holding it: a unit may call Do, Drain or RunOnce.
package dispatch
