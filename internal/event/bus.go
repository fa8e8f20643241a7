package event

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dshills/databus/internal/event/channel"
	"github.com/dshills/databus/internal/event/dispatch"
)

// Bus is the event dispatcher. Each Bus owns its registry exclusively.
type Bus struct {
	registry *Registry
	executor *dispatch.Executor
	loop     *dispatch.Loop
	ownsLoop bool

	config busConfig
	log    *zap.Logger

	// errorListener logs "EventBus.error" when debug is on.
	errorListener *Listener

	// Stats
	triggered         atomic.Uint64
	syncPasses        atomic.Uint64
	deferredPasses    atomic.Uint64
	listenersExecuted atomic.Uint64
	listenerFailures  atomic.Uint64
	listenerPanics    atomic.Uint64
}

// New creates a bus with the given options.
//
// Without WithLoop the bus owns a cooperative loop: deferred passes wait
// until the owner calls Drain or RunOnce. WithBackground runs the owned loop
// on its own goroutine instead; Close stops it.
func New(opts ...Option) *Bus {
	config := defaultBusConfig()
	for _, opt := range opts {
		opt(&config)
	}

	b := &Bus{
		registry: NewRegistry(),
		executor: dispatch.NewExecutor(),
		config:   config,
		log:      config.logger,
		loop:     config.loop,
	}

	if b.loop == nil {
		b.loop = dispatch.NewLoop(dispatch.WithLoopPanicHandler(func(v any, _ []byte) {
			b.log.Error("deferred unit panicked", zap.Any("panic", v))
		}))
		b.ownsLoop = true
		if config.background {
			// A fresh loop cannot be running or closed.
			_ = b.loop.Start()
		}
	}

	b.errorListener = NewListener(b.logFailure)
	b.registry.Add(channel.Error, b.errorListener)

	return b
}

// Close closes the loop the bus owns, so further deferred passes are
// refused. A background loop runs its remaining units first. A loop
// supplied with WithLoop is left to its owner.
func (b *Bus) Close(ctx context.Context) error {
	if !b.ownsLoop {
		return nil
	}
	if err := b.loop.Stop(ctx); err != nil && err != dispatch.ErrNotRunning {
		return err
	}
	b.loop.Close()
	return nil
}

// Loop returns the loop running deferred passes.
func (b *Bus) Loop() *dispatch.Loop {
	return b.loop
}

// Drain runs deferred passes until none are left, including passes they
// schedule. It returns the number of loop units run.
func (b *Bus) Drain() int {
	return b.loop.Drain()
}

// RunOnce runs the oldest deferred unit, if any.
func (b *Bus) RunOnce() bool {
	return b.loop.RunOnce()
}

// Subscribe appends l to the listeners of ch and publishes
// "EventBus.subscribe". An empty channel means the wildcard.
func (b *Bus) Subscribe(ch channel.Name, l *Listener) (Unsubscriber, error) {
	if !l.valid() {
		return Unsubscriber{}, ErrNilListener
	}
	ch = ch.Normalize()

	b.registry.Add(ch, l)
	b.log.Debug("listener subscribed",
		zap.String("channel", ch.String()),
		zap.String("listener", l.ID()))

	_ = b.trigger(channel.Subscribed, SubscriptionEvent{Listener: l, Channel: ch, Bus: b}, false)

	return Unsubscriber{bus: b, listener: l, channel: ch}, nil
}

// Unsubscribe removes every occurrence of l from ch and publishes
// "EventBus.unsubscribe". An empty channel means the wildcard.
func (b *Bus) Unsubscribe(ch channel.Name, l *Listener) error {
	if !l.valid() {
		return ErrNilListener
	}
	ch = ch.Normalize()

	removed := b.registry.Remove(ch, l)
	b.log.Debug("listener unsubscribed",
		zap.String("channel", ch.String()),
		zap.String("listener", l.ID()),
		zap.Int("removed", removed))

	_ = b.trigger(channel.Unsubscribed, SubscriptionEvent{Listener: l, Channel: ch, Bus: b}, false)
	return nil
}

// Once subscribes l so that it runs at most once. The first invocation
// removes the guard from ch before calling l; later invocations in the same
// pass do nothing.
func (b *Bus) Once(ch channel.Name, l *Listener) (Unsubscriber, error) {
	if !l.valid() {
		return Unsubscriber{}, ErrNilListener
	}
	ch = ch.Normalize()

	// Listener code runs in the loop's turn, so fired needs no lock.
	fired := false
	var guard *Listener
	guard = NewListener(func(payload any, info DispatchInfo) error {
		if fired {
			return nil
		}
		fired = true
		_ = b.Unsubscribe(ch, guard)
		return l.Call(payload, info)
	})

	return b.Subscribe(ch, guard)
}

// Trigger runs the listeners matching ch with the default flow.
// An empty channel means the wildcard. Listener failures are never returned;
// the only error is dispatch.ErrLoopClosed for a deferred pass on a closed bus.
func (b *Bus) Trigger(ch channel.Name, payload any) error {
	return b.trigger(ch, payload, false)
}

// TriggerSync runs the listeners matching ch before returning.
func (b *Bus) TriggerSync(ch channel.Name, payload any) error {
	return b.trigger(ch, payload, true)
}

// TriggerAsync requests the asynchronous path, which resolves to the default
// flow: with WithDefaultFlow(FlowSync) it runs synchronously.
func (b *Bus) TriggerAsync(ch channel.Name, payload any) error {
	return b.trigger(ch, payload, false)
}

// trigger takes the dispatch snapshot and runs or posts the pass.
func (b *Bus) trigger(ch channel.Name, payload any, forceSync bool) error {
	ch = ch.Normalize()

	flow := b.config.defaultFlow
	if forceSync {
		flow = FlowSync
	}

	snapshot := b.registry.Match(ch)
	info := DispatchInfo{
		Channel:     ch,
		Subscribers: len(snapshot),
		Async:       flow == FlowAsync,
	}

	b.triggered.Add(1)

	if flow == FlowAsync {
		if err := b.loop.Post(func() { b.run(payload, info, snapshot) }); err != nil {
			return err
		}
		b.deferredPasses.Add(1)
		return nil
	}

	b.syncPasses.Add(1)
	b.loop.Do(func() { b.run(payload, info, snapshot) })
	return nil
}

// run executes one listener pass.
func (b *Bus) run(payload any, info DispatchInfo, snapshot []*Listener) {
	if b.config.log {
		fields := []zap.Field{
			zap.String("channel", info.Channel.String()),
			zap.Int("subscribers", info.Subscribers),
		}
		if b.config.logData {
			fields = append(fields, zap.String("data", fmt.Sprintf("%v", payload)))
		}
		b.log.Info("event triggered", fields...)
	}

	for j, l := range snapshot {
		current := info
		current.index = j

		result := b.executor.Execute(func() error {
			return l.Call(payload, current)
		})
		b.listenersExecuted.Add(1)

		if result.OK() {
			continue
		}
		b.fail(newListenerFailure(l, current, result), current)
	}
}

// newListenerFailure converts an unsuccessful result.
func newListenerFailure(l *Listener, info DispatchInfo, result dispatch.Result) *ListenerFailure {
	f := &ListenerFailure{
		Kind:       FailureError,
		Channel:    info.Channel,
		ListenerID: l.ID(),
		Err:        result.Error,
	}
	if result.Panicked {
		f.Kind = FailurePanic
		f.PanicValue = result.PanicValue
		f.Err = panicError(result.PanicValue)
		f.Stack = string(result.PanicStack)
	}
	return f
}

// fail contains one listener failure: it is logged, republished on
// "EventBus.error" and, unless intercepted, handed to the unhandled handler
// in its own loop unit.
func (b *Bus) fail(f *ListenerFailure, info DispatchInfo) {
	b.listenerFailures.Add(1)
	if f.Kind == FailurePanic {
		b.listenerPanics.Add(1)
	}

	// Failures while handling "EventBus.error" are not republished there.
	if info.Channel != channel.Error {
		_ = b.trigger(channel.Error, ErrorEvent{Failure: f, Info: info}, false)
	}

	if b.config.interceptErrors {
		return
	}
	if err := b.loop.Post(func() { b.unhandled(f) }); err != nil {
		b.unhandled(f)
	}
}

// unhandled hands a failure to the configured handler.
func (b *Bus) unhandled(f *ListenerFailure) {
	if b.config.unhandled != nil {
		b.config.unhandled(f)
		return
	}
	b.log.Error("unhandled listener failure",
		zap.String("channel", f.Channel.String()),
		zap.String("listener", f.ListenerID),
		zap.String("kind", f.Name()),
		zap.Error(f.Err))
}

// logFailure is the internal "EventBus.error" listener.
func (b *Bus) logFailure(payload any, _ DispatchInfo) error {
	if !b.config.debug {
		return nil
	}
	ev, ok := payload.(ErrorEvent)
	if !ok || ev.Failure == nil {
		return nil
	}
	b.log.Warn(ev.Failure.Name()+" in listener",
		zap.String("event", ev.Info.Channel.String()),
		zap.String("message", ev.Failure.Err.Error()))
	return nil
}

// Reset removes every listener and restores the registry to its initial
// keyed form, then silently re-registers the subscriptions in keep. The bus
// stays usable.
func (b *Bus) Reset(keep ...Unsubscriber) {
	entries := make([]Entry, 0, len(keep)+1)
	entries = append(entries, Entry{Channel: channel.Error, Listener: b.errorListener})
	for _, u := range keep {
		if u.bus == b && u.listener.valid() {
			entries = append(entries, Entry{Channel: u.channel, Listener: u.listener})
		}
	}
	b.registry.Clear(entries...)
	b.log.Debug("bus reset", zap.Int("kept", len(entries)-1))
}

// Listeners returns a copy of the listeners registered on exactly ch.
func (b *Bus) Listeners(ch channel.Name) []*Listener {
	return b.registry.Get(ch.Normalize())
}

// Channels returns the channels that currently have an entry, sorted.
func (b *Bus) Channels() []channel.Name {
	return b.registry.Channels()
}

// Stats returns current bus statistics.
func (b *Bus) Stats() Stats {
	return Stats{
		Triggered:         b.triggered.Load(),
		SyncPasses:        b.syncPasses.Load(),
		DeferredPasses:    b.deferredPasses.Load(),
		ListenersExecuted: b.listenersExecuted.Load(),
		ListenerFailures:  b.listenerFailures.Load(),
		ListenerPanics:    b.listenerPanics.Load(),
		Subscribers:       b.registry.Count(),
		Channels:          len(b.registry.Channels()),
		PendingUnits:      b.loop.Pending(),
	}
}
