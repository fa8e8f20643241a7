package script

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/databus/internal/event"
	"github.com/dshills/databus/internal/event/channel"
)

// DefaultGlobal is the name of the bus table a Host installs.
const DefaultGlobal = "bus"

// Host runs Lua chunks against a bus.
//
// gopher-lua's LState is not goroutine-safe. The mutex serializes Go callers;
// listeners only run on the goroutine that runs a chunk or calls Drain.
type Host struct {
	L *lua.LState

	mu      sync.Mutex
	binding *Binding
	log     *zap.Logger
	closed  bool

	global  string
	busOpts []event.Option
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithLogger sets the logger used by the host and its bus.
func WithLogger(l *zap.Logger) HostOption {
	return func(h *Host) {
		if l != nil {
			h.log = l
		}
	}
}

// WithGlobal sets the name of the bus table.
func WithGlobal(name string) HostOption {
	return func(h *Host) {
		h.global = name
	}
}

// WithBusOptions passes options to the bus. WithLoop is ignored.
func WithBusOptions(opts ...event.Option) HostOption {
	return func(h *Host) {
		h.busOpts = append(h.busOpts, opts...)
	}
}

// NewHost creates a Lua state with the safe standard libraries and a bus
// table installed as a global.
func NewHost(opts ...HostOption) *Host {
	h := &Host{
		log:    zap.NewNop(),
		global: DefaultGlobal,
	}
	for _, opt := range opts {
		opt(h)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)
	h.L = L

	busOpts := append([]event.Option{event.WithLogger(h.log)}, h.busOpts...)
	tbl := L.NewTable()
	h.binding = Inject(L, tbl, busOpts...)
	L.SetGlobal(h.global, tbl)

	return h
}

// openSafeLibraries opens the libraries that do not touch the host system.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// Bus returns the bus behind the global table.
func (h *Host) Bus() *event.Bus {
	return h.binding.Bus()
}

// Binding returns the bus binding.
func (h *Host) Binding() *Binding {
	return h.binding
}

// DoString runs a chunk and then the deferred passes it queued.
func (h *Host) DoString(code string) error {
	return h.run("string", func() error {
		return h.L.DoString(code)
	})
}

// DoFile runs a file and then the deferred passes it queued.
func (h *Host) DoFile(path string) error {
	return h.run(path, func() error {
		return h.L.DoFile(path)
	})
}

// Drain runs queued deferred passes.
func (h *Host) Drain() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0
	}
	return h.binding.Drain()
}

// run executes one turn: the chunk, then everything it deferred.
func (h *Host) run(name string, chunk func() error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHostClosed
	}

	err := doWithRecovery(chunk)
	units := h.binding.Drain()

	h.log.Debug("chunk finished",
		zap.String("chunk", name),
		zap.Int("deferred", units),
		zap.Error(err))
	return err
}

// doWithRecovery converts a Go panic raised inside Lua into an error.
func doWithRecovery(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// Close triggers "destroyed", runs what it deferred and releases the Lua
// state. Closing twice is harmless.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	_ = h.binding.Bus().TriggerSync(channel.Destroyed, nil)
	h.binding.Drain()
	h.binding.Loop().Close()
	h.L.Close()
	return nil
}

// IsClosed reports whether Close has been called.
func (h *Host) IsClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
