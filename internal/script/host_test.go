package script

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/databus/internal/event"
)

func TestNewHost(t *testing.T) {
	h := NewHost()
	defer h.Close()

	if h.IsClosed() {
		t.Error("NewHost() returned closed host")
	}
	if h.L.GetGlobal(DefaultGlobal).Type() != lua.LTTable {
		t.Errorf("global %q not installed", DefaultGlobal)
	}
	if h.Bus() == nil {
		t.Error("Bus() is nil")
	}
}

func TestHost_UnsafeLibrariesClosed(t *testing.T) {
	h := NewHost()
	defer h.Close()

	if err := h.DoString(`assert(io == nil and os == nil and debug == nil)`); err != nil {
		t.Errorf("unsafe library available: %v", err)
	}
}

func TestHost_DrainsAfterChunk(t *testing.T) {
	h := NewHost()
	defer h.Close()

	err := h.DoString(`
		ran = false
		bus.subscribe("e", function() ran = true end)
		bus.trigger("e")
		ran_in_chunk = ran
	`)
	if err != nil {
		t.Fatalf("DoString() error = %v", err)
	}

	if h.L.GetGlobal("ran_in_chunk") != lua.LFalse {
		t.Error("deferred pass ran inside the chunk")
	}
	if h.L.GetGlobal("ran").String() != "true" {
		t.Error("deferred pass did not run after the chunk")
	}
	if n := h.Bus().Stats().PendingUnits; n != 0 {
		t.Errorf("PendingUnits = %d, want 0", n)
	}
}

func TestHost_TurnsAcrossChunks(t *testing.T) {
	h := NewHost()
	defer h.Close()

	if err := h.DoString(`log = {}; bus.subscribe("e", function(d) table.insert(log, d) end)`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	if err := h.DoString(`bus.trigger("e", "one"); bus.triggerSync("e", "two")`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}

	got := globalStrings(t, h.L, "log")
	if len(got) != 2 || got[0] != "two" || got[1] != "one" {
		t.Errorf("log = %v, want [two one]", got)
	}
}

func TestHost_GlobalName(t *testing.T) {
	h := NewHost(WithGlobal("events"))
	defer h.Close()

	if err := h.DoString(`events.triggerSync("x")`); err != nil {
		t.Errorf("DoString() error = %v", err)
	}
}

func TestHost_BusOptions(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	h := NewHost(
		WithLogger(zap.New(core)),
		WithBusOptions(event.WithDebug(true), event.WithInterceptErrors(true)),
	)
	defer h.Close()

	err := h.DoString(`
		bus.subscribe("save", function() error("disk full", 0) end)
		bus.trigger("save")
	`)
	if err != nil {
		t.Fatalf("DoString() error = %v", err)
	}

	entries := logs.FilterMessage("*lua.ApiError in listener").All()
	if len(entries) != 1 {
		t.Fatalf("got %d debug entries, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["event"]; got != "save" {
		t.Errorf("event field = %v, want save", got)
	}
}

func TestHost_DoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handlers.lua")
	code := `
		hits = 0
		bus.subscribe("tick", function() hits = hits + 1 end)
		bus.trigger("tick")
		bus.trigger("tick")
	`
	if err := os.WriteFile(path, []byte(code), 0o600); err != nil {
		t.Fatal(err)
	}

	h := NewHost()
	defer h.Close()

	if err := h.DoFile(path); err != nil {
		t.Fatalf("DoFile() error = %v", err)
	}
	if got := h.L.GetGlobal("hits").String(); got != "2" {
		t.Errorf("hits = %s, want 2", got)
	}
}

func TestHost_SyntaxError(t *testing.T) {
	h := NewHost()
	defer h.Close()

	if err := h.DoString(`this is not lua`); err == nil {
		t.Error("expected a syntax error")
	}
	if err := h.DoString(`ok = true`); err != nil {
		t.Errorf("host unusable after an error: %v", err)
	}
}

func TestHost_Close(t *testing.T) {
	h := NewHost()

	if err := h.DoString(`bus.subscribe("destroyed", function() end)`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !h.IsClosed() {
		t.Error("IsClosed() = false after Close")
	}
	if n := h.Bus().Stats().Subscribers; n != 2 {
		t.Errorf("Subscribers = %d after Close, want the error and teardown listeners", n)
	}
	if err := h.DoString(`x = 1`); !errors.Is(err, ErrHostClosed) {
		t.Errorf("DoString() after Close = %v, want ErrHostClosed", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if h.Drain() != 0 {
		t.Error("Drain() after Close should do nothing")
	}
}
