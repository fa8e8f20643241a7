package script

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/databus/internal/event"
	"github.com/dshills/databus/internal/event/channel"
)

func newTestBinding(t *testing.T, opts ...event.Option) (*lua.LState, *Binding) {
	t.Helper()
	L := lua.NewState()
	t.Cleanup(L.Close)

	tbl := L.NewTable()
	b := Inject(L, tbl, append([]event.Option{event.WithInterceptErrors(true)}, opts...)...)
	L.SetGlobal("bus", tbl)
	return L, b
}

func mustDo(t *testing.T, L *lua.LState, code string) {
	t.Helper()
	if err := L.DoString(code); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
}

// globalStrings reads a Lua array of strings.
func globalStrings(t *testing.T, L *lua.LState, name string) []string {
	t.Helper()
	tbl, ok := L.GetGlobal(name).(*lua.LTable)
	if !ok {
		t.Fatalf("global %s is not a table", name)
	}
	var out []string
	for i := 1; i <= tbl.Len(); i++ {
		out = append(out, tbl.RawGetInt(i).String())
	}
	return out
}

func TestInject_Functions(t *testing.T) {
	L, _ := newTestBinding(t)

	tbl := L.GetGlobal("bus").(*lua.LTable)
	for _, name := range []string{"subscribe", "unsubscribe", "once", "trigger", "triggerSync", "triggerAsync"} {
		if tbl.RawGetString(name).Type() != lua.LTFunction {
			t.Errorf("bus.%s is not a function", name)
		}
	}
}

func TestInject_SubscribeTriggerSync(t *testing.T) {
	L, _ := newTestBinding(t)

	mustDo(t, L, `
		calls = {}
		bus.subscribe(function(data, info)
			table.insert(calls, info.channel .. "=" .. data.foo)
		end, "foo")
		bus.triggerSync("foo", {foo = "bar"})
	`)

	if diff := cmp.Diff([]string{"foo=bar"}, globalStrings(t, L, "calls")); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestInject_DualOrder(t *testing.T) {
	tests := []struct {
		name string
		call string
	}{
		{"listener first", `bus.subscribe(listener, "foo")`},
		{"channel first", `bus.subscribe("foo", listener)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			L, _ := newTestBinding(t)
			mustDo(t, L, `
				calls = {}
				listener = function(data) table.insert(calls, data) end
				`+tt.call+`
				bus.triggerSync("foo", "x")
			`)

			if diff := cmp.Diff([]string{"x"}, globalStrings(t, L, "calls")); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInject_ListenerOnlyIsWildcard(t *testing.T) {
	L, b := newTestBinding(t)

	mustDo(t, L, `
		calls = {}
		bus.subscribe(function(_, info) table.insert(calls, info.channel) end)
		bus.triggerSync("a.b")
	`)

	if diff := cmp.Diff([]string{"a.b"}, globalStrings(t, L, "calls")); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if n := len(b.Bus().Listeners(channel.Wildcard)); n != 1 {
		t.Errorf("wildcard listeners = %d, want 1", n)
	}
}

func TestInject_IntegerChannel(t *testing.T) {
	L, b := newTestBinding(t)

	mustDo(t, L, `
		calls = {}
		bus.subscribe(5, function(_, info) table.insert(calls, info.channel) end)
		bus.triggerSync(5)
	`)

	if diff := cmp.Diff([]string{"5"}, globalStrings(t, L, "calls")); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if n := len(b.Bus().Listeners("5")); n != 1 {
		t.Errorf("listeners on 5 = %d, want 1", n)
	}
}

func TestInject_InvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"nil channel", `bus.subscribe(nil, function() end)`},
		{"table channel", `bus.subscribe({}, function() end)`},
		{"boolean channel", `bus.subscribe(true, function() end)`},
		{"fractional channel", `bus.subscribe(1.5, function() end)`},
		{"no listener", `bus.subscribe("foo")`},
		{"two channels", `bus.subscribe("foo", "bar")`},
		{"once without listener", `bus.once("foo", "bar")`},
		{"trigger table channel", `bus.trigger({}, 1)`},
		{"triggerSync nil channel", `bus.triggerSync(nil, 1)`},
		{"triggerAsync boolean channel", `bus.triggerAsync(false)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			L, b := newTestBinding(t)

			err := L.DoString(tt.code)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), event.ErrInvalidArgument.Error()) {
				t.Errorf("error = %v, want it to mention %q", err, event.ErrInvalidArgument)
			}
			if n := b.Bus().Stats().Subscribers; n != 2 {
				t.Errorf("Subscribers = %d, want only the internal listeners", n)
			}
		})
	}
}

func TestInject_Unsubscribe(t *testing.T) {
	L, _ := newTestBinding(t)

	mustDo(t, L, `
		calls = {}
		listener = function(data) table.insert(calls, data) end
		bus.subscribe("foo", listener)
		bus.triggerSync("foo", "first")
		bus.unsubscribe(listener, "foo")
		bus.triggerSync("foo", "second")
	`)

	if diff := cmp.Diff([]string{"first"}, globalStrings(t, L, "calls")); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestInject_UnsubscribeFunction(t *testing.T) {
	L, _ := newTestBinding(t)

	mustDo(t, L, `
		calls = {}
		local off = bus.subscribe("foo", function(data) table.insert(calls, data) end)
		bus.triggerSync("foo", "first")
		off()
		off()
		bus.triggerSync("foo", "second")
	`)

	if diff := cmp.Diff([]string{"first"}, globalStrings(t, L, "calls")); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestInject_Once(t *testing.T) {
	L, _ := newTestBinding(t)

	mustDo(t, L, `
		calls = {}
		bus.once(function(data) table.insert(calls, data) end, "ready")
		bus.triggerSync("ready", "a")
		bus.triggerSync("ready", "b")
	`)

	if diff := cmp.Diff([]string{"a"}, globalStrings(t, L, "calls")); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestInject_TriggerDeferred(t *testing.T) {
	L, b := newTestBinding(t)

	mustDo(t, L, `
		calls = {}
		bus.subscribe("e", function(data) table.insert(calls, data) end)
		bus.trigger("e", "deferred")
		bus.triggerAsync("e", "async")
		bus.trigger("e", "sync", false)
	`)

	if diff := cmp.Diff([]string{"sync"}, globalStrings(t, L, "calls")); diff != "" {
		t.Errorf("before drain mismatch (-want +got):\n%s", diff)
	}

	b.Drain()
	want := []string{"sync", "deferred", "async"}
	if diff := cmp.Diff(want, globalStrings(t, L, "calls")); diff != "" {
		t.Errorf("after drain mismatch (-want +got):\n%s", diff)
	}
}

func TestInject_PayloadConversion(t *testing.T) {
	L, b := newTestBinding(t)

	var got any
	b.Bus().Subscribe("data", event.NewListener(func(p any, _ event.DispatchInfo) error {
		got = p
		return nil
	}))

	mustDo(t, L, `
		bus.subscribe("data", function(data)
			name = data.name
			second = data.list[2]
		end)
		bus.triggerSync("data", {name = "x", list = {10, 20}, ratio = 0.5})
	`)

	want := map[string]any{
		"name":  "x",
		"list":  []any{int64(10), int64(20)},
		"ratio": 0.5,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Go payload mismatch (-want +got):\n%s", diff)
	}
	if L.GetGlobal("name").String() != "x" || L.GetGlobal("second").String() != "20" {
		t.Errorf("Lua payload: name=%v second=%v", L.GetGlobal("name"), L.GetGlobal("second"))
	}
}

func TestInject_GoPayloadToLua(t *testing.T) {
	L, b := newTestBinding(t)

	mustDo(t, L, `
		bus.subscribe("go", function(data, info)
			count = #data.items
			label = data.label
			subscribers = info.subscribers
			index = info.index
		end)
	`)

	b.Bus().TriggerSync("go", map[string]any{
		"items": []string{"a", "b", "c"},
		"label": channel.Name("x.y"),
	})

	checks := map[string]string{"count": "3", "label": "x.y", "subscribers": "1", "index": "1"}
	for name, want := range checks {
		if got := L.GetGlobal(name).String(); got != want {
			t.Errorf("%s = %s, want %s", name, got, want)
		}
	}
}

func TestInject_ListenerErrors(t *testing.T) {
	L, b := newTestBinding(t)

	mustDo(t, L, `
		calls = {}
		failures = {}
		bus.subscribe(function(err, info)
			table.insert(failures, err.channel .. ":" .. err.kind .. ":" .. err.message)
		end, "EventBus.error")
		bus.subscribe("save", function() table.insert(calls, "first") end)
		bus.subscribe("save", function() error("disk full", 0) end)
		bus.subscribe("save", function() table.insert(calls, "third") end)
		bus.triggerSync("save")
	`)
	// Failures are republished with the default flow.
	b.Drain()

	if diff := cmp.Diff([]string{"first", "third"}, globalStrings(t, L, "calls")); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"save:error:disk full"}, globalStrings(t, L, "failures")); diff != "" {
		t.Errorf("failures mismatch (-want +got):\n%s", diff)
	}
}

func TestInject_SubscriptionEvent(t *testing.T) {
	L, b := newTestBinding(t)

	mustDo(t, L, `
		seen = {}
		listener = function() end
		bus.subscribe("EventBus.subscribe", function(ev)
			if ev.listener == listener then
				table.insert(seen, ev.channel)
			end
		end)
		bus.subscribe("foo", listener)
	`)
	// The subscription event is deferred by default.
	if n := len(globalStrings(t, L, "seen")); n != 0 {
		t.Fatalf("seen %d events before drain", n)
	}

	b.Drain()
	if diff := cmp.Diff([]string{"foo"}, globalStrings(t, L, "seen")); diff != "" {
		t.Errorf("seen mismatch (-want +got):\n%s", diff)
	}
}

func TestInject_Destroyed(t *testing.T) {
	L, b := newTestBinding(t)

	mustDo(t, L, `
		calls = {}
		listener = function(_, info) table.insert(calls, info.channel) end
		bus.subscribe("foo", listener)
		bus.subscribe(listener)
		bus.triggerSync("destroyed")
		bus.triggerSync("foo", "after")
	`)

	// Only the wildcard copy sees "destroyed"; nothing sees "after".
	if diff := cmp.Diff([]string{"destroyed"}, globalStrings(t, L, "calls")); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	want := []channel.Name{channel.Wildcard, channel.Error, channel.Destroyed}
	if diff := cmp.Diff(want, b.Bus().Channels()); diff != "" {
		t.Errorf("Channels() mismatch (-want +got):\n%s", diff)
	}

	mustDo(t, L, `
		bus.subscribe("foo", listener)
		bus.triggerSync("foo", "again")
	`)
	if diff := cmp.Diff([]string{"destroyed", "foo"}, globalStrings(t, L, "calls")); diff != "" {
		t.Errorf("bus not usable after destroyed (-want +got):\n%s", diff)
	}
}

func TestInject_DestroyedRepeatedly(t *testing.T) {
	L, _ := newTestBinding(t)

	mustDo(t, L, `
		calls = {}
		first = function(p) table.insert(calls, "first " .. p) end
		second = function(p) table.insert(calls, "second " .. p) end

		bus.subscribe("foo", first)
		bus.triggerSync("destroyed")
		bus.subscribe("foo", second)
		bus.triggerSync("foo", "a")
		bus.triggerSync("destroyed")
		bus.triggerSync("foo", "b")
	`)

	if diff := cmp.Diff([]string{"second a"}, globalStrings(t, L, "calls")); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestInject_SubscriptionEventBus(t *testing.T) {
	L, b := newTestBinding(t)

	mustDo(t, L, `
		same = false
		bus.subscribe("EventBus.subscribe", function(ev)
			same = ev.bus == bus
		end)
		bus.subscribe("foo", function() end)
	`)
	b.Drain()

	if got := L.GetGlobal("same"); got != lua.LTrue {
		t.Errorf("ev.bus == bus is %v, want true", got)
	}
}

func TestToGo(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	if err := L.DoString(`
		arr = {1, 2.5, "x", true}
		sparse = {[1] = "a", [3] = "c"}
		nested = {inner = {k = "v"}}
		cyc = {}
		cyc.self = cyc
	`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}

	tests := []struct {
		name string
		want any
	}{
		{"arr", []any{int64(1), 2.5, "x", true}},
		{"sparse", map[string]any{"1": "a", "3": "c"}},
		{"nested", map[string]any{"inner": map[string]any{"k": "v"}}},
		{"cyc", map[string]any{"self": nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, toGo(L.GetGlobal(tt.name))); diff != "" {
				t.Errorf("toGo() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if toGo(lua.LNil) != nil {
		t.Error("toGo(nil) should be nil")
	}
}
