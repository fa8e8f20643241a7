package script

import (
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/databus/internal/event"
	"github.com/dshills/databus/internal/event/channel"
)

// toGo converts a Lua value to a Go payload. Tables become []any when their
// keys are exactly 1..n and map[string]any otherwise. Functions are kept as
// lua.LValue so they survive a round trip through the bus.
func toGo(lv lua.LValue) any {
	return toGoVisited(lv, make(map[*lua.LTable]bool))
}

func toGoVisited(lv lua.LValue, visited map[*lua.LTable]bool) any {
	switch v := lv.(type) {
	case nil, *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return numberToGo(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		defer delete(visited, v)
		return tableToGo(v, visited)
	case *lua.LUserData:
		return v.Value
	default:
		return lv
	}
}

// numberToGo returns an int64 for integral numbers.
func numberToGo(n lua.LNumber) any {
	f := float64(n)
	if f == math.Trunc(f) && f >= math.MinInt64 && f <= math.MaxInt64 {
		return int64(f)
	}
	return f
}

func tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) any {
	n := t.Len()
	count := 0
	t.ForEach(func(_, _ lua.LValue) { count++ })

	if n > 0 && n == count {
		arr := make([]any, n)
		for i := 1; i <= n; i++ {
			arr[i-1] = toGoVisited(t.RawGetInt(i), visited)
		}
		return arr
	}

	m := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = fmt.Sprint(numberToGo(kv))
		default:
			key = k.String()
		}
		m[key] = toGoVisited(v, visited)
	})
	return m
}

// toLua converts a payload for a Lua listener.
func (b *Binding) toLua(v any) lua.LValue {
	L := b.L
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return val
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int8:
		return lua.LNumber(val)
	case int16:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case uint:
		return lua.LNumber(val)
	case uint8:
		return lua.LNumber(val)
	case uint16:
		return lua.LNumber(val)
	case uint32:
		return lua.LNumber(val)
	case uint64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case channel.Name:
		return lua.LString(val)
	case []byte:
		return lua.LString(val)
	case []any:
		t := L.CreateTable(len(val), 0)
		for i, item := range val {
			t.RawSetInt(i+1, b.toLua(item))
		}
		return t
	case []string:
		t := L.CreateTable(len(val), 0)
		for i, item := range val {
			t.RawSetInt(i+1, lua.LString(item))
		}
		return t
	case map[string]any:
		t := L.CreateTable(0, len(val))
		for k, item := range val {
			t.RawSetString(k, b.toLua(item))
		}
		return t
	case map[string]string:
		t := L.CreateTable(0, len(val))
		for k, item := range val {
			t.RawSetString(k, lua.LString(item))
		}
		return t
	case event.SubscriptionEvent:
		t := L.CreateTable(0, 3)
		t.RawSetString("channel", lua.LString(val.Channel))
		t.RawSetString("listener", b.functionFor(val.Listener))
		if b.tbl != nil {
			t.RawSetString("bus", b.tbl)
		}
		return t
	case event.ErrorEvent:
		return b.errorTable(val)
	case error:
		return lua.LString(val.Error())
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

// errorTable describes a listener failure on "EventBus.error".
func (b *Binding) errorTable(ev event.ErrorEvent) *lua.LTable {
	t := b.L.CreateTable(0, 5)
	t.RawSetString("channel", lua.LString(ev.Info.Channel))
	t.RawSetString("subscribers", lua.LNumber(ev.Info.Subscribers))
	if f := ev.Failure; f != nil {
		t.RawSetString("name", lua.LString(f.Name()))
		t.RawSetString("kind", lua.LString(f.Kind))
		if f.Err != nil {
			t.RawSetString("message", lua.LString(failureMessage(f.Err)))
		}
	}
	return t
}

// failureMessage strips the traceback gopher-lua appends to errors.
func failureMessage(err error) string {
	if apiErr, ok := err.(*lua.ApiError); ok && apiErr.Object != nil {
		return apiErr.Object.String()
	}
	return err.Error()
}

// infoTable describes a dispatch to a Lua listener.
func (b *Binding) infoTable(info event.DispatchInfo) *lua.LTable {
	t := b.L.CreateTable(0, 5)
	t.RawSetString("channel", lua.LString(info.Channel))
	t.RawSetString("subscribers", lua.LNumber(info.Subscribers))
	t.RawSetString("async", lua.LBool(info.Async))
	t.RawSetString("index", lua.LNumber(info.Index()+1))
	t.RawSetString("queue", lua.LNumber(info.QueueLength()))
	return t
}
