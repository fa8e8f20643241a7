package main

import (
	"github.com/tidwall/sjson"

	"github.com/dshills/databus/internal/event"
)

// statsJSON renders bus statistics as a JSON object.
func statsJSON(s event.Stats) (string, error) {
	fields := []struct {
		path  string
		value any
	}{
		{"triggered", s.Triggered},
		{"passes.sync", s.SyncPasses},
		{"passes.deferred", s.DeferredPasses},
		{"listeners.executed", s.ListenersExecuted},
		{"listeners.failures", s.ListenerFailures},
		{"listeners.panics", s.ListenerPanics},
		{"subscribers", s.Subscribers},
		{"channels", s.Channels},
		{"pending_units", s.PendingUnits},
	}

	out := "{}"
	for _, f := range fields {
		var err error
		if out, err = sjson.Set(out, f.path, f.value); err != nil {
			return "", err
		}
	}
	return out, nil
}
