package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dshills/databus/internal/event/channel"
)

// emit is one -emit flag: a channel and a JSON payload.
type emit struct {
	channel channel.Name
	payload any
}

// emitList implements flag.Value for repeated -emit flags.
type emitList []emit

// String implements flag.Value.
func (l *emitList) String() string {
	parts := make([]string, len(*l))
	for i, e := range *l {
		parts[i] = e.channel.String()
	}
	return strings.Join(parts, ",")
}

// Set parses "channel" or "channel=JSON". JSON objects become
// map[string]any and arrays []any; numbers are float64.
func (l *emitList) Set(value string) error {
	e, err := parseEmit(value)
	if err != nil {
		return err
	}
	*l = append(*l, e)
	return nil
}

func parseEmit(value string) (emit, error) {
	name, raw, hasPayload := strings.Cut(value, "=")
	if name == "" {
		return emit{}, errors.New("emit: missing channel")
	}

	e := emit{channel: channel.Name(name)}
	if !hasPayload || strings.TrimSpace(raw) == "" {
		return e, nil
	}
	if !gjson.Valid(raw) {
		return emit{}, fmt.Errorf("emit %s: invalid JSON payload %q", name, raw)
	}
	e.payload = gjson.Parse(raw).Value()
	return e, nil
}
