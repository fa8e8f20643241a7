package channel

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Name is a hierarchical channel identifier using dot notation.
type Name string

const (
	// Wildcard receives every triggered channel.
	Wildcard Name = "*"

	// Separator splits a name into namespace segments.
	Separator = "."
)

// Reserved channels published by the bus itself.
const (
	// Subscribed is triggered after a listener was added.
	Subscribed Name = "EventBus.subscribe"

	// Unsubscribed is triggered after a listener was removed.
	Unsubscribed Name = "EventBus.unsubscribe"

	// Error is triggered for every listener failure.
	Error Name = "EventBus.error"

	// Destroyed tears down an injected bus.
	Destroyed Name = "destroyed"
)

// ErrInvalidName is returned when a value cannot be used as a channel name.
var ErrInvalidName = errors.New("channel names can only be strings or integers")

// String returns the name as a string.
func (n Name) String() string {
	return string(n)
}

// IsWildcard reports whether n is literally the wildcard channel.
func (n Name) IsWildcard() bool {
	return n == Wildcard
}

// Normalize maps the empty name to the wildcard channel.
func (n Name) Normalize() Name {
	if n == "" {
		return Wildcard
	}
	return n
}

// Prefixes returns the cumulative namespace prefixes of n, least specific
// first. The last element is n itself.
//
// Example: "a.b.c" -> ["a", "a.b", "a.b.c"]
func (n Name) Prefixes() []Name {
	if n == "" {
		return nil
	}
	s := string(n)
	out := make([]Name, 0, strings.Count(s, Separator)+1)
	for i := 0; i < len(s); i++ {
		if s[i] == Separator[0] {
			out = append(out, Name(s[:i]))
		}
	}
	return append(out, n)
}

// Parse converts a dynamic value into a channel name. Strings and every
// integer kind are accepted; the empty string becomes the wildcard.
func Parse(v any) (Name, error) {
	switch val := v.(type) {
	case Name:
		return val.Normalize(), nil
	case string:
		return Name(val).Normalize(), nil
	case int:
		return Name(strconv.FormatInt(int64(val), 10)), nil
	case int8:
		return Name(strconv.FormatInt(int64(val), 10)), nil
	case int16:
		return Name(strconv.FormatInt(int64(val), 10)), nil
	case int32:
		return Name(strconv.FormatInt(int64(val), 10)), nil
	case int64:
		return Name(strconv.FormatInt(val, 10)), nil
	case uint:
		return Name(strconv.FormatUint(uint64(val), 10)), nil
	case uint8:
		return Name(strconv.FormatUint(uint64(val), 10)), nil
	case uint16:
		return Name(strconv.FormatUint(uint64(val), 10)), nil
	case uint32:
		return Name(strconv.FormatUint(uint64(val), 10)), nil
	case uint64:
		return Name(strconv.FormatUint(val, 10)), nil
	case nil:
		return "", fmt.Errorf("%w: got nil", ErrInvalidName)
	default:
		return "", fmt.Errorf("%w: got %T", ErrInvalidName, v)
	}
}
