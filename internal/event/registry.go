package event

import (
	"sort"
	"sync"

	"github.com/dshills/databus/internal/event/channel"
)

// Registry maps channel names to ordered listener lists.
// The wildcard channel is always present. It is thread-safe.
type Registry struct {
	mu        sync.RWMutex
	listeners map[channel.Name][]*Listener
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		listeners: emptyListenerMap(),
	}
}

func emptyListenerMap() map[channel.Name][]*Listener {
	return map[channel.Name][]*Listener{
		channel.Wildcard: {},
	}
}

// Add appends l to the listeners of ch. Duplicates are kept.
func (r *Registry) Add(ch channel.Name, l *Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.listeners[ch] = append(r.listeners[ch], l)
}

// Remove removes every occurrence of l from ch and returns how many were removed.
func (r *Registry) Remove(ch channel.Name, l *Listener) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.listeners[ch]
	if len(current) == 0 {
		return 0
	}

	kept := make([]*Listener, 0, len(current))
	for _, existing := range current {
		if existing != l {
			kept = append(kept, existing)
		}
	}
	removed := len(current) - len(kept)

	if len(kept) == 0 && ch != channel.Wildcard {
		delete(r.listeners, ch)
	} else {
		r.listeners[ch] = kept
	}
	return removed
}

// Get returns a copy of the listeners registered on exactly ch.
func (r *Registry) Get(ch channel.Name) []*Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()

	current := r.listeners[ch]
	if len(current) == 0 {
		return nil
	}
	result := make([]*Listener, len(current))
	copy(result, current)
	return result
}

// Has reports whether l is registered on ch.
func (r *Registry) Has(ch channel.Name, l *Listener) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, existing := range r.listeners[ch] {
		if existing == l {
			return true
		}
	}
	return false
}

// Match returns the dispatch snapshot for a trigger on ch: the listeners of
// each namespace prefix of ch, least specific first, followed by the
// wildcard listeners unless ch is the wildcard itself. The result is a copy.
func (r *Registry) Match(ch channel.Name) []*Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Listener
	for _, prefix := range ch.Prefixes() {
		out = append(out, r.listeners[prefix]...)
	}

	if ch.IsWildcard() {
		return out
	}

	return append(out, r.listeners[channel.Wildcard]...)
}

// Count returns the total number of registrations, duplicates included.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, ls := range r.listeners {
		count += len(ls)
	}
	return count
}

// Channels returns the registered channel names, sorted.
// The wildcard channel is always included.
func (r *Registry) Channels() []channel.Name {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]channel.Name, 0, len(r.listeners))
	for ch := range r.listeners {
		names = append(names, ch)
	}
	sort.Slice(names, func(i, j int) bool {
		return names[i] < names[j]
	})
	return names
}

// Entry is one registration.
type Entry struct {
	Channel  channel.Name
	Listener *Listener
}

// Clear removes all listeners and restores the empty wildcard entry, then
// registers keep in order. Readers never see the registry in between.
func (r *Registry) Clear(keep ...Entry) {
	listeners := emptyListenerMap()
	for _, e := range keep {
		listeners[e.Channel] = append(listeners[e.Channel], e.Listener)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.listeners = listeners
}
