// Package channel provides hierarchical channel names for the event bus.
//
// # Channel Format
//
// Channels use dot-notation to create hierarchical namespaces:
//
//	app.user.created
//	app.user
//	42
//
// A listener on a prefix receives every descendant: a listener on "app"
// fires for "app.user.created". Prefix inclusion is cumulative, not a
// priority scheme. Prefixes returns the chain a dispatch walks, least
// specific first:
//
//	Name("app.user.created").Prefixes()
//	// ["app", "app.user", "app.user.created"]
//
// # Wildcard
//
// The single wildcard channel "*" is not a pattern. Listeners on "*" fire
// for every triggered channel, after all namespace matches.
//
// # Dynamic Names
//
// Parse accepts the values a dynamic caller may pass as a channel name:
// strings and integers. Anything else (nil, slices, maps, structs, floats)
// is rejected with ErrInvalidName.
package channel
