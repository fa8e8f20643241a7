// Package watch reports changes to a set of files.
//
// Parent directories are watched rather than the files themselves, so files
// replaced by an editor's rename-on-save keep being reported. Bursts of
// changes to one file within the debounce delay are merged into one Event.
package watch
