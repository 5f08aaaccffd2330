// Package refresh keeps served indexes current.
//
// A Scheduler runs a staleness check over every resource on a fixed
// interval and, when a Watcher is attached, shortly after archives under
// the source root change on disk. Every check goes through
// MaybeReloadAll, so a resource is only refetched when its remote archive
// is newer than the local extraction.
//
// Watcher events are coalesced by a Debouncer: an upload usually produces
// a burst of create and write events for one key, and one check per burst
// is enough.
package refresh
