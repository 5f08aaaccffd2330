// Package ann keeps named nearest-neighbor indexes warm and answers
// queries against them.
//
// A Resource holds the current immutable Snapshot of one index and swaps
// it wholesale on reload. A Registry owns every Resource and wires the
// links between them: an out-of-index (OOI) source used to find vectors
// for ids an index does not hold, and a fallback parent consulted when an
// index returns fewer neighbors than asked for. Links are names resolved
// through the Registry, never pointers between resources.
package ann
