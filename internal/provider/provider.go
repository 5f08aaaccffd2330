// Package provider wraps the approximate nearest-neighbor libraries that
// back an index snapshot. Items are addressed by ordinal: the position of
// their id in the snapshot's id table.
package provider

import (
	"errors"
	"fmt"
	"io"
)

// Metric is the distance metric an index was built with.
type Metric string

const (
	// Angular is cosine distance, 1 - cos(a, b), in [0, 2].
	Angular Metric = "angular"
	// Euclidean is the L2 distance.
	Euclidean Metric = "euclidean"
	// Dot is inner-product distance. Recognized in metadata but not served.
	Dot Metric = "dot"
)

// Kind selects an index implementation.
type Kind string

const (
	// KindHNSW is a coder/hnsw graph export.
	KindHNSW Kind = "hnsw"
	// KindFlat is raw little-endian float32 rows searched exhaustively.
	KindFlat Kind = "flat"
)

var (
	// ErrUnsupported is returned for metrics or kinds no provider serves.
	ErrUnsupported = errors.New("unsupported index configuration")
	// ErrOrdinal is returned for an ordinal outside [0, Len).
	ErrOrdinal = errors.New("ordinal out of range")
	// ErrDimension is returned when a query vector has the wrong length.
	ErrDimension = errors.New("vector dimension mismatch")
)

// Neighbor is one search hit.
type Neighbor struct {
	Ordinal  int
	Distance float32
}

// Index is a read-only loaded index. Implementations are safe for
// concurrent queries.
type Index interface {
	Len() int
	Dimensions() int
	Metric() Metric
	// NeighborsByItem returns up to k neighbors of the item at ord,
	// nearest first. The item itself is normally among them.
	NeighborsByItem(ord, k int) ([]Neighbor, error)
	// NeighborsByVector returns up to k neighbors of vec, nearest first.
	NeighborsByVector(vec []float32, k int) ([]Neighbor, error)
	// ItemVector returns a copy of the stored vector at ord.
	ItemVector(ord int) ([]float32, error)
}

// Options tunes index construction and search.
type Options struct {
	// M is the HNSW graph degree.
	M int
	// EfSearch is the HNSW candidate list size at query time.
	EfSearch int
	// Seed makes HNSW level assignment reproducible when non-zero.
	Seed int64
}

// DefaultOptions returns the coder/hnsw recommended parameters.
func DefaultOptions() Options {
	return Options{M: 16, EfSearch: 64}
}

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case Angular, Euclidean, Dot:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown metric %q", ErrUnsupported, s)
}

// ParseKind validates an index kind. Empty means KindHNSW.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case "":
		return KindHNSW, nil
	case KindHNSW, KindFlat:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown index type %q", ErrUnsupported, s)
}

func checkMetric(m Metric) error {
	if m != Angular && m != Euclidean {
		return fmt.Errorf("%w: metric %q", ErrUnsupported, m)
	}
	return nil
}

// Open reads an index blob of the given kind.
func Open(r io.Reader, kind Kind, dims int, metric Metric, opts Options) (Index, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("invalid dimensions %d", dims)
	}
	if err := checkMetric(metric); err != nil {
		return nil, err
	}
	switch kind {
	case KindHNSW, "":
		return openHNSW(r, dims, metric, opts)
	case KindFlat:
		return openFlat(r, dims, metric)
	}
	return nil, fmt.Errorf("%w: index type %q", ErrUnsupported, kind)
}

// Build constructs an index over vectors (ordinal = slice position) and
// writes its blob to w.
func Build(w io.Writer, kind Kind, dims int, metric Metric, vectors [][]float32, opts Options) error {
	if dims <= 0 {
		return fmt.Errorf("invalid dimensions %d", dims)
	}
	if err := checkMetric(metric); err != nil {
		return err
	}
	for i, v := range vectors {
		if len(v) != dims {
			return fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrDimension, i, len(v), dims)
		}
	}
	switch kind {
	case KindHNSW, "":
		return buildHNSW(w, metric, vectors, opts)
	case KindFlat:
		return writeFlat(w, vectors)
	}
	return fmt.Errorf("%w: index type %q", ErrUnsupported, kind)
}
