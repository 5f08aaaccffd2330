package provider

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"sort"

	"github.com/coder/hnsw"
)

// hnswIndex serves a coder/hnsw graph keyed by ordinal. The graph is never
// mutated after Open, so searches need no locking.
type hnswIndex struct {
	graph  *hnsw.Graph[uint64]
	dims   int
	metric Metric
	dist   func(a, b []float32) float32
}

func newGraph(metric Metric, opts Options) *hnsw.Graph[uint64] {
	def := DefaultOptions()
	if opts.M <= 0 {
		opts.M = def.M
	}
	if opts.EfSearch <= 0 {
		opts.EfSearch = def.EfSearch
	}

	g := hnsw.NewGraph[uint64]()
	g.M = opts.M
	g.EfSearch = opts.EfSearch
	g.Ml = 0.25
	if metric == Euclidean {
		g.Distance = hnsw.EuclideanDistance
	} else {
		g.Distance = hnsw.CosineDistance
	}
	if opts.Seed != 0 {
		g.Rng = rand.New(rand.NewSource(opts.Seed))
	}
	return g
}

func buildHNSW(w io.Writer, metric Metric, vectors [][]float32, opts Options) error {
	g := newGraph(metric, opts)
	for i, v := range vectors {
		vec := append([]float32(nil), v...)
		g.Add(hnsw.MakeNode(uint64(i), vec))
	}
	if err := g.Export(w); err != nil {
		return fmt.Errorf("export hnsw graph: %w", err)
	}
	return nil
}

func openHNSW(r io.Reader, dims int, metric Metric, opts Options) (*hnswIndex, error) {
	g := newGraph(metric, opts)
	// Import needs an io.ByteReader.
	if err := g.Import(bufio.NewReader(r)); err != nil {
		return nil, fmt.Errorf("import hnsw graph: %w", err)
	}
	if opts.EfSearch > 0 {
		g.EfSearch = opts.EfSearch
	}

	idx := &hnswIndex{graph: g, dims: dims, metric: metric, dist: distanceFunc(metric)}
	n := g.Len()
	if n > 0 {
		// Keys must be exactly the ordinals 0..n-1.
		for _, probe := range []int{0, n - 1} {
			v, ok := g.Lookup(uint64(probe))
			if !ok {
				return nil, fmt.Errorf("hnsw graph is missing ordinal %d", probe)
			}
			if len(v) != dims {
				return nil, fmt.Errorf("%w: graph holds %d-dim vectors, metadata says %d", ErrDimension, len(v), dims)
			}
		}
	}
	return idx, nil
}

func (h *hnswIndex) Len() int        { return h.graph.Len() }
func (h *hnswIndex) Dimensions() int { return h.dims }
func (h *hnswIndex) Metric() Metric  { return h.metric }

func (h *hnswIndex) ItemVector(ord int) ([]float32, error) {
	if ord < 0 || ord >= h.graph.Len() {
		return nil, fmt.Errorf("%w: %d", ErrOrdinal, ord)
	}
	v, ok := h.graph.Lookup(uint64(ord))
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrOrdinal, ord)
	}
	return append([]float32(nil), v...), nil
}

func (h *hnswIndex) NeighborsByItem(ord, k int) ([]Neighbor, error) {
	v, err := h.ItemVector(ord)
	if err != nil {
		return nil, err
	}
	return h.search(v, k), nil
}

func (h *hnswIndex) NeighborsByVector(vec []float32, k int) ([]Neighbor, error) {
	if len(vec) != h.dims {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(vec), h.dims)
	}
	return h.search(vec, k), nil
}

// search recomputes distances with the zero-safe metric and orders by
// them, since graph results are only approximately sorted. The greedy
// walk can stop short of k on small or sparse graphs; the shortfall is
// filled from an exact scan of the ordinals it missed.
func (h *hnswIndex) search(q []float32, k int) []Neighbor {
	n := h.graph.Len()
	if k <= 0 || n == 0 {
		return []Neighbor{}
	}
	k = min(k, n)

	nodes := h.graph.Search(q, k)
	out := make([]Neighbor, 0, k)
	seen := make(map[int]bool, len(nodes))
	for _, node := range nodes {
		ord := int(node.Key)
		if seen[ord] {
			continue
		}
		seen[ord] = true
		out = append(out, Neighbor{Ordinal: ord, Distance: h.dist(q, node.Value)})
	}
	if len(out) < k {
		out = append(out, h.scan(q, k-len(out), seen)...)
	}
	sortNeighbors(out)
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// scan ranks every ordinal not in seen and keeps the nearest need.
func (h *hnswIndex) scan(q []float32, need int, seen map[int]bool) []Neighbor {
	n := h.graph.Len()
	rest := make([]Neighbor, 0, n-len(seen))
	for ord := range n {
		if seen[ord] {
			continue
		}
		v, ok := h.graph.Lookup(uint64(ord))
		if !ok {
			continue
		}
		rest = append(rest, Neighbor{Ordinal: ord, Distance: h.dist(q, v)})
	}
	sortNeighbors(rest)
	return rest[:min(need, len(rest))]
}

func sortNeighbors(ns []Neighbor) {
	sort.SliceStable(ns, func(a, b int) bool {
		if ns[a].Distance != ns[b].Distance {
			return ns[a].Distance < ns[b].Distance
		}
		return ns[a].Ordinal < ns[b].Ordinal
	})
}
