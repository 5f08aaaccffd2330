package provider

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
)

// flatIndex searches every row. Exact, and the reference for tests.
type flatIndex struct {
	dims   int
	metric Metric
	rows   [][]float32
	dist   func(a, b []float32) float32
}

func openFlat(r io.Reader, dims int, metric Metric) (*flatIndex, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read flat index: %w", err)
	}
	rowBytes := dims * 4
	if len(data)%rowBytes != 0 {
		return nil, fmt.Errorf("flat index: %d bytes is not a multiple of %d-dim rows", len(data), dims)
	}
	n := len(data) / rowBytes
	rows := make([][]float32, n)
	backing := make([]float32, n*dims)
	for i := range backing {
		backing[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	for i := range rows {
		rows[i] = backing[i*dims : (i+1)*dims : (i+1)*dims]
	}
	return &flatIndex{dims: dims, metric: metric, rows: rows, dist: distanceFunc(metric)}, nil
}

func writeFlat(w io.Writer, vectors [][]float32) error {
	bw := bufio.NewWriter(w)
	var buf [4]byte
	for _, v := range vectors {
		for _, x := range v {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(x))
			if _, err := bw.Write(buf[:]); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

func (f *flatIndex) Len() int        { return len(f.rows) }
func (f *flatIndex) Dimensions() int { return f.dims }
func (f *flatIndex) Metric() Metric  { return f.metric }

func (f *flatIndex) ItemVector(ord int) ([]float32, error) {
	if ord < 0 || ord >= len(f.rows) {
		return nil, fmt.Errorf("%w: %d", ErrOrdinal, ord)
	}
	return append([]float32(nil), f.rows[ord]...), nil
}

func (f *flatIndex) NeighborsByItem(ord, k int) ([]Neighbor, error) {
	if ord < 0 || ord >= len(f.rows) {
		return nil, fmt.Errorf("%w: %d", ErrOrdinal, ord)
	}
	return f.search(f.rows[ord], k), nil
}

func (f *flatIndex) NeighborsByVector(vec []float32, k int) ([]Neighbor, error) {
	if len(vec) != f.dims {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(vec), f.dims)
	}
	return f.search(vec, k), nil
}

// search ranks by distance, breaking ties by ordinal.
func (f *flatIndex) search(q []float32, k int) []Neighbor {
	if k <= 0 || len(f.rows) == 0 {
		return []Neighbor{}
	}
	all := make([]Neighbor, len(f.rows))
	for i, row := range f.rows {
		all[i] = Neighbor{Ordinal: i, Distance: f.dist(q, row)}
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].Distance < all[b].Distance })
	if k > len(all) {
		k = len(all)
	}
	return all[:k:k]
}
