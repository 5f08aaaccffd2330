package ann

import (
	"context"
	"math"

	"github.com/viterin/vek/vek32"
)

// Similarity returns, for every id in ids2, its cosine similarity to each
// id in ids1, in ids1 order. Vectors are resolved through the named
// resources. An unknown resource or an id that cannot be resolved yields
// an empty map.
func Similarity(ctx context.Context, g *Registry, catalog1 string, ids1 []string, catalog2 string, ids2 []string) (map[string][]float64, error) {
	left, ok := resolveAll(ctx, g, catalog1, ids1)
	if !ok {
		return map[string][]float64{}, nil
	}
	right, ok := resolveAll(ctx, g, catalog2, ids2)
	if !ok {
		return map[string][]float64{}, nil
	}

	out := make(map[string][]float64, len(ids2))
	for j, id := range ids2 {
		row := make([]float64, len(left))
		for i, lv := range left {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			row[i] = cosine(lv, right[j])
		}
		out[id] = row
	}
	return out, nil
}

func resolveAll(ctx context.Context, g *Registry, name string, ids []string) ([][]float32, bool) {
	res, ok := g.Get(name)
	if !ok {
		return nil, false
	}
	vecs := make([][]float32, len(ids))
	for i, id := range ids {
		v, err := res.ResolveVector(ctx, id)
		if err != nil {
			return nil, false
		}
		vecs[i] = v
	}
	return vecs, true
}

// cosine is 0 for zero vectors and for vectors of different lengths.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na, nb := vek32.Dot(a, a), vek32.Dot(b, b)
	if na == 0 || nb == 0 {
		return 0
	}
	return float64(vek32.Dot(a, b)) / math.Sqrt(float64(na)*float64(nb))
}
