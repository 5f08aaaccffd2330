// Package ooi provides external vector stores used to resolve ids that
// are out of index: ids a query names but an index snapshot does not hold.
package ooi

import "context"

// Store looks up one vector by id.
// A missing id is (nil, false, nil); err is reserved for store failures.
type Store interface {
	Vector(ctx context.Context, id string) ([]float32, bool, error)
}

// Func adapts a function to Store.
type Func func(ctx context.Context, id string) ([]float32, bool, error)

// Vector implements Store.
func (f Func) Vector(ctx context.Context, id string) ([]float32, bool, error) {
	return f(ctx, id)
}

// Map is an in-memory Store, handy for fixtures.
type Map map[string][]float32

// Vector implements Store.
func (m Map) Vector(_ context.Context, id string) ([]float32, bool, error) {
	v, ok := m[id]
	if !ok {
		return nil, false, nil
	}
	return append([]float32(nil), v...), true, nil
}
