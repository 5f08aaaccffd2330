// Package anntest builds index archives for tests and local fixtures.
package anntest

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Aman-CERP/annserve/internal/archive"
	"github.com/Aman-CERP/annserve/internal/builder"
	"github.com/Aman-CERP/annserve/internal/provider"
)

// Standard fixture shape: 100 items of 40 dimensions.
const (
	Items = 100
	Dims  = 40
)

// Fixture is the content of one index archive.
type Fixture struct {
	Name    string
	IDs     []string
	Vectors [][]float32
	Metric  provider.Metric
	Kind    provider.Kind
}

// New creates a flat fixture with seeded random vectors.
func New(name string, ids []string, seed uint64, metric provider.Metric) Fixture {
	return Fixture{
		Name:    name,
		IDs:     ids,
		Vectors: RandomVectors(seed, len(ids), Dims),
		Metric:  metric,
		Kind:    provider.KindFlat,
	}
}

// NumericIDs returns "0".."n-1".
func NumericIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = strconv.Itoa(i)
	}
	return ids
}

// PrefixedIDs returns "0" followed by prefix+"1".."n-1", so the set
// shares exactly one id with NumericIDs.
func PrefixedIDs(n int, prefix string) []string {
	ids := make([]string, n)
	ids[0] = "0"
	for i := 1; i < n; i++ {
		ids[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return ids
}

// RandomVectors returns n normally distributed vectors.
func RandomVectors(seed uint64, n, dims int) [][]float32 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dims)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		out[i] = v
	}
	return out
}

// Entries renders the archive members. ids, when non-nil, replaces the id
// list so tests can produce inconsistent archives.
func (f Fixture) Entries(ids []string) ([]archive.Entry, error) {
	opts := builder.DefaultOptions()
	opts.Metric, opts.Kind, opts.VecSource = f.Metric, f.Kind, "anntest"
	entries, err := builder.Entries(f.IDs, f.Vectors, opts)
	if err != nil || ids == nil {
		return entries, err
	}

	var text bytes.Buffer
	for _, id := range ids {
		text.WriteString(id)
		text.WriteByte('\n')
	}
	for i := range entries {
		if entries[i].Name == archive.IDsFile {
			entries[i].Data = text.Bytes()
		}
	}
	return entries, nil
}

// Path returns where WriteTo places the archive under dir.
func (f Fixture) Path(dir string) string {
	return filepath.Join(dir, f.Name+".tar.gz")
}

// WriteTo writes <dir>/<name>.tar.gz.
func (f Fixture) WriteTo(dir string) error {
	return f.WriteWithIDs(dir, nil)
}

// WriteWithIDs is WriteTo with a replacement id list.
func (f Fixture) WriteWithIDs(dir string, ids []string) error {
	entries, err := f.Entries(ids)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := archive.Write(&buf, entries, true); err != nil {
		return err
	}
	return os.WriteFile(f.Path(dir), buf.Bytes(), 0o644)
}

// Standard returns test_ann1 (ids "0".."99") and test_ann2 (ids "0" and
// "t2-1".."t2-99"), both angular.
func Standard() (Fixture, Fixture) {
	return New("test_ann1", NumericIDs(Items), 1, provider.Angular),
		New("test_ann2", PrefixedIDs(Items, "t2-"), 2, provider.Angular)
}
