package ann

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/annserve/internal/ann/anntest"
	"github.com/Aman-CERP/annserve/internal/archive"
	"github.com/Aman-CERP/annserve/internal/blob"
	"github.com/Aman-CERP/annserve/internal/provider"
)

const (
	fixtureItems = anntest.Items
	fixtureDims  = anntest.Dims
)

func ann1IDs() []string { return anntest.NumericIDs(fixtureItems) }

func ann2IDs() []string { return anntest.PrefixedIDs(fixtureItems, "t2-") }

func newFixture(name string, ids []string, seed uint64, metric provider.Metric) anntest.Fixture {
	return anntest.New(name, ids, seed, metric)
}

// env is a blob root, an extraction root and the fixtures written so far.
type env struct {
	t        *testing.T
	blobRoot string
	extract  string
	store    *blob.LocalStore
	fixtures map[string]anntest.Fixture
}

func newEnv(t *testing.T, fixtures ...anntest.Fixture) *env {
	t.Helper()
	root := t.TempDir()
	store, err := blob.NewLocalStore(root)
	require.NoError(t, err)
	e := &env{t: t, blobRoot: root, extract: t.TempDir(), store: store, fixtures: map[string]anntest.Fixture{}}
	for _, f := range fixtures {
		e.write(f, nil)
	}
	return e
}

func (e *env) archivePath(name string) string {
	return filepath.Join(e.blobRoot, name+".tar.gz")
}

func (e *env) write(f anntest.Fixture, ids []string) {
	e.t.Helper()
	require.NoError(e.t, f.WriteWithIDs(e.blobRoot, ids))
	e.fixtures[f.Name] = f
}

func (e *env) entries(name string) []archive.Entry {
	e.t.Helper()
	entries, err := e.fixtures[name].Entries(nil)
	require.NoError(e.t, err)
	return entries
}

// touch moves the archive's modification time to d from now.
func (e *env) touch(name string, d time.Duration) {
	e.t.Helper()
	ts := time.Now().Add(d)
	require.NoError(e.t, os.Chtimes(e.archivePath(name), ts, ts))
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testResourceOptions() ResourceOptions {
	opts := DefaultResourceOptions()
	opts.Fetch.MaxRetries = 0
	opts.Stat.MaxRetries = 0
	opts.FetchTimeout = 10 * time.Second
	opts.Logger = quietLogger()
	return opts
}

func (e *env) resource(name string) *Resource {
	return NewResource(name, name+".tar.gz", filepath.Join(e.extract, name), e.store, testResourceOptions())
}

func (e *env) registry() *Registry {
	e.t.Helper()
	sources, err := Discover(context.Background(), e.store, "*.tar*", "base")
	require.NoError(e.t, err)
	g, err := NewRegistry(context.Background(), e.store, sources, Options{
		ExtractDir:  e.extract,
		LoadWorkers: 2,
		Resource:    testResourceOptions(),
	})
	require.NoError(e.t, err)
	return g
}

// standardEnv holds test_ann1 and test_ann2.
func standardEnv(t *testing.T) *env {
	a1, a2 := anntest.Standard()
	return newEnv(t, a1, a2)
}

func strPtr(s string) *string { return &s }

func f64Ptr(f float64) *float64 { return &f }

func idsOf(ns []Neighbor) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.ID
	}
	return out
}
