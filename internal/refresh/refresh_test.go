package refresh

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReloader struct {
	mu    sync.Mutex
	calls int
	err   error
	names []string
	hit   chan struct{}
}

func newFakeReloader() *fakeReloader {
	return &fakeReloader{hit: make(chan struct{}, 100)}
}

func (f *fakeReloader) MaybeReloadAll(context.Context) ([]string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	f.hit <- struct{}{}
	return f.names, f.err
}

func (f *fakeReloader) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitHit(t *testing.T, f *fakeReloader, timeout time.Duration) {
	t.Helper()
	select {
	case <-f.hit:
	case <-time.After(timeout):
		t.Fatal("timeout waiting for a refresh check")
	}
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	// Given: a debouncer with a short window
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	// When: the same keys arrive several times in quick succession
	for i := 0; i < 5; i++ {
		d.Add("b.tar.gz")
		d.Add("a.tar.gz")
		time.Sleep(5 * time.Millisecond)
	}

	// Then: one sorted batch comes out
	select {
	case keys := <-d.Output():
		assert.Equal(t, []string{"a.tar.gz", "b.tar.gz"}, keys)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for debounced batch")
	}

	select {
	case keys := <-d.Output():
		t.Fatalf("unexpected second batch %v", keys)
	case <-time.After(120 * time.Millisecond):
	}
}

func TestDebouncer_StopClosesOutput(t *testing.T) {
	d := NewDebouncer(time.Hour)
	d.Add("x")

	d.Stop()
	d.Stop()
	d.Add("y")

	_, ok := <-d.Output()
	assert.False(t, ok)
}

func TestScheduler_Check(t *testing.T) {
	f := newFakeReloader()
	f.names = []string{"test_ann1"}
	s := NewScheduler(f, nil, Options{Logger: quiet()})

	c := s.Check(context.Background(), "manual")

	assert.Equal(t, "manual", c.Trigger)
	assert.Equal(t, []string{"test_ann1"}, c.Reloaded)
	assert.NoError(t, c.Err)
	assert.Equal(t, int64(1), s.Cycles())
}

func TestScheduler_CheckReportsErrors(t *testing.T) {
	f := newFakeReloader()
	f.err = errors.New("stat failed")
	s := NewScheduler(f, nil, Options{Logger: quiet()})

	c := s.Check(context.Background(), "interval")

	assert.EqualError(t, c.Err, "stat failed")
}

func TestScheduler_RunsOnInterval(t *testing.T) {
	// Given: a scheduler ticking every 20ms
	f := newFakeReloader()
	s := NewScheduler(f, nil, Options{Interval: 20 * time.Millisecond, Logger: quiet()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	// When
	go func() { done <- s.Run(ctx) }()
	waitHit(t, f, time.Second)
	waitHit(t, f, time.Second)
	cancel()

	// Then: it ran at least twice and stops on cancel
	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, f.count(), 2)
}

func TestScheduler_ZeroIntervalWaitsForCancel(t *testing.T) {
	f := newFakeReloader()
	s := NewScheduler(f, nil, Options{Logger: quiet()})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, s.Run(ctx))
	assert.Zero(t, f.count())
}

func TestWatcher_ReportsMatchingArchives(t *testing.T) {
	// Given: a watcher on an empty root
	root := t.TempDir()
	w, err := NewWatcher(root, "**.tar*", Options{Debounce: 30 * time.Millisecond, Logger: quiet()})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	// When: an archive and an unrelated file appear, one in a new directory
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "test_ann1.tar.gz"), []byte("x"), 0o644))

	// Then: only the archive is reported
	select {
	case keys := <-w.Changes():
		assert.Equal(t, []string{"test_ann1.tar.gz"}, keys)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for watcher batch")
	}
}

func TestWatcher_FollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(root, "**.tar*", Options{Debounce: 30 * time.Millisecond, Logger: quiet()})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	sub := filepath.Join(root, "models")
	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "items.tar"), []byte("x"), 0o644))

	select {
	case keys := <-w.Changes():
		assert.Equal(t, []string{"models/items.tar"}, keys)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for watcher batch")
	}
}

func TestWatcher_InvalidPattern(t *testing.T) {
	_, err := NewWatcher(t.TempDir(), "[", Options{})
	assert.Error(t, err)
}

func TestScheduler_ChecksOnWatchedChange(t *testing.T) {
	// Given: a scheduler with no interval but a watcher
	root := t.TempDir()
	w, err := NewWatcher(root, "*.tar*", Options{Debounce: 20 * time.Millisecond, Logger: quiet()})
	require.NoError(t, err)
	f := newFakeReloader()
	s := NewScheduler(f, w, Options{Logger: quiet()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	// When: an archive is uploaded
	require.NoError(t, os.WriteFile(filepath.Join(root, "test_ann2.tar.gz"), []byte("x"), 0o644))

	// Then: a check runs
	waitHit(t, f, 2*time.Second)
	cancel()
	require.NoError(t, <-done)
}
