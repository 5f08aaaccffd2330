package refresh

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Debouncer coalesces bursts of change notifications. Keys added within
// one window are emitted together, once, after the window has been quiet.
type Debouncer struct {
	window  time.Duration
	pending map[string]struct{}
	mu      sync.Mutex
	output  chan []string
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]struct{}),
		output:  make(chan []string, 10),
	}
}

// Add records a changed key and restarts the window.
func (d *Debouncer) Add(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.pending[key] = struct{}{}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	keys := make([]string, 0, len(d.pending))
	for k := range d.pending {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	d.pending = make(map[string]struct{})

	select {
	case d.output <- keys:
	default:
		slog.Warn("debouncer output full, dropping batch",
			slog.Int("batch_size", len(keys)))
	}
}

// Output returns the channel of coalesced key batches, sorted.
func (d *Debouncer) Output() <-chan []string {
	return d.output
}

// Stop discards pending keys and closes the output channel.
// Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
