package refresh

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	serrors "github.com/Aman-CERP/annserve/internal/errors"
)

// Reloader refreshes every stale index and names the ones it reloaded.
type Reloader interface {
	MaybeReloadAll(ctx context.Context) ([]string, error)
}

// Options configures a Scheduler and its Watcher.
type Options struct {
	// Interval between periodic checks. Zero disables them.
	Interval time.Duration
	// Debounce is the quiet window before a watched change triggers a check.
	Debounce time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Debounce <= 0 {
		o.Debounce = 2 * time.Second
	}
	return o
}

// Cycle is the outcome of one check.
type Cycle struct {
	Trigger  string
	Reloaded []string
	Err      error
	Duration time.Duration
}

// Scheduler triggers staleness checks. One check runs at a time.
type Scheduler struct {
	target  Reloader
	opts    Options
	watcher *Watcher
	cycles  atomic.Int64
}

// NewScheduler creates a scheduler for target. watcher may be nil.
func NewScheduler(target Reloader, watcher *Watcher, opts Options) *Scheduler {
	return &Scheduler{target: target, opts: opts.withDefaults(), watcher: watcher}
}

// Cycles returns how many checks have completed.
func (s *Scheduler) Cycles() int64 {
	return s.cycles.Load()
}

// Run blocks until ctx is done, checking on every tick and every watched
// change batch.
func (s *Scheduler) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if s.opts.Interval > 0 {
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var changes <-chan []string
	if s.watcher != nil {
		changes = s.watcher.Changes()
		go func() {
			if err := s.watcher.Run(ctx); err != nil {
				s.opts.Logger.Error("source watcher stopped", slog.String("error", err.Error()))
			}
		}()
		defer func() { _ = s.watcher.Close() }()
	}

	s.opts.Logger.Info("refresh scheduler started",
		slog.Duration("interval", s.opts.Interval),
		slog.Bool("watch", s.watcher != nil))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			s.Check(ctx, "interval")
		case keys, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			s.opts.Logger.Debug("archives changed", slog.Any("keys", keys))
			s.Check(ctx, "watch")
		}
	}
}

// Check runs one MaybeReloadAll and logs the outcome.
func (s *Scheduler) Check(ctx context.Context, trigger string) Cycle {
	start := time.Now()
	reloaded, err := s.target.MaybeReloadAll(ctx)
	c := Cycle{Trigger: trigger, Reloaded: reloaded, Err: err, Duration: time.Since(start)}
	s.cycles.Add(1)

	attrs := []any{
		slog.String("trigger", trigger),
		slog.Any("reloaded", reloaded),
		slog.Duration("duration", c.Duration),
	}
	if err != nil {
		s.opts.Logger.Warn("refresh cycle had failures", append(attrs, serrors.FormatForLog(err)...)...)
	} else if len(reloaded) > 0 {
		s.opts.Logger.Info("refresh cycle reloaded indexes", attrs...)
	} else {
		s.opts.Logger.Debug("refresh cycle found nothing stale", attrs...)
	}
	return c
}
