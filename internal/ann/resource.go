package ann

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/annserve/internal/archive"
	"github.com/Aman-CERP/annserve/internal/blob"
	serrors "github.com/Aman-CERP/annserve/internal/errors"
	"github.com/Aman-CERP/annserve/internal/ooi"
	"github.com/Aman-CERP/annserve/internal/provider"
)

// Status is the lifecycle state of a Resource.
type Status int32

const (
	// StatusUninitialized means no snapshot has been installed yet.
	StatusUninitialized Status = iota
	// StatusLoading means a load is in progress.
	StatusLoading
	// StatusReady means a snapshot is serving.
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// MarshalText renders the status name in JSON and YAML output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name. Unknown names read as uninitialized.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "loading":
		*s = StatusLoading
	case "ready":
		*s = StatusReady
	default:
		*s = StatusUninitialized
	}
	return nil
}

// ResourceOptions tunes one Resource.
type ResourceOptions struct {
	// FetchTimeout bounds one archive fetch plus extraction, retries included.
	FetchTimeout time.Duration
	// Fetch is the retry policy for archive downloads.
	Fetch serrors.RetryConfig
	// Stat is the retry policy for remote staleness checks.
	Stat serrors.RetryConfig
	// MaxChainDepth bounds fallback and sibling recursion per query.
	MaxChainDepth int
	// MaxK is the largest k a query may ask for.
	MaxK int
	// CheckOnQuery runs MaybeReload before each top-level query.
	CheckOnQuery bool
	// Provider tunes index opening.
	Provider provider.Options
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultResourceOptions returns options matching the config defaults.
func DefaultResourceOptions() ResourceOptions {
	fetch := serrors.DefaultRetryConfig()
	fetch.ShouldRetry = retryableFetch

	stat := serrors.DefaultRetryConfig()
	stat.MaxRetries = 2
	stat.InitialDelay = 100 * time.Millisecond
	stat.MaxDelay = time.Second
	stat.ShouldRetry = retryableFetch

	return ResourceOptions{
		FetchTimeout:  5 * time.Minute,
		Fetch:         fetch,
		Stat:          stat,
		MaxChainDepth: 8,
		MaxK:          10000,
		Provider:      provider.DefaultOptions(),
	}
}

// retryableFetch skips retries for objects that do not exist and for
// cancelled contexts.
func retryableFetch(err error) bool {
	return !errors.Is(err, blob.ErrNotFound) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// Resource serves one named index. The snapshot pointer is the only state
// queries read; links are set during wiring and fixed afterwards.
type Resource struct {
	name  string
	key   string
	dir   string
	store blob.Store
	opts  ResourceOptions
	log   *slog.Logger

	// Wiring, resolved through the registry by name.
	registry *Registry
	ooiStore ooi.Store
	ooiName  string
	sibling  string
	parent   string

	snap   atomic.Pointer[Snapshot]
	status atomic.Int32

	mu          sync.Mutex
	lastErr     error
	lastAttempt time.Time
	lastLoad    time.Time
}

// NewResource creates an unloaded resource for the archive at key,
// extracting into dir.
func NewResource(name, key, dir string, store blob.Store, opts ResourceOptions) *Resource {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxChainDepth <= 0 {
		opts.MaxChainDepth = DefaultResourceOptions().MaxChainDepth
	}
	if opts.MaxK <= 0 {
		opts.MaxK = DefaultResourceOptions().MaxK
	}
	return &Resource{
		name:  name,
		key:   key,
		dir:   dir,
		store: store,
		opts:  opts,
		log:   opts.Logger.With(slog.String("resource", name)),
	}
}

// Name returns the resource name.
func (r *Resource) Name() string { return r.name }

// Key returns the blob key of the archive.
func (r *Resource) Key() string { return r.key }

// Dir returns the extraction directory.
func (r *Resource) Dir() string { return r.dir }

// Parent returns the fallback parent name, if any.
func (r *Resource) Parent() string { return r.parent }

// Status returns the lifecycle state.
func (r *Resource) Status() Status { return Status(r.status.Load()) }

// Snapshot returns the serving snapshot, or nil before the first load.
func (r *Resource) Snapshot() *Snapshot { return r.snap.Load() }

// Load installs a fresh snapshot. With force, or when the extraction
// directory holds no timestamped copy, the archive is fetched and
// extracted first. On failure the previous snapshot keeps serving.
// Concurrent loads install in the order they extracted.
func (r *Resource) Load(ctx context.Context, force bool) error {
	r.status.Store(int32(StatusLoading))
	defer r.settleStatus()

	start := time.Now()
	snap, fetched, err := r.load(ctx, force)

	r.mu.Lock()
	r.lastAttempt = start
	r.lastErr = err
	if err == nil {
		r.lastLoad = time.Now()
	}
	r.mu.Unlock()

	if err != nil {
		r.log.Error("index load failed", serrors.FormatForLog(err)...)
		return err
	}

	r.log.Info("index loaded",
		slog.Bool("fetched", fetched),
		slog.Int("items", snap.IDs.Len()),
		slog.Int("dims", snap.Metadata.Dimensions),
		slog.String("metric", string(snap.Metadata.Metric)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (r *Resource) settleStatus() {
	if r.snap.Load() != nil {
		r.status.Store(int32(StatusReady))
		return
	}
	r.status.Store(int32(StatusUninitialized))
}

func (r *Resource) load(ctx context.Context, force bool) (*Snapshot, bool, error) {
	lock := archive.NewDirLock(r.dir)
	if err := lock.Lock(ctx); err != nil {
		return nil, false, serrors.LoadError("cannot lock extraction directory", err).
			WithDetail("resource", r.name)
	}
	defer func() { _ = lock.Unlock() }()

	extractedAt, haveLocal := readTimestamp(r.dir)
	fetch := force || !haveLocal
	if fetch {
		// An interrupted extraction must not look like a usable copy.
		if err := os.Remove(filepath.Join(r.dir, archive.TimestampFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, false, serrors.LoadError("cannot clear timestamp", err).WithDetail("resource", r.name)
		}
		// Stamp with the fetch start so an upload landing mid-fetch still
		// reads as newer on the next staleness check.
		extractedAt = time.Now().UTC()
		if err := r.fetch(ctx); err != nil {
			return nil, false, serrors.LoadError("cannot fetch archive "+r.key, err).
				WithDetail("resource", r.name)
		}
	}

	snap, err := OpenSnapshot(r.dir, r.opts.Provider)
	if err != nil {
		return nil, fetch, serrors.LoadError("cannot open index", err).WithDetail("resource", r.name)
	}
	snap.ExtractedAt = extractedAt

	if fetch {
		if err := writeTimestamp(r.dir, extractedAt); err != nil {
			return nil, fetch, serrors.LoadError("cannot record extraction time", err).
				WithDetail("resource", r.name)
		}
	}
	// Installed under the directory lock, so the serving snapshot always
	// matches the extraction on disk.
	r.snap.Store(snap)
	return snap, fetch, nil
}

func (r *Resource) fetch(ctx context.Context) error {
	if r.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.FetchTimeout)
		defer cancel()
	}
	return serrors.Retry(ctx, r.opts.Fetch, func() error {
		if err := clearExtraction(r.dir); err != nil {
			return err
		}
		rc, err := r.store.Open(ctx, r.key)
		if err != nil {
			return err
		}
		defer rc.Close()

		names, err := archive.Extract(ctx, rc, r.dir)
		if err != nil {
			return err
		}
		r.log.Debug("archive extracted", slog.Int("entries", len(names)))
		return archive.CheckComplete(r.dir)
	})
}

// clearExtraction removes files left by an earlier archive so a new one
// that lacks them fails the completeness check.
func clearExtraction(dir string) error {
	for _, name := range archive.RequiredFiles {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// IsStale reports whether the remote archive is newer than the local
// extraction. No local extraction always counts as stale.
func (r *Resource) IsStale(ctx context.Context) (bool, error) {
	extractedAt, ok := r.extractedAt()
	if !ok {
		return true, nil
	}
	info, err := serrors.RetryWithResult(ctx, r.opts.Stat, func() (blob.ObjectInfo, error) {
		return r.store.Stat(ctx, r.key)
	})
	if err != nil {
		return false, serrors.New(serrors.ErrCodeStalenessCheck, "cannot stat archive "+r.key, err).
			WithDetail("resource", r.name)
	}
	return info.ModTime.After(extractedAt), nil
}

func (r *Resource) extractedAt() (time.Time, bool) {
	if snap := r.snap.Load(); snap != nil {
		return snap.ExtractedAt, true
	}
	return readTimestamp(r.dir)
}

// MaybeReload force-loads the resource when it is stale and reports
// whether it did.
func (r *Resource) MaybeReload(ctx context.Context) (bool, error) {
	stale, err := r.IsStale(ctx)
	if err != nil {
		return false, err
	}
	if !stale {
		return false, nil
	}
	if err := r.Load(ctx, true); err != nil {
		return false, err
	}
	return true, nil
}

// readTimestamp accepts RFC 3339 text or unix seconds.
func readTimestamp(dir string) (time.Time, bool) {
	data, err := os.ReadFile(filepath.Join(dir, archive.TimestampFile))
	if err != nil {
		return time.Time{}, false
	}
	text := strings.TrimSpace(string(data))
	if t, err := time.Parse(time.RFC3339Nano, text); err == nil {
		return t.UTC(), true
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		sec := int64(f)
		return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC(), true
	}
	return time.Time{}, false
}

func writeTimestamp(dir string, t time.Time) error {
	tmp := filepath.Join(dir, archive.TimestampFile+".tmp")
	if err := os.WriteFile(tmp, []byte(t.UTC().Format(time.RFC3339Nano)+"\n"), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, filepath.Join(dir, archive.TimestampFile)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("install %s: %w", archive.TimestampFile, err)
	}
	return nil
}
