package ann

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/annserve/internal/blob"
	serrors "github.com/Aman-CERP/annserve/internal/errors"
	"github.com/Aman-CERP/annserve/internal/ooi"
)

// Options configures a Registry.
type Options struct {
	// ExtractDir holds one subdirectory per resource.
	ExtractDir string
	// LoadWorkers bounds parallel loads and refreshes.
	LoadWorkers int
	// Resource is applied to every resource.
	Resource ResourceOptions
}

// Registry owns every Resource by name. The map is fixed once NewRegistry
// returns; linking only sets fields on resources before serving starts.
type Registry struct {
	resources map[string]*Resource
	names     []string
	workers   int
	log       *slog.Logger
}

// NewRegistry creates a resource per source and loads them in parallel.
// Resources whose local extraction is current reuse it. Any failed load
// fails the whole registry.
func NewRegistry(ctx context.Context, store blob.Store, sources []Source, opts Options) (*Registry, error) {
	if opts.Resource.Logger == nil {
		opts.Resource.Logger = slog.Default()
	}
	g := &Registry{
		resources: make(map[string]*Resource, len(sources)),
		workers:   max(opts.LoadWorkers, 1),
		log:       opts.Resource.Logger,
	}
	for _, src := range sources {
		if _, dup := g.resources[src.Name]; dup {
			return nil, serrors.ConfigError("duplicate resource name "+src.Name, nil)
		}
		dir := filepath.Join(opts.ExtractDir, filepath.FromSlash(src.Name))
		res := NewResource(src.Name, src.Key, dir, store, opts.Resource)
		res.registry = g
		g.resources[src.Name] = res
		g.names = append(g.names, src.Name)
	}
	slices.Sort(g.names)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for _, name := range g.names {
		res := g.resources[name]
		eg.Go(func() error {
			stale, err := res.IsStale(egCtx)
			if err != nil {
				return err
			}
			return res.Load(egCtx, stale)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	g.log.Info("registry ready", slog.Int("resources", len(g.names)))
	return g, nil
}

// Get returns the named resource.
func (g *Registry) Get(name string) (*Resource, bool) {
	if g == nil {
		return nil, false
	}
	r, ok := g.resources[name]
	return r, ok
}

// Names returns resource names in sorted order.
func (g *Registry) Names() []string {
	return slices.Clone(g.names)
}

// Resources returns resources sorted by name.
func (g *Registry) Resources() []*Resource {
	out := make([]*Resource, len(g.names))
	for i, n := range g.names {
		out[i] = g.resources[n]
	}
	return out
}

// LinkOOI binds the out-of-index source. A store name binds that external
// store to every resource; a resource name makes that resource the
// sibling of every other one.
func (g *Registry) LinkOOI(name string, stores *ooi.Stores) error {
	if name == "" {
		return nil
	}
	if st, ok := stores.Get(name); ok {
		for _, r := range g.resources {
			r.ooiStore, r.ooiName = st, name
		}
		g.log.Info("ooi store linked", slog.String("store", name))
		return nil
	}
	if _, ok := g.resources[name]; ok {
		for n, r := range g.resources {
			if n != name {
				r.sibling = name
			}
		}
		if err := g.checkCycles("sibling", func(r *Resource) string { return r.sibling }); err != nil {
			return err
		}
		g.log.Info("ooi sibling linked", slog.String("sibling", name))
		return nil
	}
	return serrors.New(serrors.ErrCodeLinkInvalid, "ooi source "+name+" is neither a store nor a resource", nil).
		WithSuggestion("Set links.ooi to a name from ooi_stores or an existing index")
}

// LinkFallbacks sets fallback parents from child -> parent pairs. Unknown
// children are skipped; unknown parents and cycles are errors.
func (g *Registry) LinkFallbacks(pairs map[string]string) error {
	children := make([]string, 0, len(pairs))
	for c := range pairs {
		children = append(children, c)
	}
	slices.Sort(children)

	for _, child := range children {
		parent := pairs[child]
		res, ok := g.resources[child]
		if !ok {
			g.log.Warn("fallback child not registered, skipping",
				slog.String("child", child), slog.String("parent", parent))
			continue
		}
		if _, ok := g.resources[parent]; !ok {
			return serrors.New(serrors.ErrCodeLinkInvalid,
				"fallback parent "+parent+" of "+child+" is not registered", nil).
				WithDetail("child", child)
		}
		res.parent = parent
	}
	return g.checkCycles("fallback", func(r *Resource) string { return r.parent })
}

// checkCycles walks one link kind from every resource. Each resource has
// at most one outgoing link, so a walk longer than the registry loops.
func (g *Registry) checkCycles(kind string, next func(*Resource) string) error {
	for _, start := range g.names {
		path := []string{start}
		cur := start
		for range len(g.names) {
			r, ok := g.resources[cur]
			if !ok {
				break
			}
			cur = next(r)
			if cur == "" {
				break
			}
			path = append(path, cur)
			if cur == start {
				return serrors.New(serrors.ErrCodeLinkInvalid,
					kind+" links form a cycle: "+strings.Join(path, " -> "), nil)
			}
		}
	}
	return nil
}

// MaybeReloadAll refreshes every stale resource in parallel. One failure
// never stops the others; errors are joined.
func (g *Registry) MaybeReloadAll(ctx context.Context) ([]string, error) {
	var (
		mu       sync.Mutex
		reloaded []string
		errs     []error
	)
	var eg errgroup.Group
	eg.SetLimit(g.workers)
	for _, name := range g.names {
		res := g.resources[name]
		eg.Go(func() error {
			did, err := res.MaybeReload(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			} else if did {
				reloaded = append(reloaded, name)
			}
			return nil
		})
	}
	_ = eg.Wait()
	slices.Sort(reloaded)
	return reloaded, errors.Join(errs...)
}

// Reload force-loads one resource.
func (g *Registry) Reload(ctx context.Context, name string) error {
	res, ok := g.resources[name]
	if !ok {
		return UnknownResource(name)
	}
	return res.Load(ctx, true)
}

// UnknownResource is the error for a name the registry does not hold.
func UnknownResource(name string) error {
	return serrors.Newf(serrors.ErrCodeUnknownResource, "unknown resource %q", name).
		WithDetail("resource", name)
}
