package ooi

import (
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/Aman-CERP/annserve/internal/config"
	serrors "github.com/Aman-CERP/annserve/internal/errors"
)

// Stores is the set of configured external stores, by name.
type Stores struct {
	byName  map[string]Store
	guarded map[string]*GuardedStore
	closers []*SQLiteStore
}

// StoreHealth is the circuit state of one opened store.
type StoreHealth struct {
	Name    string        `json:"name"`
	Circuit serrors.State `json:"circuit"`
	Cached  int           `json:"cached"`
}

// OpenStores opens every configured SQLite store read-only and wraps each
// in a circuit breaker and an LRU cache. Breaker transitions go to logger.
func OpenStores(stores []config.OOIStoreConfig, tuning config.OOIConfig, logger *slog.Logger) (*Stores, error) {
	out := &Stores{
		byName:  make(map[string]Store, len(stores)),
		guarded: make(map[string]*GuardedStore, len(stores)),
	}
	for _, sc := range stores {
		db, err := OpenSQLite(sc, false)
		if err != nil {
			_ = out.Close()
			return nil, serrors.ConfigError("cannot open ooi store "+sc.Name, err)
		}
		out.closers = append(out.closers, db)

		guarded := NewGuardedStore(sc.Name, db, tuning.Timeout, logger,
			serrors.WithMaxFailures(tuning.MaxFailures),
			serrors.WithResetTimeout(tuning.ResetTimeout))
		out.guarded[sc.Name] = guarded
		out.byName[sc.Name] = NewCachedStore(guarded, tuning.CacheSize)
	}
	return out, nil
}

// NewStores wraps already-built stores, mostly for tests.
func NewStores(byName map[string]Store) *Stores {
	return &Stores{byName: byName}
}

// Get returns the named store.
func (s *Stores) Get(name string) (Store, bool) {
	if s == nil {
		return nil, false
	}
	st, ok := s.byName[name]
	return st, ok
}

// Health reports every store opened by OpenStores, sorted by name.
func (s *Stores) Health() []StoreHealth {
	if s == nil {
		return nil
	}
	out := make([]StoreHealth, 0, len(s.guarded))
	for name, g := range s.guarded {
		h := StoreHealth{Name: name, Circuit: g.State()}
		if c, ok := s.byName[name].(*CachedStore); ok {
			h.Cached = c.Len()
		}
		out = append(out, h)
	}
	slices.SortFunc(out, func(a, b StoreHealth) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Close closes every opened database.
func (s *Stores) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}
