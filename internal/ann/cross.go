package ann

import (
	"context"
	"log/slog"
	"strconv"

	serrors "github.com/Aman-CERP/annserve/internal/errors"
	"github.com/Aman-CERP/annserve/internal/ooi"
	"github.com/Aman-CERP/annserve/internal/provider"
)

// CrossQuery asks for neighbors in one index of an id known to another.
type CrossQuery struct {
	QName       string
	QID         string
	CatalogName string
	K           int
	InclDist    bool
	InclScore   bool
	ThreshScore *float64
}

// Validate checks the request shape.
func (q CrossQuery) Validate() error {
	switch {
	case q.QName == "":
		return serrors.QueryError("q_name is required")
	case q.QID == "":
		return serrors.QueryError("q_id is required")
	case q.CatalogName == "":
		return serrors.QueryError("catalog_name is required")
	case q.K <= 0:
		return serrors.QueryError("k must be a positive integer, got " + strconv.Itoa(q.K))
	}
	return nil
}

func (q CrossQuery) mode() Mode {
	return Query{InclDist: q.InclDist, InclScore: q.InclScore, ThreshScore: q.ThreshScore}.Mode()
}

// CrossResolver answers cross queries over a registry.
type CrossResolver struct {
	registry *Registry
	fallback ooi.Store
	log      *slog.Logger
}

// NewCrossResolver creates a resolver. fallback, when non-nil, resolves
// vectors for query names the registry does not hold.
func NewCrossResolver(registry *Registry, fallback ooi.Store, logger *slog.Logger) *CrossResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrossResolver{registry: registry, fallback: fallback, log: logger}
}

// CrossQuery resolves q.QID's vector and searches the catalog with it.
// Anything that cannot be resolved yields an empty result, not an error.
func (c *CrossResolver) CrossQuery(ctx context.Context, q CrossQuery) (Result, error) {
	if err := q.Validate(); err != nil {
		return Result{}, err
	}
	mode := q.mode()
	empty := Result{Neighbors: []Neighbor{}, Mode: mode}

	catalog, ok := c.registry.Get(q.CatalogName)
	if !ok {
		c.log.Debug("cross query catalog unknown", slog.String("catalog", q.CatalogName))
		return empty, nil
	}
	if err := catalog.checkK(q.K); err != nil {
		return Result{}, err
	}

	vec, ok := c.resolve(ctx, q.QName, q.QID)
	if !ok {
		return empty, nil
	}

	snap, err := catalog.serving()
	if err != nil {
		return Result{}, err
	}
	if mode == ModeScore && snap.Metadata.Metric != provider.Angular {
		return Result{}, serrors.Newf(serrors.ErrCodeMetricUnsupported,
			"scores need the angular metric, %s uses %s", q.CatalogName, snap.Metadata.Metric)
	}

	ns, err := catalog.queryByVector(snap, vec, q.K)
	if err != nil {
		return Result{}, err
	}
	if mode == ModeScore {
		ns = ToScores(ns, q.ThreshScore)
	}
	return Result{Neighbors: ns, Mode: mode}, nil
}

func (c *CrossResolver) resolve(ctx context.Context, name, id string) ([]float32, bool) {
	if res, ok := c.registry.Get(name); ok {
		vec, err := res.ResolveVector(ctx, id)
		if err != nil {
			c.log.Debug("cross query id unresolved",
				append(serrors.FormatForLog(err), slog.String("q_name", name), slog.String("q_id", id))...)
			return nil, false
		}
		return vec, true
	}

	if c.fallback == nil {
		c.log.Debug("cross query name unknown", slog.String("q_name", name))
		return nil, false
	}
	vec, ok, err := c.fallback.Vector(ctx, id)
	if err != nil {
		c.log.Debug("cross query fallback store failed",
			append(serrors.FormatForLog(err), slog.String("q_id", id))...)
		return nil, false
	}
	if !ok {
		c.log.Debug("cross query id not in fallback store", slog.String("q_id", id))
	}
	return vec, ok
}
