package ann

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"

	serrors "github.com/Aman-CERP/annserve/internal/errors"
	"github.com/Aman-CERP/annserve/internal/provider"
)

// Query is a neighbor request. Exactly one of ID and Emb is set.
type Query struct {
	ID          *string   `json:"id,omitempty"`
	Emb         []float32 `json:"emb,omitempty"`
	K           int       `json:"k"`
	InclDist    bool      `json:"incl_dist,omitempty"`
	InclScore   bool      `json:"incl_score,omitempty"`
	ThreshScore *float64  `json:"thresh_score,omitempty"`
}

// Validate checks the request shape.
func (q Query) Validate() error {
	hasID, hasEmb := q.ID != nil, len(q.Emb) > 0
	switch {
	case hasID && hasEmb:
		return serrors.QueryError("exactly one of id and emb must be given, got both")
	case !hasID && !hasEmb:
		return serrors.QueryError("exactly one of id and emb must be given")
	}
	if q.K <= 0 {
		return serrors.QueryError("k must be a positive integer, got " + strconv.Itoa(q.K))
	}
	return nil
}

// Mode returns how results for q are rendered. A score threshold turns
// scoring on by itself.
func (q Query) Mode() Mode {
	switch {
	case q.InclScore || q.ThreshScore != nil:
		return ModeScore
	case q.InclDist:
		return ModeDistance
	default:
		return ModeIDs
	}
}

// Mode selects the result rendering.
type Mode int

const (
	// ModeIDs renders a plain id list.
	ModeIDs Mode = iota
	// ModeDistance renders [{id: distance}].
	ModeDistance
	// ModeScore renders [{id: score}].
	ModeScore
)

// Neighbor is one resolved hit.
type Neighbor struct {
	ID       string
	Distance float32
	Score    float64
}

// Result is a query answer in its requested rendering.
type Result struct {
	Neighbors []Neighbor
	Mode      Mode
}

// IDs returns the neighbor ids in order.
func (r Result) IDs() []string {
	out := make([]string, len(r.Neighbors))
	for i, n := range r.Neighbors {
		out[i] = n.ID
	}
	return out
}

// MarshalJSON renders a list of ids, or a list of single-key objects
// mapping id to distance or score.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Mode == ModeIDs {
		return json.Marshal(r.IDs())
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, n := range r.Neighbors {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(n.ID)
		if err != nil {
			return nil, err
		}
		var val []byte
		if r.Mode == ModeScore {
			val, err = json.Marshal(n.Score)
		} else {
			val, err = json.Marshal(n.Distance)
		}
		if err != nil {
			return nil, err
		}
		buf.WriteByte('{')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// walk carries per-query recursion state.
type walk struct {
	depth   int
	angular bool
}

func (w walk) next() walk { return walk{depth: w.depth + 1, angular: w.angular} }

func (r *Resource) enter(w walk) error {
	if w.depth > r.opts.MaxChainDepth {
		return serrors.Newf(serrors.ErrCodeChainDepth,
			"resolution chain deeper than %d at %s", r.opts.MaxChainDepth, r.name)
	}
	return nil
}

// checkK rejects k above the configured bound before anything is sized
// by it.
func (r *Resource) checkK(k int) error {
	if k > r.opts.MaxK {
		return serrors.QueryError("k must be at most " + strconv.Itoa(r.opts.MaxK) + ", got " + strconv.Itoa(k)).
			WithDetail("resource", r.name)
	}
	return nil
}

func (r *Resource) serving() (*Snapshot, error) {
	snap := r.snap.Load()
	if snap == nil {
		return nil, serrors.LoadError("index "+r.name+" is not loaded", nil)
	}
	return snap, nil
}

// ResolveVector finds the vector for id: in this index, then in the
// external store, then through the sibling resource.
func (r *Resource) ResolveVector(ctx context.Context, id string) ([]float32, error) {
	return r.resolveVector(ctx, id, walk{})
}

func (r *Resource) resolveVector(ctx context.Context, id string, w walk) ([]float32, error) {
	if err := r.enter(w); err != nil {
		return nil, err
	}
	if snap := r.snap.Load(); snap != nil {
		if ord, ok := snap.IDs.Ordinal(id); ok {
			v, err := snap.Index.ItemVector(ord)
			if err != nil {
				return nil, serrors.InternalError("cannot read vector "+id, err)
			}
			return v, nil
		}
	}
	return r.resolveExternal(ctx, id, w)
}

// resolveExternal skips the index-local step.
func (r *Resource) resolveExternal(ctx context.Context, id string, w walk) ([]float32, error) {
	if r.ooiStore != nil {
		v, ok, err := r.ooiStore.Vector(ctx, id)
		switch {
		case err != nil:
			r.log.Warn("ooi store lookup failed", append(serrors.FormatForLog(err), slog.String("id", id))...)
		case ok:
			return v, nil
		}
	}

	if r.sibling != "" {
		if sib, ok := r.registry.Get(r.sibling); ok {
			v, err := sib.resolveVector(ctx, id, w.next())
			if err == nil {
				return v, nil
			}
			if errors.Is(err, serrors.ErrChainDepth) {
				return nil, err
			}
			if !errors.Is(err, serrors.ErrNotFound) {
				r.log.Warn("sibling lookup failed",
					append(serrors.FormatForLog(err), slog.String("sibling", r.sibling), slog.String("id", id))...)
			}
		}
	}

	return nil, serrors.Newf(serrors.ErrCodeVectorNotFound, "no vector for id %q in %s", id, r.name).
		WithDetail("resource", r.name)
}

// QueryByID returns up to k neighbors of id, excluding id itself.
// Ids outside the index are resolved through ResolveVector.
func (r *Resource) QueryByID(ctx context.Context, id string, k int) ([]Neighbor, error) {
	snap, err := r.serving()
	if err != nil {
		return nil, err
	}
	return r.queryByID(ctx, snap, id, k, walk{})
}

func (r *Resource) queryByID(ctx context.Context, snap *Snapshot, id string, k int, w walk) ([]Neighbor, error) {
	if ord, ok := snap.IDs.Ordinal(id); ok {
		// One extra hit covers the item itself.
		k = min(k, snap.IDs.Len())
		hits, err := snap.Index.NeighborsByItem(ord, k+1)
		if err != nil {
			return nil, serrors.InternalError("neighbor search failed", err)
		}
		out := make([]Neighbor, 0, k)
		for _, h := range hits {
			nid := snap.IDs.ID(h.Ordinal)
			if nid == id {
				continue
			}
			out = append(out, Neighbor{ID: nid, Distance: h.Distance})
			if len(out) == k {
				break
			}
		}
		return out, nil
	}

	vec, err := r.resolveExternal(ctx, id, w)
	if err != nil {
		if errors.Is(err, serrors.ErrNotFound) {
			return nil, serrors.New(serrors.ErrCodeOutOfIndex,
				"id "+strconv.Quote(id)+" is not in "+r.name+" and could not be resolved", err).
				WithDetail("resource", r.name)
		}
		return nil, err
	}
	return r.queryByVector(snap, vec, k)
}

// QueryByVector returns up to k neighbors of vec.
func (r *Resource) QueryByVector(_ context.Context, vec []float32, k int) ([]Neighbor, error) {
	snap, err := r.serving()
	if err != nil {
		return nil, err
	}
	return r.queryByVector(snap, vec, k)
}

func (r *Resource) queryByVector(snap *Snapshot, vec []float32, k int) ([]Neighbor, error) {
	if len(vec) != snap.Metadata.Dimensions {
		return nil, serrors.Newf(serrors.ErrCodeDimensionMismatch,
			"%s expects %d dimensions, got %d", r.name, snap.Metadata.Dimensions, len(vec))
	}
	hits, err := snap.Index.NeighborsByVector(vec, k)
	if err != nil {
		if errors.Is(err, provider.ErrDimension) {
			return nil, serrors.Wrap(serrors.ErrCodeDimensionMismatch, err)
		}
		return nil, serrors.InternalError("neighbor search failed", err)
	}
	out := make([]Neighbor, len(hits))
	for i, h := range hits {
		out[i] = Neighbor{ID: snap.IDs.ID(h.Ordinal), Distance: h.Distance}
	}
	return out, nil
}

// ResolveQuery answers q: own neighbors first, then the fallback parent
// fills any shortfall. Scores are applied last, once, over the merged list.
func (r *Resource) ResolveQuery(ctx context.Context, q Query) (Result, error) {
	if err := q.Validate(); err != nil {
		return Result{}, err
	}
	if err := r.checkK(q.K); err != nil {
		return Result{}, err
	}
	if r.opts.CheckOnQuery {
		if _, err := r.MaybeReload(ctx); err != nil {
			r.log.Warn("reload before query failed", serrors.FormatForLog(err)...)
		}
	}

	mode := q.Mode()
	ns, err := r.neighbors(ctx, q, q.K, walk{angular: mode == ModeScore})
	if err != nil {
		return Result{}, err
	}
	if mode == ModeScore {
		ns = ToScores(ns, q.ThreshScore)
	}
	if len(ns) > q.K {
		ns = ns[:q.K]
	}
	return Result{Neighbors: ns, Mode: mode}, nil
}

func (r *Resource) neighbors(ctx context.Context, q Query, k int, w walk) ([]Neighbor, error) {
	if err := r.enter(w); err != nil {
		return nil, err
	}
	snap, err := r.serving()
	if err != nil {
		return nil, err
	}
	if w.angular && snap.Metadata.Metric != provider.Angular {
		return nil, serrors.Newf(serrors.ErrCodeMetricUnsupported,
			"scores need the angular metric, %s uses %s", r.name, snap.Metadata.Metric)
	}

	var own []Neighbor
	if q.ID != nil {
		own, err = r.queryByID(ctx, snap, *q.ID, k, w)
	} else {
		own, err = r.queryByVector(snap, q.Emb, k)
	}
	if err != nil {
		return nil, err
	}

	if len(own) < k && r.parent != "" {
		parent, ok := r.registry.Get(r.parent)
		if !ok {
			return nil, serrors.InternalError("fallback parent "+r.parent+" is not registered", nil)
		}
		more, err := parent.neighbors(ctx, q, k-len(own), w.next())
		switch {
		case err == nil:
			own = append(own, more...)
		case parentUnavailable(err):
			r.log.Warn("fallback parent skipped",
				append(serrors.FormatForLog(err), slog.String("parent", r.parent))...)
		default:
			return nil, err
		}
	}
	if len(own) > k {
		own = own[:k]
	}
	return own, nil
}

// parentUnavailable reports errors where the parent cannot serve this
// query at all. Own results are still returned for these.
func parentUnavailable(err error) bool {
	return errors.Is(err, serrors.ErrOutOfIndexUnresolvable) ||
		errors.Is(err, serrors.ErrLoadFailure) ||
		errors.Is(err, serrors.ErrStoreUnavailable)
}
