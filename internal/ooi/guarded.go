package ooi

import (
	"context"
	"errors"
	"log/slog"
	"time"

	serrors "github.com/Aman-CERP/annserve/internal/errors"
)

// vectorResult lets a (vector, found) pair pass through the breaker.
type vectorResult struct {
	vec   []float32
	found bool
}

// GuardedStore bounds each lookup with a timeout and stops calling a
// failing store until its circuit breaker lets a probe through.
type GuardedStore struct {
	inner   Store
	name    string
	timeout time.Duration
	breaker *serrors.CircuitBreaker
}

// NewGuardedStore wraps inner. timeout <= 0 means no per-call timeout.
// Breaker transitions are logged to logger (slog.Default when nil) unless
// opts replace the state change hook.
func NewGuardedStore(name string, inner Store, timeout time.Duration, logger *slog.Logger, opts ...serrors.CircuitBreakerOption) *GuardedStore {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]serrors.CircuitBreakerOption{serrors.WithStateChange(stateLogger(logger))}, opts...)
	return &GuardedStore{
		inner:   inner,
		name:    name,
		timeout: timeout,
		breaker: serrors.NewCircuitBreaker("ooi:"+name, opts...),
	}
}

func stateLogger(logger *slog.Logger) serrors.StateChangeFunc {
	return func(name string, from, to serrors.State) {
		level := slog.LevelInfo
		if to == serrors.StateOpen {
			level = slog.LevelWarn
		}
		logger.Log(context.Background(), level, "external store circuit changed",
			slog.String("breaker", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()))
	}
}

// Vector implements Store. Failures come back as ErrStoreUnavailable.
func (g *GuardedStore) Vector(ctx context.Context, id string) ([]float32, bool, error) {
	res, err := serrors.CircuitExecute(g.breaker, func() (vectorResult, error) {
		callCtx := ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		v, ok, err := g.inner.Vector(callCtx, id)
		return vectorResult{vec: v, found: ok}, err
	})
	if err != nil {
		se := serrors.New(serrors.ErrCodeStoreUnavailable, "external vector store "+g.name+" failed", err).
			WithDetail("store", g.name)
		if errors.Is(err, serrors.ErrCircuitOpen) {
			se.WithSuggestion("The store failed repeatedly; lookups resume after the reset timeout")
		}
		return nil, false, se
	}
	return res.vec, res.found, nil
}

// State exposes the breaker state for health output.
func (g *GuardedStore) State() serrors.State {
	return g.breaker.State()
}
