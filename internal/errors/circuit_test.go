package errors

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is advanced by hand.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	// Given: a circuit breaker with max 3 failures
	cb := NewCircuitBreaker("ooi:variants", WithMaxFailures(3))

	// When: three calls fail
	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errors.New("store down") })
	}

	// Then: the circuit is open and rejects without calling fn
	assert.Equal(t, StateOpen, cb.State())
	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	// Given: an open breaker on a fake clock
	clock := newFakeClock()
	cb := NewCircuitBreaker("ooi", WithMaxFailures(2), WithResetTimeout(time.Minute), WithClock(clock.Now))
	cb.RecordFailure()
	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())

	// When: just short of, then at, the reset timeout
	clock.Advance(59 * time.Second)
	assert.Equal(t, StateOpen, cb.State())
	clock.Advance(time.Second)

	// Then: it is half-open and a successful probe closes it
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker("ooi", WithMaxFailures(3), WithResetTimeout(time.Minute), WithClock(clock.Now))
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	clock.Advance(time.Minute)
	require.Equal(t, StateHalfOpen, cb.State())

	_ = cb.Execute(func() error { return errors.New("still down") })

	// The reset timeout restarts from the failed probe.
	assert.Equal(t, StateOpen, cb.State())
	clock.Advance(30 * time.Second)
	assert.Equal(t, StateOpen, cb.State())
	clock.Advance(30 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreaker_SingleProbe(t *testing.T) {
	// Given: a half-open breaker
	clock := newFakeClock()
	cb := NewCircuitBreaker("ooi", WithMaxFailures(1), WithResetTimeout(time.Second), WithClock(clock.Now))
	cb.RecordFailure()
	clock.Advance(time.Second)

	// When: two callers ask while the first probe is in flight
	first := cb.Allow()
	second := cb.Allow()

	// Then: only the first is admitted until it reports back
	assert.True(t, first)
	assert.False(t, second)
	cb.RecordSuccess()
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("ooi", WithMaxFailures(3))

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 1, cb.Failures())
}

func TestCircuitBreaker_ReportsTransitions(t *testing.T) {
	// Given: a breaker recording its transitions
	type change struct{ from, to State }
	var changes []change
	clock := newFakeClock()
	cb := NewCircuitBreaker("ooi:variants",
		WithMaxFailures(2),
		WithResetTimeout(time.Second),
		WithClock(clock.Now),
		WithStateChange(func(name string, from, to State) {
			assert.Equal(t, "ooi:variants", name)
			changes = append(changes, change{from, to})
		}))

	// When: it opens, times out, probes and recovers
	cb.RecordFailure()
	cb.RecordFailure()
	clock.Advance(time.Second)
	require.NoError(t, cb.Execute(func() error { return nil }))
	cb.RecordSuccess()

	// Then: each transition is reported once
	assert.Equal(t, []change{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}, changes)
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker("ooi", WithMaxFailures(0), WithResetTimeout(-1), WithClock(nil))

	assert.Equal(t, "ooi", cb.Name())
	assert.Equal(t, 5, cb.maxFailures)
	assert.Equal(t, 30*time.Second, cb.resetTimeout)
	assert.NotNil(t, cb.now)
	assert.True(t, cb.Allow())
}

func TestCircuitExecute_ReturnsValue(t *testing.T) {
	cb := NewCircuitBreaker("ooi")

	v, err := CircuitExecute(cb, func() ([]float32, error) {
		return []float32{1, 2}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, v)
}

func TestCircuitBreaker_ConcurrentUse(t *testing.T) {
	cb := NewCircuitBreaker("ooi", WithMaxFailures(1000))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = cb.Execute(func() error {
				if i%2 == 0 {
					return errors.New("fail")
				}
				return nil
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, StateClosed, cb.State())
}

func TestState_Text(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())

	text, err := StateHalfOpen.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "half-open", string(text))
}
