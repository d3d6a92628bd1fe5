package circuit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestBreaker(threshold int, cooldown time.Duration) (*CircuitBreaker, *time.Time) {
	clock := time.Unix(1_700_000_000, 0)
	cb := NewCircuitBreaker("test", threshold, cooldown)
	cb.now = func() time.Time { return clock }
	cb.SetStateChangeHandler(func(string, State, State) {})
	return cb, &clock
}

func TestOpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Minute)
	boom := errors.New("boom")

	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestHalfOpenAdmitsSingleProbe(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Minute)
	cb.RecordFailure()
	assert.False(t, cb.Allow())

	*clock = clock.Add(2 * time.Minute)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.False(t, cb.Allow(), "second caller waits for the probe")

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestFailedProbeReopens(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Minute)
	cb.RecordFailure()
	*clock = clock.Add(2 * time.Minute)
	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Minute)
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
}
