package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("reddit", 2, time.Minute)
	cb.SetClock(func() time.Time { return now })

	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	now = now.Add(time.Minute)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Minute)
	assert.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("binance", 2, time.Minute)
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_StateChangeHandler(t *testing.T) {
	cb := NewCircuitBreaker("news", 1, time.Minute)
	got := make(chan [2]State, 1)
	cb.SetStateChangeHandler(func(name string, from, to State) {
		assert.Equal(t, "news", name)
		got <- [2]State{from, to}
	})
	cb.RecordFailure()
	select {
	case st := <-got:
		assert.Equal(t, [2]State{StateClosed, StateOpen}, st)
	case <-time.After(time.Second):
		t.Fatal("state change handler not called")
	}
	assert.Equal(t, "open", StateOpen.String())
}

func TestCircuitBreaker_HalfOpenAllowsSingleProbe(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("feed", 1, time.Minute)
	cb.SetClock(func() time.Time { return now })

	cb.RecordFailure()
	st := cb.Status()
	assert.Equal(t, StateOpen, st.State)
	assert.Equal(t, 1, st.Failures)
	assert.Equal(t, now.Add(time.Minute), st.RetryAt)

	now = now.Add(time.Minute)
	assert.True(t, cb.Allow())
	assert.False(t, cb.Allow())
	cb.Abandon()
	assert.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.True(t, cb.Allow())
	assert.True(t, cb.Status().RetryAt.IsZero())
}
