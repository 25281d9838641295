package bulkhead

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/inference-router/internal/clock"
)

func TestSaturationRejectsImmediately(t *testing.T) {
	b := New(3)

	require.True(t, b.TryAcquire())
	require.True(t, b.TryAcquire())
	require.True(t, b.TryAcquire())

	// The (limit+1)-th concurrent request is rejected, not queued.
	assert.False(t, b.TryAcquire())
	assert.Equal(t, 3, b.InFlight())

	b.Release()
	assert.True(t, b.TryAcquire())
}

func TestReleaseRestoresCapacity(t *testing.T) {
	b := New(1)

	require.True(t, b.TryAcquire())
	assert.False(t, b.Available())

	b.Release()
	assert.True(t, b.Available())
	assert.Zero(t, b.InFlight())
}

func TestConcurrentAcquireNeverExceedsLimit(t *testing.T) {
	const limit = 8
	b := New(limit)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.TryAcquire() {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, admitted)
	assert.Equal(t, limit, b.InFlight())
}

func TestReleaseWithoutAcquirePanics(t *testing.T) {
	b := New(1)
	assert.Panics(t, func() { b.Release() })
}

func TestThrottleOpenWhenAcceptanceKeepsUp(t *testing.T) {
	clk := clock.NewFake()
	th := NewThrottle(ThrottleConfig{}, clk)

	for i := 0; i < 50; i++ {
		require.True(t, th.Admit())
		th.RecordAccepted()
	}

	assert.Zero(t, th.Probability())
}

func TestThrottleRampsUpWhenBackendRejects(t *testing.T) {
	clk := clock.NewFake()
	th := NewThrottle(ThrottleConfig{K: 2}, clk)
	th.rng = func() float64 { return 0.99 } // only near-certain rejection trips

	// 100 attempts, none accepted: p approaches attempted/(attempted+1).
	for i := 0; i < 100; i++ {
		th.Admit()
	}

	p := th.Probability()
	assert.InDelta(t, 100.0/101.0, p, 0.001)
}

func TestThrottleProbabilityFormula(t *testing.T) {
	clk := clock.NewFake()
	th := NewThrottle(ThrottleConfig{K: 2}, clk)
	th.rng = func() float64 { return 0.0 } // deterministic admit only at p==0

	// 10 attempts, 3 accepted: p = (10 - 2*3)/11.
	for i := 0; i < 10; i++ {
		th.Admit()
	}
	for i := 0; i < 3; i++ {
		th.RecordAccepted()
	}

	assert.InDelta(t, 4.0/11.0, th.Probability(), 0.001)
}

func TestThrottleWindowAges(t *testing.T) {
	clk := clock.NewFake()
	th := NewThrottle(ThrottleConfig{Window: 2 * time.Minute}, clk)
	th.rng = func() float64 { return 0.99 }

	for i := 0; i < 100; i++ {
		th.Admit()
	}
	require.Greater(t, th.Probability(), 0.9)

	// After a full idle window the counts are stale and the gate reopens.
	clk.Advance(2 * time.Minute)
	assert.Zero(t, th.Probability())
	assert.True(t, th.Admit())
}

func TestThrottleReset(t *testing.T) {
	clk := clock.NewFake()
	th := NewThrottle(ThrottleConfig{}, clk)

	for i := 0; i < 100; i++ {
		th.Admit()
	}
	require.Greater(t, th.Probability(), 0.0)

	th.Reset()
	assert.Zero(t, th.Probability())
}
