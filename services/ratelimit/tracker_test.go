package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/inference-router/internal/clock"
)

func TestConsumeAndLazyRefill(t *testing.T) {
	clk := clock.NewFake()
	tr := NewTracker(PerMinute(60, 6000), clk) // 1 req/s, 100 units/s

	req, units := tr.Levels()
	assert.Equal(t, 60.0, req)
	assert.Equal(t, 6000.0, units)

	require.True(t, tr.Consume(60, 6000))
	req, units = tr.Levels()
	assert.Zero(t, req)
	assert.Zero(t, units)

	clk.Advance(10 * time.Second)
	req, units = tr.Levels()
	assert.InDelta(t, 10, req, 0.001)
	assert.InDelta(t, 1000, units, 0.001)
}

func TestRefillNeverExceedsCapacity(t *testing.T) {
	clk := clock.NewFake()
	tr := NewTracker(PerMinute(60, 6000), clk)

	clk.Advance(time.Hour)
	req, units := tr.Levels()
	assert.Equal(t, 60.0, req)
	assert.Equal(t, 6000.0, units)
}

func TestConsumeFailsWithoutMutation(t *testing.T) {
	clk := clock.NewFake()
	tr := NewTracker(PerMinute(60, 6000), clk)

	// Unit bucket is short; the request bucket must be left untouched.
	assert.False(t, tr.Consume(1, 7000))
	req, units := tr.Levels()
	assert.Equal(t, 60.0, req)
	assert.Equal(t, 6000.0, units)

	// Request bucket short.
	assert.False(t, tr.Consume(61, 1))
	req, _ = tr.Levels()
	assert.Equal(t, 60.0, req)
}

func TestHasCapacity(t *testing.T) {
	clk := clock.NewFake()
	tr := NewTracker(PerMinute(2, 200), clk)

	assert.True(t, tr.HasCapacity(1, 100))
	require.True(t, tr.Consume(2, 200))
	assert.False(t, tr.HasCapacity(1, 100))

	clk.Advance(time.Minute)
	assert.True(t, tr.HasCapacity(1, 100))
}

func TestSettleCreditsUnusedEstimate(t *testing.T) {
	clk := clock.NewFake()
	tr := NewTracker(PerMinute(60, 6000), clk)

	require.True(t, tr.Consume(1, 500))
	tr.Settle(500, 200) // the request was cheaper than estimated

	_, units := tr.Levels()
	assert.InDelta(t, 5800, units, 0.001)
}

func TestRefillFromSignalOverridesLevels(t *testing.T) {
	clk := clock.NewFake()
	tr := NewTracker(PerMinute(60, 6000), clk)

	remReq := 5.0
	remUnits := 42.0
	tr.RefillFromSignal(&remReq, &remUnits)

	req, units := tr.Levels()
	assert.Equal(t, 5.0, req)
	assert.Equal(t, 42.0, units)

	// Nil leaves a bucket untouched.
	remReq = 30.0
	tr.RefillFromSignal(&remReq, nil)
	req, units = tr.Levels()
	assert.Equal(t, 30.0, req)
	assert.Equal(t, 42.0, units)
}

func TestBackoffDoublesAndIsCapped(t *testing.T) {
	clk := clock.NewFake()
	tr := NewTracker(Config{
		RequestCapacity: 1, RequestRefillPerSec: 1,
		UnitCapacity: 1, UnitRefillPerSec: 1,
		BackoffBase: time.Second,
		BackoffCap:  10 * time.Second,
	}, clk)
	tr.rng = func() float64 { return 0.5 } // no jitter

	assert.Equal(t, time.Second, tr.RecordRateLimit())
	assert.Equal(t, 2*time.Second, tr.RecordRateLimit())
	assert.Equal(t, 4*time.Second, tr.RecordRateLimit())
	assert.Equal(t, 8*time.Second, tr.RecordRateLimit())
	assert.Equal(t, 10*time.Second, tr.RecordRateLimit(), "capped")

	tr.RecordSuccess()
	assert.Equal(t, time.Second, tr.RecordRateLimit(), "streak cleared")
}

func TestBackoffJitterBounds(t *testing.T) {
	clk := clock.NewFake()

	for _, f := range []float64{0, 0.25, 0.75, 0.999} {
		tr := NewTracker(Config{
			RequestCapacity: 1, RequestRefillPerSec: 1,
			UnitCapacity: 1, UnitRefillPerSec: 1,
		}, clk)
		tr.rng = func() float64 { return f }

		d := tr.RecordRateLimit()
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}

func TestRestoreCreditsDowntime(t *testing.T) {
	clk := clock.NewFake()
	tr := NewTracker(PerMinute(60, 6000), clk) // 1 req/s, 100 units/s

	tr.Restore(10, 100, 5*time.Second)
	req, units := tr.Levels()
	assert.InDelta(t, 15, req, 0.001)
	assert.InDelta(t, 600, units, 0.001)
}
