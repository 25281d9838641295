package bulkhead

import (
	"math/rand"
	"sync"
	"time"

	"github.com/upb/inference-router/internal/clock"
)

// ThrottleConfig holds the adaptive client-side throttling knobs.
type ThrottleConfig struct {
	// Window is the trailing window over which attempted/accepted counts are
	// tracked. Default: 2m.
	Window time.Duration

	// K is the acceptance multiplier: rejection probability is
	// max(0, (attempted − K·accepted) / (attempted + 1)). Default: 2.
	K float64

	// Rand overrides the randomness source. Default: math/rand.
	Rand func() float64
}

func (c ThrottleConfig) withDefaults() ThrottleConfig {
	if c.Window <= 0 {
		c.Window = 2 * time.Minute
	}
	if c.K <= 0 {
		c.K = 2
	}
	return c
}

// Throttle probabilistically rejects requests to a backend whose acceptance
// rate has collapsed, shedding load before the failure counters would trip
// the breaker. Counts are kept in two rotating half-window buckets so the
// trailing window is approximate but cheap. Safe for concurrent use.
type Throttle struct {
	cfg ThrottleConfig
	clk clock.Clock

	mu            sync.Mutex
	bucketStart   clock.Instant
	curAttempted  float64
	curAccepted   float64
	prevAttempted float64
	prevAccepted  float64

	// rng returns a float in [0,1); injectable for deterministic tests.
	rng func() float64
}

// NewThrottle creates a Throttle with empty windows.
func NewThrottle(cfg ThrottleConfig, clk clock.Clock) *Throttle {
	rng := cfg.Rand
	if rng == nil {
		rng = rand.Float64
	}
	return &Throttle{
		cfg:         cfg.withDefaults(),
		clk:         clk,
		bucketStart: clk.Now(),
		rng:         rng,
	}
}

// rotateLocked ages the buckets. Must be called with t.mu held.
func (t *Throttle) rotateLocked() {
	now := t.clk.Now()
	half := t.cfg.Window / 2

	if now-t.bucketStart >= t.cfg.Window {
		// Idle for a full window; both buckets are stale.
		t.prevAttempted, t.prevAccepted = 0, 0
		t.curAttempted, t.curAccepted = 0, 0
		t.bucketStart = now
		return
	}
	if now-t.bucketStart >= half {
		t.prevAttempted, t.prevAccepted = t.curAttempted, t.curAccepted
		t.curAttempted, t.curAccepted = 0, 0
		t.bucketStart += half
	}
}

// Admit records an attempt and reports whether the request may proceed.
// A false return is a client-side rejection counted as attempted but never
// accepted, which is what drives the probability toward its bound.
func (t *Throttle) Admit() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rotateLocked()
	p := t.probabilityLocked()
	t.curAttempted++
	if p <= 0 {
		return true
	}
	return t.rng() >= p
}

// RecordAccepted marks the most recent admitted attempt as accepted by the
// backend. Capacity rejections (rate limits, timeouts, connection failures)
// are not accepted; request-shaped errors are, since the backend handled them.
func (t *Throttle) RecordAccepted() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rotateLocked()
	t.curAccepted++
}

// Probability returns the current client-side rejection probability.
func (t *Throttle) Probability() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rotateLocked()
	return t.probabilityLocked()
}

func (t *Throttle) probabilityLocked() float64 {
	attempted := t.curAttempted + t.prevAttempted
	accepted := t.curAccepted + t.prevAccepted
	p := (attempted - t.cfg.K*accepted) / (attempted + 1)
	if p < 0 {
		return 0
	}
	return p
}

// Reset clears both windows. Administrative use only.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.curAttempted, t.curAccepted = 0, 0
	t.prevAttempted, t.prevAccepted = 0, 0
	t.bucketStart = t.clk.Now()
}
