package ratelimit

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/upb/inference-router/internal/clock"
)

// Config holds the dual-bucket settings for one backend. Capacities double as
// burst sizes; refill rates are per second. Zero-value backoff fields are
// replaced with defaults by NewTracker.
type Config struct {
	RequestCapacity     float64
	RequestRefillPerSec float64
	UnitCapacity        float64
	UnitRefillPerSec    float64

	// BackoffBase seeds the exponential backoff used when a rate-limit
	// failure carries no provider signal. Default: 1s.
	BackoffBase time.Duration

	// BackoffCap bounds the computed backoff. Default: 120s.
	BackoffCap time.Duration

	// BackoffJitter is the symmetric randomization fraction. Default: 0.2.
	BackoffJitter float64
}

func (c Config) withDefaults() Config {
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 120 * time.Second
	}
	if c.BackoffJitter <= 0 {
		c.BackoffJitter = 0.2
	}
	return c
}

// PerMinute builds a Config from per-minute request and unit limits, the form
// backends are configured in.
func PerMinute(requestsPerMinute, unitsPerMinute float64) Config {
	return Config{
		RequestCapacity:     requestsPerMinute,
		RequestRefillPerSec: requestsPerMinute / 60,
		UnitCapacity:        unitsPerMinute,
		UnitRefillPerSec:    unitsPerMinute / 60,
	}
}

// Tracker is the per-backend dual token bucket: a request-count bucket and a
// work-unit bucket, refilled lazily at access time and adjustable from
// provider-supplied capacity signals. Levels are always within [0, capacity].
// Safe for concurrent use.
type Tracker struct {
	cfg Config
	clk clock.Clock

	mu                    sync.Mutex
	requestLevel          float64
	unitLevel             float64
	lastRefill            clock.Instant
	consecutiveRateLimits int

	// rng returns a float in [0,1); injectable for deterministic tests.
	rng func() float64
}

// NewTracker creates a Tracker with both buckets full.
func NewTracker(cfg Config, clk clock.Clock) *Tracker {
	cfg = cfg.withDefaults()
	return &Tracker{
		cfg:          cfg,
		clk:          clk,
		requestLevel: cfg.RequestCapacity,
		unitLevel:    cfg.UnitCapacity,
		lastRefill:   clk.Now(),
		rng:          rand.Float64,
	}
}

// refillLocked applies continuous refill for the time elapsed since the last
// access. Must be called with t.mu held.
func (t *Tracker) refillLocked() {
	now := t.clk.Now()
	elapsed := (now - t.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	t.lastRefill = now
	t.requestLevel = math.Min(t.cfg.RequestCapacity, t.requestLevel+elapsed*t.cfg.RequestRefillPerSec)
	t.unitLevel = math.Min(t.cfg.UnitCapacity, t.unitLevel+elapsed*t.cfg.UnitRefillPerSec)
}

// Consume atomically takes requests from the request bucket and units from
// the unit bucket. It fails without mutating either bucket when one of them
// is short.
func (t *Tracker) Consume(requests, units float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refillLocked()
	if t.requestLevel < requests || t.unitLevel < units {
		return false
	}
	t.requestLevel -= requests
	t.unitLevel -= units
	return true
}

// HasCapacity reports whether Consume would currently succeed, without
// consuming. Used by the selector's admissibility filter.
func (t *Tracker) HasCapacity(requests, units float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refillLocked()
	return t.requestLevel >= requests && t.unitLevel >= units
}

// Settle trues up the unit bucket once actual usage is known: a request that
// consumed estimated units at dispatch settles the difference here. The level
// stays clamped to [0, capacity].
func (t *Tracker) Settle(estimatedUnits, actualUnits float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refillLocked()
	t.unitLevel += estimatedUnits - actualUnits
	t.unitLevel = math.Max(0, math.Min(t.cfg.UnitCapacity, t.unitLevel))
}

// RefillFromSignal overrides bucket levels with provider-reported remaining
// capacity. Nil pointers leave the corresponding bucket untouched.
func (t *Tracker) RefillFromSignal(remainingRequests, remainingUnits *float64) {
	if remainingRequests == nil && remainingUnits == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.refillLocked()
	if remainingRequests != nil {
		t.requestLevel = math.Max(0, math.Min(t.cfg.RequestCapacity, *remainingRequests))
	}
	if remainingUnits != nil {
		t.unitLevel = math.Max(0, math.Min(t.cfg.UnitCapacity, *remainingUnits))
	}
}

// RecordRateLimit registers a rate-limit failure that carried no precise
// signal and returns the exponential backoff with ±jitter to use as the
// cooldown: base × 2^(consecutive−1), randomized, capped.
func (t *Tracker) RecordRateLimit() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.consecutiveRateLimits++
	d := float64(t.cfg.BackoffBase) * math.Pow(2, float64(t.consecutiveRateLimits-1))
	j := t.cfg.BackoffJitter
	d *= 1 - j + 2*j*t.rng()
	if capped := float64(t.cfg.BackoffCap); d > capped {
		d = capped
	}
	return time.Duration(d)
}

// RecordSuccess clears the consecutive rate-limit streak.
func (t *Tracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.consecutiveRateLimits = 0
}

// Levels returns the current bucket levels after lazy refill.
func (t *Tracker) Levels() (requests, units float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refillLocked()
	return t.requestLevel, t.unitLevel
}

// Capacities returns the configured bucket capacities.
func (t *Tracker) Capacities() (requests, units float64) {
	return t.cfg.RequestCapacity, t.cfg.UnitCapacity
}

// Reset refills both buckets and clears the rate-limit streak.
// Administrative use only.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.requestLevel = t.cfg.RequestCapacity
	t.unitLevel = t.cfg.UnitCapacity
	t.lastRefill = t.clk.Now()
	t.consecutiveRateLimits = 0
}

// Restore sets bucket levels from a checkpoint, crediting refill for the wall
// time the process was down.
func (t *Tracker) Restore(requestLevel, unitLevel float64, downtime time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if downtime < 0 {
		downtime = 0
	}
	sec := downtime.Seconds()
	t.requestLevel = math.Min(t.cfg.RequestCapacity, math.Max(0, requestLevel)+sec*t.cfg.RequestRefillPerSec)
	t.unitLevel = math.Min(t.cfg.UnitCapacity, math.Max(0, unitLevel)+sec*t.cfg.UnitRefillPerSec)
	t.lastRefill = t.clk.Now()
}
