package health

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/upb/inference-router/internal/clock"
)

// Config holds the health record tuning knobs. Zero-value fields are replaced
// with defaults by NewRecord.
type Config struct {
	// EMAAlpha is the exponential moving average weight for latency. Default: 0.2.
	EMAAlpha float64

	// WindowSize is the sample capacity of the sliding windows used for
	// percentiles and the recent success rate. Default: 200.
	WindowSize int

	// SuccessWeight, LatencyWeight and RecencyWeight are the health score
	// terms. Defaults: 0.6, 0.2, 0.2.
	SuccessWeight float64
	LatencyWeight float64
	RecencyWeight float64

	// LatencyScale normalizes the inverse-latency term: a backend at
	// LatencyScale EMA scores 0.5 on that term. Default: 1s.
	LatencyScale time.Duration

	// RecencyHalfLife is the half-life of the recency-of-last-success decay.
	// Default: 5m.
	RecencyHalfLife time.Duration
}

func (c Config) withDefaults() Config {
	if c.EMAAlpha <= 0 || c.EMAAlpha > 1 {
		c.EMAAlpha = 0.2
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 200
	}
	if c.SuccessWeight <= 0 {
		c.SuccessWeight = 0.6
	}
	if c.LatencyWeight <= 0 {
		c.LatencyWeight = 0.2
	}
	if c.RecencyWeight <= 0 {
		c.RecencyWeight = 0.2
	}
	if c.LatencyScale <= 0 {
		c.LatencyScale = time.Second
	}
	if c.RecencyHalfLife <= 0 {
		c.RecencyHalfLife = 5 * time.Minute
	}
	return c
}

// DefaultConfig returns the default health settings.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

// sample is one completed attempt in the sliding window.
type sample struct {
	latency time.Duration
	success bool
}

// Record tracks one backend's health: EMA latency, sliding-window latency
// percentiles, success/failure counters and the derived health score. Mutated
// only through Observe (request outcomes), Restore (checkpoint reload) and
// Reset (administrative action). Safe for concurrent use.
type Record struct {
	cfg Config
	clk clock.Clock

	mu         sync.Mutex
	emaLatency float64 // nanoseconds
	window     []sample
	next       int
	filled     int

	successes uint64
	failures  uint64

	lastSuccess clock.Instant
	hasSuccess  bool
	lastFailure clock.Instant
	hasFailure  bool
	lastUpdated clock.Instant
}

// NewRecord creates an empty health record.
func NewRecord(cfg Config, clk clock.Clock) *Record {
	cfg = cfg.withDefaults()
	return &Record{
		cfg:    cfg,
		clk:    clk,
		window: make([]sample, cfg.WindowSize),
	}
}

// Observe records one completed attempt.
func (r *Record) Observe(success bool, latency time.Duration) {
	now := r.clk.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.filled == 0 {
		r.emaLatency = float64(latency)
	} else {
		a := r.cfg.EMAAlpha
		r.emaLatency = a*float64(latency) + (1-a)*r.emaLatency
	}

	r.window[r.next] = sample{latency: latency, success: success}
	r.next = (r.next + 1) % len(r.window)
	if r.filled < len(r.window) {
		r.filled++
	}

	if success {
		r.successes++
		r.lastSuccess = now
		r.hasSuccess = true
	} else {
		r.failures++
		r.lastFailure = now
		r.hasFailure = true
	}
	r.lastUpdated = now
}

// Score derives the health ranking value in [0,1]:
// 0.6·recent-success-rate + 0.2·normalized-inverse-latency + 0.2·recency.
// Recency decays exponentially with a configurable half-life; a backend with
// no history scores the neutral prior on every term, so cold backends are not
// penalized against warm ones.
func (r *Record) Score() float64 {
	now := r.clk.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	successRate := 1.0
	if r.filled > 0 {
		ok := 0
		for i := 0; i < r.filled; i++ {
			if r.window[i].success {
				ok++
			}
		}
		successRate = float64(ok) / float64(r.filled)
	}

	invLatency := 1.0
	if r.filled > 0 {
		invLatency = 1 / (1 + r.emaLatency/float64(r.cfg.LatencyScale))
	}

	recency := 1.0
	if r.hasSuccess {
		elapsed := float64(now - r.lastSuccess)
		recency = math.Pow(0.5, elapsed/float64(r.cfg.RecencyHalfLife))
	} else if r.hasFailure {
		// Failures but never a success: the recency term offers no credit.
		recency = 0
	}

	return r.cfg.SuccessWeight*successRate +
		r.cfg.LatencyWeight*invLatency +
		r.cfg.RecencyWeight*recency
}

// Percentiles returns the p50/p90/p99 latency estimates over the sliding
// window. All zeros when no samples have been observed.
func (r *Record) Percentiles() (p50, p90, p99 time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.filled == 0 {
		return 0, 0, 0
	}

	sorted := make([]time.Duration, r.filled)
	for i := 0; i < r.filled; i++ {
		sorted[i] = r.window[i].latency
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	at := func(q float64) time.Duration {
		idx := int(math.Ceil(q*float64(r.filled))) - 1
		if idx < 0 {
			idx = 0
		}
		return sorted[idx]
	}
	return at(0.50), at(0.90), at(0.99)
}

// EMALatency returns the exponentially weighted moving average latency.
func (r *Record) EMALatency() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Duration(r.emaLatency)
}

// Counts returns the lifetime success and failure counters.
func (r *Record) Counts() (successes, failures uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.successes, r.failures
}

// Reset clears all health state. Administrative use only.
func (r *Record) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.emaLatency = 0
	r.next = 0
	r.filled = 0
	r.successes = 0
	r.failures = 0
	r.hasSuccess = false
	r.hasFailure = false
}

// Export captures the checkpointable subset of the record. sinceLastSuccess
// is negative when the backend never succeeded.
func (r *Record) Export() (ema time.Duration, successes, failures uint64, sinceLastSuccess time.Duration) {
	now := r.clk.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	sinceLastSuccess = -1
	if r.hasSuccess {
		sinceLastSuccess = now - r.lastSuccess
	}
	return time.Duration(r.emaLatency), r.successes, r.failures, sinceLastSuccess
}

// Restore rebuilds the aggregate state from a checkpoint. The percentile
// window does not survive a restart; it refills from live traffic.
func (r *Record) Restore(ema time.Duration, successes, failures uint64, sinceLastSuccess time.Duration) {
	now := r.clk.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.emaLatency = float64(ema)
	r.successes = successes
	r.failures = failures
	if sinceLastSuccess >= 0 {
		r.hasSuccess = true
		r.lastSuccess = now - sinceLastSuccess
	}
}
