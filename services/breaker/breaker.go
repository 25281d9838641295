package breaker

import (
	"math"
	"sync"
	"time"

	"github.com/upb/inference-router/internal/clock"
	"github.com/upb/inference-router/models"
	"go.uber.org/zap"
)

// State is the circuit breaker state for one backend.
type State int

const (
	// StateClosed passes requests through normally.
	StateClosed State = iota

	// StateOpen rejects all requests until the cooldown deadline passes.
	StateOpen

	// StateHalfOpen admits exactly one probe request at a time.
	StateHalfOpen
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ParseState maps a persisted state name back to a State. Unknown names map
// to StateClosed.
func ParseState(s string) State {
	switch s {
	case "open":
		return StateOpen
	case "half_open":
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Config holds the breaker tuning knobs. Zero-value fields are replaced with
// defaults by New.
type Config struct {
	// FailureThreshold is the number of consecutive failures in the closed
	// state before the breaker opens. Default: 5.
	FailureThreshold int

	// TransientCooldown is the base cooldown for transient failures. Default: 30s.
	TransientCooldown time.Duration

	// RateLimitCooldown is the base cooldown for rate-limit failures when no
	// precise retry-after signal is available. Default: 120s.
	RateLimitCooldown time.Duration

	// TimeoutCooldown is the base cooldown for timeout failures. Default: 60s.
	TimeoutCooldown time.Duration

	// MaxCooldown caps every computed cooldown. Default: 10m.
	MaxCooldown time.Duration

	// EscalationFactor is raised to the number of prior opens within
	// OpenWindow and multiplied into the base cooldown. Default: 2.
	EscalationFactor float64

	// ReopenFactor multiplies the previous cooldown when a half-open probe
	// fails. Default: 1.5.
	ReopenFactor float64

	// OpenWindow bounds how far back prior opens count toward escalation.
	// Default: 10m.
	OpenWindow time.Duration
}

// withDefaults fills zero-value fields.
func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.TransientCooldown <= 0 {
		c.TransientCooldown = 30 * time.Second
	}
	if c.RateLimitCooldown <= 0 {
		c.RateLimitCooldown = 120 * time.Second
	}
	if c.TimeoutCooldown <= 0 {
		c.TimeoutCooldown = 60 * time.Second
	}
	if c.MaxCooldown <= 0 {
		c.MaxCooldown = 10 * time.Minute
	}
	if c.EscalationFactor <= 0 {
		c.EscalationFactor = 2
	}
	if c.ReopenFactor <= 0 {
		c.ReopenFactor = 1.5
	}
	if c.OpenWindow <= 0 {
		c.OpenWindow = 10 * time.Minute
	}
	return c
}

// DefaultConfig returns the default breaker settings.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

// Breaker implements the per-backend three-state circuit breaker. All timing
// decisions use the injected monotonic clock; wall clock never gates a
// transition. Safe for concurrent use.
type Breaker struct {
	name   string
	cfg    Config
	clk    clock.Clock
	logger *zap.Logger

	mu                   sync.Mutex
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	cooldownDeadline     clock.Instant
	lastCooldown         time.Duration
	opens                []clock.Instant

	// probeMu serializes the single half-open probe. Callers acquire it
	// non-blockingly via Acquire and release it through RecordSuccess,
	// RecordFailure, or CancelProbe.
	probeMu sync.Mutex
}

// New creates a Breaker in the closed state.
func New(name string, cfg Config, clk clock.Clock, logger *zap.Logger) *Breaker {
	return &Breaker{
		name:   name,
		cfg:    cfg.withDefaults(),
		clk:    clk,
		logger: logger,
		state:  StateClosed,
	}
}

// Acquire reports whether a request may be dispatched. When probe is true the
// caller owns the single half-open probe slot and must release it by
// recording an outcome or calling CancelProbe. A false return is an
// immediate "try another backend" signal; callers must not block or retry.
func (b *Breaker) Acquire() (ok, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateClosed {
		return true, false
	}

	if b.state == StateOpen {
		if b.clk.Now() < b.cooldownDeadline {
			return false, false
		}
		b.state = StateHalfOpen
		b.logger.Info("circuit half-open, admitting probe",
			zap.String("backend", b.name))
	}

	// Half-open: exactly one probe at a time.
	if b.probeMu.TryLock() {
		return true, true
	}
	return false, false
}

// CancelProbe releases the probe slot without recording an outcome. Used when
// a later admission stage (bulkhead, rate limit) rejects the attempt.
func (b *Breaker) CancelProbe() {
	b.probeMu.Unlock()
}

// RecordSuccess records a successful attempt. A successful probe closes the
// circuit and resets the counters.
func (b *Breaker) RecordSuccess(probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probeMu.Unlock()
		if b.state == StateHalfOpen {
			b.state = StateClosed
			b.consecutiveFailures = 0
			b.consecutiveSuccesses = 1
			b.logger.Info("circuit closed after successful probe",
				zap.String("backend", b.name))
		}
		return
	}

	if b.state == StateClosed {
		b.consecutiveFailures = 0
		b.consecutiveSuccesses++
	}
}

// RecordFailure records a failed attempt. retryAfter, when positive, is a
// provider-stated recovery duration that overrides the flat base cooldown for
// rate-limit failures. Permanent failures are not a capacity signal and never
// move the state machine.
func (b *Breaker) RecordFailure(kind models.FailureKind, retryAfter time.Duration, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if kind == models.FailurePermanent {
		// A request-shaped error says nothing about backend capacity.
		if probe {
			b.probeMu.Unlock()
		}
		return
	}

	now := b.clk.Now()

	if probe {
		b.probeMu.Unlock()
		if b.state == StateHalfOpen {
			cooldown := time.Duration(float64(b.lastCooldown) * b.cfg.ReopenFactor)
			if kind == models.FailureRateLimited && retryAfter > 0 {
				cooldown = retryAfter
			}
			b.reopenLocked(now, cooldown)
			b.logger.Warn("circuit re-opened after failed probe",
				zap.String("backend", b.name),
				zap.String("kind", kind.String()),
				zap.Duration("cooldown", b.lastCooldown))
		}
		return
	}

	if b.state != StateClosed {
		// Straggler from before the trip; the probe path owns recovery.
		return
	}

	b.consecutiveSuccesses = 0
	b.consecutiveFailures++
	if b.consecutiveFailures < b.cfg.FailureThreshold {
		return
	}

	b.openLocked(now, kind, retryAfter)
	b.logger.Warn("circuit opened",
		zap.String("backend", b.name),
		zap.String("kind", kind.String()),
		zap.Int("consecutive_failures", b.consecutiveFailures),
		zap.Duration("cooldown", b.lastCooldown))
}

// openLocked trips the breaker from the closed state. A provider-stated
// retry-after is used exactly, skipping escalation; otherwise the per-kind
// base cooldown is escalated by prior opens within the window.
func (b *Breaker) openLocked(now clock.Instant, kind models.FailureKind, retryAfter time.Duration) {
	b.pruneOpensLocked(now)

	var cooldown time.Duration
	if kind == models.FailureRateLimited && retryAfter > 0 {
		cooldown = retryAfter
	} else {
		base := b.baseCooldown(kind)
		cooldown = time.Duration(float64(base) * math.Pow(b.cfg.EscalationFactor, float64(len(b.opens))))
	}
	if cooldown > b.cfg.MaxCooldown {
		cooldown = b.cfg.MaxCooldown
	}

	b.state = StateOpen
	b.cooldownDeadline = now + cooldown
	b.lastCooldown = cooldown
	b.opens = append(b.opens, now)
}

// reopenLocked returns the breaker to open after a failed probe.
func (b *Breaker) reopenLocked(now clock.Instant, cooldown time.Duration) {
	b.pruneOpensLocked(now)
	if cooldown <= 0 {
		cooldown = b.baseCooldown(models.FailureTransient)
	}
	if cooldown > b.cfg.MaxCooldown {
		cooldown = b.cfg.MaxCooldown
	}
	b.state = StateOpen
	b.cooldownDeadline = now + cooldown
	b.lastCooldown = cooldown
	b.consecutiveFailures = b.cfg.FailureThreshold
	b.opens = append(b.opens, now)
}

func (b *Breaker) baseCooldown(kind models.FailureKind) time.Duration {
	switch kind {
	case models.FailureRateLimited:
		return b.cfg.RateLimitCooldown
	case models.FailureTimeout:
		return b.cfg.TimeoutCooldown
	default:
		return b.cfg.TransientCooldown
	}
}

func (b *Breaker) pruneOpensLocked(now clock.Instant) {
	cutoff := now - b.cfg.OpenWindow
	kept := b.opens[:0]
	for _, t := range b.opens {
		if t > cutoff {
			kept = append(kept, t)
		}
	}
	b.opens = kept
}

// State returns the effective state. An open breaker whose cooldown deadline
// has passed reads as half-open; the actual transition happens on the next
// Acquire.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.clk.Now() >= b.cooldownDeadline {
		return StateHalfOpen
	}
	return b.state
}

// CooldownRemaining returns how long the breaker remains open, or zero.
func (b *Breaker) CooldownRemaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return 0
	}
	remaining := b.cooldownDeadline - b.clk.Now()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ConsecutiveFailures returns the current consecutive-failure count.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}

// Reset forces the breaker back to closed, clearing all counters and history.
// Administrative use only.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	b.cooldownDeadline = 0
	b.lastCooldown = 0
	b.opens = nil
	b.logger.Info("circuit manually reset", zap.String("backend", b.name))
}

// Export captures the breaker state for checkpointing. Cooldown is returned
// as a remaining duration, never as a raw monotonic instant.
func (b *Breaker) Export() (state State, consecutiveFailures int, cooldownRemaining, lastCooldown time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := time.Duration(0)
	if b.state == StateOpen {
		if r := b.cooldownDeadline - b.clk.Now(); r > 0 {
			remaining = r
		}
	}
	return b.state, b.consecutiveFailures, remaining, b.lastCooldown
}

// Restore rebuilds the breaker from checkpointed state. cooldownRemaining has
// already been adjusted for the wall-clock time spent down; a non-positive
// value for an open breaker makes it immediately eligible for a probe.
func (b *Breaker) Restore(state State, consecutiveFailures int, cooldownRemaining, lastCooldown time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = state
	b.consecutiveFailures = consecutiveFailures
	b.lastCooldown = lastCooldown
	b.opens = nil

	switch state {
	case StateOpen:
		if cooldownRemaining < 0 {
			cooldownRemaining = 0
		}
		b.cooldownDeadline = b.clk.Now() + cooldownRemaining
	case StateHalfOpen:
		// The probe slot does not survive a restart.
		b.cooldownDeadline = b.clk.Now()
	default:
		b.cooldownDeadline = 0
	}
}
