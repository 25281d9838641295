package models

import "time"

// FailureKind classifies a single dispatch attempt. The kind decides how the
// attempt feeds the circuit breaker and rate-limit tracker.
type FailureKind int

const (
	// FailureNone means the attempt succeeded.
	FailureNone FailureKind = iota

	// FailureTransient covers connection errors and 5xx responses. Counted
	// toward the breaker threshold, eligible for fallback.
	FailureTransient

	// FailureRateLimited covers 429-class responses. Counted separately and
	// drives precise or exponential cooldowns.
	FailureRateLimited

	// FailureTimeout means the local deadline expired. Counted toward the
	// breaker threshold, eligible for fallback.
	FailureTimeout

	// FailurePermanent covers auth and validation errors. Not a capacity
	// signal; surfaced to the caller without retrying elsewhere.
	FailurePermanent
)

// String returns the taxonomy name of the failure kind.
func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureTransient:
		return "transient"
	case FailureRateLimited:
		return "rate_limited"
	case FailureTimeout:
		return "timeout"
	case FailurePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Retryable reports whether the next candidate should be attempted after a
// failure of this kind.
func (k FailureKind) Retryable() bool {
	switch k {
	case FailureTransient, FailureRateLimited, FailureTimeout:
		return true
	default:
		return false
	}
}

// Outcome describes one completed dispatch attempt. It is consumed
// immediately to update the health record and rate-limit tracker, then
// discarded.
type Outcome struct {
	Success bool
	Kind    FailureKind
	Latency time.Duration

	// UnitsReserved is the estimated work-unit cost consumed from the
	// buckets at dispatch time; settled against UnitsUsed on success.
	UnitsReserved float64

	// UnitsUsed is the actual work-unit usage reported by the provider.
	UnitsUsed float64

	// RemainingRequests and RemainingUnits carry provider-reported remaining
	// capacity when present.
	RemainingRequests *float64
	RemainingUnits    *float64

	// RetryAfter is a provider-stated recovery duration, when present.
	RetryAfter time.Duration
}
