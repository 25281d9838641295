package routing

import (
	"time"

	"github.com/upb/inference-router/models"
	"github.com/upb/inference-router/services/breaker"
	"github.com/upb/inference-router/services/bulkhead"
	"github.com/upb/inference-router/services/health"
	"github.com/upb/inference-router/services/providers"
	"github.com/upb/inference-router/services/ratelimit"
)

// Request is one routing request: the opaque dispatch payload plus the
// capability requirement. The caller's context carries the deadline.
type Request struct {
	// RequestID identifies the request in logs. Assigned when empty.
	RequestID string

	// Tier is the requested capability tier. Lower tiers are used as
	// degraded fallbacks when the requested tier is exhausted.
	Tier models.Tier

	// EstimatedUnits overrides the backend's configured per-request unit
	// estimate when positive.
	EstimatedUnits float64

	// Payload is dispatched verbatim to the chosen backend.
	Payload *providers.Request
}

// Result is a successful routing outcome.
type Result struct {
	// BackendID is the backend that served the request.
	BackendID string `json:"backend_id"`

	// Degraded marks a response served by a backend below the requested tier.
	Degraded bool `json:"degraded"`

	// Latency is the observed dispatch latency of the winning attempt.
	Latency time.Duration `json:"latency"`

	// Attempts counts dispatch attempts across the candidate chain,
	// including the winning one.
	Attempts int `json:"attempts"`

	// Response is the upstream payload.
	Response *providers.Response `json:"response"`
}

// Config holds the routing service settings shared across backends.
// Per-backend limits come from each backend definition.
type Config struct {
	// ShedThreshold is the OPEN fraction above which the fleet sheds load.
	// Default: 0.5.
	ShedThreshold float64

	// Breaker, Health and Throttle configure the per-backend records.
	Breaker  breaker.Config
	Health   health.Config
	Throttle bulkhead.ThrottleConfig

	// RateLimit supplies backoff tuning; bucket sizes come from the backend
	// definition.
	RateLimit ratelimit.Config
}

func (c Config) withDefaults() Config {
	if c.ShedThreshold <= 0 {
		c.ShedThreshold = 0.5
	}
	return c
}

// DefaultConfig returns the default routing settings.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}
