package models

import (
	"errors"
	"time"
)

// Tier is a capability tier. Higher values indicate more capable backends.
// Selection starts at the requested tier and falls through lower tiers.
type Tier int

// Backend identifies one upstream provider+model endpoint the router can
// dispatch to. Identity is immutable for the process lifetime; all mutable
// state lives in the per-backend records owned by the routing service.
type Backend struct {
	// ID uniquely identifies the backend (e.g. "openai-gpt4").
	ID string `json:"id"`

	// Provider is the upstream provider name (e.g. "openai", "anthropic", "local").
	Provider string `json:"provider"`

	// Model is the upstream model identifier.
	Model string `json:"model"`

	// Tier is the declared capability tier.
	Tier Tier `json:"tier"`

	// Concurrency caps in-flight requests (bulkhead size).
	Concurrency int `json:"concurrency"`

	// RequestsPerMinute is the default request-rate limit.
	RequestsPerMinute float64 `json:"requests_per_minute"`

	// UnitsPerMinute is the default work-unit (token) rate limit.
	UnitsPerMinute float64 `json:"units_per_minute"`

	// EstimatedUnits is the unit cost assumed per request before the actual
	// usage is known. Trued up from the response.
	EstimatedUnits float64 `json:"estimated_units"`

	// Timeout bounds a single dispatch to this backend. Zero means the
	// caller's deadline alone applies.
	Timeout time.Duration `json:"timeout"`

	// LastResort marks the always-available local fallback appended after
	// every tier is exhausted.
	LastResort bool `json:"last_resort"`
}

// Validate checks that the backend definition is usable.
func (b Backend) Validate() error {
	if b.ID == "" {
		return errors.New("backend id is required")
	}
	if b.Concurrency <= 0 {
		return errors.New("backend concurrency must be positive")
	}
	if b.RequestsPerMinute <= 0 || b.UnitsPerMinute <= 0 {
		return errors.New("backend rate limits must be positive")
	}
	return nil
}
