package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/upb/inference-router/models"
)

var (
	// ErrBackendNotFound is returned when a dispatcher is not registered
	ErrBackendNotFound = errors.New("backend not found")

	// ErrBackendAlreadyRegistered is returned when registering a duplicate backend
	ErrBackendAlreadyRegistered = errors.New("backend already registered")
)

// ProviderError is a classified upstream failure. It carries the failure kind
// plus any capacity signals the provider attached so the router can set a
// precise cooldown instead of the flat default.
type ProviderError struct {
	// Backend is the backend identifier the error came from.
	Backend string

	// Kind classifies the failure per the router taxonomy.
	Kind models.FailureKind

	// StatusCode is the upstream HTTP status, when applicable.
	StatusCode int

	// Message is the upstream error text.
	Message string

	// RetryAfter is a provider-stated recovery duration, when present.
	RetryAfter time.Duration

	// RemainingRequests and RemainingUnits carry provider-reported remaining
	// capacity, when present.
	RemainingRequests *float64
	RemainingUnits    *float64
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s: %s failure (status %d): %s",
			e.Backend, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s: %s failure: %s", e.Backend, e.Kind, e.Message)
}

// Retryable reports whether the next candidate should be attempted.
func (e *ProviderError) Retryable() bool {
	return e.Kind.Retryable()
}

// KindOf classifies an arbitrary dispatch error into the failure taxonomy.
// Deadline expiry is a timeout; unclassified errors are transient, so unknown
// failures still count toward the breaker and fall through to the next
// candidate.
func KindOf(err error) models.FailureKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.FailureTimeout
	}
	return models.FailureTransient
}

// AsProviderError extracts the *ProviderError from err, or nil.
func AsProviderError(err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return nil
}

// classifyStatus maps an upstream HTTP status code to a failure kind.
func classifyStatus(status int) models.FailureKind {
	switch {
	case status == 429:
		return models.FailureRateLimited
	case status == 408 || status == 504:
		return models.FailureTimeout
	case status >= 500:
		return models.FailureTransient
	default:
		// 4xx other than the above: the request itself is malformed or
		// unauthorized; retrying elsewhere will not help.
		return models.FailurePermanent
	}
}
