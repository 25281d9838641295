package routing

import "errors"

var (
	// ErrNoBackendAvailable is returned when the full candidate chain,
	// including the last resort, is exhausted.
	ErrNoBackendAvailable = errors.New("no backend available")

	// ErrDeadlineExceeded is returned when the caller's deadline expires
	// before any backend produces a response.
	ErrDeadlineExceeded = errors.New("routing deadline exceeded")

	// ErrLoadShedding is returned while the fleet-level load-shedding signal
	// is active; callers should reject new work instead of retrying.
	ErrLoadShedding = errors.New("load shedding active")

	// ErrUnknownBackend is returned for snapshot or admin operations against
	// an unregistered backend ID.
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrBackendExists is returned when registering a duplicate backend ID.
	ErrBackendExists = errors.New("backend already registered")
)
