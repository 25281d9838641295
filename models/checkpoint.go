package models

import "time"

// Checkpoint is the persisted form of one backend's health and rate-limit
// state. Monotonic instants are never stored; every time-relative field is a
// duration measured at capture time, recomputed against the restoring
// process's clock using the wall-clock delta since CapturedAt.
type Checkpoint struct {
	BackendID  string    `json:"backend_id"`
	CapturedAt time.Time `json:"captured_at"`

	CircuitState        string `json:"circuit_state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`

	// CooldownRemaining is how much OPEN cooldown was left at capture.
	// Zero or negative means no cooldown was pending.
	CooldownRemaining time.Duration `json:"cooldown_remaining"`

	// LastCooldown is the most recent cooldown duration, used for the
	// failed-probe escalation after restore.
	LastCooldown time.Duration `json:"last_cooldown"`

	LatencyEMA   time.Duration `json:"latency_ema"`
	SuccessCount uint64        `json:"success_count"`
	FailureCount uint64        `json:"failure_count"`

	// SinceLastSuccess is the elapsed time since the last successful attempt
	// at capture. Negative means the backend never succeeded.
	SinceLastSuccess time.Duration `json:"since_last_success"`

	RequestTokens float64 `json:"request_tokens"`
	UnitTokens    float64 `json:"unit_tokens"`
}
