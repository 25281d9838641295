package models

// Snapshot is a read-only, point-in-time view of one backend's state, safe to
// serialize to JSON for metrics and dashboards. It is produced by the routing
// service; nothing outside the router mutates the state it reflects.
type Snapshot struct {
	BackendID string `json:"backend_id"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Tier      Tier   `json:"tier"`

	CircuitState        string  `json:"circuit_state"`
	HealthScore         float64 `json:"health_score"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	CooldownRemainingMs int64   `json:"cooldown_remaining_ms"`

	LatencyEMAMs float64 `json:"latency_ema_ms"`
	LatencyP50Ms float64 `json:"latency_p50_ms"`
	LatencyP90Ms float64 `json:"latency_p90_ms"`
	LatencyP99Ms float64 `json:"latency_p99_ms"`

	SuccessCount uint64 `json:"success_count"`
	FailureCount uint64 `json:"failure_count"`

	RequestTokens   float64 `json:"request_tokens"`
	RequestCapacity float64 `json:"request_capacity"`
	UnitTokens      float64 `json:"unit_tokens"`
	UnitCapacity    float64 `json:"unit_capacity"`

	InFlight         int `json:"in_flight"`
	ConcurrencyLimit int `json:"concurrency_limit"`

	ThrottleProbability float64 `json:"throttle_probability"`

	LastResort bool `json:"last_resort"`
}

// FleetSnapshot aggregates the per-backend snapshots with the fleet-level
// load-shedding signal.
type FleetSnapshot struct {
	Shedding     bool       `json:"shedding"`
	OpenFraction float64    `json:"open_fraction"`
	Backends     []Snapshot `json:"backends"`
}
