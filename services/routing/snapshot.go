package routing

import (
	"fmt"
	"time"

	"github.com/upb/inference-router/models"
	"github.com/upb/inference-router/services/breaker"
)

// Snapshot returns a read-only fleet view for metrics and dashboards.
func (s *Service) Snapshot() models.FleetSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := models.FleetSnapshot{
		Backends: make([]models.Snapshot, 0, len(s.order)),
	}
	open := 0
	for _, id := range s.order {
		c := s.backends[id]
		snap.Backends = append(snap.Backends, s.snapshotState(c))
		if c.breaker.State() == breaker.StateOpen {
			open++
		}
	}
	if len(s.order) > 0 {
		snap.OpenFraction = float64(open) / float64(len(s.order))
	}
	snap.Shedding = snap.OpenFraction > s.cfg.ShedThreshold
	return snap
}

// BackendSnapshot returns the snapshot for a single backend.
func (s *Service) BackendSnapshot(id string) (models.Snapshot, error) {
	s.mu.RLock()
	c, ok := s.backends[id]
	s.mu.RUnlock()
	if !ok {
		return models.Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownBackend, id)
	}
	return s.snapshotState(c), nil
}

func (s *Service) snapshotState(c *backendState) models.Snapshot {
	p50, p90, p99 := c.health.Percentiles()
	successes, failures := c.health.Counts()
	reqLevel, unitLevel := c.limiter.Levels()
	reqCap, unitCap := c.limiter.Capacities()

	return models.Snapshot{
		BackendID: c.def.ID,
		Provider:  c.def.Provider,
		Model:     c.def.Model,
		Tier:      c.def.Tier,

		CircuitState:        c.breaker.State().String(),
		HealthScore:         c.health.Score(),
		ConsecutiveFailures: c.breaker.ConsecutiveFailures(),
		CooldownRemainingMs: c.breaker.CooldownRemaining().Milliseconds(),

		LatencyEMAMs: float64(c.health.EMALatency()) / float64(time.Millisecond),
		LatencyP50Ms: float64(p50) / float64(time.Millisecond),
		LatencyP90Ms: float64(p90) / float64(time.Millisecond),
		LatencyP99Ms: float64(p99) / float64(time.Millisecond),

		SuccessCount: successes,
		FailureCount: failures,

		RequestTokens:   reqLevel,
		RequestCapacity: reqCap,
		UnitTokens:      unitLevel,
		UnitCapacity:    unitCap,

		InFlight:         c.bulkhead.InFlight(),
		ConcurrencyLimit: c.bulkhead.Limit(),

		ThrottleProbability: c.throttle.Probability(),

		LastResort: c.def.LastResort,
	}
}

// ExportCheckpoints captures the persistable state of every backend. All
// monotonic-relative fields are converted to durations against the current
// clock; CapturedAt anchors them to wall time for the restoring process.
func (s *Service) ExportCheckpoints() []models.Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clk.WallNow()
	out := make([]models.Checkpoint, 0, len(s.order))
	for _, id := range s.order {
		c := s.backends[id]

		state, fails, cooldownRemaining, lastCooldown := c.breaker.Export()
		ema, successes, failures, sinceLastSuccess := c.health.Export()
		reqLevel, unitLevel := c.limiter.Levels()

		out = append(out, models.Checkpoint{
			BackendID:           id,
			CapturedAt:          now,
			CircuitState:        state.String(),
			ConsecutiveFailures: fails,
			CooldownRemaining:   cooldownRemaining,
			LastCooldown:        lastCooldown,
			LatencyEMA:          ema,
			SuccessCount:        successes,
			FailureCount:        failures,
			SinceLastSuccess:    sinceLastSuccess,
			RequestTokens:       reqLevel,
			UnitTokens:          unitLevel,
		})
	}
	return out
}

// RestoreCheckpoint rebuilds one backend's records from a checkpoint.
// Durations are shifted by the wall-clock time elapsed since capture and
// re-anchored to this process's monotonic clock; raw monotonic values from
// the previous process are never trusted.
func (s *Service) RestoreCheckpoint(cp models.Checkpoint) error {
	s.mu.RLock()
	c, ok := s.backends[cp.BackendID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBackend, cp.BackendID)
	}

	downtime := s.clk.WallNow().Sub(cp.CapturedAt)
	if downtime < 0 {
		// Wall clock moved backwards across the restart; the safest reading
		// is that no time passed.
		downtime = 0
	}

	c.breaker.Restore(
		breaker.ParseState(cp.CircuitState),
		cp.ConsecutiveFailures,
		cp.CooldownRemaining-downtime,
		cp.LastCooldown,
	)

	sinceLastSuccess := cp.SinceLastSuccess
	if sinceLastSuccess >= 0 {
		sinceLastSuccess += downtime
	}
	c.health.Restore(cp.LatencyEMA, cp.SuccessCount, cp.FailureCount, sinceLastSuccess)

	c.limiter.Restore(cp.RequestTokens, cp.UnitTokens, downtime)
	return nil
}
