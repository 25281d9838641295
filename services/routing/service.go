package routing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/inference-router/internal/clock"
	"github.com/upb/inference-router/models"
	"github.com/upb/inference-router/services/breaker"
	"github.com/upb/inference-router/services/bulkhead"
	"github.com/upb/inference-router/services/health"
	"github.com/upb/inference-router/services/providers"
	"github.com/upb/inference-router/services/ratelimit"
	"go.uber.org/zap"
)

// backendState bundles one backend's definition with its per-backend mutable
// records. Each record synchronizes itself; there is no lock shared across
// backends, so updates on unrelated backends never serialize.
type backendState struct {
	def      models.Backend
	breaker  *breaker.Breaker
	health   *health.Record
	limiter  *ratelimit.Tracker
	bulkhead *bulkhead.Bulkhead
	throttle *bulkhead.Throttle
}

// Service routes requests across the configured backends. It owns all
// per-backend state; outcome handling is the only mutation path besides the
// administrative reset and checkpoint restore.
type Service struct {
	cfg      Config
	clk      clock.Clock
	logger   *zap.Logger
	registry *providers.Registry

	// mu guards the backend topology only; per-backend records have their
	// own synchronization.
	mu       sync.RWMutex
	backends map[string]*backendState
	order    []string
}

// NewService creates a routing service with no backends.
func NewService(cfg Config, clk clock.Clock, logger *zap.Logger) *Service {
	return &Service{
		cfg:      cfg.withDefaults(),
		clk:      clk,
		logger:   logger,
		registry: providers.NewRegistry(),
		backends: make(map[string]*backendState),
	}
}

// AddBackend registers a backend and its dispatcher, creating fresh health,
// breaker, rate-limit, bulkhead and throttle records.
func (s *Service) AddBackend(def models.Backend, d providers.Dispatcher) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid backend %q: %w", def.ID, err)
	}
	if d == nil {
		return errors.New("dispatcher cannot be nil")
	}

	limits := ratelimit.PerMinute(def.RequestsPerMinute, def.UnitsPerMinute)
	limits.BackoffBase = s.cfg.RateLimit.BackoffBase
	limits.BackoffCap = s.cfg.RateLimit.BackoffCap
	limits.BackoffJitter = s.cfg.RateLimit.BackoffJitter

	state := &backendState{
		def:      def,
		breaker:  breaker.New(def.ID, s.cfg.Breaker, s.clk, s.logger),
		health:   health.NewRecord(s.cfg.Health, s.clk),
		limiter:  ratelimit.NewTracker(limits, s.clk),
		bulkhead: bulkhead.New(def.Concurrency),
		throttle: bulkhead.NewThrottle(s.cfg.Throttle, s.clk),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The dispatcher registry is the source of truth for registered IDs.
	if err := s.registry.Register(def.ID, d); err != nil {
		if errors.Is(err, providers.ErrBackendAlreadyRegistered) {
			return fmt.Errorf("%w: %s", ErrBackendExists, def.ID)
		}
		return err
	}
	s.backends[def.ID] = state
	s.order = append(s.order, def.ID)

	s.logger.Info("backend registered",
		zap.String("backend", def.ID),
		zap.Int("tier", int(def.Tier)),
		zap.Int("concurrency", def.Concurrency),
		zap.Bool("last_resort", def.LastResort))
	return nil
}

// Route dispatches the request to the best admissible backend, walking the
// candidate chain on failure. It returns a Result (possibly degraded) or one
// of the typed routing errors; upstream provider errors are surfaced only
// when they are request-shaped.
func (s *Service) Route(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || req.Payload == nil {
		return nil, errors.New("routing: request payload is required")
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeadlineExceeded, err)
	}

	if s.Shedding() {
		s.logger.Warn("load shedding active, rejecting request",
			zap.String("request_id", req.RequestID),
			zap.Float64("open_fraction", s.OpenFraction()))
		return nil, ErrLoadShedding
	}

	candidates := s.candidates(req)
	if len(candidates) == 0 {
		s.logger.Warn("no admissible candidates",
			zap.String("request_id", req.RequestID),
			zap.Int("tier", int(req.Tier)))
		return nil, ErrNoBackendAvailable
	}

	attempts := 0
	for _, c := range candidates {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w after %d attempts", ErrDeadlineExceeded, attempts)
		}

		result, terminal, err := s.attempt(ctx, c, req, &attempts)
		if result != nil {
			result.Attempts = attempts
			return result, nil
		}
		if terminal {
			return nil, err
		}
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %d attempts", ErrDeadlineExceeded, attempts)
	}

	s.logger.Warn("candidate chain exhausted",
		zap.String("request_id", req.RequestID),
		zap.Int("candidates", len(candidates)),
		zap.Int("attempts", attempts))
	return nil, ErrNoBackendAvailable
}

// attempt runs one candidate through admission, dispatch and outcome
// recording. A nil result with terminal=false means "move to the next
// candidate"; terminal=true surfaces err to the caller.
func (s *Service) attempt(ctx context.Context, c *backendState, req *Request, attempts *int) (*Result, bool, error) {
	log := s.logger.With(
		zap.String("request_id", req.RequestID),
		zap.String("backend", c.def.ID))

	dispatcher, err := s.registry.Get(c.def.ID)
	if err != nil {
		log.Error("no dispatcher registered for backend", zap.Error(err))
		return nil, false, nil
	}

	// Adaptive throttle sheds load on a struggling backend before its
	// failure counters would trip the breaker.
	if !c.throttle.Admit() {
		log.Debug("candidate throttled client-side")
		return nil, false, nil
	}

	ok, probe := c.breaker.Acquire()
	if !ok {
		log.Debug("candidate rejected by circuit breaker")
		return nil, false, nil
	}

	if !c.bulkhead.TryAcquire() {
		if probe {
			c.breaker.CancelProbe()
		}
		log.Debug("candidate bulkhead full")
		return nil, false, nil
	}

	estUnits := req.EstimatedUnits
	if estUnits <= 0 {
		estUnits = c.def.EstimatedUnits
	}
	if !c.limiter.Consume(1, estUnits) {
		c.bulkhead.Release()
		if probe {
			c.breaker.CancelProbe()
		}
		log.Debug("candidate rate-limit buckets empty")
		return nil, false, nil
	}

	dispatchCtx := ctx
	if c.def.Timeout > 0 {
		var cancel context.CancelFunc
		dispatchCtx, cancel = context.WithTimeout(ctx, c.def.Timeout)
		defer cancel()
	}

	*attempts++
	start := s.clk.Now()
	resp, err := dispatcher.Dispatch(dispatchCtx, req.Payload)
	latency := s.clk.Now() - start
	// The slot is released unconditionally, on error and cancellation paths
	// included.
	c.bulkhead.Release()

	if err == nil {
		s.recordOutcome(c, successOutcome(resp, latency, estUnits), probe)
		degraded := c.def.Tier < req.Tier
		log.Info("request routed",
			zap.Duration("latency", latency),
			zap.Bool("degraded", degraded),
			zap.Bool("probe", probe))
		return &Result{
			BackendID: c.def.ID,
			Degraded:  degraded,
			Latency:   latency,
			Response:  resp,
		}, false, nil
	}

	out := failureOutcome(err, latency)
	s.recordOutcome(c, out, probe)
	log.Warn("attempt failed",
		zap.String("kind", out.Kind.String()),
		zap.Duration("latency", latency),
		zap.Bool("probe", probe),
		zap.Error(err))

	if out.Kind == models.FailurePermanent {
		// Request-shaped: retrying elsewhere won't help.
		return nil, true, err
	}
	return nil, false, nil
}

// successOutcome builds the outcome value for a completed dispatch.
func successOutcome(resp *providers.Response, latency time.Duration, reserved float64) models.Outcome {
	return models.Outcome{
		Success:           true,
		Kind:              models.FailureNone,
		Latency:           latency,
		UnitsReserved:     reserved,
		UnitsUsed:         resp.TotalUnits(),
		RemainingRequests: resp.RemainingRequests,
		RemainingUnits:    resp.RemainingUnits,
	}
}

// failureOutcome classifies a dispatch error into an outcome value, carrying
// over any capacity signals the provider attached.
func failureOutcome(err error, latency time.Duration) models.Outcome {
	out := models.Outcome{
		Kind:    providers.KindOf(err),
		Latency: latency,
	}
	if pe := providers.AsProviderError(err); pe != nil {
		out.RemainingRequests = pe.RemainingRequests
		out.RemainingUnits = pe.RemainingUnits
		out.RetryAfter = pe.RetryAfter
	}
	return out
}

// recordOutcome feeds one completed attempt into every per-backend record.
// No outcome is dropped: each one lands in the health record so future
// selection reflects reality.
func (s *Service) recordOutcome(c *backendState, out models.Outcome, probe bool) {
	c.health.Observe(out.Success, out.Latency)

	switch {
	case out.Success:
		c.breaker.RecordSuccess(probe)
		c.limiter.RecordSuccess()
		c.limiter.RefillFromSignal(out.RemainingRequests, out.RemainingUnits)
		c.limiter.Settle(out.UnitsReserved, out.UnitsUsed)
		c.throttle.RecordAccepted()

	case out.Kind == models.FailurePermanent:
		c.breaker.RecordFailure(out.Kind, 0, probe)
		// The backend handled the request; it has capacity.
		c.throttle.RecordAccepted()

	case out.Kind == models.FailureRateLimited:
		c.limiter.RefillFromSignal(out.RemainingRequests, out.RemainingUnits)
		retryAfter := out.RetryAfter
		if retryAfter <= 0 {
			// No provider signal: exponential backoff with jitter.
			retryAfter = c.limiter.RecordRateLimit()
		}
		c.breaker.RecordFailure(out.Kind, retryAfter, probe)

	default:
		c.breaker.RecordFailure(out.Kind, 0, probe)
	}
}

// OpenFraction returns the fraction of backends whose breaker is currently
// OPEN. Backends whose cooldown has elapsed read as half-open and do not
// count, so recovery probes resume as deadlines pass.
func (s *Service) OpenFraction() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.backends) == 0 {
		return 0
	}
	open := 0
	for _, c := range s.backends {
		if c.breaker.State() == breaker.StateOpen {
			open++
		}
	}
	return float64(open) / float64(len(s.backends))
}

// Shedding reports whether the fleet-level load-shedding signal is active.
func (s *Service) Shedding() bool {
	return s.OpenFraction() > s.cfg.ShedThreshold
}

// ResetBackend restores a backend's records to their initial state. This is
// the explicit administrative action; nothing else clears health history.
func (s *Service) ResetBackend(id string) error {
	s.mu.RLock()
	c, ok := s.backends[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBackend, id)
	}

	c.breaker.Reset()
	c.health.Reset()
	c.limiter.Reset()
	c.throttle.Reset()
	s.logger.Info("backend state reset", zap.String("backend", id))
	return nil
}
