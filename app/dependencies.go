package app

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/inference-router/config"
	"github.com/upb/inference-router/internal/clock"
	"github.com/upb/inference-router/middleware"
	"github.com/upb/inference-router/repositories/postgres"
	"github.com/upb/inference-router/services/breaker"
	"github.com/upb/inference-router/services/bulkhead"
	"github.com/upb/inference-router/services/checkpoint"
	"github.com/upb/inference-router/services/health"
	"github.com/upb/inference-router/services/providers"
	"github.com/upb/inference-router/services/ratelimit"
	"github.com/upb/inference-router/services/routing"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies. This is the central
// wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	Clock  clock.Clock
	DB     *postgres.DB // nil when checkpointing is disabled

	// Core services
	Router      *routing.Service
	Checkpoints *checkpoint.Service // nil when checkpointing is disabled

	// Middleware
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
		Clock:  clock.NewReal(),
	}

	deps.Router = routing.NewService(routingConfig(cfg.Router), deps.Clock, logger)

	if err := deps.initBackends(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize backends: %w", err)
	}

	if cfg.Checkpoint.Enabled {
		if err := deps.initCheckpointing(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to initialize checkpointing: %w", err)
		}
	}

	deps.AuthMiddleware = middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.Issuer, logger)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initBackends loads the manifest and registers a dispatcher per backend.
func (d *Dependencies) initBackends(cfg *config.Config) error {
	manifest, err := config.LoadManifest(cfg.ManifestPath)
	if err != nil {
		return err
	}

	for _, entry := range manifest.Backends {
		def := entry.Definition()

		var dispatcher providers.Dispatcher
		if def.LastResort && entry.BaseURL == "" {
			dispatcher = providers.NewLocalDispatcher(def.ID, def.Model)
		} else {
			dispatcher = providers.NewHTTPDispatcher(providers.HTTPDispatcherConfig{
				Name:    def.ID,
				BaseURL: entry.BaseURL,
				APIKey:  entry.APIKey(),
				Timeout: def.Timeout,
			})
		}

		if err := d.Router.AddBackend(def, dispatcher); err != nil {
			return err
		}
	}

	d.Logger.Info("backend fleet registered",
		zap.Int("backends", len(manifest.Backends)),
		zap.String("manifest", cfg.ManifestPath))
	return nil
}

// initCheckpointing opens the database, prepares the schema and restores any
// persisted fleet state.
func (d *Dependencies) initCheckpointing(ctx context.Context, cfg *config.Config) error {
	db, err := postgres.NewDB(*cfg.Database, d.Logger)
	if err != nil {
		return err
	}
	d.DB = db

	if err := db.InitSchema(ctx); err != nil {
		return err
	}

	repo := postgres.NewCheckpointRepository(db, d.Logger)
	d.Checkpoints = checkpoint.NewService(repo, d.Router, cfg.Checkpoint.Interval, d.Logger)

	restoreCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := d.Checkpoints.Restore(restoreCtx); err != nil {
		// A failed restore is a cold start, not a fatal error.
		d.Logger.Warn("checkpoint restore failed, starting cold", zap.Error(err))
	}

	return nil
}

// Close releases held resources.
func (d *Dependencies) Close() {
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.Logger.Error("failed to close database", zap.Error(err))
		}
	}
}

// routingConfig maps the flat environment knobs onto the per-record configs.
func routingConfig(rc config.RouterConfig) routing.Config {
	return routing.Config{
		ShedThreshold: rc.ShedThreshold,
		Breaker: breaker.Config{
			FailureThreshold:  rc.FailureThreshold,
			TransientCooldown: rc.TransientCooldown,
			RateLimitCooldown: rc.RateLimitCooldown,
			TimeoutCooldown:   rc.TimeoutCooldown,
			MaxCooldown:       rc.MaxCooldown,
		},
		Health: health.Config{
			EMAAlpha:        rc.HealthEMAAlpha,
			WindowSize:      rc.HealthWindowSize,
			RecencyHalfLife: rc.HealthRecencyWindow,
			SuccessWeight:   rc.HealthSuccessWeight,
			LatencyWeight:   rc.HealthLatencyWeight,
			RecencyWeight:   rc.HealthRecencyWeight,
			LatencyScale:    rc.HealthLatencyScale,
		},
		Throttle: bulkhead.ThrottleConfig{
			Window: rc.ThrottleWindow,
			K:      rc.ThrottleMultiplier,
		},
		RateLimit: ratelimit.Config{
			BackoffBase: rc.BackoffBase,
			BackoffCap:  rc.BackoffCap,
		},
	}
}
