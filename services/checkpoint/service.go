// Package checkpoint periodically persists router state so a restarted
// process resumes with warm breakers, health records and bucket levels.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/upb/inference-router/models"
	"github.com/upb/inference-router/repositories"
	"github.com/upb/inference-router/services/routing"
	"go.uber.org/zap"
)

// Router is the routing-service surface the checkpointer needs.
type Router interface {
	ExportCheckpoints() []models.Checkpoint
	RestoreCheckpoint(cp models.Checkpoint) error
}

// Service drives the periodic save loop and the startup restore.
type Service struct {
	repo     repositories.CheckpointRepository
	router   Router
	interval time.Duration
	logger   *zap.Logger

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	mu      sync.Mutex
	started bool
}

// NewService creates a checkpoint service
func NewService(repo repositories.CheckpointRepository, router Router, interval time.Duration, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		router:   router,
		interval: interval,
		logger:   logger,
	}
}

// Save captures and persists the current fleet state.
func (s *Service) Save(ctx context.Context) error {
	checkpoints := s.router.ExportCheckpoints()
	if err := s.repo.Save(ctx, checkpoints); err != nil {
		return fmt.Errorf("save checkpoints: %w", err)
	}
	s.logger.Debug("fleet checkpoint saved", zap.Int("backends", len(checkpoints)))
	return nil
}

// Restore loads stored checkpoints and applies them to the router. Rows for
// backends no longer in the manifest are skipped; the fleet definition is
// the source of truth for which backends exist.
func (s *Service) Restore(ctx context.Context) error {
	checkpoints, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load checkpoints: %w", err)
	}

	restored := 0
	for _, cp := range checkpoints {
		if err := s.router.RestoreCheckpoint(cp); err != nil {
			if errors.Is(err, routing.ErrUnknownBackend) {
				s.logger.Warn("skipping checkpoint for unknown backend",
					zap.String("backend", cp.BackendID))
				continue
			}
			return fmt.Errorf("restore checkpoint for %s: %w", cp.BackendID, err)
		}
		restored++
	}

	s.logger.Info("fleet state restored",
		zap.Int("restored", restored),
		zap.Int("stored", len(checkpoints)))
	return nil
}

// Start launches the periodic save loop.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("checkpoint service already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.started = true

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("started checkpoint service", zap.Duration("interval", s.interval))
	return nil
}

// Stop halts the loop and writes a final checkpoint so no state newer than
// one interval is lost on clean shutdown.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.started = false
	s.mu.Unlock()

	s.wg.Wait()
	return s.Save(ctx)
}

func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			saveCtx, cancel := context.WithTimeout(context.Background(), s.interval)
			if err := s.Save(saveCtx); err != nil {
				s.logger.Error("periodic checkpoint failed", zap.Error(err))
			}
			cancel()
		}
	}
}
