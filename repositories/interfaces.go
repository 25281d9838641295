package repositories

import (
	"context"

	"github.com/upb/inference-router/models"
)

// CheckpointRepository persists per-backend router state across restarts.
type CheckpointRepository interface {
	// Save writes one checkpoint row per backend, replacing prior rows.
	Save(ctx context.Context, checkpoints []models.Checkpoint) error

	// Load retrieves every stored checkpoint.
	Load(ctx context.Context) ([]models.Checkpoint, error)
}
