package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/inference-router/models"
	"github.com/upb/inference-router/repositories"
	"go.uber.org/zap"
)

// CheckpointRepository implements repositories.CheckpointRepository on Postgres.
// Durations are stored as millisecond integers; monotonic readings never
// reach the database.
type CheckpointRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewCheckpointRepository creates a new checkpoint repository
func NewCheckpointRepository(db *DB, logger *zap.Logger) repositories.CheckpointRepository {
	return &CheckpointRepository{
		db:     db,
		logger: logger,
	}
}

// Save upserts one row per backend inside a single transaction, so a crash
// mid-save never leaves a half-written fleet.
func (r *CheckpointRepository) Save(ctx context.Context, checkpoints []models.Checkpoint) error {
	if len(checkpoints) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin checkpoint transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO backend_checkpoints (
			backend_id, captured_at, circuit_state, consecutive_failures,
			cooldown_remaining_ms, last_cooldown_ms, latency_ema_ms,
			since_last_success_ms, success_count, failure_count,
			request_tokens, unit_tokens, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, CURRENT_TIMESTAMP
		)
		ON CONFLICT (backend_id) DO UPDATE SET
			captured_at = EXCLUDED.captured_at,
			circuit_state = EXCLUDED.circuit_state,
			consecutive_failures = EXCLUDED.consecutive_failures,
			cooldown_remaining_ms = EXCLUDED.cooldown_remaining_ms,
			last_cooldown_ms = EXCLUDED.last_cooldown_ms,
			latency_ema_ms = EXCLUDED.latency_ema_ms,
			since_last_success_ms = EXCLUDED.since_last_success_ms,
			success_count = EXCLUDED.success_count,
			failure_count = EXCLUDED.failure_count,
			request_tokens = EXCLUDED.request_tokens,
			unit_tokens = EXCLUDED.unit_tokens,
			updated_at = CURRENT_TIMESTAMP
	`

	for _, cp := range checkpoints {
		// A negative since-last-success means "never succeeded"; keep the
		// sentinel intact across the millisecond conversion.
		sinceSuccessMs := cp.SinceLastSuccess.Milliseconds()
		if cp.SinceLastSuccess < 0 {
			sinceSuccessMs = -1
		}
		_, err := tx.ExecContext(ctx, query,
			cp.BackendID,
			cp.CapturedAt,
			cp.CircuitState,
			cp.ConsecutiveFailures,
			cp.CooldownRemaining.Milliseconds(),
			cp.LastCooldown.Milliseconds(),
			cp.LatencyEMA.Milliseconds(),
			sinceSuccessMs,
			cp.SuccessCount,
			cp.FailureCount,
			cp.RequestTokens,
			cp.UnitTokens,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert checkpoint for %s: %w", cp.BackendID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit checkpoints: %w", err)
	}

	r.logger.Debug("checkpoints saved", zap.Int("backends", len(checkpoints)))
	return nil
}

// Load retrieves every stored checkpoint
func (r *CheckpointRepository) Load(ctx context.Context) ([]models.Checkpoint, error) {
	query := `
		SELECT backend_id, captured_at, circuit_state, consecutive_failures,
		       cooldown_remaining_ms, last_cooldown_ms, latency_ema_ms,
		       since_last_success_ms, success_count, failure_count,
		       request_tokens, unit_tokens
		FROM backend_checkpoints
		ORDER BY backend_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoints: %w", err)
	}
	defer rows.Close()

	var out []models.Checkpoint
	for rows.Next() {
		var cp models.Checkpoint
		var cooldownMs, lastCooldownMs, emaMs, sinceSuccessMs int64

		err := rows.Scan(
			&cp.BackendID,
			&cp.CapturedAt,
			&cp.CircuitState,
			&cp.ConsecutiveFailures,
			&cooldownMs,
			&lastCooldownMs,
			&emaMs,
			&sinceSuccessMs,
			&cp.SuccessCount,
			&cp.FailureCount,
			&cp.RequestTokens,
			&cp.UnitTokens,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}

		cp.CooldownRemaining = time.Duration(cooldownMs) * time.Millisecond
		cp.LastCooldown = time.Duration(lastCooldownMs) * time.Millisecond
		cp.LatencyEMA = time.Duration(emaMs) * time.Millisecond
		if sinceSuccessMs < 0 {
			cp.SinceLastSuccess = -1
		} else {
			cp.SinceLastSuccess = time.Duration(sinceSuccessMs) * time.Millisecond
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate checkpoint rows: %w", err)
	}

	return out, nil
}
