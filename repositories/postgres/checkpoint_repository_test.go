package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/inference-router/models"
	"go.uber.org/zap"
)

func newMockRepo(t *testing.T) (*CheckpointRepository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := &DB{DB: mockDB, logger: zap.NewNop()}
	repo := NewCheckpointRepository(db, zap.NewNop()).(*CheckpointRepository)
	return repo, mock
}

func sampleCheckpoint() models.Checkpoint {
	return models.Checkpoint{
		BackendID:           "openai-gpt4",
		CapturedAt:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		CircuitState:        "open",
		ConsecutiveFailures: 5,
		CooldownRemaining:   20 * time.Second,
		LastCooldown:        30 * time.Second,
		LatencyEMA:          150 * time.Millisecond,
		SinceLastSuccess:    45 * time.Second,
		SuccessCount:        120,
		FailureCount:        8,
		RequestTokens:       42.5,
		UnitTokens:          10500,
	}
}

func TestCheckpointRepositorySave(t *testing.T) {
	t.Run("upserts each backend in one transaction", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		cp := sampleCheckpoint()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO backend_checkpoints").
			WithArgs(
				cp.BackendID, cp.CapturedAt, cp.CircuitState, cp.ConsecutiveFailures,
				int64(20000), int64(30000), int64(150), int64(45000),
				cp.SuccessCount, cp.FailureCount, cp.RequestTokens, cp.UnitTokens,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.Save(context.Background(), []models.Checkpoint{cp})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("never-succeeded sentinel survives", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		cp := sampleCheckpoint()
		cp.SinceLastSuccess = -1

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO backend_checkpoints").
			WithArgs(
				cp.BackendID, cp.CapturedAt, cp.CircuitState, cp.ConsecutiveFailures,
				int64(20000), int64(30000), int64(150), int64(-1),
				cp.SuccessCount, cp.FailureCount, cp.RequestTokens, cp.UnitTokens,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.Save(context.Background(), []models.Checkpoint{cp}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty fleet is a no-op", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		require.NoError(t, repo.Save(context.Background(), nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on exec failure", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO backend_checkpoints").
			WillReturnError(assert.AnError)
		mock.ExpectRollback()

		err := repo.Save(context.Background(), []models.Checkpoint{sampleCheckpoint()})
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCheckpointRepositoryLoad(t *testing.T) {
	columns := []string{
		"backend_id", "captured_at", "circuit_state", "consecutive_failures",
		"cooldown_remaining_ms", "last_cooldown_ms", "latency_ema_ms",
		"since_last_success_ms", "success_count", "failure_count",
		"request_tokens", "unit_tokens",
	}

	t.Run("round trip", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		capturedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		mock.ExpectQuery("SELECT (.+) FROM backend_checkpoints").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("anthropic-sonnet", capturedAt, "closed", 0, int64(0), int64(0), int64(90), int64(-1), uint64(0), uint64(3), 10.0, 2000.0).
				AddRow("openai-gpt4", capturedAt, "open", 5, int64(20000), int64(30000), int64(150), int64(45000), uint64(120), uint64(8), 42.5, 10500.0))

		cps, err := repo.Load(context.Background())
		require.NoError(t, err)
		require.Len(t, cps, 2)

		assert.Equal(t, "anthropic-sonnet", cps[0].BackendID)
		assert.Equal(t, time.Duration(-1), cps[0].SinceLastSuccess)
		assert.Equal(t, 90*time.Millisecond, cps[0].LatencyEMA)

		assert.Equal(t, "openai-gpt4", cps[1].BackendID)
		assert.Equal(t, "open", cps[1].CircuitState)
		assert.Equal(t, 20*time.Second, cps[1].CooldownRemaining)
		assert.Equal(t, 30*time.Second, cps[1].LastCooldown)
		assert.Equal(t, 45*time.Second, cps[1].SinceLastSuccess)
		assert.Equal(t, uint64(120), cps[1].SuccessCount)
		assert.Equal(t, capturedAt, cps[1].CapturedAt)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty table", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery("SELECT (.+) FROM backend_checkpoints").
			WillReturnRows(sqlmock.NewRows(columns))

		cps, err := repo.Load(context.Background())
		require.NoError(t, err)
		assert.Empty(t, cps)
	})

	t.Run("query failure", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery("SELECT (.+) FROM backend_checkpoints").
			WillReturnError(assert.AnError)

		_, err := repo.Load(context.Background())
		assert.Error(t, err)
	})
}
