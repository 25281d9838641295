package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/inference-router/models"
	"github.com/upb/inference-router/services/routing"
	"go.uber.org/zap"
)

// fakeFleet serves canned snapshots and records resets
type fakeFleet struct {
	snapshot models.FleetSnapshot
	resets   []string
}

func (f *fakeFleet) Snapshot() models.FleetSnapshot {
	return f.snapshot
}

func (f *fakeFleet) BackendSnapshot(id string) (models.Snapshot, error) {
	for _, s := range f.snapshot.Backends {
		if s.BackendID == id {
			return s, nil
		}
	}
	return models.Snapshot{}, routing.ErrUnknownBackend
}

func (f *fakeFleet) ResetBackend(id string) error {
	for _, s := range f.snapshot.Backends {
		if s.BackendID == id {
			f.resets = append(f.resets, id)
			return nil
		}
	}
	return routing.ErrUnknownBackend
}

func testFleet() *fakeFleet {
	return &fakeFleet{
		snapshot: models.FleetSnapshot{
			Shedding:     false,
			OpenFraction: 0.25,
			Backends: []models.Snapshot{
				{BackendID: "openai-gpt4", CircuitState: "closed", HealthScore: 0.95},
				{BackendID: "anthropic-sonnet", CircuitState: "open", HealthScore: 0.1},
			},
		},
	}
}

func testRouter(fleet *fakeFleet) chi.Router {
	logger := zap.NewNop()
	backends := NewBackendsHandler(fleet, logger)
	status := NewStatusHandler(fleet, logger)
	admin := NewAdminHandler(fleet, logger)

	r := chi.NewRouter()
	r.Get("/backends", backends.HandleList)
	r.Get("/backends/{id}", backends.HandleGet)
	r.Get("/status", status.HandleStatus)
	r.Post("/admin/backends/{id}/reset", admin.HandleReset)
	return r
}

func TestHandleListBackends(t *testing.T) {
	r := testRouter(testFleet())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/backends", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []models.Snapshot `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "openai-gpt4", resp.Data[0].BackendID)
	assert.Equal(t, "open", resp.Data[1].CircuitState)
}

func TestHandleGetBackend(t *testing.T) {
	r := testRouter(testFleet())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/backends/openai-gpt4", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data models.Snapshot `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "openai-gpt4", resp.Data.BackendID)
	assert.InDelta(t, 0.95, resp.Data.HealthScore, 1e-9)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/backends/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleStatus(t *testing.T) {
	fleet := testFleet()
	r := testRouter(fleet)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data StatusResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Data.Status)
	assert.Equal(t, 2, resp.Data.Backends)
	assert.InDelta(t, 0.25, resp.Data.OpenFraction, 1e-9)

	fleet.snapshot.Shedding = true
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "shedding", resp.Data.Status)
}

func TestHandleReset(t *testing.T) {
	fleet := testFleet()
	r := testRouter(fleet)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/backends/openai-gpt4/reset", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"openai-gpt4"}, fleet.resets)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/backends/nope/reset", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
