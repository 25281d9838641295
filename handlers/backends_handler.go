package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/inference-router/models"
	"github.com/upb/inference-router/services/routing"
	"github.com/upb/inference-router/utils"
	"go.uber.org/zap"
)

// Fleet defines the snapshot and admin operations the handlers depend on
type Fleet interface {
	Snapshot() models.FleetSnapshot
	BackendSnapshot(id string) (models.Snapshot, error)
	ResetBackend(id string) error
}

// BackendsHandler serves the per-backend state views
type BackendsHandler struct {
	fleet  Fleet
	logger *zap.Logger
}

// NewBackendsHandler creates a new BackendsHandler
func NewBackendsHandler(fleet Fleet, logger *zap.Logger) *BackendsHandler {
	return &BackendsHandler{
		fleet:  fleet,
		logger: logger,
	}
}

// HandleList handles GET /api/v1/backends
func (h *BackendsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	snap := h.fleet.Snapshot()
	_ = utils.WriteOK(w, snap.Backends)
}

// HandleGet handles GET /api/v1/backends/{id}
func (h *BackendsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snap, err := h.fleet.BackendSnapshot(id)
	if err != nil {
		if errors.Is(err, routing.ErrUnknownBackend) {
			_ = utils.WriteNotFound(w, "Unknown backend: "+id)
			return
		}
		h.logger.Error("backend snapshot failed", zap.String("backend", id), zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}
	_ = utils.WriteOK(w, snap)
}

// StatusHandler serves the fleet-level status view
type StatusHandler struct {
	fleet  Fleet
	logger *zap.Logger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(fleet Fleet, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		fleet:  fleet,
		logger: logger,
	}
}

// StatusResponse summarizes the fleet state
type StatusResponse struct {
	Status       string  `json:"status"`
	Shedding     bool    `json:"shedding"`
	OpenFraction float64 `json:"open_fraction"`
	Backends     int     `json:"backends"`
}

// HandleStatus handles GET /api/v1/status
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.fleet.Snapshot()

	status := "ok"
	if snap.Shedding {
		status = "shedding"
	}
	_ = utils.WriteOK(w, StatusResponse{
		Status:       status,
		Shedding:     snap.Shedding,
		OpenFraction: snap.OpenFraction,
		Backends:     len(snap.Backends),
	})
}

// AdminHandler serves the administrative operations
type AdminHandler struct {
	fleet  Fleet
	logger *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(fleet Fleet, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		fleet:  fleet,
		logger: logger,
	}
}

// HandleReset handles POST /api/v1/admin/backends/{id}/reset
func (h *AdminHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.fleet.ResetBackend(id); err != nil {
		if errors.Is(err, routing.ErrUnknownBackend) {
			_ = utils.WriteNotFound(w, "Unknown backend: "+id)
			return
		}
		h.logger.Error("backend reset failed", zap.String("backend", id), zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	h.logger.Info("backend reset via admin API", zap.String("backend", id))
	_ = utils.WriteOK(w, map[string]string{"backend": id, "status": "reset"})
}
