package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-asset/pkg/simpleasset"
	"github.com/tendant/simple-asset/pkg/simpleasset/sweeper"
)

// SweepRunner runs one expiry sweep on demand.
type SweepRunner interface {
	SweepOnce(ctx context.Context) (simpleasset.SweepSummary, error)
}

// AdminHandler serves operator endpoints. It does no authentication of its own;
// mount it behind an admin middleware.
type AdminHandler struct {
	service simpleasset.Service
	sweeper SweepRunner
}

func NewAdminHandler(service simpleasset.Service, sweeper SweepRunner) *AdminHandler {
	return &AdminHandler{service: service, sweeper: sweeper}
}

// Routes returns the admin routes
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/sweeps", h.RunSweep)
	r.Get("/assets/{id}/dependents", h.GetDependents)
	r.Delete("/assets/{id}", h.Reclaim)
	return r
}

// RunSweep triggers an expiry sweep and returns its summary
func (h *AdminHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		writeErrorBody(w, r, http.StatusServiceUnavailable, "sweeper_disabled", "The expiry sweeper is disabled")
		return
	}

	summary, err := h.sweeper.SweepOnce(r.Context())
	switch {
	case errors.Is(err, sweeper.ErrSweepInProgress), errors.Is(err, sweeper.ErrLockHeld):
		writeErrorBody(w, r, http.StatusConflict, "sweep_in_progress", err.Error())
		return
	case err != nil:
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, summary)
}

// GetDependents reports the rows that reference an asset
func (h *AdminHandler) GetDependents(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(w, r)
	if !ok {
		return
	}
	counts, err := h.service.DependentCounts(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, counts)
}

// Reclaim hard-deletes an asset as the system principal
func (h *AdminHandler) Reclaim(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(w, r)
	if !ok {
		return
	}
	res := h.service.Reclaim(r.Context(), simpleasset.ReclaimRequest{
		AssetID:     id,
		Mode:        simpleasset.ReclaimHard,
		RequestedBy: simpleasset.SystemPrincipal,
	})
	render.Status(r, statusForOutcome(res.Outcome))
	render.JSON(w, r, res)
}
