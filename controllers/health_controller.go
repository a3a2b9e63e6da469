package controllers

import (
	"encoding/json"
	"net/http"

	"roulette_server/services"
)

// HealthController exposes diagnostics and operator recovery actions
type HealthController struct {
	Health *services.HealthService
}

// NewHealthController creates a new HealthController instance
func NewHealthController(health *services.HealthService) *HealthController {
	return &HealthController{Health: health}
}

// Live is the plain liveness probe
func (hc *HealthController) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Stats reports store counts
func (hc *HealthController) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := hc.Health.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ClearLocks drops expired pair locks
func (hc *HealthController) ClearLocks(w http.ResponseWriter, r *http.Request) {
	cleared, err := hc.Health.ClearStaleLocks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cleared": cleared,
	})
}

type resetRequest struct {
	Target string `json:"target"`
}

// Reset wipes one store, or everything with target "all"
func (hc *HealthController) Reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := hc.Health.Reset(r.Context(), req.Target); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reset": req.Target,
	})
}
