package controllers

import (
	"encoding/json"
	"net/http"

	"roulette_server/services"

	log "github.com/sirupsen/logrus"
)

// WebhookController receives the provider's asynchronous room events and
// funnels them into debounced reconciliation.
type WebhookController struct {
	Reconciler *services.ReconciliationService
}

// NewWebhookController creates a new WebhookController instance
func NewWebhookController(reconciler *services.ReconciliationService) *WebhookController {
	return &WebhookController{Reconciler: reconciler}
}

type roomEvent struct {
	Type     string `json:"type"`
	RoomName string `json:"roomName"`
	UserName string `json:"userName"`
}

// RoomEvent handles participant.joined / participant.left / room.finished
func (wc *WebhookController) RoomEvent(w http.ResponseWriter, r *http.Request) {
	var event roomEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "invalid event payload", http.StatusBadRequest)
		return
	}
	if event.RoomName == "" {
		http.Error(w, "roomName is required", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case "participant.joined", "participant.left", "room.finished":
		wc.Reconciler.Notify(event.RoomName)
	default:
		log.WithField("type", event.Type).Debug("Ignoring unknown provider event")
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"received": true,
	})
}
