package routes

import (
	"roulette_server/controllers"
	"roulette_server/services"

	"github.com/gorilla/mux"
)

// RegisterWebhookRoutes sets up the provider event receiver under /api/webhooks
func RegisterWebhookRoutes(r *mux.Router, reconciler *services.ReconciliationService) {
	controller := controllers.NewWebhookController(reconciler)

	webhookRouter := r.PathPrefix("/api/webhooks").Subrouter()

	webhookRouter.HandleFunc("/rooms", controller.RoomEvent).Methods("POST")
}
