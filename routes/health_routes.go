package routes

import (
	"roulette_server/controllers"
	"roulette_server/services"

	"github.com/gorilla/mux"
)

// RegisterHealthRoutes sets up diagnostics and recovery routes under /api/health
func RegisterHealthRoutes(r *mux.Router, health *services.HealthService) {
	controller := controllers.NewHealthController(health)

	healthRouter := r.PathPrefix("/api/health").Subrouter()

	healthRouter.HandleFunc("", controller.Live).Methods("GET")
	healthRouter.HandleFunc("/stats", controller.Stats).Methods("GET")
	healthRouter.HandleFunc("/clearLocks", controller.ClearLocks).Methods("POST")
	healthRouter.HandleFunc("/reset", controller.Reset).Methods("POST")
}
