package routes

import (
	"roulette_server/controllers"
	"roulette_server/services"

	"github.com/gorilla/mux"
)

// RegisterMatchmakingRoutes sets up routes for the matching core under /api/roulette
func RegisterMatchmakingRoutes(r *mux.Router, matchmaking *services.MatchmakingService, leftBehind *services.LeftBehindService) {
	controller := controllers.NewMatchmakingController(matchmaking, leftBehind)

	rouletteRouter := r.PathPrefix("/api/roulette").Subrouter()

	rouletteRouter.HandleFunc("/enqueue", controller.Enqueue).Methods("POST")
	rouletteRouter.HandleFunc("/status", controller.Status).Methods("GET")
	rouletteRouter.HandleFunc("/cancel", controller.Cancel).Methods("POST")
	rouletteRouter.HandleFunc("/skip", controller.Skip).Methods("POST")
	rouletteRouter.HandleFunc("/disconnect", controller.Disconnect).Methods("POST")
	rouletteRouter.HandleFunc("/leftBehind", controller.LeftBehindStatus).Methods("GET")
	rouletteRouter.HandleFunc("/leftBehind/clear", controller.ClearLeftBehind).Methods("POST")
}
