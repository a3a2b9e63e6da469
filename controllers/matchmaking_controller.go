package controllers

import (
	"encoding/json"
	"net/http"

	"roulette_server/services"
)

// MatchmakingController handles HTTP requests for the matching core
type MatchmakingController struct {
	Matchmaking *services.MatchmakingService
	LeftBehind  *services.LeftBehindService
}

// NewMatchmakingController creates a new MatchmakingController instance
func NewMatchmakingController(matchmaking *services.MatchmakingService, leftBehind *services.LeftBehindService) *MatchmakingController {
	return &MatchmakingController{Matchmaking: matchmaking, LeftBehind: leftBehind}
}

type enqueueRequest struct {
	UserName string `json:"userName"`
	UseDemo  bool   `json:"useDemo"`
}

// Enqueue admits a user to the pool and tries to pair them right away
func (mc *MatchmakingController) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := mc.Matchmaking.Enqueue(r.Context(), req.UserName, req.UseDemo)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Status answers the waiting client's poll
func (mc *MatchmakingController) Status(w http.ResponseWriter, r *http.Request) {
	userName := r.URL.Query().Get("userName")
	if userName == "" {
		http.Error(w, "userName is required", http.StatusBadRequest)
		return
	}

	result, err := mc.Matchmaking.Status(r.Context(), userName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type cancelRequest struct {
	UserName string `json:"userName"`
}

// Cancel removes a user from the pool, dissolving their match if needed
func (mc *MatchmakingController) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	removed, err := mc.Matchmaking.Cancel(r.Context(), req.UserName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"removed": removed,
	})
}

type skipRequest struct {
	UserName string `json:"userName"`
	RoomName string `json:"roomName"`
	Partner  string `json:"partner"`
}

// Skip dissolves the pair and re-queues both users with a skip cooldown
func (mc *MatchmakingController) Skip(w http.ResponseWriter, r *http.Request) {
	var req skipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := mc.Matchmaking.Skip(r.Context(), req.UserName, req.RoomName, req.Partner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type disconnectRequest struct {
	UserName string `json:"userName"`
	RoomName string `json:"roomName"`
	Partner  string `json:"partner"`
}

// Disconnect reports an unexpected drop from a room
func (mc *MatchmakingController) Disconnect(w http.ResponseWriter, r *http.Request) {
	var req disconnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := mc.Matchmaking.HandleDisconnection(r.Context(), req.UserName, req.RoomName, req.Partner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// LeftBehindStatus tells an abandoned client what to do next
func (mc *MatchmakingController) LeftBehindStatus(w http.ResponseWriter, r *http.Request) {
	userName := r.URL.Query().Get("userName")
	if userName == "" {
		http.Error(w, "userName is required", http.StatusBadRequest)
		return
	}

	status, err := mc.LeftBehind.Status(r.Context(), userName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type clearLeftBehindRequest struct {
	UserName string `json:"userName"`
}

// ClearLeftBehind acknowledges and drops the left-behind notice
func (mc *MatchmakingController) ClearLeftBehind(w http.ResponseWriter, r *http.Request) {
	var req clearLeftBehindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := mc.LeftBehind.Clear(r.Context(), req.UserName); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cleared": true,
	})
}
