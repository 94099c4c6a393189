package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cbodonnell/hokm/pkg/api/middleware"
	"github.com/cbodonnell/hokm/pkg/broadcast"
	"github.com/cbodonnell/hokm/pkg/delta"
	"github.com/cbodonnell/hokm/pkg/game"
	"github.com/cbodonnell/hokm/pkg/log"
	"github.com/gorilla/mux"
)

// Rooms is the part of the game synchronizer exposed over HTTP.
type Rooms interface {
	GetPlayerOptimizedState(ctx context.Context, room, player string) (*delta.FullSyncPayload, error)
	AssignTeams(ctx context.Context, room string, players []string) error
	DealInitialHand(ctx context.Context, room string) error
	StartNewRound(ctx context.Context, room string) error
	CloseRoom(ctx context.Context, room string) error
	Members(room string) []string
}

type BandwidthStatistics interface {
	GetBandwidthStatistics() broadcast.BandwidthSnapshot
}

type CreateRoomRequest struct {
	Players []string `json:"players"`
}

func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func HandleGetPlayerState(rooms Rooms) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		room, player := vars["room"], vars["player"]
		if !authorizePlayer(w, r, player) {
			return
		}
		payload, err := rooms.GetPlayerOptimizedState(r.Context(), room, player)
		if err != nil {
			writeError(w, "failed to get player state", err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	}
}

func HandleCreateRoom(rooms Rooms) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := mux.Vars(r)["room"]
		req := &CreateRoomRequest{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			http.Error(w, "Failed to decode request body", http.StatusBadRequest)
			return
		}
		if len(req.Players) == 0 {
			http.Error(w, "At least one player is required", http.StatusBadRequest)
			return
		}
		claims, ok := middleware.ClaimsFromContext(r.Context())
		if !ok || !contains(req.Players, claims.UID) {
			http.Error(w, "Caller must be one of the players", http.StatusForbidden)
			return
		}
		if len(rooms.Members(room)) > 0 {
			http.Error(w, "Room already exists", http.StatusConflict)
			return
		}
		if err := rooms.AssignTeams(r.Context(), room, req.Players); err != nil {
			writeError(w, "failed to assign teams", err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

func HandleDeal(rooms Rooms) http.HandlerFunc {
	return handleRoomAction(rooms, "deal", rooms.DealInitialHand)
}

func HandleNewRound(rooms Rooms) http.HandlerFunc {
	return handleRoomAction(rooms, "start new round", rooms.StartNewRound)
}

func HandleDeleteRoom(rooms Rooms) http.HandlerFunc {
	return handleRoomAction(rooms, "close room", rooms.CloseRoom)
}

func handleRoomAction(rooms Rooms, name string, action func(ctx context.Context, room string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := mux.Vars(r)["room"]
		if !authorizeMember(w, r, rooms, room) {
			return
		}
		if err := action(r.Context(), room); err != nil {
			writeError(w, "failed to "+name, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleBandwidthStatistics(stats BandwidthStatistics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, stats.GetBandwidthStatistics())
	}
}

func authorizePlayer(w http.ResponseWriter, r *http.Request, player string) bool {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		log.Error("failed to get claims from context")
		http.Error(w, "Failed to get claims from context", http.StatusInternalServerError)
		return false
	}
	if claims.UID != player {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func authorizeMember(w http.ResponseWriter, r *http.Request, rooms Rooms, room string) bool {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		log.Error("failed to get claims from context")
		http.Error(w, "Failed to get claims from context", http.StatusInternalServerError)
		return false
	}
	members := rooms.Members(room)
	if len(members) == 0 {
		http.Error(w, "Room not found", http.StatusNotFound)
		return false
	}
	if !contains(members, claims.UID) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return false
	}
	return true
}

// writeError maps game errors to HTTP statuses.
func writeError(w http.ResponseWriter, msg string, err error) {
	var ruleErr *game.RuleError
	switch {
	case errors.Is(err, broadcast.ErrUnknownRoom):
		http.Error(w, "Room not found", http.StatusNotFound)
	case errors.Is(err, game.ErrNoRuleEngine):
		http.Error(w, "Rule engine unavailable", http.StatusServiceUnavailable)
	case errors.As(err, &ruleErr):
		status := ruleErr.Status
		if status < 400 || status >= 500 {
			status = http.StatusBadGateway
		}
		http.Error(w, ruleErr.Reason, status)
	default:
		log.Error("%s: %v", msg, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response: %v", err)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
