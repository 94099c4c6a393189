package game

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPRuleEngine(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := &ruleEngineRequest{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch r.URL.Path {
		case "/rooms/room-1/play-card":
			if req.Card != "2H" {
				w.WriteHeader(http.StatusUnprocessableEntity)
				json.NewEncoder(w).Encode(&ruleEngineResponse{Error: "card not in hand"})
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"state": map[string]interface{}{"current_turn": 1, "hand_" + req.Player: []string{"3H"}},
			})
		case "/rooms/room-1/assign-teams":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"state": map[string]interface{}{"players": req.Players},
			})
		case "/rooms/room-1/deal":
			w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("not found"))
		}
	}))
	defer server.Close()

	engine, err := NewHTTPRuleEngine(NewHTTPRuleEngineOptions{BaseURL: server.URL + "/"})
	require.NoError(t, err)
	ctx := context.Background()

	snapshot, err := engine.PlayCard(ctx, "room-1", "A", "2H")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"3H"}, snapshot["hand_A"])

	_, err = engine.PlayCard(ctx, "room-1", "A", "KS")
	var ruleErr *RuleError
	require.ErrorAs(t, err, &ruleErr)
	assert.Equal(t, http.StatusUnprocessableEntity, ruleErr.Status)
	assert.Equal(t, "card not in hand", ruleErr.Reason)

	snapshot, err = engine.AssignTeams(ctx, "room-1", []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, snapshot.Players())

	_, err = engine.DealInitialHand(ctx, "room-1")
	assert.ErrorContains(t, err, "no state")

	_, err = engine.StartNewRound(ctx, "room-1")
	assert.ErrorContains(t, err, "404")
}

func TestNewHTTPRuleEngine_InvalidURL(t *testing.T) {
	_, err := NewHTTPRuleEngine(NewHTTPRuleEngineOptions{BaseURL: "not a url"})
	assert.Error(t, err)
}
