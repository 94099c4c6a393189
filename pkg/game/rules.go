package game

import (
	"context"
	"errors"

	"github.com/cbodonnell/hokm/pkg/state"
)

// ErrNoRuleEngine is returned by game actions when no rule engine is
// configured.
var ErrNoRuleEngine = errors.New("no rule engine configured")

// RuleEngine applies game actions and returns the resulting authoritative
// snapshot of the room. Rules are never evaluated here.
type RuleEngine interface {
	AssignTeams(ctx context.Context, room string, players []string) (state.Snapshot, error)
	DealInitialHand(ctx context.Context, room string) (state.Snapshot, error)
	SelectHokm(ctx context.Context, room, player, suit string) (state.Snapshot, error)
	PlayCard(ctx context.Context, room, player, card string) (state.Snapshot, error)
	StartNewRound(ctx context.Context, room string) (state.Snapshot, error)
}

// Action names accepted from clients.
const (
	ActionSelectHokm = "select_hokm"
	ActionPlayCard   = "play_card"
)

// SelectHokmPayload is the payload of a select_hokm action.
type SelectHokmPayload struct {
	Suit string `json:"suit"`
}

// PlayCardPayload is the payload of a play_card action.
type PlayCardPayload struct {
	Card string `json:"card"`
}
