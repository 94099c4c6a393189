package delta

import (
	"github.com/cbodonnell/hokm/pkg/state"
)

// classificationPriority resolves deltas that match several categories.
var classificationPriority = []UpdateType{
	UpdateTypeTrickResult,
	UpdateTypeScoreChange,
	UpdateTypeTurnTransition,
	UpdateTypeHandUpdate,
	UpdateTypePhaseChange,
	UpdateTypePlayerAction,
	UpdateTypeGameSetup,
}

// fieldCategory maps a changed field to its update category.
func fieldCategory(field string) (UpdateType, bool) {
	if state.IsHandField(field) {
		return UpdateTypeHandUpdate, true
	}
	switch field {
	case state.FieldCurrentTurn:
		return UpdateTypeTurnTransition, true
	case state.FieldTricks, state.FieldRoundScores, state.FieldCompletedTricks:
		return UpdateTypeScoreChange, true
	case state.FieldPhase, state.FieldGamePhase:
		return UpdateTypePhaseChange, true
	case state.FieldHokm, state.FieldCurrentTrick, state.FieldLedSuit:
		return UpdateTypePlayerAction, true
	case state.FieldTeams, state.FieldHakem:
		return UpdateTypeGameSetup, true
	default:
		return "", false
	}
}

// Classify picks the primary update type of a change set. It is a label for
// the client, not a correctness mechanism.
func Classify(changes map[string]interface{}) UpdateType {
	matched := make(map[UpdateType]bool)
	for field := range changes {
		if category, ok := fieldCategory(field); ok {
			matched[category] = true
		}
	}
	for _, t := range classificationPriority {
		if matched[t] {
			return t
		}
	}
	return UpdateTypePlayerAction
}

func isTrickOrScoreField(field string) bool {
	switch field {
	case state.FieldTricks, state.FieldRoundScores, state.FieldCompletedTricks, state.FieldCurrentTrick:
		return true
	default:
		return false
	}
}

// InferAffectedPlayers derives who a change set concerns. members is the
// explicit room membership; when empty the players field of the snapshots is
// used instead.
func InferAffectedPlayers(old, new state.Snapshot, changes map[string]interface{}, members []string) []string {
	players := new.Players()
	if len(players) == 0 {
		players = old.Players()
	}
	everyone := members
	if len(everyone) == 0 {
		everyone = players
	}

	affected := make(map[string]struct{})
	all := false
	for field := range changes {
		if owner, ok := state.HandOwner(field); ok {
			affected[owner] = struct{}{}
			continue
		}
		if field == state.FieldCurrentTurn {
			if prev, ok := old.CurrentTurn(); ok {
				if p, ok := state.PlayerAt(players, prev); ok {
					affected[p] = struct{}{}
				}
			}
			if next, ok := new.CurrentTurn(); ok {
				if p, ok := state.PlayerAt(players, next); ok {
					affected[p] = struct{}{}
				}
			}
			continue
		}
		if isTrickOrScoreField(field) {
			all = true
		}
	}

	if all || len(affected) == 0 {
		for _, p := range everyone {
			affected[p] = struct{}{}
		}
	}
	return sortedPlayers(affected)
}
