package delta

import (
	"sort"
	"time"

	"github.com/cbodonnell/hokm/pkg/state"
)

// UpdateType categorizes a state change for prioritization on the client.
type UpdateType string

const (
	UpdateTypeHandUpdate     UpdateType = "hand_update"
	UpdateTypeTrickResult    UpdateType = "trick_result"
	UpdateTypeTurnTransition UpdateType = "turn_transition"
	UpdateTypeScoreChange    UpdateType = "score_change"
	UpdateTypePhaseChange    UpdateType = "phase_change"
	UpdateTypePlayerAction   UpdateType = "player_action"
	UpdateTypeGameSetup      UpdateType = "game_setup"
	UpdateTypeFullSync       UpdateType = "full_sync"
)

// Valid reports whether t is one of the known update types.
func (t UpdateType) Valid() bool {
	switch t {
	case UpdateTypeHandUpdate, UpdateTypeTrickResult, UpdateTypeTurnTransition,
		UpdateTypeScoreChange, UpdateTypePhaseChange, UpdateTypePlayerAction,
		UpdateTypeGameSetup, UpdateTypeFullSync:
		return true
	default:
		return false
	}
}

// StateDelta is the set of fields that changed between two snapshots of a
// room. Checksum covers the full new snapshot, not Changes. A nil value in
// Changes means the field was removed.
type StateDelta struct {
	UpdateType      UpdateType             `json:"update_type"`
	Timestamp       int64                  `json:"timestamp"`
	SequenceID      uint64                 `json:"sequence_id"`
	Changes         map[string]interface{} `json:"changes"`
	AffectedPlayers []string               `json:"affected_players"`
	Checksum        string                 `json:"checksum,omitempty"`
	// ViewChecksum covers the viewer's filtered projection of the new
	// snapshot, so a receiver without other players' hands can validate.
	ViewChecksum   string `json:"view_checksum,omitempty"`
	CompressedSize int    `json:"compressed_size,omitempty"`
	// YourTurn is set on a filtered delta when the changed current_turn
	// resolves to the viewer.
	YourTurn *bool `json:"your_turn,omitempty"`

	RecordedAt time.Time `json:"-"`
}

// Copy returns a copy of d that shares no mutable state with it.
func (d *StateDelta) Copy() *StateDelta {
	if d == nil {
		return nil
	}
	c := *d
	c.Changes = state.Snapshot(d.Changes).Clone()
	c.AffectedPlayers = append([]string(nil), d.AffectedPlayers...)
	if d.YourTurn != nil {
		yourTurn := *d.YourTurn
		c.YourTurn = &yourTurn
	}
	return &c
}

// IsEmpty reports whether the delta carries no changes.
func (d *StateDelta) IsEmpty() bool {
	return d == nil || len(d.Changes) == 0
}

// FullSyncPayload is a complete, privacy filtered snapshot for one player.
type FullSyncPayload struct {
	SequenceID uint64         `json:"sequence_id"`
	State      state.Snapshot `json:"state"`
	Checksum     string         `json:"checksum"`
	ViewChecksum string         `json:"view_checksum"`
	YourTurn     bool           `json:"your_turn"`
	Timestamp  int64          `json:"timestamp"`
}

// Patch aggregates the visible changes of several missed deltas.
type Patch struct {
	SequenceID   uint64                 `json:"sequence_id"`
	FromSequence uint64                 `json:"from_sequence"`
	Changes      map[string]interface{} `json:"changes"`
	Checksum     string                 `json:"checksum"`
	ViewChecksum string                 `json:"view_checksum"`
	YourTurn     *bool                  `json:"your_turn,omitempty"`
	Timestamp    int64                  `json:"timestamp"`
}

// Reconciliation is the answer to a reconnecting player: either a merged
// patch or a full sync, never both.
type Reconciliation struct {
	Patch           *Patch
	FullSync        *FullSyncPayload
	MissedSequences []uint64
}

// IsFullSync reports whether the reconciliation degraded to a full sync.
func (r *Reconciliation) IsFullSync() bool {
	return r != nil && r.FullSync != nil
}

// SequenceID returns the sequence the player is at once it applies r.
func (r *Reconciliation) SequenceID() uint64 {
	switch {
	case r == nil:
		return 0
	case r.FullSync != nil:
		return r.FullSync.SequenceID
	case r.Patch != nil:
		return r.Patch.SequenceID
	default:
		return 0
	}
}

func sortedPlayers(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
