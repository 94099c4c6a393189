package state

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Well known snapshot fields.
const (
	FieldPlayers         = "players"
	FieldCurrentTurn     = "current_turn"
	FieldTeams           = "teams"
	FieldHakem           = "hakem"
	FieldHokm            = "hokm"
	FieldLedSuit         = "led_suit"
	FieldCurrentTrick    = "current_trick"
	FieldTricks          = "tricks"
	FieldCompletedTricks = "completed_tricks"
	FieldRoundScores     = "round_scores"
	FieldPhase           = "phase"
	FieldGamePhase       = "game_phase"

	// HandFieldPrefix prefixes the private hand of a player, e.g. hand_alice.
	HandFieldPrefix = "hand_"
)

// Snapshot is the complete state of one room at an instant. Values must be
// JSON encodable: scalars, slices and nested maps.
type Snapshot map[string]interface{}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	c := make(Snapshot, len(s))
	for k, v := range s {
		c[k] = cloneValue(v)
	}
	return c
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case Snapshot:
		return t.Clone()
	case []interface{}:
		l := make([]interface{}, len(t))
		for i, vv := range t {
			l[i] = cloneValue(vv)
		}
		return l
	case []string:
		l := make([]string, len(t))
		copy(l, t)
		return l
	case []int:
		l := make([]int, len(t))
		copy(l, t)
		return l
	default:
		return v
	}
}

// Canonical returns the canonical encoding of v. Map keys are sorted, so two
// structurally equal values always encode to the same bytes.
func Canonical(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	return b, nil
}

// ValueEqual reports whether a and b are structurally equal. Only the encoded
// shape matters: []string{"2H"} equals []interface{}{"2H"} and 1 equals 1.0.
func ValueEqual(a, b interface{}) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	ab, err := Canonical(a)
	if err != nil {
		return false
	}
	bb, err := Canonical(b)
	if err != nil {
		return false
	}
	return string(ab) == string(bb)
}

// Checksum returns a short fingerprint of the full snapshot.
func Checksum(s Snapshot) (string, error) {
	if s == nil {
		s = Snapshot{}
	}
	b, err := Canonical(s)
	if err != nil {
		return "", fmt.Errorf("failed to checksum snapshot: %w", err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(b)), nil
}

// HandField returns the field holding player's private hand.
func HandField(player string) string {
	return HandFieldPrefix + player
}

// IsHandField reports whether field is a private hand field.
func IsHandField(field string) bool {
	return strings.HasPrefix(field, HandFieldPrefix)
}

// HandOwner returns the player owning a hand field.
func HandOwner(field string) (string, bool) {
	if !IsHandField(field) {
		return "", false
	}
	return strings.TrimPrefix(field, HandFieldPrefix), true
}

// VisibleTo reports whether field may be shown to player. Other players'
// hands are never visible.
func VisibleTo(field, player string) bool {
	owner, ok := HandOwner(field)
	return !ok || owner == player
}

// FilterForPlayer returns a copy of s without the hands of other players.
func (s Snapshot) FilterForPlayer(player string) Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		if !VisibleTo(k, player) {
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

// Players returns the ordered player list stored under "players". Entries
// may be plain names or objects with a "name" or "id" key.
func (s Snapshot) Players() []string {
	return PlayerList(s[FieldPlayers])
}

// PlayerList decodes a players value.
func PlayerList(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			switch p := item.(type) {
			case string:
				out = append(out, p)
			case map[string]interface{}:
				if name, ok := p["name"].(string); ok {
					out = append(out, name)
				} else if id, ok := p["id"].(string); ok {
					out = append(out, id)
				}
			}
		}
		return out
	default:
		return nil
	}
}

// CurrentTurn returns the index stored under "current_turn".
func (s Snapshot) CurrentTurn() (int, bool) {
	return AsIndex(s[FieldCurrentTurn])
}

// AsIndex converts a decoded numeric value into an int.
func AsIndex(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint32:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// PlayerAt resolves a turn index against players.
func PlayerAt(players []string, index int) (string, bool) {
	if index < 0 || index >= len(players) {
		return "", false
	}
	return players[index], true
}

// Merge applies changes to a copy of s. A nil value removes the field.
func (s Snapshot) Merge(changes map[string]interface{}) Snapshot {
	out := s.Clone()
	if out == nil {
		out = Snapshot{}
	}
	for k, v := range changes {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}
