package models

import "github.com/cbodonnell/hokm/pkg/state"

// Room is the durable record of a room.
type Room struct {
	ID        string         `json:"id"`
	Players   []string       `json:"players"`
	Snapshot  state.Snapshot `json:"snapshot"`
	UpdatedAt int64          `json:"updated_at"`
}
