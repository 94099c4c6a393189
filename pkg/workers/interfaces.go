package workers

import (
	"context"
	"encoding/json"

	"github.com/cbodonnell/hokm/pkg/broadcast"
	"github.com/cbodonnell/hokm/pkg/messages"
	"github.com/cbodonnell/hokm/pkg/network"
)

// SyncBroadcaster is the part of the broadcast layer the workers drive.
type SyncBroadcaster interface {
	Acknowledge(room, player string, sequence uint64) error
	Resync(ctx context.Context, room, player string, lastSequence *uint64) (*broadcast.Result, error)
	ReconcileOnReconnect(ctx context.Context, room, player string, ch network.Channel) (*broadcast.Result, error)
	MarkDisconnected(room, player string)
	PruneHistory() int
}

// ActionHandler applies a game action sent by a player.
type ActionHandler interface {
	ApplyAction(ctx context.Context, room, player, action string, payload json.RawMessage) error
}

// PlayerSender delivers direct replies to a player.
type PlayerSender interface {
	SendToPlayer(ctx context.Context, room, player string, m interface{}) error
	SendErrorToPlayer(ctx context.Context, room, player string, request messages.MessageType, reason string) error
}

// RoomMembers returns the seated players of a room.
type RoomMembers interface {
	Members(room string) []string
}
