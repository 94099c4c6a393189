package state

import (
	"context"
)

// StateManager provides shared access to the current snapshot of each room.
// Implementations must be thread-safe.
type StateManager interface {
	// Get returns a copy of the current snapshot of the room.
	Get(ctx context.Context, roomID string) (Snapshot, bool)
	// Set replaces the current snapshot of the room.
	Set(ctx context.Context, roomID string, snapshot Snapshot) error
	// Delete drops the room.
	Delete(ctx context.Context, roomID string)
}
