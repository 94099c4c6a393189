package state

import (
	"context"
	"fmt"
	"sync"
)

type InMemoryStateManager struct {
	lock  sync.RWMutex
	rooms map[string]Snapshot
}

func NewInMemoryStateManager() *InMemoryStateManager {
	return &InMemoryStateManager{
		rooms: make(map[string]Snapshot),
	}
}

func (m *InMemoryStateManager) Get(ctx context.Context, roomID string) (Snapshot, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	snapshot, ok := m.rooms[roomID]
	if !ok {
		return nil, false
	}
	return snapshot.Clone(), true
}

func (m *InMemoryStateManager) Set(ctx context.Context, roomID string, snapshot Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot for room %s is nil", roomID)
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	m.rooms[roomID] = snapshot.Clone()
	return nil
}

func (m *InMemoryStateManager) Delete(ctx context.Context, roomID string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.rooms, roomID)
}
