package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cbodonnell/hokm/pkg/repositories/models"
	"github.com/cbodonnell/hokm/pkg/state"
)

// MemoryRepository keeps rooms in process memory. It is meant for tests and
// single process development.
type MemoryRepository struct {
	lock  sync.RWMutex
	rooms map[string]*models.Room
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rooms: make(map[string]*models.Room),
	}
}

func (r *MemoryRepository) Close(ctx context.Context) error {
	return nil
}

func (r *MemoryRepository) SaveRoom(ctx context.Context, room string, players []string, snapshot state.Snapshot) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.rooms[room] = &models.Room{
		ID:        room,
		Players:   append([]string{}, players...),
		Snapshot:  snapshot.Clone(),
		UpdatedAt: time.Now().UnixMilli(),
	}
	return nil
}

func (r *MemoryRepository) LoadRoom(ctx context.Context, room string) (*models.Room, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	stored, ok := r.rooms[room]
	if !ok {
		return nil, &ErrNotFound{Room: room}
	}
	return &models.Room{
		ID:        stored.ID,
		Players:   append([]string{}, stored.Players...),
		Snapshot:  stored.Snapshot.Clone(),
		UpdatedAt: stored.UpdatedAt,
	}, nil
}

func (r *MemoryRepository) DeleteRoom(ctx context.Context, room string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.rooms, room)
	return nil
}

func (r *MemoryRepository) ListRooms(ctx context.Context) ([]string, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	rooms := make([]string, 0, len(r.rooms))
	for room := range r.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms, nil
}
