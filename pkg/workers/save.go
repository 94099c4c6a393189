package workers

import (
	"context"
	"sort"
	"time"

	"github.com/cbodonnell/hokm/pkg/log"
	"github.com/cbodonnell/hokm/pkg/repositories"
	"github.com/cbodonnell/hokm/pkg/state"
)

type SaveRoomWorker struct {
	repository   repositories.Repository
	saveRequests <-chan string
	stateManager state.StateManager
	members      RoomMembers
	interval     time.Duration

	dirty map[string]struct{}
}

type NewSaveRoomWorkerOptions struct {
	Repository   repositories.Repository
	SaveRequests <-chan string
	StateManager state.StateManager
	Members      RoomMembers
	Interval     time.Duration
}

// NewSaveRoomWorker creates a new SaveRoomWorker.
// The worker collects the rooms that changed and periodically writes their
// current snapshots to the repository, once per room per interval.
func NewSaveRoomWorker(opts NewSaveRoomWorkerOptions) *SaveRoomWorker {
	return &SaveRoomWorker{
		repository:   opts.Repository,
		saveRequests: opts.SaveRequests,
		stateManager: opts.StateManager,
		members:      opts.Members,
		interval:     opts.Interval,
		dirty:        make(map[string]struct{}),
	}
}

func (w *SaveRoomWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// flush what is left without the cancelled context
			w.flush(context.Background())
			return
		case room := <-w.saveRequests:
			w.dirty[room] = struct{}{}
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *SaveRoomWorker) flush(ctx context.Context) {
	if len(w.dirty) == 0 {
		return
	}
	rooms := make([]string, 0, len(w.dirty))
	for room := range w.dirty {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)

	for _, room := range rooms {
		delete(w.dirty, room)
		snapshot, ok := w.stateManager.Get(ctx, room)
		if !ok {
			log.Debug("Room %s is gone, skipping save", room)
			continue
		}
		players := w.members.Members(room)
		if len(players) == 0 {
			players = snapshot.Players()
		}
		if err := w.repository.SaveRoom(ctx, room, players, snapshot); err != nil {
			log.Error("Failed to save room %s: %v", room, err)
			w.dirty[room] = struct{}{}
		}
	}
}
