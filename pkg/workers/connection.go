package workers

import (
	"context"
	"errors"

	"github.com/cbodonnell/hokm/pkg/broadcast"
	"github.com/cbodonnell/hokm/pkg/log"
	"github.com/cbodonnell/hokm/pkg/network"
)

type ConnectionEventWorker struct {
	connectionEventChan <-chan network.ConnectionEvent
	registry            broadcast.Registry
	broadcaster         SyncBroadcaster
}

type NewConnectionEventWorkerOptions struct {
	ConnectionEventChan <-chan network.ConnectionEvent
	Registry            broadcast.Registry
	Broadcaster         SyncBroadcaster
}

// NewConnectionEventWorker creates a new ConnectionEventWorker.
// The worker brings connecting players up to date and tracks disconnects.
func NewConnectionEventWorker(opts NewConnectionEventWorkerOptions) *ConnectionEventWorker {
	return &ConnectionEventWorker{
		connectionEventChan: opts.ConnectionEventChan,
		registry:            opts.Registry,
		broadcaster:         opts.Broadcaster,
	}
}

func (w *ConnectionEventWorker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-w.connectionEventChan:
			switch event.Type {
			case network.ConnectionEventTypeConnect:
				w.handleClientConnect(ctx, event)
			case network.ConnectionEventTypeDisconnect:
				w.handleClientDisconnect(event)
			default:
				log.Error("Unknown connection event type: %v", event.Type)
			}
		}
	}
}

func (w *ConnectionEventWorker) handleClientConnect(ctx context.Context, event network.ConnectionEvent) {
	ch, ok := w.registry.Get(event.Room, event.Player)
	if !ok || ch.ID() != event.ChannelID {
		log.Debug("Channel %s of player %s is no longer live", event.ChannelID, event.Player)
		return
	}

	result, err := w.broadcaster.ReconcileOnReconnect(ctx, event.Room, event.Player, ch)
	if err != nil {
		if errors.Is(err, broadcast.ErrUnknownRoom) {
			log.Debug("Room %s has no state yet, player %s waits for the first broadcast", event.Room, event.Player)
			return
		}
		log.Error("Failed to reconcile player %s in room %s: %v", event.Player, event.Room, err)
		return
	}
	log.Info("Player %s joined room %s at sequence %d (full sync %t)", event.Player, event.Room, result.SequenceID, result.FullSync)
}

func (w *ConnectionEventWorker) handleClientDisconnect(event network.ConnectionEvent) {
	w.broadcaster.MarkDisconnected(event.Room, event.Player)
	log.Info("Player %s left room %s", event.Player, event.Room)
}
