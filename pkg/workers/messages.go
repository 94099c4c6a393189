package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cbodonnell/hokm/pkg/log"
	"github.com/cbodonnell/hokm/pkg/messages"
	"github.com/cbodonnell/hokm/pkg/network"
	"github.com/cbodonnell/hokm/pkg/queue"
	"golang.org/x/time/rate"
)

// limiterIdleTimeout is how long an unused resync limiter is kept.
const limiterIdleTimeout = 10 * time.Minute

type ClientMessageWorker struct {
	clientMessageQueue queue.Queue
	broadcaster        SyncBroadcaster
	actions            ActionHandler
	sender             PlayerSender

	resyncRate  rate.Limit
	resyncBurst int
	limiters    map[string]*limiterEntry
	limitersMu  sync.Mutex
	lastSweep   time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type NewClientMessageWorkerOptions struct {
	ClientMessageQueue queue.Queue
	Broadcaster        SyncBroadcaster
	// Actions may be nil, in which case game actions are rejected.
	Actions     ActionHandler
	Sender      PlayerSender
	ResyncRate  float64
	ResyncBurst int
}

// NewClientMessageWorker creates a new ClientMessageWorker.
// The worker processes acknowledgements, resync requests and game actions
// received from clients.
func NewClientMessageWorker(opts NewClientMessageWorkerOptions) *ClientMessageWorker {
	if opts.ResyncBurst <= 0 {
		opts.ResyncBurst = 1
	}
	return &ClientMessageWorker{
		clientMessageQueue: opts.ClientMessageQueue,
		broadcaster:        opts.Broadcaster,
		actions:            opts.Actions,
		sender:             opts.Sender,
		resyncRate:         rate.Limit(opts.ResyncRate),
		resyncBurst:        opts.ResyncBurst,
		limiters:           make(map[string]*limiterEntry),
		lastSweep:          time.Now(),
	}
}

func (w *ClientMessageWorker) Start(ctx context.Context) {
	for {
		item, err := w.clientMessageQueue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			log.Error("Failed to dequeue client message: %v", err)
			continue
		}

		message, ok := item.(*network.ClientMessage)
		if !ok {
			log.Error("Unexpected item in client message queue: %T", item)
			continue
		}
		w.handle(ctx, message)
	}
}

func (w *ClientMessageWorker) handle(ctx context.Context, message *network.ClientMessage) {
	m := message.Message
	switch m.Type {
	case messages.MessageTypeClientAck:
		w.handleAck(ctx, message)
	case messages.MessageTypeClientResync:
		w.handleResync(ctx, message)
	case messages.MessageTypeClientAction:
		w.handleAction(ctx, message)
	default:
		log.Warn("Unhandled client message type %s from player %s", m.Type, message.Player)
	}
}

func (w *ClientMessageWorker) handleAck(ctx context.Context, message *network.ClientMessage) {
	if err := w.broadcaster.Acknowledge(message.Room, message.Player, message.Message.SequenceID); err != nil {
		log.Debug("Rejected ack from player %s: %v", message.Player, err)
		w.replyError(ctx, message, err.Error())
	}
}

func (w *ClientMessageWorker) handleResync(ctx context.Context, message *network.ClientMessage) {
	if !w.allowResync(message.Room, message.Player) {
		log.Warn("Resync from player %s in room %s rate limited", message.Player, message.Room)
		w.replyError(ctx, message, "resync rate limited")
		return
	}
	if _, err := w.broadcaster.Resync(ctx, message.Room, message.Player, message.Message.LastSequence); err != nil {
		log.Error("Failed to resync player %s in room %s: %v", message.Player, message.Room, err)
		w.replyError(ctx, message, err.Error())
	}
}

func (w *ClientMessageWorker) handleAction(ctx context.Context, message *network.ClientMessage) {
	if w.actions == nil {
		w.replyError(ctx, message, "actions are not accepted")
		return
	}
	action := message.Message.Action
	if err := w.actions.ApplyAction(ctx, message.Room, message.Player, action, message.Message.Payload); err != nil {
		log.Debug("Action %s from player %s failed: %v", action, message.Player, err)
		w.replyError(ctx, message, err.Error())
		return
	}
	reply := &messages.ServerActionApplied{
		Type:   messages.MessageTypeServerActionApplied,
		Action: action,
	}
	if err := w.sender.SendToPlayer(ctx, message.Room, message.Player, reply); err != nil {
		log.Debug("Failed to confirm action to player %s: %v", message.Player, err)
	}
}

func (w *ClientMessageWorker) replyError(ctx context.Context, message *network.ClientMessage, reason string) {
	if err := w.sender.SendErrorToPlayer(ctx, message.Room, message.Player, message.Message.Type, reason); err != nil {
		log.Debug("Failed to send error to player %s: %v", message.Player, err)
	}
}

func (w *ClientMessageWorker) allowResync(room, player string) bool {
	if w.resyncRate <= 0 {
		return true
	}
	now := time.Now()
	key := room + "/" + player

	w.limitersMu.Lock()
	defer w.limitersMu.Unlock()
	if now.Sub(w.lastSweep) > limiterIdleTimeout {
		for k, e := range w.limiters {
			if now.Sub(e.lastSeen) > limiterIdleTimeout {
				delete(w.limiters, k)
			}
		}
		w.lastSweep = now
	}

	e, ok := w.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(w.resyncRate, w.resyncBurst)}
		w.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}
