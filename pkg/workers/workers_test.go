package workers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	networkmocks "github.com/cbodonnell/hokm/mocks/github.com/cbodonnell/hokm/pkg/network"
	"github.com/cbodonnell/hokm/pkg/broadcast"
	"github.com/cbodonnell/hokm/pkg/messages"
	"github.com/cbodonnell/hokm/pkg/network"
	"github.com/cbodonnell/hokm/pkg/queue"
	"github.com/cbodonnell/hokm/pkg/repositories"
	"github.com/cbodonnell/hokm/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroadcaster struct {
	lock         sync.Mutex
	acks         []uint64
	ackErr       error
	resyncs      int
	reconciled   []string
	disconnected []string
	reconcileErr error
	prunes       int
}

func (b *fakeBroadcaster) Acknowledge(room, player string, sequence uint64) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.acks = append(b.acks, sequence)
	return b.ackErr
}

func (b *fakeBroadcaster) Resync(ctx context.Context, room, player string, lastSequence *uint64) (*broadcast.Result, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.resyncs++
	return &broadcast.Result{Room: room}, nil
}

func (b *fakeBroadcaster) ReconcileOnReconnect(ctx context.Context, room, player string, ch network.Channel) (*broadcast.Result, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.reconcileErr != nil {
		return nil, b.reconcileErr
	}
	b.reconciled = append(b.reconciled, player)
	return &broadcast.Result{Room: room}, nil
}

func (b *fakeBroadcaster) MarkDisconnected(room, player string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.disconnected = append(b.disconnected, player)
}

func (b *fakeBroadcaster) PruneHistory() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.prunes++
	return 1
}

func (b *fakeBroadcaster) pruneCount() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.prunes
}

type sentReply struct {
	player string
	m      interface{}
	reason string
}

type fakeSender struct {
	replies []sentReply
}

func (s *fakeSender) SendToPlayer(ctx context.Context, room, player string, m interface{}) error {
	s.replies = append(s.replies, sentReply{player: player, m: m})
	return nil
}

func (s *fakeSender) SendErrorToPlayer(ctx context.Context, room, player string, request messages.MessageType, reason string) error {
	s.replies = append(s.replies, sentReply{player: player, reason: reason})
	return nil
}

type fakeActions struct {
	err     error
	applied []string
}

func (a *fakeActions) ApplyAction(ctx context.Context, room, player, action string, payload json.RawMessage) error {
	if a.err != nil {
		return a.err
	}
	a.applied = append(a.applied, action)
	return nil
}

func clientMessage(m *messages.ClientMessage) *network.ClientMessage {
	return &network.ClientMessage{Room: "room-1", Player: "A", ChannelID: "ch-A", Message: m}
}

func TestClientMessageWorker(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name        string
		actions     *fakeActions
		ackErr      error
		message     *messages.ClientMessage
		wantAcks    []uint64
		wantApplied []string
		wantReply   interface{}
		wantReason  string
	}{
		{
			name:     "ack",
			message:  &messages.ClientMessage{Type: messages.MessageTypeClientAck, SequenceID: 4},
			wantAcks: []uint64{4},
		},
		{
			name:       "rejected ack",
			ackErr:     errors.New("sequence 9 is ahead"),
			message:    &messages.ClientMessage{Type: messages.MessageTypeClientAck, SequenceID: 9},
			wantAcks:   []uint64{9},
			wantReason: "sequence 9 is ahead",
		},
		{
			name:        "action",
			actions:     &fakeActions{},
			message:     &messages.ClientMessage{Type: messages.MessageTypeClientAction, Action: "play_card"},
			wantApplied: []string{"play_card"},
			wantReply:   &messages.ServerActionApplied{Type: messages.MessageTypeServerActionApplied, Action: "play_card"},
		},
		{
			name:       "failed action",
			actions:    &fakeActions{err: errors.New("not your turn")},
			message:    &messages.ClientMessage{Type: messages.MessageTypeClientAction, Action: "play_card"},
			wantReason: "not your turn",
		},
		{
			name:       "no action handler",
			message:    &messages.ClientMessage{Type: messages.MessageTypeClientAction, Action: "play_card"},
			wantReason: "actions are not accepted",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBroadcaster{ackErr: tt.ackErr}
			sender := &fakeSender{}
			opts := NewClientMessageWorkerOptions{Broadcaster: b, Sender: sender}
			if tt.actions != nil {
				opts.Actions = tt.actions
			}
			w := NewClientMessageWorker(opts)

			w.handle(ctx, clientMessage(tt.message))

			assert.Equal(t, tt.wantAcks, b.acks)
			if tt.actions != nil {
				assert.Equal(t, tt.wantApplied, tt.actions.applied)
			}
			switch {
			case tt.wantReply != nil:
				require.Len(t, sender.replies, 1)
				assert.Equal(t, tt.wantReply, sender.replies[0].m)
			case tt.wantReason != "":
				require.Len(t, sender.replies, 1)
				assert.Equal(t, tt.wantReason, sender.replies[0].reason)
			default:
				assert.Empty(t, sender.replies)
			}
		})
	}
}

func TestClientMessageWorker_ResyncRateLimit(t *testing.T) {
	b := &fakeBroadcaster{}
	sender := &fakeSender{}
	w := NewClientMessageWorker(NewClientMessageWorkerOptions{
		Broadcaster: b,
		Sender:      sender,
		ResyncRate:  0.001,
		ResyncBurst: 2,
	})

	resync := &messages.ClientMessage{Type: messages.MessageTypeClientResync}
	for i := 0; i < 3; i++ {
		w.handle(context.Background(), clientMessage(resync))
	}
	assert.Equal(t, 2, b.resyncs)
	require.Len(t, sender.replies, 1)
	assert.Equal(t, "resync rate limited", sender.replies[0].reason)
}

func TestClientMessageWorker_Start(t *testing.T) {
	q := queue.NewInMemoryQueue(0)
	b := &fakeBroadcaster{}
	w := NewClientMessageWorker(NewClientMessageWorkerOptions{
		ClientMessageQueue: q,
		Broadcaster:        b,
		Sender:             &fakeSender{},
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.NoError(t, q.Enqueue(clientMessage(&messages.ClientMessage{Type: messages.MessageTypeClientAck, SequenceID: 2})))
	assert.Eventually(t, func() bool {
		b.lock.Lock()
		defer b.lock.Unlock()
		return len(b.acks) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

type fakeRegistry struct {
	channels map[string]network.Channel
}

func (r *fakeRegistry) Get(room, player string) (network.Channel, bool) {
	ch, ok := r.channels[player]
	return ch, ok
}

func (r *fakeRegistry) Remove(room, player, channelID string) bool {
	return false
}

func TestConnectionEventWorker(t *testing.T) {
	ch := networkmocks.NewChannel(t)
	ch.EXPECT().ID().Return("ch-A")
	registry := &fakeRegistry{channels: map[string]network.Channel{"A": ch}}

	tests := []struct {
		name             string
		event            network.ConnectionEvent
		reconcileErr     error
		wantReconciled   []string
		wantDisconnected []string
	}{
		{
			name:           "connect",
			event:          network.ConnectionEvent{Type: network.ConnectionEventTypeConnect, Room: "room-1", Player: "A", ChannelID: "ch-A"},
			wantReconciled: []string{"A"},
		},
		{
			name:  "stale channel",
			event: network.ConnectionEvent{Type: network.ConnectionEventTypeConnect, Room: "room-1", Player: "A", ChannelID: "ch-old"},
		},
		{
			name:  "no channel",
			event: network.ConnectionEvent{Type: network.ConnectionEventTypeConnect, Room: "room-1", Player: "B", ChannelID: "ch-B"},
		},
		{
			name:         "room without state",
			event:        network.ConnectionEvent{Type: network.ConnectionEventTypeConnect, Room: "room-1", Player: "A", ChannelID: "ch-A"},
			reconcileErr: broadcast.ErrUnknownRoom,
		},
		{
			name:             "disconnect",
			event:            network.ConnectionEvent{Type: network.ConnectionEventTypeDisconnect, Room: "room-1", Player: "A", ChannelID: "ch-A"},
			wantDisconnected: []string{"A"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := make(chan network.ConnectionEvent, 1)
			b := &fakeBroadcaster{reconcileErr: tt.reconcileErr}
			w := NewConnectionEventWorker(NewConnectionEventWorkerOptions{
				ConnectionEventChan: events,
				Registry:            registry,
				Broadcaster:         b,
			})
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				w.Start(ctx)
				close(done)
			}()

			events <- tt.event
			assert.Eventually(t, func() bool { return len(events) == 0 }, time.Second, time.Millisecond)
			cancel()
			<-done

			assert.Equal(t, tt.wantReconciled, b.reconciled)
			assert.Equal(t, tt.wantDisconnected, b.disconnected)
		})
	}
}

type staticMembers map[string][]string

func (m staticMembers) Members(room string) []string {
	return m[room]
}

func TestSaveRoomWorker(t *testing.T) {
	repository := repositories.NewMemoryRepository()
	states := state.NewInMemoryStateManager()
	ctx := context.Background()
	require.NoError(t, states.Set(ctx, "room-1", state.Snapshot{"players": []string{"A", "B"}, "hokm": "hearts"}))
	require.NoError(t, states.Set(ctx, "room-2", state.Snapshot{"players": []string{"C"}}))

	requests := make(chan string, 4)
	w := NewSaveRoomWorker(NewSaveRoomWorkerOptions{
		Repository:   repository,
		SaveRequests: requests,
		StateManager: states,
		Members:      staticMembers{"room-1": {"A", "B", "E"}},
		Interval:     10 * time.Millisecond,
	})
	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		w.Start(workerCtx)
		close(done)
	}()

	requests <- "room-1"
	requests <- "room-1"
	requests <- "room-gone"
	assert.Eventually(t, func() bool {
		_, err := repository.LoadRoom(ctx, "room-1")
		return err == nil
	}, time.Second, 5*time.Millisecond)

	room, err := repository.LoadRoom(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "E"}, room.Players)
	assert.Equal(t, "hearts", room.Snapshot["hokm"])

	requests <- "room-2"
	assert.Eventually(t, func() bool { return len(requests) == 0 }, time.Second, time.Millisecond)
	cancel()
	<-done

	room, err = repository.LoadRoom(ctx, "room-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, room.Players)

	rooms, err := repository.ListRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"room-1", "room-2"}, rooms)
}

func TestPruneWorker(t *testing.T) {
	b := &fakeBroadcaster{}
	w := NewPruneWorker(NewPruneWorkerOptions{Broadcaster: b, Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	assert.Eventually(t, func() bool { return b.pruneCount() >= 2 }, time.Second, 5*time.Millisecond)
}
