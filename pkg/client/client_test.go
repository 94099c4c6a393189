package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	authproviders "github.com/cbodonnell/hokm/pkg/auth/providers"
	"github.com/cbodonnell/hokm/pkg/broadcast"
	"github.com/cbodonnell/hokm/pkg/config"
	"github.com/cbodonnell/hokm/pkg/messages"
	"github.com/cbodonnell/hokm/pkg/network"
	"github.com/cbodonnell/hokm/pkg/queue"
	"github.com/cbodonnell/hokm/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type server struct {
	url     string
	clients *network.ClientManager
	queue   *queue.InMemoryQueue
}

func startServer(t *testing.T) *server {
	clients := network.NewClientManager()
	q := queue.NewInMemoryQueue(0)
	n := network.NewNetworkManager(network.NewNetworkManagerOptions{
		AuthProvider:  authproviders.NewStaticAuthProvider(),
		ClientManager: clients,
		MessageQueue:  q,
		LoginTimeout:  time.Second,
	})
	ts := httptest.NewServer(n.WebSocketHandler(network.WSHandlerOptions{}))
	t.Cleanup(ts.Close)
	return &server{
		url:     "ws" + strings.TrimPrefix(ts.URL, "http"),
		clients: clients,
		queue:   q,
	}
}

func (s *server) next(t *testing.T) *network.ClientMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	item, err := s.queue.Dequeue(ctx)
	require.NoError(t, err)
	m, ok := item.(*network.ClientMessage)
	require.True(t, ok)
	return m
}

func TestClient_LoginFailure(t *testing.T) {
	s := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Dial(ctx, DialOptions{URL: s.url, Token: "nobody", Room: "room-1"})
	assert.ErrorIs(t, err, ErrLoginFailed)
}

func TestClient_SyncsAndAcknowledges(t *testing.T) {
	s := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, DialOptions{URL: s.url, Token: authproviders.StaticToken("B"), Room: "room-1"})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, "B", c.Player())

	select {
	case event := <-s.clients.GetConnectionEventChan():
		assert.Equal(t, network.ConnectionEventTypeConnect, event.Type)
	case <-ctx.Done():
		t.Fatal("no connect event")
	}

	updates := make(chan *Update, 16)
	go c.Run(ctx, func(u *Update, m interface{}) {
		if u != nil {
			updates <- u
		}
	})

	b, err := broadcast.NewBroadcaster(broadcast.NewBroadcasterOptions{Registry: s.clients, Config: config.DefaultSync()})
	require.NoError(t, err)
	defer b.Close()

	_, err = b.BroadcastStateChange(ctx, "room-1", table(0, []string{"2H"}), broadcast.BroadcastOptions{})
	require.NoError(t, err)
	u := <-updates
	assert.True(t, u.FullSync)
	assert.False(t, u.YourTurn)

	ack := s.next(t)
	assert.Equal(t, messages.MessageTypeClientAck, ack.Message.Type)
	assert.Equal(t, u.SequenceID, ack.Message.SequenceID)
	assert.Equal(t, "B", ack.Player)

	_, err = b.BroadcastStateChange(ctx, "room-1", table(1, []string{"2H"}), broadcast.BroadcastOptions{})
	require.NoError(t, err)
	u = <-updates
	assert.Equal(t, messages.MessageTypeDeltaUpdate, u.Kind)
	assert.True(t, u.YourTurn)
	ack = s.next(t)
	assert.Equal(t, u.SequenceID, ack.Message.SequenceID)

	last, _ := b.LastState("room-1")
	assert.True(t, state.ValueEqual(last.FilterForPlayer("B"), c.Receiver().State()))

	require.NoError(t, c.SendAction("play_card", map[string]string{"card": "4S"}))
	action := s.next(t)
	assert.Equal(t, "play_card", action.Message.Action)
	assert.JSONEq(t, `{"card":"4S"}`, string(action.Message.Payload))
}
