package network

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	authproviders "github.com/cbodonnell/hokm/pkg/auth/providers"
	"github.com/cbodonnell/hokm/pkg/messages"
	"github.com/cbodonnell/hokm/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipeClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func (c *pipeClient) write(s string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(s + "\n"))
	require.NoError(c.t, err)
}

func (c *pipeClient) read() interface{} {
	c.t.Helper()
	line, err := c.reader.ReadBytes('\n')
	require.NoError(c.t, err)
	m, err := messages.DeserializeServerMessage(line)
	require.NoError(c.t, err)
	return m
}

type seatedRooms map[string][]string

func (s seatedRooms) Members(room string) []string {
	return s[room]
}

func startSession(t *testing.T, cm *ClientManager, q queue.Queue, members RoomMembers) (*pipeClient, <-chan struct{}) {
	server, client := net.Pipe()
	n := NewNetworkManager(NewNetworkManagerOptions{
		AuthProvider:  authproviders.NewStaticAuthProvider(),
		ClientManager: cm,
		MessageQueue:  q,
		LoginTimeout:  time.Second,
		Members:       members,
	})
	ch := NewTCPChannel(server)
	done := make(chan struct{})
	go func() {
		n.serve(context.Background(), ch, ch.read)
		close(done)
	}()
	t.Cleanup(func() { client.Close() })
	return &pipeClient{t: t, conn: client, reader: bufio.NewReader(client)}, done
}

func TestNetworkManager_Session(t *testing.T) {
	cm := NewClientManager()
	q := queue.NewInMemoryQueue(0)
	client, done := startSession(t, cm, q, nil)

	client.write(`{"type":"login","token":"player:alice","room":"room-1"}`)
	success, ok := client.read().(*messages.ServerLoginSuccess)
	require.True(t, ok)
	assert.Equal(t, "alice", success.Player)
	assert.Equal(t, "room-1", success.Room)

	event := <-cm.GetConnectionEventChan()
	assert.Equal(t, ConnectionEventTypeConnect, event.Type)
	assert.Equal(t, "alice", event.Player)

	client.write(`{"type":"ping","timestamp":42}`)
	pong, ok := client.read().(*messages.ServerPong)
	require.True(t, ok)
	assert.Equal(t, int64(42), pong.ClientTimestamp)

	client.write(`{"type":"ack","sequence_id":3}`)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	item, err := q.Dequeue(ctx)
	require.NoError(t, err)
	message, ok := item.(*ClientMessage)
	require.True(t, ok)
	assert.Equal(t, "room-1", message.Room)
	assert.Equal(t, "alice", message.Player)
	assert.Equal(t, event.ChannelID, message.ChannelID)
	assert.Equal(t, uint64(3), message.Message.SequenceID)

	client.write(`{"type":"teleport"}`)
	serverErr, ok := client.read().(*messages.ServerError)
	require.True(t, ok)
	assert.NotEmpty(t, serverErr.Reason)

	client.conn.Close()
	<-done
	event = <-cm.GetConnectionEventChan()
	assert.Equal(t, ConnectionEventTypeDisconnect, event.Type)
	_, ok = cm.Get("room-1", "alice")
	assert.False(t, ok)
}

func TestNetworkManager_LoginRequired(t *testing.T) {
	cm := NewClientManager()
	client, done := startSession(t, cm, queue.NewInMemoryQueue(0), nil)

	client.write(`{"type":"ack","sequence_id":1}`)
	failure, ok := client.read().(*messages.ServerLoginFailure)
	require.True(t, ok)
	assert.Contains(t, failure.Reason, "expected login")

	<-done
	assert.Empty(t, cm.Rooms())
}

func TestNetworkManager_LoginChecksSeats(t *testing.T) {
	rooms := seatedRooms{"room-1": {"alice", "bob"}}
	tests := []struct {
		name    string
		player  string
		room    string
		wantErr string
	}{
		{name: "seated player", player: "alice", room: "room-1"},
		{name: "stranger to seated room", player: "mallory", room: "room-1", wantErr: "not seated in room room-1"},
		{name: "room without seats", player: "mallory", room: "room-2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm := NewClientManager()
			client, done := startSession(t, cm, queue.NewInMemoryQueue(0), rooms)

			client.write(fmt.Sprintf(`{"type":"login","token":"player:%s","room":"%s"}`, tt.player, tt.room))
			reply := client.read()
			if tt.wantErr != "" {
				failure, ok := reply.(*messages.ServerLoginFailure)
				require.True(t, ok)
				assert.Contains(t, failure.Reason, tt.wantErr)
				<-done
				assert.Empty(t, cm.Rooms())
				return
			}
			success, ok := reply.(*messages.ServerLoginSuccess)
			require.True(t, ok)
			assert.Equal(t, tt.player, success.Player)
			assert.Equal(t, tt.room, success.Room)
		})
	}
}
