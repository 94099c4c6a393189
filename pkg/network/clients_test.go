package network

import (
	"testing"

	mocks "github.com/cbodonnell/hokm/mocks/github.com/cbodonnell/hokm/pkg/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextEvent(t *testing.T, cm *ClientManager) ConnectionEvent {
	t.Helper()
	select {
	case event := <-cm.GetConnectionEventChan():
		return event
	default:
		require.FailNow(t, "expected a connection event")
		return ConnectionEvent{}
	}
}

func TestClientManager_RegisterAndReplace(t *testing.T) {
	cm := NewClientManager()

	first := mocks.NewChannel(t)
	first.EXPECT().ID().Return("c1").Maybe()
	first.EXPECT().Close().Return(nil).Once()
	second := mocks.NewChannel(t)
	second.EXPECT().ID().Return("c2").Maybe()
	second.EXPECT().Close().Return(nil).Once()

	cm.Register("room-1", "A", first)
	assert.Equal(t, ConnectionEvent{Type: ConnectionEventTypeConnect, Room: "room-1", Player: "A", ChannelID: "c1"}, nextEvent(t, cm))

	cm.Register("room-1", "A", second)
	assert.Equal(t, "c2", nextEvent(t, cm).ChannelID)

	got, ok := cm.Get("room-1", "A")
	require.True(t, ok)
	assert.Equal(t, "c2", got.ID())

	assert.False(t, cm.Remove("room-1", "A", "c1"), "a stale channel id must not remove the newer channel")
	_, ok = cm.Get("room-1", "A")
	assert.True(t, ok)

	assert.True(t, cm.Remove("room-1", "A", "c2"))
	event := nextEvent(t, cm)
	assert.Equal(t, ConnectionEventTypeDisconnect, event.Type)
	assert.Equal(t, "A", event.Player)

	_, ok = cm.Get("room-1", "A")
	assert.False(t, ok)
	assert.Empty(t, cm.Rooms())
}

func TestClientManager_PlayersAndCloseRoom(t *testing.T) {
	cm := NewClientManager()
	for _, id := range []string{"B", "A"} {
		ch := mocks.NewChannel(t)
		ch.EXPECT().ID().Return("ch-" + id).Maybe()
		ch.EXPECT().Close().Return(nil).Once()
		cm.Register("room-1", id, ch)
	}

	assert.Equal(t, []string{"A", "B"}, cm.Players("room-1"))
	assert.Equal(t, []string{"room-1"}, cm.Rooms())
	assert.Empty(t, cm.Players("room-2"))

	cm.CloseRoom("room-1")
	assert.Empty(t, cm.Players("room-1"))
}
