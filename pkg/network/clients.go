package network

import (
	"context"
	"sort"
	"sync"

	"github.com/cbodonnell/hokm/pkg/log"
)

const (
	// ConnectionEventChannelSize represents the size of the connection event channel
	ConnectionEventChannelSize = 1024
)

// Channel is a live, order preserving connection to one player.
type Channel interface {
	// ID is unique per connection, so a stale teardown never removes a
	// newer channel of the same player.
	ID() string
	Send(ctx context.Context, b []byte) error
	Close() error
}

// ConnectionEvent represents a player joining or leaving a room
type ConnectionEvent struct {
	Type      ConnectionEventType
	Room      string
	Player    string
	ChannelID string
}

// ConnectionEventType represents the type of a connection event
type ConnectionEventType int

const (
	ConnectionEventTypeConnect ConnectionEventType = iota
	ConnectionEventTypeDisconnect
)

func (t ConnectionEventType) String() string {
	switch t {
	case ConnectionEventTypeConnect:
		return "connect"
	case ConnectionEventTypeDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// ClientManager is the channel registry: it maps a player of a room to its
// live channel.
type ClientManager struct {
	rooms               map[string]map[string]Channel
	roomsLock           sync.RWMutex
	connectionEventChan chan ConnectionEvent
}

// NewClientManager creates a new ClientManager
func NewClientManager() *ClientManager {
	return &ClientManager{
		rooms:               make(map[string]map[string]Channel),
		connectionEventChan: make(chan ConnectionEvent, ConnectionEventChannelSize),
	}
}

// GetConnectionEventChan returns a one-way channel for receiving connection events
func (cm *ClientManager) GetConnectionEventChan() <-chan ConnectionEvent {
	return cm.connectionEventChan
}

// Register binds ch to player in room. A previous channel of the player is
// closed and replaced.
func (cm *ClientManager) Register(room, player string, ch Channel) {
	cm.roomsLock.Lock()
	players, ok := cm.rooms[room]
	if !ok {
		players = make(map[string]Channel)
		cm.rooms[room] = players
	}
	previous := players[player]
	players[player] = ch
	cm.roomsLock.Unlock()

	if previous != nil && previous.ID() != ch.ID() {
		log.Debug("Replacing channel %s of player %s in room %s", previous.ID(), player, room)
		if err := previous.Close(); err != nil {
			log.Trace("Failed to close replaced channel %s: %v", previous.ID(), err)
		}
	}

	cm.emit(ConnectionEvent{
		Type:      ConnectionEventTypeConnect,
		Room:      room,
		Player:    player,
		ChannelID: ch.ID(),
	})
}

// Get returns the live channel of player in room.
func (cm *ClientManager) Get(room, player string) (Channel, bool) {
	cm.roomsLock.RLock()
	defer cm.roomsLock.RUnlock()
	ch, ok := cm.rooms[room][player]
	return ch, ok
}

// Remove tears down the channel of player in room if it is still the one
// identified by channelID. It reports whether a channel was removed.
func (cm *ClientManager) Remove(room, player, channelID string) bool {
	cm.roomsLock.Lock()
	ch, ok := cm.rooms[room][player]
	if !ok || ch.ID() != channelID {
		cm.roomsLock.Unlock()
		return false
	}
	delete(cm.rooms[room], player)
	if len(cm.rooms[room]) == 0 {
		delete(cm.rooms, room)
	}
	cm.roomsLock.Unlock()

	if err := ch.Close(); err != nil {
		log.Trace("Failed to close channel %s: %v", channelID, err)
	}

	cm.emit(ConnectionEvent{
		Type:      ConnectionEventTypeDisconnect,
		Room:      room,
		Player:    player,
		ChannelID: channelID,
	})
	return true
}

// Players returns the players of room with a live channel, sorted.
func (cm *ClientManager) Players(room string) []string {
	cm.roomsLock.RLock()
	defer cm.roomsLock.RUnlock()
	players := make([]string, 0, len(cm.rooms[room]))
	for p := range cm.rooms[room] {
		players = append(players, p)
	}
	sort.Strings(players)
	return players
}

// Rooms returns the rooms with at least one live channel.
func (cm *ClientManager) Rooms() []string {
	cm.roomsLock.RLock()
	defer cm.roomsLock.RUnlock()
	rooms := make([]string, 0, len(cm.rooms))
	for r := range cm.rooms {
		rooms = append(rooms, r)
	}
	sort.Strings(rooms)
	return rooms
}

// CloseRoom tears down every channel of room.
func (cm *ClientManager) CloseRoom(room string) {
	cm.roomsLock.RLock()
	channels := make(map[string]string, len(cm.rooms[room]))
	for p, ch := range cm.rooms[room] {
		channels[p] = ch.ID()
	}
	cm.roomsLock.RUnlock()

	for p, id := range channels {
		cm.Remove(room, p, id)
	}
}

func (cm *ClientManager) emit(event ConnectionEvent) {
	select {
	case cm.connectionEventChan <- event:
	default:
		log.Warn("Connection event channel full, dropping %s event for player %s in room %s", event.Type, event.Player, event.Room)
	}
}
