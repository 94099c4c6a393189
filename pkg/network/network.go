package network

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	authproviders "github.com/cbodonnell/hokm/pkg/auth/providers"
	"github.com/cbodonnell/hokm/pkg/log"
	"github.com/cbodonnell/hokm/pkg/messages"
	"github.com/cbodonnell/hokm/pkg/queue"
)

// ErrNoChannel is returned when a player has no live channel.
var ErrNoChannel = errors.New("player has no live channel")

// ClientMessage is an inbound message tagged with the identity of the
// connection it arrived on.
type ClientMessage struct {
	Room       string
	Player     string
	ChannelID  string
	Message    *messages.ClientMessage
	ReceivedAt time.Time
}

// RoomMembers looks up the players seated in a room.
type RoomMembers interface {
	Members(room string) []string
}

type NetworkManager struct {
	AuthProvider  authproviders.AuthProvider
	ClientManager *ClientManager
	MessageQueue  queue.Queue
	TCPServer     *TCPServer
	members       RoomMembers
	loginTimeout  time.Duration
}

type NewNetworkManagerOptions struct {
	AuthProvider  authproviders.AuthProvider
	ClientManager *ClientManager
	MessageQueue  queue.Queue
	// TCPPort enables the TCP transport when non-zero.
	TCPPort int
	// LoginTimeout bounds the wait for the login message of a new connection.
	LoginTimeout time.Duration
	// Members, when set, restricts logins to a seated room to its players.
	// Rooms without members accept any authenticated player.
	Members RoomMembers
}

func NewNetworkManager(options NewNetworkManagerOptions) *NetworkManager {
	if options.LoginTimeout <= 0 {
		options.LoginTimeout = 10 * time.Second
	}
	n := &NetworkManager{
		AuthProvider:  options.AuthProvider,
		ClientManager: options.ClientManager,
		MessageQueue:  options.MessageQueue,
		members:       options.Members,
		loginTimeout:  options.LoginTimeout,
	}
	if options.TCPPort != 0 {
		n.TCPServer = NewTCPServer(NewTCPServerOptions{
			Port: options.TCPPort,
		})
		n.TCPServer.network = n
	}
	return n
}

// Start starts the transports that listen on their own port.
func (n *NetworkManager) Start(ctx context.Context) {
	if n.TCPServer != nil {
		go n.TCPServer.Start(ctx)
	}
}

type readFunc func(ctx context.Context) ([]byte, error)

// serve runs a player session on ch: a login handshake followed by the
// inbound message loop. It returns when the connection fails.
func (n *NetworkManager) serve(ctx context.Context, ch Channel, read readFunc) {
	room, player, err := n.login(ctx, ch, read)
	if err != nil {
		log.Warn("Login failed on channel %s: %v", ch.ID(), err)
		if err := n.send(ctx, ch, &messages.ServerLoginFailure{
			Type:   messages.MessageTypeServerLoginFailure,
			Reason: err.Error(),
		}); err != nil {
			log.Debug("Failed to send login failure: %v", err)
		}
		ch.Close()
		return
	}

	if err := n.send(ctx, ch, &messages.ServerLoginSuccess{
		Type:   messages.MessageTypeServerLoginSuccess,
		Player: player,
		Room:   room,
	}); err != nil {
		log.Warn("Failed to send login success to player %s: %v", player, err)
		ch.Close()
		return
	}

	session := log.With("room", room).With("player", player).With("channel", ch.ID())
	session.Info("Player %s connected to room %s", player, room)
	n.ClientManager.Register(room, player, ch)
	defer func() {
		if n.ClientManager.Remove(room, player, ch.ID()) {
			session.Info("Player %s disconnected from room %s", player, room)
		}
	}()

	for {
		b, err := read(ctx)
		if err != nil {
			session.Trace("Connection closed: %v", err)
			return
		}

		message, err := messages.DeserializeClientMessage(b)
		if err != nil {
			session.Warn("Invalid message: %v", err)
			n.sendError(ctx, ch, "", err.Error())
			continue
		}

		switch message.Type {
		case messages.MessageTypeClientPing:
			if err := n.send(ctx, ch, &messages.ServerPong{
				Type:            messages.MessageTypeServerPong,
				Timestamp:       time.Now().UnixMilli(),
				ClientTimestamp: message.Timestamp,
			}); err != nil {
				session.Debug("Failed to send pong: %v", err)
			}
		case messages.MessageTypeClientLogin:
			n.sendError(ctx, ch, message.Type, "already logged in")
		default:
			if err := n.MessageQueue.Enqueue(&ClientMessage{
				Room:       room,
				Player:     player,
				ChannelID:  ch.ID(),
				Message:    message,
				ReceivedAt: time.Now(),
			}); err != nil {
				session.Error("Failed to enqueue message: %v", err)
				n.sendError(ctx, ch, message.Type, "server busy")
			}
		}
	}
}

func (n *NetworkManager) login(ctx context.Context, ch Channel, read readFunc) (string, string, error) {
	loginCtx, cancel := context.WithTimeout(ctx, n.loginTimeout)
	defer cancel()

	b, err := read(loginCtx)
	if err != nil {
		return "", "", fmt.Errorf("failed to read login: %v", err)
	}
	message, err := messages.DeserializeClientMessage(b)
	if err != nil {
		return "", "", err
	}
	if message.Type != messages.MessageTypeClientLogin {
		return "", "", fmt.Errorf("expected login message, got %s", message.Type)
	}
	if message.Room == "" {
		return "", "", fmt.Errorf("login message has no room")
	}

	claims, err := n.AuthProvider.VerifyToken(ctx, message.Token)
	if err != nil {
		return "", "", fmt.Errorf("failed to verify token: %v", err)
	}
	if n.members != nil {
		seated := n.members.Members(message.Room)
		if len(seated) > 0 && !slices.Contains(seated, claims.UID) {
			return "", "", fmt.Errorf("player %s is not seated in room %s", claims.UID, message.Room)
		}
	}
	return message.Room, claims.UID, nil
}

func (n *NetworkManager) send(ctx context.Context, ch Channel, m interface{}) error {
	b, err := messages.SerializeMessage(m)
	if err != nil {
		return err
	}
	return ch.Send(ctx, b)
}

func (n *NetworkManager) sendError(ctx context.Context, ch Channel, request messages.MessageType, reason string) {
	if err := n.send(ctx, ch, &messages.ServerError{
		Type:    messages.MessageTypeServerError,
		Request: request,
		Reason:  reason,
	}); err != nil {
		log.Debug("Failed to send error on channel %s: %v", ch.ID(), err)
	}
}

// SendToPlayer serializes m and sends it on the live channel of player.
func (n *NetworkManager) SendToPlayer(ctx context.Context, room, player string, m interface{}) error {
	ch, ok := n.ClientManager.Get(room, player)
	if !ok {
		return ErrNoChannel
	}
	if err := n.send(ctx, ch, m); err != nil {
		return fmt.Errorf("failed to send message to player %s: %v", player, err)
	}
	return nil
}

// SendErrorToPlayer reports a failed request to player.
func (n *NetworkManager) SendErrorToPlayer(ctx context.Context, room, player string, request messages.MessageType, reason string) error {
	return n.SendToPlayer(ctx, room, player, &messages.ServerError{
		Type:    messages.MessageTypeServerError,
		Request: request,
		Reason:  reason,
	})
}
