package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cbodonnell/hokm/pkg/delta"
	"github.com/cbodonnell/hokm/pkg/log"
	"github.com/cbodonnell/hokm/pkg/messages"
	"github.com/gorilla/websocket"
)

// ErrLoginFailed is returned by Dial when the server rejects the login.
var ErrLoginFailed = errors.New("login failed")

const writeTimeout = 5 * time.Second

// Client is a websocket connection to the sync server that keeps a Receiver
// up to date, acknowledges what it applied and requests a resync when its
// view diverges.
type Client struct {
	conn       *websocket.Conn
	writeLock  sync.Mutex
	receiver   *Receiver
	compressor *delta.Compressor
	room       string
	player    string
}

type DialOptions struct {
	// URL of the websocket endpoint, e.g. ws://localhost:9090/ws.
	URL   string
	Token string
	Room  string
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Dial connects to the server and logs in to a room.
func Dial(ctx context.Context, opts DialOptions) (*Client, error) {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %v", opts.URL, err)
	}
	conn.SetReadLimit(messages.MessageBufferSize * 16)

	c := &Client{conn: conn, room: opts.Room}
	if err := c.send(&messages.ClientMessage{
		Type:  messages.MessageTypeClientLogin,
		Token: opts.Token,
		Room:  opts.Room,
	}); err != nil {
		conn.Close()
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	m, err := c.read()
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read login response: %v", err)
	}
	switch m := m.(type) {
	case *messages.ServerLoginSuccess:
		c.player = m.Player
	case *messages.ServerLoginFailure:
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrLoginFailed, m.Reason)
	default:
		conn.Close()
		return nil, fmt.Errorf("unexpected login response %T", m)
	}

	compressor, err := delta.NewCompressor(0)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create compressor: %v", err)
	}
	c.compressor = compressor
	c.receiver = NewReceiver(c.player, compressor)
	log.Info("Logged in to room %s as %s", c.room, c.player)
	return c, nil
}

func (c *Client) Player() string {
	return c.player
}

func (c *Client) Room() string {
	return c.room
}

func (c *Client) Receiver() *Receiver {
	return c.receiver
}

// Handler is called for every applied update and for server messages that do
// not carry state, such as errors and action confirmations.
type Handler func(update *Update, message interface{})

// Run reads server messages until ctx is done or the connection fails.
func (c *Client) Run(ctx context.Context, handler Handler) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.conn.Close()
		case <-stop:
		}
	}()

	for {
		m, err := c.read()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		update, err := c.receiver.Apply(m)
		if err != nil {
			log.Warn("Failed to apply %T: %v", m, err)
			if err := c.requestResync(); err != nil {
				return err
			}
			continue
		}
		if update != nil && !update.Stale {
			if err := c.Ack(update.SequenceID); err != nil {
				return err
			}
		}
		if handler != nil {
			handler(update, m)
		}
	}
}

func (c *Client) requestResync() error {
	sequence, synced := c.receiver.Sequence()
	if !synced {
		return c.Resync(nil)
	}
	return c.Resync(&sequence)
}

func (c *Client) Ack(sequence uint64) error {
	return c.send(&messages.ClientMessage{
		Type:       messages.MessageTypeClientAck,
		SequenceID: sequence,
	})
}

// Resync asks the server for the updates after lastSequence. A nil
// lastSequence requests a full sync.
func (c *Client) Resync(lastSequence *uint64) error {
	return c.send(&messages.ClientMessage{
		Type:         messages.MessageTypeClientResync,
		LastSequence: lastSequence,
	})
}

// SendAction submits a game action with a JSON encoded payload.
func (c *Client) SendAction(action string, payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize action payload: %v", err)
	}
	return c.send(&messages.ClientMessage{
		Type:    messages.MessageTypeClientAction,
		Action:  action,
		Payload: b,
	})
}

func (c *Client) Ping() error {
	return c.send(&messages.ClientMessage{
		Type:      messages.MessageTypeClientPing,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (c *Client) Close() error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	defer c.compressor.Close()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		log.Debug("Failed to send close message: %v", err)
	}
	return c.conn.Close()
}

func (c *Client) send(m *messages.ClientMessage) error {
	b, err := messages.SerializeMessage(m)
	if err != nil {
		return err
	}
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("failed to write %s message: %v", m.Type, err)
	}
	return nil
}

func (c *Client) read() (interface{}, error) {
	_, b, err := c.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %v", err)
	}
	return messages.DeserializeServerMessage(b)
}
