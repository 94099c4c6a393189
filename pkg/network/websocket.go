package network

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cbodonnell/hokm/pkg/log"
	"github.com/cbodonnell/hokm/pkg/messages"
	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

var _ Channel = &WSChannel{}

// WSChannel is a Channel over a WebSocket connection.
type WSChannel struct {
	id   string
	conn *websocket.Conn
}

func NewWSChannel(conn *websocket.Conn) *WSChannel {
	return &WSChannel{
		id:   uuid.NewString(),
		conn: conn,
	}
}

func (c *WSChannel) ID() string {
	return c.id
}

// Send writes one text frame.
func (c *WSChannel) Send(ctx context.Context, b []byte) error {
	if err := c.conn.Write(ctx, websocket.MessageText, b); err != nil {
		return fmt.Errorf("failed to write message to WebSocket connection: %v", err)
	}
	return nil
}

func (c *WSChannel) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

func (c *WSChannel) read(ctx context.Context) ([]byte, error) {
	_, b, err := c.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return b, nil
}

type WSHandlerOptions struct {
	// OriginPatterns lists the allowed origins. Empty allows any origin.
	OriginPatterns []string
}

// WebSocketHandler upgrades requests and serves them as player sessions.
func (n *NetworkManager) WebSocketHandler(opts WSHandlerOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acceptOptions := &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		}
		if len(opts.OriginPatterns) == 0 {
			acceptOptions.InsecureSkipVerify = true
		}
		conn, err := websocket.Accept(w, r, acceptOptions)
		if err != nil {
			log.Error("Failed to upgrade to WebSocket: %v", err)
			return
		}
		conn.SetReadLimit(messages.MessageBufferSize)
		log.Debug("New WebSocket connection from %s", r.RemoteAddr)

		ch := NewWSChannel(conn)
		n.serve(r.Context(), ch, ch.read)
	}
}
