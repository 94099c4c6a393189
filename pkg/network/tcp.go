package network

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/cbodonnell/hokm/pkg/log"
	"github.com/cbodonnell/hokm/pkg/messages"
	"github.com/google/uuid"
)

var _ Channel = &TCPChannel{}

// TCPChannel is a Channel over a TCP connection. Messages are JSON documents
// terminated by a newline.
type TCPChannel struct {
	id        string
	conn      net.Conn
	scanner   *bufio.Scanner
	writeLock sync.Mutex
}

func NewTCPChannel(conn net.Conn) *TCPChannel {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), messages.MessageBufferSize)
	return &TCPChannel{
		id:      uuid.NewString(),
		conn:    conn,
		scanner: scanner,
	}
}

func (c *TCPChannel) ID() string {
	return c.id
}

// Send writes one frame. The context deadline bounds the write.
func (c *TCPChannel) Send(ctx context.Context, b []byte) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %v", err)
	}
	frame := make([]byte, 0, len(b)+1)
	frame = append(frame, b...)
	frame = append(frame, '\n')
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("failed to write message to TCP connection: %v", err)
	}
	return nil
}

func (c *TCPChannel) Close() error {
	return c.conn.Close()
}

// ErrConnectionClosed is returned when the TCP connection is closed
var ErrConnectionClosed = errors.New("connection closed")

func (c *TCPChannel) read(ctx context.Context) ([]byte, error) {
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set read deadline: %v", err)
	}
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read message from TCP connection: %v", err)
		}
		return nil, ErrConnectionClosed
	}
	return append([]byte(nil), c.scanner.Bytes()...), nil
}

// TCPServer represents a TCP server.
type TCPServer struct {
	port    int
	network *NetworkManager
}

type NewTCPServerOptions struct {
	Port int
}

// NewTCPServer creates a new TCP server.
func NewTCPServer(opts NewTCPServerOptions) *TCPServer {
	return &TCPServer{
		port: opts.Port,
	}
}

// Start accepts connections until ctx is done.
func (s *TCPServer) Start(ctx context.Context) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		log.Error("Failed to resolve TCP address: %v", err)
		return
	}

	tcpListener, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		log.Error("Failed to listen on TCP address: %v", err)
		return
	}
	log.Info("TCP server listening on %s", tcpAddr.String())

	go func() {
		<-ctx.Done()
		tcpListener.Close()
	}()

	for {
		conn, err := tcpListener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				log.Info("TCP server closed")
				return
			}
			log.Error("Failed to accept TCP connection: %v", err)
			continue
		}

		log.Debug("New TCP connection from %s", conn.RemoteAddr().String())
		go s.handleTCPConnection(ctx, conn)
	}
}

// handleTCPConnection handles a TCP connection.
func (s *TCPServer) handleTCPConnection(ctx context.Context, conn net.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	ch := NewTCPChannel(conn)
	s.network.serve(ctx, ch, ch.read)
}
