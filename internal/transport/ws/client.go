package ws

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tileworld/internal/transport"
)

// Client is a websocket transport bound to one server.
type Client struct {
	p      *peer
	logger *zap.Logger
	events *transport.Queue
}

// Dial connects to a server URL such as ws://127.0.0.1:8080/ws.
//
// Precondition: logger must be non-nil.
func Dial(url string, logger *zap.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	remote := conn.RemoteAddr().(*net.TCPAddr).AddrPort()
	return &Client{
		p: &peer{
			conn: conn,
			addr: netip.AddrPortFrom(remote.Addr().Unmap(), remote.Port()),
			send: make(chan []byte, 64),
			done: make(chan struct{}),
		},
		logger: logger,
		events: transport.NewQueue(0),
	}, nil
}

// LocalAddr is the address the server sees this client as.
func (c *Client) LocalAddr() netip.AddrPort {
	a := c.p.conn.LocalAddr().(*net.TCPAddr).AddrPort()
	return netip.AddrPortFrom(a.Addr().Unmap(), a.Port())
}

// Start runs the writer and reads frames until the connection closes.
func (c *Client) Start() error {
	go writePump(c.p, 0, c.logger)
	defer c.p.close()
	for {
		kind, payload, err := c.p.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.p.done:
				return nil
			default:
			}
			c.events.Push(transport.Disconnect(c.p.addr))
			return nil
		}
		if kind == websocket.BinaryMessage {
			c.events.Push(transport.Message(c.p.addr, payload))
		}
	}
}

// Stop closes the connection.
func (c *Client) Stop() { c.p.close() }

// Drain implements transport.Transport.
func (c *Client) Drain() []transport.Event { return c.events.Drain() }

// Send implements transport.Transport. Every payload goes to the server.
func (c *Client) Send(_ netip.AddrPort, payload []byte) error {
	select {
	case <-c.p.done:
		return transport.ErrClosed
	case c.p.send <- payload:
		return nil
	default:
		return transport.ErrQueueFull
	}
}
