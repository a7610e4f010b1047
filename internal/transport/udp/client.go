package udp

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tileworld/internal/transport"
)

// Client is a UDP transport bound to a single server address.
type Client struct {
	conn   *net.UDPConn
	remote netip.AddrPort
	logger *zap.Logger
	events *transport.Queue

	done     chan struct{}
	stopOnce sync.Once
}

// Dial opens a connected UDP socket to addr.
//
// Precondition: logger must be non-nil.
func Dial(addr string, logger *zap.Logger) (*Client, error) {
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, ua)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return &Client{
		conn:   conn,
		remote: normalize(ua.AddrPort()),
		logger: logger,
		events: transport.NewQueue(0),
		done:   make(chan struct{}),
	}, nil
}

// LocalAddr is the address the server sees this client as.
func (c *Client) LocalAddr() netip.AddrPort {
	return normalize(c.conn.LocalAddr().(*net.UDPAddr).AddrPort())
}

// RemoteAddr is the server address.
func (c *Client) RemoteAddr() netip.AddrPort { return c.remote }

// Start reads datagrams until Stop.
func (c *Client) Start() error {
	buf := make([]byte, MaxDatagram)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			select {
			case <-c.done:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			c.events.Push(transport.ReceiveError(c.remote, err))
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		c.events.Push(transport.Message(c.remote, payload))
	}
}

// Stop closes the socket.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Drain implements transport.Transport.
func (c *Client) Drain() []transport.Event { return c.events.Drain() }

// Send implements transport.Transport. Every payload goes to the server
// regardless of addr; a connected UDP write does not block on the peer.
func (c *Client) Send(_ netip.AddrPort, payload []byte) error {
	select {
	case <-c.done:
		return transport.ErrClosed
	default:
	}
	if _, err := c.conn.Write(payload); err != nil {
		return fmt.Errorf("sending to %s: %w", c.remote, err)
	}
	return nil
}
