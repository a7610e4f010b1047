package udp

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/tileworld/internal/transport"
)

// collector accumulates drained events across polls.
type collector struct {
	mu  sync.Mutex
	src transport.Transport
	evs []transport.Event
}

func (c *collector) poll() []transport.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evs = append(c.evs, c.src.Drain()...)
	return append([]transport.Event(nil), c.evs...)
}

func (c *collector) has(kind transport.EventKind) bool {
	for _, ev := range c.poll() {
		if ev.Kind == kind {
			return true
		}
	}
	return false
}

func startServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	srv := NewServer(cfg, zaptest.NewLogger(t))
	require.NoError(t, srv.Listen())
	go func() { _ = srv.Start() }()
	t.Cleanup(srv.Stop)
	return srv
}

func dialClient(t *testing.T, srv *Server) *Client {
	t.Helper()
	cl, err := Dial(srv.Addr().String(), zaptest.NewLogger(t))
	require.NoError(t, err)
	go func() { _ = cl.Start() }()
	t.Cleanup(cl.Stop)
	return cl
}

func TestServer_FirstDatagramConnectsThenDelivers(t *testing.T) {
	srv := startServer(t, Config{})
	cl := dialClient(t, srv)

	require.NoError(t, cl.Send(netip.AddrPort{}, []byte("hello")))
	require.NoError(t, cl.Send(netip.AddrPort{}, []byte("again")))

	c := &collector{src: srv}
	require.Eventually(t, func() bool { return len(c.poll()) >= 3 }, 2*time.Second, 10*time.Millisecond)

	evs := c.poll()
	assert.Equal(t, transport.EventConnect, evs[0].Kind)
	assert.Equal(t, cl.LocalAddr(), evs[0].Addr)
	assert.Equal(t, transport.EventMessage, evs[1].Kind)
	assert.Equal(t, []byte("hello"), evs[1].Payload)
	assert.Equal(t, transport.EventMessage, evs[2].Kind)
	assert.Equal(t, []byte("again"), evs[2].Payload)
	assert.Equal(t, 1, srv.Peers())
}

func TestServer_SendReachesClient(t *testing.T) {
	srv := startServer(t, Config{})
	cl := dialClient(t, srv)

	require.NoError(t, cl.Send(netip.AddrPort{}, []byte("hi")))
	sc := &collector{src: srv}
	require.Eventually(t, func() bool { return sc.has(transport.EventMessage) }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, srv.Send(cl.LocalAddr(), []byte("welcome")))
	cc := &collector{src: cl}
	require.Eventually(t, func() bool { return cc.has(transport.EventMessage) }, 2*time.Second, 10*time.Millisecond)
	evs := cc.poll()
	assert.Equal(t, []byte("welcome"), evs[0].Payload)
	assert.Equal(t, srv.Addr(), evs[0].Addr)
}

func TestServer_IdlePeerDisconnects(t *testing.T) {
	srv := startServer(t, Config{IdleTimeout: 50 * time.Millisecond})
	cl := dialClient(t, srv)

	require.NoError(t, cl.Send(netip.AddrPort{}, []byte("ping")))
	c := &collector{src: srv}
	require.Eventually(t, func() bool { return c.has(transport.EventDisconnect) }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, srv.Peers())
}

func TestServer_IdleDisconnectSurvivesFullQueue(t *testing.T) {
	srv := startServer(t, Config{IdleTimeout: 50 * time.Millisecond, EventQueue: 2})
	cl := dialClient(t, srv)

	require.NoError(t, cl.Send(netip.AddrPort{}, []byte("one")))
	require.NoError(t, cl.Send(netip.AddrPort{}, []byte("two")))
	// Nothing drains while the peer goes idle, so the second message is
	// dropped and the queue is full when the peer expires.
	time.Sleep(300 * time.Millisecond)

	c := &collector{src: srv}
	require.Eventually(t, func() bool { return c.has(transport.EventDisconnect) }, 2*time.Second, 10*time.Millisecond)
	evs := c.poll()
	assert.Equal(t, transport.EventConnect, evs[0].Kind)
	assert.Equal(t, transport.EventDisconnect, evs[len(evs)-1].Kind)
	assert.Equal(t, 0, srv.Peers())
}

func TestServer_SendAfterStop(t *testing.T) {
	srv := NewServer(Config{Addr: "127.0.0.1:0"}, zaptest.NewLogger(t))
	srv.Stop()
	assert.ErrorIs(t, srv.Send(netip.MustParseAddrPort("127.0.0.1:1"), nil), transport.ErrClosed)
	assert.ErrorIs(t, srv.Listen(), transport.ErrClosed)
}

func TestServer_SendQueueFull(t *testing.T) {
	// Never started: no writer drains the queue.
	srv := NewServer(Config{Addr: "127.0.0.1:0", SendQueue: 1}, zaptest.NewLogger(t))
	to := netip.MustParseAddrPort("127.0.0.1:1")
	require.NoError(t, srv.Send(to, []byte("a")))
	assert.ErrorIs(t, srv.Send(to, []byte("b")), transport.ErrQueueFull)
}

func TestServer_ListenBadAddr(t *testing.T) {
	srv := NewServer(Config{Addr: "not an address"}, zaptest.NewLogger(t))
	assert.Error(t, srv.Listen())
}
