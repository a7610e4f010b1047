// Package ws implements the websocket transport. Each binary frame carries
// one encoded pack; a peer is connected for the life of its websocket.
package ws

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tileworld/internal/transport"
)

// DefaultPath is the HTTP path the upgrade handler is mounted on.
const DefaultPath = "/ws"

const (
	writeWait    = 5 * time.Second
	maxFrameSize = 1 << 20
)

// Config configures a Server.
type Config struct {
	// Addr is the host:port to listen on.
	Addr string
	// Path is the upgrade endpoint. Empty means DefaultPath.
	Path string
	// IdleTimeout closes peers that send neither frames nor pongs for this
	// long. 0 means 60s.
	IdleTimeout time.Duration
	// SendQueue bounds frames waiting for each peer's writer.
	SendQueue int
	// EventQueue bounds inbound events waiting for Drain.
	EventQueue int
}

// peer wraps one websocket with a queued writer.
type peer struct {
	conn     *websocket.Conn
	addr     netip.AddrPort
	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
}

func (p *peer) close() {
	p.stopOnce.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

// Server is the websocket transport. It implements transport.Transport and
// server.Service.
type Server struct {
	cfg      Config
	logger   *zap.Logger
	events   *transport.Queue
	upgrader websocket.Upgrader

	mu    sync.Mutex
	ln    net.Listener
	http  *http.Server
	peers map[netip.AddrPort]*peer

	ready chan struct{}
}

// NewServer creates a Server that has not started listening.
//
// Precondition: logger must be non-nil.
func NewServer(cfg Config, logger *zap.Logger) *Server {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = 64
	}
	s := &Server{
		cfg:    cfg,
		logger: logger,
		events: transport.NewQueue(cfg.EventQueue),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Game clients are not browsers; any origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		peers: make(map[netip.AddrPort]*peer),
		ready: make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, s.handleUpgrade)
	s.http = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	return s
}

// Listen opens the TCP listener. Start calls it when it has not been called.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}
	s.ln = ln
	close(s.ready)
	s.logger.Info("websocket transport listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("path", s.cfg.Path),
	)
	return nil
}

// Ready is closed once the listener is open.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the listener address, or the zero value before Listen.
func (s *Server) Addr() netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return netip.AddrPort{}
	}
	return s.ln.Addr().(*net.TCPAddr).AddrPort()
}

// URL returns the ws:// URL clients dial.
func (s *Server) URL() string {
	return "ws://" + s.Addr().String() + s.cfg.Path
}

// Start serves upgrades until Stop.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	if err := s.http.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving websocket: %w", err)
	}
	return nil
}

// Stop closes the listener and every peer connection.
func (s *Server) Stop() {
	_ = s.http.Close()
	s.mu.Lock()
	peers := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()
	for _, p := range peers {
		p.close()
	}
}

// Drain implements transport.Transport.
func (s *Server) Drain() []transport.Event { return s.events.Drain() }

// Send implements transport.Transport. It never blocks.
func (s *Server) Send(addr netip.AddrPort, payload []byte) error {
	s.mu.Lock()
	p, ok := s.peers[addr]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("sending to %s: %w", addr, transport.ErrUnknownPeer)
	}
	select {
	case <-p.done:
		return fmt.Errorf("sending to %s: %w", addr, transport.ErrClosed)
	case p.send <- payload:
		return nil
	default:
		return fmt.Errorf("sending to %s: %w", addr, transport.ErrQueueFull)
	}
}

// Peers returns the number of open connections.
func (s *Server) Peers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	addr, err := netip.ParseAddrPort(r.RemoteAddr)
	if err != nil {
		http.Error(w, "bad remote address", http.StatusBadRequest)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	p := &peer{
		conn: conn,
		addr: netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port()),
		send: make(chan []byte, s.cfg.SendQueue),
		done: make(chan struct{}),
	}
	s.mu.Lock()
	s.peers[p.addr] = p
	s.mu.Unlock()
	s.events.Push(transport.Connect(p.addr))

	go writePump(p, s.cfg.IdleTimeout*9/10, s.logger)
	go s.readPump(p)
}

// readPump turns frames into events and reports the disconnect when the
// socket fails or closes.
func (s *Server) readPump(p *peer) {
	defer func() {
		p.close()
		s.mu.Lock()
		delete(s.peers, p.addr)
		s.mu.Unlock()
		s.events.Push(transport.Disconnect(p.addr))
	}()
	p.conn.SetReadLimit(maxFrameSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
	})
	for {
		kind, payload, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.events.Push(transport.ReceiveError(p.addr, err))
			}
			return
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		if kind != websocket.BinaryMessage {
			s.logger.Debug("ignoring non-binary frame", zap.Stringer("from", p.addr))
			continue
		}
		s.events.Push(transport.Message(p.addr, payload))
	}
}

// writePump owns all writes to p.conn. A zero pingEvery disables pings.
func writePump(p *peer, pingEvery time.Duration, logger *zap.Logger) {
	var ping <-chan time.Time
	if pingEvery > 0 {
		ticker := time.NewTicker(pingEvery)
		defer ticker.Stop()
		ping = ticker.C
	}
	defer p.close()
	for {
		select {
		case <-p.done:
			return
		case msg := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				logger.Debug("websocket write failed", zap.Stringer("to", p.addr), zap.Error(err))
				return
			}
		case <-ping:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
