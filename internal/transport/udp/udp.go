// Package udp implements the datagram transport. Each datagram carries one
// encoded pack. A peer is "connected" from its first datagram until it has
// been silent for the idle timeout.
package udp

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tileworld/internal/transport"
)

// MaxDatagram is the largest payload read or sent.
const MaxDatagram = 64 * 1024

// Config configures a Server.
type Config struct {
	// Addr is the host:port to bind.
	Addr string
	// IdleTimeout disconnects peers silent for this long. 0 disables it.
	IdleTimeout time.Duration
	// SendQueue bounds outbound datagrams waiting for the writer.
	SendQueue int
	// EventQueue bounds inbound events waiting for Drain.
	EventQueue int
}

type datagram struct {
	addr    netip.AddrPort
	payload []byte
}

// Server is the UDP transport. It implements transport.Transport and
// server.Service.
type Server struct {
	cfg    Config
	logger *zap.Logger
	events *transport.Queue
	out    chan datagram

	mu    sync.Mutex
	conn  *net.UDPConn
	peers map[netip.AddrPort]time.Time

	ready    chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewServer creates an unbound Server.
//
// Precondition: logger must be non-nil.
func NewServer(cfg Config, logger *zap.Logger) *Server {
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = 256
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		events: transport.NewQueue(cfg.EventQueue),
		out:    make(chan datagram, cfg.SendQueue),
		peers:  make(map[netip.AddrPort]time.Time),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Listen binds the socket. Start calls it when it has not been called.
//
// Postcondition: On success Addr reports the bound address and Ready is closed.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}
	if s.closed() {
		return transport.ErrClosed
	}
	ua, err := net.ResolveUDPAddr("udp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", s.cfg.Addr, err)
	}
	conn, err := net.ListenUDP("udp", ua)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}
	s.conn = conn
	close(s.ready)
	s.logger.Info("udp transport listening", zap.String("addr", conn.LocalAddr().String()))
	return nil
}

// Ready is closed once the socket is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound address, or the zero value before Listen.
func (s *Server) Addr() netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return netip.AddrPort{}
	}
	return normalize(s.conn.LocalAddr().(*net.UDPAddr).AddrPort())
}

// Start binds if needed and runs the reader, writer and idle reaper. It
// blocks until Stop.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.writeLoop()
	}()
	go func() {
		defer wg.Done()
		s.reapLoop()
	}()
	s.readLoop()
	wg.Wait()
	return nil
}

// Stop closes the socket and ends every goroutine Start launched.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.mu.Unlock()
	})
}

// Drain implements transport.Transport.
func (s *Server) Drain() []transport.Event { return s.events.Drain() }

// Send implements transport.Transport. It never blocks.
func (s *Server) Send(addr netip.AddrPort, payload []byte) error {
	select {
	case <-s.done:
		return transport.ErrClosed
	default:
	}
	if len(payload) > MaxDatagram {
		return fmt.Errorf("payload of %d bytes exceeds %d", len(payload), MaxDatagram)
	}
	select {
	case s.out <- datagram{addr: addr, payload: payload}:
		return nil
	default:
		return transport.ErrQueueFull
	}
}

// Peers returns the number of peers currently considered connected.
func (s *Server) Peers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

func (s *Server) readLoop() {
	buf := make([]byte, MaxDatagram)
	for {
		n, from, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if s.closed() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.events.Push(transport.ReceiveError(netip.AddrPort{}, err))
			continue
		}
		from = normalize(from)
		if s.touch(from) {
			s.events.Push(transport.Connect(from))
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		if !s.events.Push(transport.Message(from, payload)) {
			s.logger.Debug("inbound queue full, dropping datagram", zap.Stringer("from", from))
		}
	}
}

func (s *Server) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case d := <-s.out:
			if _, err := s.conn.WriteToUDPAddrPort(d.payload, d.addr); err != nil && !s.closed() {
				s.logger.Debug("udp write failed", zap.Stringer("to", d.addr), zap.Error(err))
			}
		}
	}
}

func (s *Server) reapLoop() {
	if s.cfg.IdleTimeout <= 0 {
		<-s.done
		return
	}
	interval := s.cfg.IdleTimeout / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			for _, addr := range s.expire(now) {
				s.events.Push(transport.Disconnect(addr))
			}
		}
	}
}

// touch records activity from addr and reports whether addr is new.
func (s *Server) touch(addr netip.AddrPort) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, seen := s.peers[addr]
	s.peers[addr] = time.Now()
	return !seen
}

func (s *Server) expire(now time.Time) []netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()
	var gone []netip.AddrPort
	for addr, last := range s.peers {
		if now.Sub(last) >= s.cfg.IdleTimeout {
			delete(s.peers, addr)
			gone = append(gone, addr)
		}
	}
	return gone
}

func (s *Server) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// normalize strips the IPv4-in-IPv6 mapping dual-stack sockets report, so
// one peer always has one address.
func normalize(a netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(a.Addr().Unmap(), a.Port())
}
