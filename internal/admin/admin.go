// Package admin exposes the operator gRPC endpoint. It serves the standard
// grpc.health.v1 Health service so orchestrators can health-check a running node.
package admin

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name the simulation reports under.
const ServiceName = "tileworld.Simulation"

// ErrStopped is returned by Listen after Stop.
var ErrStopped = errors.New("admin: server stopped")

// Server is the admin gRPC server. It implements server.Service.
type Server struct {
	addr   string
	logger *zap.Logger
	grpc   *grpc.Server
	health *health.Server

	mu      sync.Mutex
	lis     net.Listener
	stopped bool
	ready   chan struct{}
}

// NewServer creates an admin server bound to addr on Listen. The simulation
// starts as NOT_SERVING until SetServing(true).
//
// Precondition: logger must be non-nil.
func NewServer(addr string, logger *zap.Logger) *Server {
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{
		addr:   addr,
		logger: logger,
		grpc:   gs,
		health: hs,
		ready:  make(chan struct{}),
	}
}

// SetServing reports the simulation as SERVING or NOT_SERVING.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
	s.logger.Debug("admin health status", zap.String("status", status.String()))
}

// Listen binds the TCP listener. Start calls it when it has not been called.
//
// Postcondition: On success Addr reports the bound address and Ready is closed.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis != nil {
		return nil
	}
	if s.stopped {
		return ErrStopped
	}
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	s.lis = lis
	close(s.ready)
	s.logger.Info("admin gRPC server listening", zap.String("addr", lis.Addr().String()))
	return nil
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound address, or "" before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}

// Start binds if needed and serves until Stop.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	lis := s.lis
	s.mu.Unlock()
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("admin: serving: %w", err)
	}
	return nil
}

// Stop marks every service NOT_SERVING and stops gracefully.
func (s *Server) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
