// Package server runs the process-level services of a tileworld node
// (transport, tick scheduler, admin endpoint) and shuts them down in
// reverse order on signal, context cancellation, or the first failure.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultStopTimeout bounds how long Run waits for a service's Start to
// return after its Stop was called.
const DefaultStopTimeout = 5 * time.Second

// Service represents a long-running component that can be started and stopped.
type Service interface {
	// Start begins the service. It should block until the service is stopped
	// or an error occurs.
	Start() error
	// Stop gracefully stops the service.
	Stop()
}

// FuncService adapts a start/stop function pair into the Service interface.
type FuncService struct {
	StartFn func() error
	StopFn  func()
}

// Start calls the underlying start function.
func (f *FuncService) Start() error { return f.StartFn() }

// Stop calls the underlying stop function.
func (f *FuncService) Stop() { f.StopFn() }

// Lifecycle manages the startup and shutdown of multiple services.
// Services are started in order and stopped in reverse order.
type Lifecycle struct {
	logger      *zap.Logger
	stopTimeout time.Duration
	services    []namedService
	mu          sync.Mutex
}

type namedService struct {
	name    string
	service Service
	done    chan struct{}
}

// NewLifecycle creates a new Lifecycle manager.
//
// Precondition: logger must be non-nil.
func NewLifecycle(logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		logger:      logger,
		stopTimeout: DefaultStopTimeout,
	}
}

// SetStopTimeout overrides DefaultStopTimeout. d <= 0 waits forever.
func (l *Lifecycle) SetStopTimeout(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopTimeout = d
}

// Add registers a named service for lifecycle management.
// Services are started in the order they are added.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, namedService{name: name, service: svc})
}

// Len returns the number of registered services.
func (l *Lifecycle) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.services)
}

// Run starts all services and blocks until SIGINT or SIGTERM, ctx is
// cancelled, or a service's Start returns. Services are then stopped in
// reverse order.
//
// A Start that returns nil before shutdown is treated as a clean exit of
// that service and also triggers shutdown.
//
// Postcondition: All services are stopped when this method returns. The
// returned error joins every service failure; nil on a clean shutdown.
func (l *Lifecycle) Run(ctx context.Context) error {
	start := time.Now()

	l.mu.Lock()
	services := make([]namedService, len(l.services))
	copy(services, l.services)
	stopTimeout := l.stopTimeout
	l.mu.Unlock()

	type exit struct {
		name string
		err  error
	}
	exitCh := make(chan exit, len(services))
	for i := range services {
		ns := &services[i]
		ns.done = make(chan struct{})
		l.logger.Info("starting service", zap.String("service", ns.name))
		go func() {
			defer close(ns.done)
			svcStart := time.Now()
			err := ns.service.Start()
			if err != nil {
				l.logger.Error("service failed",
					zap.String("service", ns.name),
					zap.Error(err),
					zap.Duration("uptime", time.Since(svcStart)),
				)
			}
			exitCh <- exit{name: ns.name, err: err}
		}()
	}

	l.logger.Info("all services started",
		zap.Int("count", len(services)),
		zap.Duration("startup", time.Since(start)),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var errs []error
	select {
	case sig := <-sigCh:
		l.logger.Info("received signal, shutting down",
			zap.String("signal", sig.String()),
		)
	case ex := <-exitCh:
		if ex.err != nil {
			errs = append(errs, fmt.Errorf("service %s: %w", ex.name, ex.err))
			l.logger.Error("service error, shutting down", zap.Error(ex.err))
		} else {
			l.logger.Info("service exited, shutting down", zap.String("service", ex.name))
		}
	case <-ctx.Done():
		l.logger.Info("context cancelled, shutting down")
	}

	l.shutdown(services, stopTimeout)

	// Collect failures from services that exited during shutdown.
drain:
	for {
		select {
		case ex := <-exitCh:
			if ex.err != nil {
				errs = append(errs, fmt.Errorf("service %s: %w", ex.name, ex.err))
			}
		default:
			break drain
		}
	}

	l.logger.Info("shutdown complete",
		zap.Duration("total_uptime", time.Since(start)),
	)
	return errors.Join(errs...)
}

func (l *Lifecycle) shutdown(services []namedService, timeout time.Duration) {
	shutdownStart := time.Now()
	for i := len(services) - 1; i >= 0; i-- {
		ns := services[i]
		svcStart := time.Now()
		l.logger.Info("stopping service", zap.String("service", ns.name))
		ns.service.Stop()
		if !waitDone(ns.done, timeout) {
			l.logger.Warn("service did not stop in time",
				zap.String("service", ns.name),
				zap.Duration("timeout", timeout),
			)
			continue
		}
		l.logger.Info("service stopped",
			zap.String("service", ns.name),
			zap.Duration("elapsed", time.Since(svcStart)),
		)
	}
	l.logger.Info("all services stopped",
		zap.Duration("shutdown_elapsed", time.Since(shutdownStart)),
	)
}

func waitDone(done <-chan struct{}, timeout time.Duration) bool {
	if timeout <= 0 {
		<-done
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}
