package gameserver

import (
	"context"
	"sort"
	"sync"
	"time"
)

// TickScheduler fires registered callbacks once per interval, one after
// another on a single goroutine, in name order.
//
// Invariant: all callbacks are invoked at most once per tick interval.
type TickScheduler struct {
	interval time.Duration
	mu       sync.Mutex
	ticks    map[string]func()

	cancel   context.CancelFunc
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewTickScheduler returns a scheduler that fires every interval.
//
// Precondition: interval must be > 0.
func NewTickScheduler(interval time.Duration) *TickScheduler {
	if interval <= 0 {
		panic("gameserver.NewTickScheduler: interval must be > 0")
	}
	return &TickScheduler{
		interval: interval,
		ticks:    make(map[string]func()),
		stopped:  make(chan struct{}),
	}
}

// RegisterTick registers fn under name, replacing any existing callback.
func (s *TickScheduler) RegisterTick(name string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks[name] = fn
}

// Unregister removes the callback registered under name.
func (s *TickScheduler) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ticks, name)
}

// Run fires callbacks until ctx is cancelled. It blocks.
//
// Postcondition: all registered callbacks are invoked once per interval.
func (s *TickScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, fn := range s.snapshot() {
				fn()
			}
		}
	}
}

// Start runs the scheduler until Stop. It implements server.Service.
func (s *TickScheduler) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	select {
	case <-s.stopped:
		cancel()
		return nil
	default:
	}
	s.Run(ctx)
	return nil
}

// Stop ends Start.
func (s *TickScheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.cancel != nil {
			s.cancel()
		}
	})
}

func (s *TickScheduler) snapshot() []func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.ticks))
	for name := range s.ticks {
		names = append(names, name)
	}
	sort.Strings(names)
	fns := make([]func(), 0, len(names))
	for _, name := range names {
		fns = append(fns, s.ticks[name])
	}
	return fns
}
