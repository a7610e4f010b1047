package gameserver_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cory-johannsen/tileworld/internal/gameserver"
)

func TestTickScheduler_RunStopsOnCancel(t *testing.T) {
	s := gameserver.NewTickScheduler(20 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestTickScheduler_CallbackInvoked(t *testing.T) {
	s := gameserver.NewTickScheduler(10 * time.Millisecond)
	called := make(chan struct{}, 1)
	s.RegisterTick("sim", func() {
		select {
		case called <- struct{}{}:
		default:
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go s.Run(ctx)
	select {
	case <-called:
	case <-ctx.Done():
		t.Fatal("tick callback not invoked within timeout")
	}
}

func TestTickScheduler_CallbacksRunInNameOrder(t *testing.T) {
	s := gameserver.NewTickScheduler(10 * time.Millisecond)
	var mu sync.Mutex
	var order []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
		}
	}
	s.RegisterTick("b", record("b"))
	s.RegisterTick("a", record("a"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b"}, order[:2])
}

func TestTickScheduler_UnregisterStopsCallback(t *testing.T) {
	s := gameserver.NewTickScheduler(10 * time.Millisecond)
	var count atomic.Int64
	s.RegisterTick("sim", func() { count.Add(1) })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	time.Sleep(40 * time.Millisecond)
	s.Unregister("sim")
	after := count.Load()
	time.Sleep(40 * time.Millisecond)
	if count.Load() > after+1 {
		t.Fatalf("tick continued after unregister: before=%d after=%d", after, count.Load())
	}
}

func TestTickScheduler_StartStop(t *testing.T) {
	s := gameserver.NewTickScheduler(10 * time.Millisecond)
	done := make(chan error, 1)
	go func() { done <- s.Start() }()
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
	s.Stop()
}

func TestTickScheduler_StopBeforeStart(t *testing.T) {
	s := gameserver.NewTickScheduler(10 * time.Millisecond)
	s.Stop()
	assert.NoError(t, s.Start())
}

func TestNewTickScheduler_PanicsOnZeroInterval(t *testing.T) {
	assert.Panics(t, func() { gameserver.NewTickScheduler(0) })
}
