package client_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/tileworld/internal/client"
)

func TestKeyDelta(t *testing.T) {
	tests := []struct {
		key    string
		dx, dy float32
		ok     bool
	}{
		{"w", 0, 1, true},
		{"s", 0, -1, true},
		{"a", -1, 0, true},
		{"d", 1, 0, true},
		{" D ", 1, 0, true},
		{"q", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tt := range tests {
		dx, dy, ok := client.KeyDelta(tt.key)
		assert.Equal(t, tt.ok, ok, "key %q", tt.key)
		assert.Equal(t, tt.dx, dx, "key %q", tt.key)
		assert.Equal(t, tt.dy, dy, "key %q", tt.key)
	}
}

func TestLineInput_YieldsKeysInOrder(t *testing.T) {
	in := client.NewLineInput(strings.NewReader("w\nhello\nd\n"))
	require.NoError(t, in.Start(), "EOF ends Start cleanly")

	dx, dy := in.Poll()
	assert.Equal(t, [2]float32{0, 1}, [2]float32{dx, dy})
	dx, dy = in.Poll()
	assert.Equal(t, [2]float32{1, 0}, [2]float32{dx, dy})
	dx, dy = in.Poll()
	assert.Equal(t, [2]float32{0, 0}, [2]float32{dx, dy}, "no more input")
}

type blockingReader struct{ ch chan struct{} }

func (b blockingReader) Read([]byte) (int, error) {
	<-b.ch
	return 0, nil
}

func TestLineInput_StopEndsStart(t *testing.T) {
	r := blockingReader{ch: make(chan struct{})}
	t.Cleanup(func() { close(r.ch) })
	in := client.NewLineInput(r)

	done := make(chan error, 1)
	go func() { done <- in.Start() }()
	in.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}
