package client

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// InputSource supplies the direction the local player wants to walk. Poll
// must not block; (0, 0) means no input this tick.
type InputSource interface {
	Poll() (dx, dy float32)
}

// InputFunc adapts a function to InputSource.
type InputFunc func() (dx, dy float32)

// Poll calls f.
func (f InputFunc) Poll() (dx, dy float32) { return f() }

// KeyDelta maps a movement key to a direction. Up (w) is +y because world
// y grows upward.
func KeyDelta(key string) (dx, dy float32, ok bool) {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "w":
		return 0, 1, true
	case "s":
		return 0, -1, true
	case "a":
		return -1, 0, true
	case "d":
		return 1, 0, true
	default:
		return 0, 0, false
	}
}

type delta struct{ dx, dy float32 }

// LineInput reads one key per line (w, a, s, d) from a reader and yields
// them one per Poll. Unrecognized lines are skipped; input that arrives
// faster than it is polled is dropped once the buffer is full.
//
// LineInput implements server.Service.
type LineInput struct {
	r       io.Reader
	pending chan delta
	done    chan struct{}
	once    sync.Once
}

// NewLineInput creates a LineInput over r.
func NewLineInput(r io.Reader) *LineInput {
	return &LineInput{
		r:       r,
		pending: make(chan delta, 16),
		done:    make(chan struct{}),
	}
}

// Start reads r until EOF or Stop. A reader that never returns (a
// terminal) keeps its goroutine alive after Stop; Start still returns.
func (in *LineInput) Start() error {
	eof := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in.r)
		for sc.Scan() {
			dx, dy, ok := KeyDelta(sc.Text())
			if !ok {
				continue
			}
			select {
			case in.pending <- delta{dx, dy}:
			case <-in.done:
				return
			default:
			}
		}
		eof <- sc.Err()
	}()
	select {
	case err := <-eof:
		return err
	case <-in.done:
		return nil
	}
}

// Stop ends Start.
func (in *LineInput) Stop() {
	in.once.Do(func() { close(in.done) })
}

// Poll implements InputSource.
func (in *LineInput) Poll() (dx, dy float32) {
	select {
	case d := <-in.pending:
		return d.dx, d.dy
	default:
		return 0, 0
	}
}
