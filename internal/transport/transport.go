// Package transport defines the unreliable, non-blocking message transport
// the tick loop drains and sends through, plus the queue both network
// implementations share.
package transport

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
)

var (
	// ErrUnknownPeer is returned by Send when no connection exists for the address.
	ErrUnknownPeer = errors.New("unknown peer")
	// ErrQueueFull is returned by Send when the peer's outbound queue is full.
	ErrQueueFull = errors.New("send queue full")
	// ErrClosed is returned once the transport has been stopped.
	ErrClosed = errors.New("transport closed")
)

// EventKind classifies a transport Event.
type EventKind int

const (
	// EventMessage carries one received datagram or frame.
	EventMessage EventKind = iota
	// EventConnect reports a peer that was not seen before.
	EventConnect
	// EventDisconnect reports a peer that went away or timed out.
	EventDisconnect
	// EventReceiveError reports a read failure. It is never fatal.
	EventReceiveError
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventReceiveError:
		return "receive_error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one transport-level occurrence, in arrival order.
type Event struct {
	Kind    EventKind
	Addr    netip.AddrPort
	Payload []byte
	Err     error
}

// Message builds an EventMessage.
func Message(addr netip.AddrPort, payload []byte) Event {
	return Event{Kind: EventMessage, Addr: addr, Payload: payload}
}

// Connect builds an EventConnect.
func Connect(addr netip.AddrPort) Event { return Event{Kind: EventConnect, Addr: addr} }

// Disconnect builds an EventDisconnect.
func Disconnect(addr netip.AddrPort) Event { return Event{Kind: EventDisconnect, Addr: addr} }

// ReceiveError builds an EventReceiveError.
func ReceiveError(addr netip.AddrPort, err error) Event {
	return Event{Kind: EventReceiveError, Addr: addr, Err: err}
}

// Transport is what the tick loop needs from the network. Neither method
// blocks: delivery is best effort and at most once.
type Transport interface {
	// Drain returns every event received since the previous call, oldest first.
	Drain() []Event
	// Send queues payload for addr. An error means the payload was dropped.
	Send(addr netip.AddrPort, payload []byte) error
}

// Queue is a bounded, concurrency-safe FIFO of events. Reader goroutines
// Push, the tick loop Drains. When full, new Message and ReceiveError events
// are dropped and counted. Connect and Disconnect are always queued: the
// loop's known-client set depends on seeing every one of them.
type Queue struct {
	mu      sync.Mutex
	events  []Event
	limit   int
	dropped atomic.Uint64
}

// DefaultQueueLimit bounds a Queue built with a non-positive limit.
const DefaultQueueLimit = 4096

// NewQueue creates a Queue holding at most limit undrained events.
func NewQueue(limit int) *Queue {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	return &Queue{limit: limit}
}

// Push appends ev. Returns false if the queue was full and ev was dropped.
// Control events (Connect, Disconnect) ignore the limit.
func (q *Queue) Push(ev Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) >= q.limit && !ev.Kind.control() {
		q.dropped.Add(1)
		return false
	}
	q.events = append(q.events, ev)
	return true
}

// Drain removes and returns all queued events in push order.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}

func (k EventKind) control() bool {
	return k == EventConnect || k == EventDisconnect
}

// Dropped reports how many events were discarded because the queue was full.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }
