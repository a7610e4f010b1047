// Package transporttest provides an in-memory transport for tests.
package transporttest

import (
	"net/netip"
	"sync"

	"github.com/cory-johannsen/tileworld/internal/protocol"
	"github.com/cory-johannsen/tileworld/internal/transport"
)

// Sent is one payload handed to Fake.Send.
type Sent struct {
	To      netip.AddrPort
	Payload []byte
}

// Fake is a transport.Transport whose inbound events are injected by the
// test and whose outbound payloads are recorded.
type Fake struct {
	mu      sync.Mutex
	pending []transport.Event
	sent    []Sent
	// FailSend, when set, is returned by Send for matching addresses.
	FailSend func(netip.AddrPort) error
}

// New creates an empty Fake.
func New() *Fake { return &Fake{} }

// Push queues events for the next Drain.
func (f *Fake) Push(evs ...transport.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, evs...)
}

// PushPack encodes p and queues it as a message from addr. It panics on an
// encode error, which is a test bug.
func (f *Fake) PushPack(addr netip.AddrPort, p protocol.Pack) {
	b, err := protocol.Encode(p)
	if err != nil {
		panic(err)
	}
	f.Push(transport.Message(addr, b))
}

// Drain implements transport.Transport.
func (f *Fake) Drain() []transport.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.pending
	f.pending = nil
	return out
}

// Send implements transport.Transport.
func (f *Fake) Send(addr netip.AddrPort, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailSend != nil {
		if err := f.FailSend(addr); err != nil {
			return err
		}
	}
	f.sent = append(f.sent, Sent{To: addr, Payload: payload})
	return nil
}

// TakeSent returns and clears every payload sent so far.
func (f *Fake) TakeSent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sent
	f.sent = nil
	return out
}

// TakeSentPacks decodes and returns every payload sent so far, grouped by
// recipient in send order. It panics on a decode error.
func (f *Fake) TakeSentPacks() map[netip.AddrPort][]protocol.Pack {
	out := make(map[netip.AddrPort][]protocol.Pack)
	for _, s := range f.TakeSent() {
		p, err := protocol.Decode(s.Payload)
		if err != nil {
			panic(err)
		}
		out[s.To] = append(out[s.To], p)
	}
	return out
}
