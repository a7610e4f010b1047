// Package gameserver runs the authoritative simulation: it drains the
// transport once per tick, applies commands to the player registry and room,
// and routes the resulting state updates back out.
package gameserver

import (
	"net/netip"
	"slices"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tileworld/internal/game/player"
	"github.com/cory-johannsen/tileworld/internal/game/tilemap"
	"github.com/cory-johannsen/tileworld/internal/protocol"
)

// ClientSet is the set of transport addresses currently connected,
// whether or not they have joined as players.
type ClientSet struct {
	addrs map[netip.AddrPort]struct{}
}

// NewClientSet creates an empty ClientSet.
func NewClientSet() *ClientSet {
	return &ClientSet{addrs: make(map[netip.AddrPort]struct{})}
}

// Add inserts addr and reports whether it was new.
func (c *ClientSet) Add(addr netip.AddrPort) bool {
	if _, ok := c.addrs[addr]; ok {
		return false
	}
	c.addrs[addr] = struct{}{}
	return true
}

// Remove deletes addr and reports whether it was present.
func (c *ClientSet) Remove(addr netip.AddrPort) bool {
	if _, ok := c.addrs[addr]; !ok {
		return false
	}
	delete(c.addrs, addr)
	return true
}

// Has reports whether addr is connected.
func (c *ClientSet) Has(addr netip.AddrPort) bool {
	_, ok := c.addrs[addr]
	return ok
}

// Len returns the number of connected addresses.
func (c *ClientSet) Len() int { return len(c.addrs) }

// Addresses returns every connected address in a stable order.
func (c *ClientSet) Addresses() []netip.AddrPort {
	out := make([]netip.AddrPort, 0, len(c.addrs))
	for a := range c.addrs {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b netip.AddrPort) int { return a.Compare(b) })
	return out
}

// TickContext is everything a command handler may touch during one tick.
// It is built by Loop.Tick and must not be retained after the handler
// returns.
type TickContext struct {
	// Tick is the sequence number of the current tick, starting at 1.
	Tick uint64
	// Registry is the authoritative player table.
	Registry *player.Registry
	// Room is the map players move in.
	Room *tilemap.Room
	// Clients is the connected-address set.
	Clients *ClientSet
	// Logger is scoped to the tick.
	Logger *zap.Logger

	outbox []protocol.Pack
}

// Emit queues cmd for dest. Queued packs are dispatched at the end of the
// tick in emit order.
func (tc *TickContext) Emit(cmd protocol.Cmd, dest protocol.Dest) {
	tc.outbox = append(tc.outbox, protocol.NewPack(cmd, dest))
}

// Pending returns the packs emitted so far in this tick.
func (tc *TickContext) Pending() []protocol.Pack {
	return tc.outbox
}

func (tc *TickContext) takeOutbox() []protocol.Pack {
	out := tc.outbox
	tc.outbox = nil
	return out
}
