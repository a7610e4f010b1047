package gameserver

import (
	"net/netip"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tileworld/internal/game/player"
	"github.com/cory-johannsen/tileworld/internal/protocol"
	"github.com/cory-johannsen/tileworld/internal/transport"
)

// Router resolves destinations against live state and hands encoded packs
// to the transport. Delivery is fire and forget.
type Router struct {
	transport transport.Transport
	registry  *player.Registry
	clients   *ClientSet
	logger    *zap.Logger
}

// NewRouter creates a Router.
//
// Precondition: all arguments must be non-nil.
func NewRouter(t transport.Transport, registry *player.Registry, clients *ClientSet, logger *zap.Logger) *Router {
	return &Router{transport: t, registry: registry, clients: clients, logger: logger}
}

// Resolve returns the addresses dest names right now.
//
// Postcondition: Address yields exactly its address; Broadcast every
// connected client; Room every player registered in that room;
// BroadcastExcept every connected client but the excluded one. An unknown
// destination yields nil.
func (r *Router) Resolve(dest protocol.Dest) []netip.AddrPort {
	switch d := dest.(type) {
	case protocol.ToAddress:
		return []netip.AddrPort{d.Addr}
	case protocol.Broadcast:
		return r.clients.Addresses()
	case protocol.ToRoom:
		return r.registry.AddressesInRoom(d.Name)
	case protocol.BroadcastExcept:
		all := r.clients.Addresses()
		out := all[:0]
		for _, a := range all {
			if a != d.Addr {
				out = append(out, a)
			}
		}
		return out
	default:
		return nil
	}
}

// Dispatch encodes p once and sends it to every resolved address. It
// returns the number of sends the transport accepted. Failures are logged
// and never retried.
func (r *Router) Dispatch(p protocol.Pack) int {
	payload, err := protocol.Encode(p)
	if err != nil {
		r.logger.Warn("dropping unencodable pack", zap.Stringer("pack", p), zap.Error(err))
		return 0
	}
	sent := 0
	for _, addr := range r.Resolve(p.Dest) {
		if err := r.transport.Send(addr, payload); err != nil {
			r.logger.Debug("send failed",
				zap.Stringer("to", addr),
				zap.Stringer("pack", p),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent
}
