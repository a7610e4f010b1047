// Package player holds the authoritative server-side player table and the
// display-only projection clients build from it.
package player

import (
	"net/netip"

	"github.com/cory-johannsen/tileworld/internal/protocol"
)

// Info is the authoritative record of a connected player.
type Info struct {
	// ID is allocated by Registry.NextID and is stable for the connection.
	ID protocol.PlayerID
	// Address is the transport address the player's packets arrive from.
	Address netip.AddrPort
	// Name is the display name given in the Connect command.
	Name string
	// Room is the name of the map the player stands in.
	Room string
	// X and Y are world (pixel) coordinates; Y grows upward.
	X float32
	Y float32
	// Orientation is the last direction the player faced.
	Orientation protocol.Orientation
	// PendingAction is the most recent action received for this player.
	PendingAction protocol.Action
}

// Snapshot returns the public state sent to clients.
func (p *Info) Snapshot() protocol.PlayerSnapshot {
	return protocol.PlayerSnapshot{
		ID:          p.ID,
		Name:        p.Name,
		Address:     p.Address,
		Room:        p.Room,
		X:           p.X,
		Y:           p.Y,
		Orientation: p.Orientation,
	}
}
