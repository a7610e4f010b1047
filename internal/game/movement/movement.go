// Package movement turns directional input into orientation changes and
// collision-gated steps across a room's tile grid.
package movement

import (
	"github.com/cory-johannsen/tileworld/internal/game/player"
	"github.com/cory-johannsen/tileworld/internal/protocol"
)

// DefaultStep is how far one walk advances a player, in pixels.
const DefaultStep float32 = 16

// Gate decides whether a step from pixel (px, py) toward facing is legal.
// *tilemap.Room satisfies it.
type Gate interface {
	AllowedMove(px, py float32, facing protocol.Orientation) bool
}

// UpdateOrientation returns the orientation implied by an input delta.
// Horizontal input wins over vertical, so a diagonal resolves to East or
// West. A zero delta keeps current.
func UpdateOrientation(current protocol.Orientation, dx, dy float32) protocol.Orientation {
	switch {
	case dx > 0:
		return protocol.East
	case dx < 0:
		return protocol.West
	case dy > 0:
		return protocol.North
	case dy < 0:
		return protocol.South
	default:
		return current
	}
}

// Delta returns the unit input delta for o. It is the inverse of
// UpdateOrientation for single-axis input.
func Delta(o protocol.Orientation) (dx, dy float32) {
	switch o {
	case protocol.North:
		return 0, 1
	case protocol.East:
		return 1, 0
	case protocol.South:
		return 0, -1
	case protocol.West:
		return -1, 0
	default:
		return 0, 0
	}
}

// Walk advances (x, y) by step along o's axis. The input magnitude that
// produced o plays no part. Callers must check the gate first.
func Walk(x, y float32, o protocol.Orientation, step float32) (float32, float32) {
	dx, dy := Delta(o)
	return x + dx*step, y + dy*step
}

// Step turns p toward facing and, if the gate allows it, walks one step.
//
// Precondition: p and gate must be non-nil; step must be positive.
// Postcondition: p.Orientation == facing. Returns true and the new position
// is applied if the move was allowed; returns false with the position
// unchanged otherwise.
func Step(p *player.Info, gate Gate, facing protocol.Orientation, step float32) bool {
	p.Orientation = facing
	if !gate.AllowedMove(p.X, p.Y, facing) {
		return false
	}
	p.X, p.Y = Walk(p.X, p.Y, facing, step)
	return true
}
