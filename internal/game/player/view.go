package player

import (
	"net/netip"

	"github.com/cory-johannsen/tileworld/internal/protocol"
)

// Outfit holds the sprite-sheet index used for each facing.
type Outfit struct {
	N int
	E int
	S int
	W int
}

// Skin names a stock outfit.
type Skin string

const (
	SkinFemale Skin = "female"
)

// OutfitFor returns the stock outfit for skin. Unknown skins fall back to
// SkinFemale.
func OutfitFor(skin Skin) Outfit {
	switch skin {
	case SkinFemale:
		return Outfit{N: 318, E: 306, S: 282, W: 294}
	default:
		return OutfitFor(SkinFemale)
	}
}

// View is the client-side mirror of a player. It is derived from server
// snapshots and only ever used for display.
type View struct {
	Name        string
	Address     netip.AddrPort
	Room        string
	X           float32
	Y           float32
	Orientation protocol.Orientation
	Outfit      Outfit
}

// ViewOf projects a snapshot onto a View wearing outfit.
func ViewOf(s protocol.PlayerSnapshot, outfit Outfit) View {
	return View{
		Name:        s.Name,
		Address:     s.Address,
		Room:        s.Room,
		X:           s.X,
		Y:           s.Y,
		Orientation: s.Orientation,
		Outfit:      outfit,
	}
}

// Apply overwrites the positional fields of v from s, keeping the outfit.
func (v *View) Apply(s protocol.PlayerSnapshot) {
	v.Name = s.Name
	v.Address = s.Address
	v.Room = s.Room
	v.X = s.X
	v.Y = s.Y
	v.Orientation = s.Orientation
}

// SpriteIndex returns the sprite to draw for the current orientation.
func (v View) SpriteIndex() int {
	switch v.Orientation {
	case protocol.North:
		return v.Outfit.N
	case protocol.East:
		return v.Outfit.E
	case protocol.West:
		return v.Outfit.W
	default:
		return v.Outfit.S
	}
}
