package tilemap

import (
	"fmt"

	"github.com/cory-johannsen/tileworld/internal/protocol"
)

// DefaultFootprint is the number of tiles a player occupies.
const DefaultFootprint = 1

// Adjacency is the collision-layer neighborhood of a position. A nil entry
// means the neighbor lies outside the map or holds no tile.
type Adjacency struct {
	Current *Tile
	North   *Tile
	East    *Tile
	South   *Tile
	West    *Tile
}

// Toward returns the neighbor in direction o.
func (a Adjacency) Toward(o protocol.Orientation) *Tile {
	switch o {
	case protocol.North:
		return a.North
	case protocol.East:
		return a.East
	case protocol.South:
		return a.South
	case protocol.West:
		return a.West
	default:
		return nil
	}
}

// Room is the map instance players move around in. The map may be
// swapped at runtime; a swap marks the room dirty so tile entities can be
// rebuilt by whoever draws them.
type Room struct {
	m         *Map
	footprint int
	dirty     bool
}

// NewRoom wraps m. A footprint below 1 uses DefaultFootprint.
//
// Precondition: m must be non-nil and valid.
// Postcondition: The room starts dirty.
func NewRoom(m *Map, footprint int) *Room {
	if footprint < 1 {
		footprint = DefaultFootprint
	}
	return &Room{m: m, footprint: footprint, dirty: true}
}

// Name returns the current map's name.
func (r *Room) Name() string { return r.m.Name }

// Map returns the current map.
func (r *Room) Map() *Map { return r.m }

// Footprint returns the player footprint in tiles.
func (r *Room) Footprint() int { return r.footprint }

// Change loads a new map and swaps it in.
//
// Postcondition: On error the current map is kept and the error returned.
// On success the room holds the new map and is dirty.
func (r *Room) Change(mapPath, tilesetPath string) error {
	m, err := LoadMap(mapPath, tilesetPath)
	if err != nil {
		return fmt.Errorf("changing map: %w", err)
	}
	r.Replace(m)
	return nil
}

// Replace swaps in an already loaded map and marks the room dirty.
//
// Precondition: m must be non-nil and valid.
func (r *Room) Replace(m *Map) {
	r.m = m
	r.dirty = true
}

// TakeDirty reports whether the map changed since the last call and
// clears the flag.
func (r *Room) TakeDirty() bool {
	d := r.dirty
	r.dirty = false
	return d
}

// WorldToTile mirrors the row index: map resources store rows top-down
// while world y grows upward.
func (r *Room) WorldToTile(x, y int) (int, int) {
	return x, r.m.Height - 1 - y
}

// PixelToTile converts world pixels to world tile coordinates. The one
// tile offset aligns the pixel origin with tile (0,0); fractional results
// truncate toward zero.
func (r *Room) PixelToTile(px, py float32) (int, int) {
	ts := float32(r.m.TileSize)
	return int((px - ts) / ts), int((py - ts) / ts)
}

// Adjacency looks up the collision-layer tiles at the position and one
// footprint away in each compass direction.
func (r *Room) Adjacency(px, py float32) Adjacency {
	x, y := r.PixelToTile(px, py)
	fp := r.footprint
	return Adjacency{
		Current: r.tileAt(x, y, 0, 0),
		North:   r.tileAt(x, y, 0, fp),
		East:    r.tileAt(x, y, fp, 0),
		South:   r.tileAt(x, y, 0, -fp),
		West:    r.tileAt(x, y, -fp, 0),
	}
}

// AllowedMove reports whether a player at pixel (px, py) may step toward
// facing. The move is refused when the player is within one footprint of
// the map edge in that direction, or when the neighbor in that direction
// collides. Neighbors in other directions are never consulted.
func (r *Room) AllowedMove(px, py float32, facing protocol.Orientation) bool {
	x, y := r.PixelToTile(px, py)
	fp := r.footprint
	switch facing {
	case protocol.North:
		return !(y >= r.m.Height-fp || r.tileAt(x, y, 0, fp).Collides())
	case protocol.East:
		return !(x >= r.m.Width-fp || r.tileAt(x, y, fp, 0).Collides())
	case protocol.South:
		return !(y <= 0 || r.tileAt(x, y, 0, -fp).Collides())
	case protocol.West:
		return !(x <= 0 || r.tileAt(x, y, -fp, 0).Collides())
	default:
		return true
	}
}

// tileAt returns the collision tile at world tile (x+dx, y+dy), or nil
// when that cell would be read before row/column 0 or beyond the last cell
// a player footprint fits in.
func (r *Room) tileAt(x, y, dx, dy int) *Tile {
	nx, ny := x+dx, y+dy
	if nx < 0 || ny < 0 {
		return nil
	}
	if nx > r.m.Width-r.footprint || ny > r.m.Height-r.footprint {
		return nil
	}
	tx, ty := r.WorldToTile(nx, ny)
	return r.m.collisionTile(tx, ty)
}
