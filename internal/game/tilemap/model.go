// Package tilemap provides the tile grid a room is played on and the
// collision queries that gate player movement.
package tilemap

import (
	"fmt"
	"strconv"
	"strings"
)

// CollisionProperty is the tileset property that marks a tile as
// impassable.
const CollisionProperty = "collision"

// DefaultTileSize is the edge length of a tile in pixels.
const DefaultTileSize = 16

// Tile is a resolved collision-layer cell.
type Tile struct {
	// GID is the global tile id stored in the layer.
	GID uint32
	// Properties are the tileset properties of the tile. May be empty.
	Properties map[string]string
}

// Collides reports whether t carries a truthy collision property. A nil
// tile never collides.
func (t *Tile) Collides() bool {
	if t == nil {
		return false
	}
	v, ok := t.Properties[CollisionProperty]
	if !ok {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(v), "yes") {
		return true
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

// Tileset maps global tile ids to per-tile properties.
type Tileset struct {
	// Name identifies the tileset.
	Name string
	// FirstGID is the global id of the tileset's first tile.
	FirstGID uint32
	// TileCount bounds the local ids. 0 means unbounded.
	TileCount uint32
	// Tiles maps local tile ids to their properties.
	Tiles map[uint32]map[string]string
}

// Lookup resolves gid to a Tile.
//
// Postcondition: Returns (tile, true) when gid belongs to this tileset,
// (nil, false) otherwise. gid 0 (no tile) never resolves.
func (ts *Tileset) Lookup(gid uint32) (*Tile, bool) {
	if ts == nil || gid == 0 || gid < ts.FirstGID {
		return nil, false
	}
	local := gid - ts.FirstGID
	if ts.TileCount > 0 && local >= ts.TileCount {
		return nil, false
	}
	return &Tile{GID: gid, Properties: ts.Tiles[local]}, true
}

// Layer is one grid of global tile ids. Rows are stored top-down, the way
// the map resource lists them: Rows[0] is the top row of the map.
type Layer struct {
	Name string
	Rows [][]uint32
}

// TilePoint is a tile coordinate in world orientation (y grows upward).
type TilePoint struct {
	X int
	Y int
}

// Map is a loaded tile map.
type Map struct {
	// Name is the room name players in this map are registered under.
	Name string
	// Width and Height are the grid size in tiles.
	Width  int
	Height int
	// TileSize is the tile edge in pixels.
	TileSize int
	// Layers lists the grids from bottom to top.
	Layers []Layer
	// CollisionLayer names the layer consulted for movement checks.
	CollisionLayer string
	// Spawn is where new players appear.
	Spawn TilePoint
	// Tileset resolves gids of every layer.
	Tileset *Tileset
}

// Layer returns the layer called name.
func (m *Map) Layer(name string) (*Layer, bool) {
	for i := range m.Layers {
		if m.Layers[i].Name == name {
			return &m.Layers[i], true
		}
	}
	return nil, false
}

// collisionTile returns the collision-layer tile at tiled (top-down)
// coordinates, or nil when the cell is empty or out of range.
func (m *Map) collisionTile(tx, ty int) *Tile {
	layer, ok := m.Layer(m.CollisionLayer)
	if !ok || ty < 0 || ty >= len(layer.Rows) {
		return nil
	}
	row := layer.Rows[ty]
	if tx < 0 || tx >= len(row) {
		return nil
	}
	tile, ok := m.Tileset.Lookup(row[tx])
	if !ok {
		return nil
	}
	return tile
}

// TileToPixel returns the world pixel position that PixelToTile maps back
// to tile (tx, ty).
func (m *Map) TileToPixel(tx, ty int) (float32, float32) {
	ts := float32(m.TileSize)
	return float32(tx+1) * ts, float32(ty+1) * ts
}

// SpawnPixel returns the spawn point in world pixels.
func (m *Map) SpawnPixel() (float32, float32) {
	return m.TileToPixel(m.Spawn.X, m.Spawn.Y)
}

// Validate checks map invariants.
//
// Postcondition: Returns nil if valid, or an error describing the first violation.
func (m *Map) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("map name must not be empty")
	}
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("map %q: size must be positive, got %dx%d", m.Name, m.Width, m.Height)
	}
	if m.TileSize <= 0 {
		return fmt.Errorf("map %q: tile_size must be positive, got %d", m.Name, m.TileSize)
	}
	if len(m.Layers) == 0 {
		return fmt.Errorf("map %q: must contain at least one layer", m.Name)
	}
	for _, layer := range m.Layers {
		if len(layer.Rows) != m.Height {
			return fmt.Errorf("map %q: layer %q has %d rows, want %d", m.Name, layer.Name, len(layer.Rows), m.Height)
		}
		for i, row := range layer.Rows {
			if len(row) != m.Width {
				return fmt.Errorf("map %q: layer %q row %d has %d tiles, want %d", m.Name, layer.Name, i, len(row), m.Width)
			}
		}
	}
	if _, ok := m.Layer(m.CollisionLayer); !ok {
		return fmt.Errorf("map %q: collision layer %q not found", m.Name, m.CollisionLayer)
	}
	if m.Spawn.X < 0 || m.Spawn.X >= m.Width || m.Spawn.Y < 0 || m.Spawn.Y >= m.Height {
		return fmt.Errorf("map %q: spawn (%d,%d) outside %dx%d", m.Name, m.Spawn.X, m.Spawn.Y, m.Width, m.Height)
	}
	if m.Tileset == nil {
		return fmt.Errorf("map %q: tileset must be set", m.Name)
	}
	if m.Tileset.FirstGID == 0 {
		return fmt.Errorf("map %q: tileset %q first_gid must be >= 1", m.Name, m.Tileset.Name)
	}
	return nil
}
