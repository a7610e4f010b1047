package movement_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/tileworld/internal/game/movement"
	"github.com/cory-johannsen/tileworld/internal/game/player"
	"github.com/cory-johannsen/tileworld/internal/game/tilemap"
	"github.com/cory-johannsen/tileworld/internal/protocol"
)

type gateFunc func(px, py float32, o protocol.Orientation) bool

func (f gateFunc) AllowedMove(px, py float32, o protocol.Orientation) bool { return f(px, py, o) }

func openRoom(w, h int) *tilemap.Room {
	rows := make([][]uint32, h)
	for i := range rows {
		rows[i] = make([]uint32, w)
	}
	m := &tilemap.Map{
		Name:           "open",
		Width:          w,
		Height:         h,
		TileSize:       tilemap.DefaultTileSize,
		Layers:         []tilemap.Layer{{Name: "walls", Rows: rows}},
		CollisionLayer: "walls",
		Tileset:        &tilemap.Tileset{Name: "empty", FirstGID: 1},
	}
	return tilemap.NewRoom(m, 1)
}

func TestUpdateOrientation(t *testing.T) {
	tests := []struct {
		name    string
		current protocol.Orientation
		dx, dy  float32
		want    protocol.Orientation
	}{
		{"east", protocol.South, 1, 0, protocol.East},
		{"west", protocol.South, -1, 0, protocol.West},
		{"north", protocol.South, 0, 1, protocol.North},
		{"south", protocol.North, 0, -1, protocol.South},
		{"zero keeps current", protocol.West, 0, 0, protocol.West},
		{"diagonal prefers horizontal", protocol.South, -0.5, 1, protocol.West},
		{"diagonal prefers horizontal east", protocol.South, 0.1, -3, protocol.East},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, movement.UpdateOrientation(tt.current, tt.dx, tt.dy))
		})
	}
}

func TestUpdateOrientation_DeltaRoundTrip(t *testing.T) {
	for _, o := range protocol.Orientations {
		dx, dy := movement.Delta(o)
		assert.Equal(t, o, movement.UpdateOrientation(protocol.South, dx, dy))
	}
}

func TestStep_AllowedWalks(t *testing.T) {
	p := &player.Info{X: 48, Y: 48, Orientation: protocol.South}
	ok := movement.Step(p, openRoom(8, 8), protocol.East, movement.DefaultStep)
	assert.True(t, ok)
	assert.Equal(t, protocol.East, p.Orientation)
	assert.Equal(t, float32(64), p.X)
	assert.Equal(t, float32(48), p.Y)
}

func TestStep_BlockedTurnsInPlace(t *testing.T) {
	p := &player.Info{X: 48, Y: 48, Orientation: protocol.South}
	blocked := gateFunc(func(float32, float32, protocol.Orientation) bool { return false })
	ok := movement.Step(p, blocked, protocol.North, movement.DefaultStep)
	assert.False(t, ok)
	assert.Equal(t, protocol.North, p.Orientation)
	assert.Equal(t, float32(48), p.X)
	assert.Equal(t, float32(48), p.Y)
}

func TestStep_EastEdgeRejected(t *testing.T) {
	room := openRoom(8, 8)
	x, y := room.Map().TileToPixel(7, 3)
	p := &player.Info{X: x, Y: y}
	assert.False(t, movement.Step(p, room, protocol.East, movement.DefaultStep))
	assert.Equal(t, x, p.X)
}

func TestStep_WalksAcrossRoomUntilEdge(t *testing.T) {
	room := openRoom(5, 5)
	x, y := room.Map().TileToPixel(0, 2)
	p := &player.Info{X: x, Y: y}
	steps := 0
	for movement.Step(p, room, protocol.East, movement.DefaultStep) {
		steps++
		if steps > 10 {
			t.Fatal("walked past the east edge")
		}
	}
	assert.Equal(t, 4, steps)
	tx, _ := room.PixelToTile(p.X, p.Y)
	assert.Equal(t, 4, tx)
}

func TestPropertyWalkChangesExactlyOneAxis(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		x := rapid.Float32Range(0, 4096).Draw(t, "x")
		y := rapid.Float32Range(0, 4096).Draw(t, "y")
		step := rapid.Float32Range(1, 64).Draw(t, "step")
		o := rapid.SampledFrom(protocol.Orientations).Draw(t, "o")

		nx, ny := movement.Walk(x, y, o, step)
		switch o {
		case protocol.East:
			assert.Equal(t, x+step, nx)
			assert.Equal(t, y, ny)
		case protocol.West:
			assert.Equal(t, x-step, nx)
			assert.Equal(t, y, ny)
		case protocol.North:
			assert.Equal(t, x, nx)
			assert.Equal(t, y+step, ny)
		case protocol.South:
			assert.Equal(t, x, nx)
			assert.Equal(t, y-step, ny)
		}
	})
}

func TestPropertyStepAlwaysSetsOrientation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		room := openRoom(rapid.IntRange(1, 10).Draw(t, "w"), rapid.IntRange(1, 10).Draw(t, "h"))
		tx := rapid.IntRange(0, room.Map().Width-1).Draw(t, "tx")
		ty := rapid.IntRange(0, room.Map().Height-1).Draw(t, "ty")
		x, y := room.Map().TileToPixel(tx, ty)
		p := &player.Info{X: x, Y: y, Orientation: rapid.SampledFrom(protocol.Orientations).Draw(t, "start")}
		facing := rapid.SampledFrom(protocol.Orientations).Draw(t, "facing")

		moved := movement.Step(p, room, facing, movement.DefaultStep)
		if p.Orientation != facing {
			t.Fatalf("orientation = %s, want %s", p.Orientation, facing)
		}
		if !moved && (p.X != x || p.Y != y) {
			t.Fatalf("blocked step moved player from (%v,%v) to (%v,%v)", x, y, p.X, p.Y)
		}
		if moved {
			nx, ny := room.PixelToTile(p.X, p.Y)
			if nx < 0 || ny < 0 || nx >= room.Map().Width || ny >= room.Map().Height {
				t.Fatalf("step left the map: tile (%d,%d)", nx, ny)
			}
		}
	})
}
