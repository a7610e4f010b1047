package gameserver_test

import (
	"fmt"
	"net/netip"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/tileworld/internal/game/player"
	"github.com/cory-johannsen/tileworld/internal/game/tilemap"
	"github.com/cory-johannsen/tileworld/internal/gameserver"
	"github.com/cory-johannsen/tileworld/internal/protocol"
	"github.com/cory-johannsen/tileworld/internal/transport"
	"github.com/cory-johannsen/tileworld/internal/transport/transporttest"
)

const (
	mapWidth  = 10
	mapHeight = 8
)

func addr(port uint16) netip.AddrPort {
	return netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), port)
}

// openMap builds a mapWidth x mapHeight room named name with walls at the
// given world tiles.
func openMap(name string, walls ...tilemap.TilePoint) *tilemap.Map {
	rows := make([][]uint32, mapHeight)
	for i := range rows {
		rows[i] = make([]uint32, mapWidth)
	}
	for _, w := range walls {
		rows[mapHeight-1-w.Y][w.X] = 1
	}
	return &tilemap.Map{
		Name:           name,
		Width:          mapWidth,
		Height:         mapHeight,
		TileSize:       tilemap.DefaultTileSize,
		Layers:         []tilemap.Layer{{Name: "walls", Rows: rows}},
		CollisionLayer: "walls",
		Spawn:          tilemap.TilePoint{X: 1, Y: 1},
		Tileset: &tilemap.Tileset{
			Name:     "test",
			FirstGID: 1,
			Tiles:    map[uint32]map[string]string{0: {tilemap.CollisionProperty: "true"}},
		},
	}
}

// testingT is satisfied by both *testing.T and *rapid.T.
type testingT interface {
	require.TestingT
	Helper()
}

type fixture struct {
	t    testingT
	net  *transporttest.Fake
	loop *gameserver.Loop
	logs *observer.ObservedLogs
}

type option func(*gameserver.LoopConfig, *gameserver.Collaborators)

func newFixture(t testingT, m *tilemap.Map, opts ...option) *fixture {
	t.Helper()
	if m == nil {
		m = openMap("first")
	}
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := gameserver.LoopConfig{}
	collab := gameserver.Collaborators{}
	for _, o := range opts {
		o(&cfg, &collab)
	}
	net := transporttest.New()
	loop := gameserver.NewLoop(cfg, net, tilemap.NewRoom(m, 1), collab, zap.New(core))
	return &fixture{t: t, net: net, loop: loop, logs: logs}
}

// send queues p as a message from a.
func (f *fixture) send(a netip.AddrPort, cmd protocol.Cmd) {
	f.net.PushPack(a, protocol.NewPack(cmd, protocol.Broadcast{}))
}

// join connects a and registers name, then clears sent traffic and logs.
func (f *fixture) join(a netip.AddrPort, name string) *player.Info {
	f.t.Helper()
	f.net.Push(transport.Connect(a))
	f.send(a, protocol.Connect{Name: name})
	f.loop.Tick()
	info, ok := f.loop.Registry().FindByAddress(a)
	require.True(f.t, ok, "player %q did not join", name)
	f.net.TakeSent()
	f.logs.TakeAll()
	return info
}

func (f *fixture) warnings() []observer.LoggedEntry {
	return f.logs.FilterLevelExact(zapcore.WarnLevel).All()
}

// cmdsTo returns the command of every pack sent to a, in order.
func cmdsTo(sent map[netip.AddrPort][]protocol.Pack, a netip.AddrPort) []protocol.Cmd {
	var out []protocol.Cmd
	for _, p := range sent[a] {
		out = append(out, p.Cmd)
	}
	return out
}

func describe(cmds []protocol.Cmd) string {
	return fmt.Sprintf("%#v", cmds)
}
