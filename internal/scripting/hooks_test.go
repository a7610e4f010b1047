package scripting_test

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/tileworld/internal/game/tilemap"
	"github.com/cory-johannsen/tileworld/internal/gameserver"
	"github.com/cory-johannsen/tileworld/internal/protocol"
	"github.com/cory-johannsen/tileworld/internal/scripting"
	"github.com/cory-johannsen/tileworld/internal/transport"
	"github.com/cory-johannsen/tileworld/internal/transport/transporttest"
)

func writeTempLua(t testing.TB, filename, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(src), 0644))
	return dir
}

func newLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func smallRoom() *tilemap.Room {
	rows := [][]uint32{{0, 0, 0}, {0, 0, 0}, {0, 0, 0}}
	return tilemap.NewRoom(&tilemap.Map{
		Name:           "first",
		Width:          3,
		Height:         3,
		TileSize:       tilemap.DefaultTileSize,
		Layers:         []tilemap.Layer{{Name: "walls", Rows: rows}},
		CollisionLayer: "walls",
		Spawn:          tilemap.TilePoint{X: 1, Y: 1},
		Tileset:        &tilemap.Tileset{Name: "t", FirstGID: 1},
	}, 1)
}

// world wires hooks into a loop and joins the named players, one per port
// starting at 5001.
type world struct {
	net  *transporttest.Fake
	loop *gameserver.Loop
}

func newWorld(t *testing.T, hooks *scripting.Hooks, logger *zap.Logger, names ...string) *world {
	t.Helper()
	net := transporttest.New()
	loop := gameserver.NewLoop(gameserver.LoopConfig{}, net, smallRoom(),
		gameserver.Collaborators{Items: hooks, Combat: hooks}, logger)
	for i, name := range names {
		a := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), uint16(5001+i))
		net.Push(transport.Connect(a))
		net.PushPack(a, protocol.NewPack(protocol.Connect{Name: name}, protocol.Broadcast{}))
	}
	loop.Tick()
	require.Equal(t, len(names), loop.Registry().Len())
	net.TakeSent()
	return &world{net: net, loop: loop}
}

func (w *world) send(t *testing.T, name string, cmd protocol.Cmd) {
	t.Helper()
	info, ok := w.loop.Registry().FindByName(name)
	require.True(t, ok)
	w.net.PushPack(info.Address, protocol.NewPack(cmd, protocol.Broadcast{}))
}

func TestHooks_NewItemReceivesPlayerAndItem(t *testing.T) {
	logger, _ := newLogger()
	dir := writeTempLua(t, "items.lua", `
		last = ""
		function on_new_item(id, name, item)
			last = id .. ":" .. name .. ":" .. item
		end
		function get_last() return last end
	`)
	hooks, err := scripting.LoadHooks(dir, 0, logger)
	require.NoError(t, err)
	defer hooks.Close()

	w := newWorld(t, hooks, logger, "alice")
	w.send(t, "alice", protocol.NewItem{Item: 7})
	w.loop.Tick()

	assert.Equal(t, lua.LString("1:alice:7"), hooks.CallHook(nil, "get_last"))
}

func TestHooks_AttackCanRemoveTarget(t *testing.T) {
	logger, _ := newLogger()
	dir := writeTempLua(t, "combat.lua", `
		function on_attack(attacker, target)
			engine.remove(target)
		end
	`)
	hooks, err := scripting.LoadHooks(dir, 0, logger)
	require.NoError(t, err)
	defer hooks.Close()

	w := newWorld(t, hooks, logger, "alice", "bob")
	bob, _ := w.loop.Registry().FindByName("bob")
	w.send(t, "alice", protocol.PlayerAction{Action: protocol.Attack(bob.ID)})
	w.loop.Tick()

	_, ok := w.loop.Registry().Get(bob.ID)
	assert.False(t, ok)
	alice, _ := w.loop.Registry().FindByName("alice")
	sent := w.net.TakeSentPacks()
	require.Len(t, sent[alice.Address], 1)
	assert.Equal(t, protocol.RemovePlayer{ID: bob.ID}, sent[alice.Address][0].Cmd)
}

func TestHooks_UseItemSeesPlayerState(t *testing.T) {
	logger, logs := newLogger()
	dir := writeTempLua(t, "use.lua", `
		function on_use_item(id, item)
			local p = engine.player(id)
			engine.log(p.name .. " uses " .. item .. " facing " .. p.facing)
		end
	`)
	hooks, err := scripting.LoadHooks(dir, 0, logger)
	require.NoError(t, err)
	defer hooks.Close()

	w := newWorld(t, hooks, logger, "alice")
	w.send(t, "alice", protocol.PlayerAction{Action: protocol.UseItem(4)})
	w.loop.Tick()

	assert.Equal(t, 1, logs.FilterMessage("scripting: alice uses 4 facing south").Len())
}

func TestHooks_RuntimeErrorIsLoggedNotPropagated(t *testing.T) {
	logger, logs := newLogger()
	dir := writeTempLua(t, "bad.lua", `
		function on_new_item() error("intentional error") end
	`)
	hooks, err := scripting.LoadHooks(dir, 0, logger)
	require.NoError(t, err)
	defer hooks.Close()

	w := newWorld(t, hooks, logger, "alice")
	w.send(t, "alice", protocol.NewItem{Item: 1})
	assert.NotPanics(t, func() { w.loop.Tick() })
	assert.Equal(t, 1, logs.FilterMessage("scripting: Lua runtime error").Len())
}

func TestHooks_RunawayHookDoesNotPoisonLaterCalls(t *testing.T) {
	logger, logs := newLogger()
	dir := writeTempLua(t, "spin.lua", `
		function spin() while true do end end
		function ok() return 1 end
	`)
	hooks, err := scripting.LoadHooks(dir, 1000, logger)
	require.NoError(t, err)
	defer hooks.Close()

	assert.Equal(t, lua.LNil, hooks.CallHook(nil, "spin"))
	assert.Equal(t, 1, logs.FilterMessage("scripting: Lua runtime error").Len())
	assert.Equal(t, lua.LNumber(1), hooks.CallHook(nil, "ok"))
}

func TestHooks_UndefinedHookIsNoOp(t *testing.T) {
	logger, _ := newLogger()
	hooks, err := scripting.LoadHooks(writeTempLua(t, "empty.lua", `-- nothing`), 0, logger)
	require.NoError(t, err)
	defer hooks.Close()

	assert.False(t, hooks.Defined(scripting.HookNewItem))
	assert.Equal(t, lua.LNil, hooks.CallHook(nil, scripting.HookNewItem))
}

func TestHooks_EngineOutsideTick(t *testing.T) {
	logger, _ := newLogger()
	dir := writeTempLua(t, "nil_context.lua", `
		function without_tick() return engine.player(1) == nil and engine.remove(1) == false end
	`)
	hooks, err := scripting.LoadHooks(dir, 0, logger)
	require.NoError(t, err)
	defer hooks.Close()
	assert.Equal(t, lua.LTrue, hooks.CallHook(nil, "without_tick"))
}

func TestLoadHooks_SingleFileAndDirectoryOrder(t *testing.T) {
	logger, _ := newLogger()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.lua"), []byte(`order = order .. "b"`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.lua"), []byte(`order = "a"
		function get_order() return order end`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`not lua`), 0644))

	hooks, err := scripting.LoadHooks(dir, 0, logger)
	require.NoError(t, err)
	assert.Equal(t, lua.LString("ab"), hooks.CallHook(nil, "get_order"))
	hooks.Close()

	single, err := scripting.LoadHooks(filepath.Join(dir, "a.lua"), 0, logger)
	require.NoError(t, err)
	defer single.Close()
	assert.True(t, single.Defined("get_order"))
}

func TestLoadHooks_Errors(t *testing.T) {
	logger, _ := newLogger()
	_, err := scripting.LoadHooks(filepath.Join(t.TempDir(), "missing"), 0, logger)
	assert.Error(t, err)

	_, err = scripting.LoadHooks(writeTempLua(t, "bad.lua", `this is not valid lua @@@@`), 0, logger)
	assert.Error(t, err)

	_, err = scripting.LoadHooks(writeTempLua(t, "spin.lua", `while true do end`), 50, logger)
	assert.Error(t, err, "top-level scripts obey the instruction limit")
}
