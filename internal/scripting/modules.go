package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tileworld/internal/protocol"
)

// registerModules installs the engine table:
//
//	engine.player(id)  -> {id, name, room, x, y, facing} or nil
//	engine.log(msg)    -> writes msg to the server log at Info
//	engine.remove(id)  -> removes the player and broadcasts it; true if removed
func (h *Hooks) registerModules() {
	engine := h.L.NewTable()
	h.L.SetField(engine, "player", h.L.NewFunction(h.luaPlayer))
	h.L.SetField(engine, "log", h.L.NewFunction(h.luaLog))
	h.L.SetField(engine, "remove", h.L.NewFunction(h.luaRemove))
	h.L.SetGlobal("engine", engine)
}

func (h *Hooks) luaPlayer(L *lua.LState) int {
	id := protocol.PlayerID(L.CheckInt(1))
	if h.tc == nil {
		L.Push(lua.LNil)
		return 1
	}
	info, ok := h.tc.Registry.Get(id)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	t := L.NewTable()
	L.SetField(t, "id", lua.LNumber(info.ID))
	L.SetField(t, "name", lua.LString(info.Name))
	L.SetField(t, "room", lua.LString(info.Room))
	L.SetField(t, "x", lua.LNumber(info.X))
	L.SetField(t, "y", lua.LNumber(info.Y))
	L.SetField(t, "facing", lua.LString(info.Orientation.String()))
	L.Push(t)
	return 1
}

func (h *Hooks) luaLog(L *lua.LState) int {
	h.logger.Info("scripting: "+L.CheckString(1), zap.String("source", "lua"))
	return 0
}

func (h *Hooks) luaRemove(L *lua.LState) int {
	id := protocol.PlayerID(L.CheckInt(1))
	if h.tc == nil {
		L.Push(lua.LFalse)
		return 1
	}
	if _, ok := h.tc.Registry.RemoveByID(id); !ok {
		L.Push(lua.LFalse)
		return 1
	}
	h.tc.Emit(protocol.RemovePlayer{ID: id}, protocol.Broadcast{})
	L.Push(lua.LTrue)
	return 1
}
