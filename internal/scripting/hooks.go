package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tileworld/internal/game/player"
	"github.com/cory-johannsen/tileworld/internal/gameserver"
	"github.com/cory-johannsen/tileworld/internal/protocol"
)

// Hook names a script may define.
const (
	HookNewItem = "on_new_item"
	HookAttack  = "on_attack"
	HookUseItem = "on_use_item"
)

// Hooks owns one sandboxed VM loaded from operator scripts and forwards
// item and combat events to it. It implements gameserver.ItemHandler and
// gameserver.CombatHandler.
//
// Hooks is safe for concurrent use, but the engine.* functions only work
// while a hook is running inside a tick.
type Hooks struct {
	mu     sync.Mutex
	L      *lua.LState
	limit  int
	logger *zap.Logger

	// tc is the tick being served; non-nil only during a hook call.
	tc *gameserver.TickContext
}

// LoadHooks creates a VM, registers the engine module and runs path. A
// directory runs every *.lua file in it in lexicographic order.
//
// Precondition: logger must be non-nil; instLimit >= 0 (0 uses the default).
// Postcondition: Returns Hooks ready for calls, or an error on read or Lua
// load failure.
func LoadHooks(path string, instLimit int, logger *zap.Logger) (*Hooks, error) {
	files, err := scriptFiles(path)
	if err != nil {
		return nil, err
	}
	h := &Hooks{L: NewSandboxedState(), limit: instLimit, logger: logger}
	h.registerModules()
	for _, f := range files {
		release := Limit(h.L, h.limit)
		err := h.L.DoFile(f)
		release()
		if err != nil {
			h.L.Close()
			return nil, fmt.Errorf("scripting: loading %q: %w", f, err)
		}
	}
	logger.Info("scripting: hooks loaded", zap.String("path", path), zap.Int("files", len(files)))
	return h, nil
}

func scriptFiles(path string) ([]string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("scripting: %w", err)
	}
	if !fi.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("scripting: reading script dir %q: %w", path, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Close releases the VM.
func (h *Hooks) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.L.Close()
}

// Defined reports whether the scripts define hook.
func (h *Hooks) Defined(hook string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.L.GetGlobal(hook).Type() == lua.LTFunction
}

// CallHook calls the named Lua global with args on behalf of tc. Returns
// LNil if the hook is not defined. Lua runtime errors, including an
// exhausted instruction budget, are logged at Warn and never propagated.
//
// Postcondition: Returns the first return value of the hook, or LNil.
func (h *Hooks) CallHook(tc *gameserver.TickContext, hook string, args ...lua.LValue) lua.LValue {
	h.mu.Lock()
	defer h.mu.Unlock()

	fn := h.L.GetGlobal(hook)
	if fn.Type() != lua.LTFunction {
		return lua.LNil
	}

	h.tc = tc
	release := Limit(h.L, h.limit)
	err := h.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...)
	release()
	h.tc = nil
	if err != nil {
		h.logger.Warn("scripting: Lua runtime error",
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil
	}
	ret := h.L.Get(-1)
	h.L.Pop(1)
	return ret
}

// HandleNewItem implements gameserver.ItemHandler by calling
// on_new_item(player_id, player_name, item_id).
func (h *Hooks) HandleNewItem(tc *gameserver.TickContext, owner *player.Info, item protocol.ItemID) {
	h.CallHook(tc, HookNewItem, lua.LNumber(owner.ID), lua.LString(owner.Name), lua.LNumber(item))
}

// HandleAction implements gameserver.CombatHandler by calling
// on_attack(attacker_id, target_id) or on_use_item(player_id, item_id).
func (h *Hooks) HandleAction(tc *gameserver.TickContext, actor *player.Info, act protocol.Action) {
	switch act.Kind {
	case protocol.ActionAttack:
		h.CallHook(tc, HookAttack, lua.LNumber(actor.ID), lua.LNumber(act.Target))
	case protocol.ActionUseItem:
		h.CallHook(tc, HookUseItem, lua.LNumber(actor.ID), lua.LNumber(act.Target))
	}
}
