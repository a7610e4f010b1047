package gameserver

import (
	"github.com/cory-johannsen/tileworld/internal/game/player"
	"github.com/cory-johannsen/tileworld/internal/protocol"
)

// CombatHandler receives Attack and UseItem actions from registered
// players. Combat rules live outside this package.
type CombatHandler interface {
	HandleAction(tc *TickContext, actor *player.Info, act protocol.Action)
}

// ItemHandler receives NewItem commands from registered players.
type ItemHandler interface {
	HandleNewItem(tc *TickContext, owner *player.Info, item protocol.ItemID)
}

// CombatFunc adapts a function to CombatHandler.
type CombatFunc func(tc *TickContext, actor *player.Info, act protocol.Action)

// HandleAction calls f.
func (f CombatFunc) HandleAction(tc *TickContext, actor *player.Info, act protocol.Action) {
	f(tc, actor, act)
}

// ItemFunc adapts a function to ItemHandler.
type ItemFunc func(tc *TickContext, owner *player.Info, item protocol.ItemID)

// HandleNewItem calls f.
func (f ItemFunc) HandleNewItem(tc *TickContext, owner *player.Info, item protocol.ItemID) {
	f(tc, owner, item)
}
