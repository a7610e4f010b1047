package gameserver

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tileworld/internal/game/movement"
	"github.com/cory-johannsen/tileworld/internal/protocol"
)

// Handler processes one inbound pack of a single command tag. The pack's
// Sender is always set.
type Handler interface {
	Handle(tc *TickContext, p protocol.Pack)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(tc *TickContext, p protocol.Pack)

// Handle calls f.
func (f HandlerFunc) Handle(tc *TickContext, p protocol.Pack) { f(tc, p) }

// connectHandler forwards Connect to the authenticator.
type connectHandler struct {
	auth Authenticator
}

func (h connectHandler) Handle(tc *TickContext, p protocol.Pack) {
	cmd := p.Cmd.(protocol.Connect)
	if !tc.Clients.Has(p.Sender) {
		tc.Logger.Debug("connect from address that already left", zap.Stringer("addr", p.Sender))
		return
	}
	req := AuthRequest{Name: cmd.Name, Addr: p.Sender, RequestID: uuid.New()}
	if err := h.auth.Authenticate(tc, req); err != nil {
		tc.Logger.Warn("connect rejected",
			zap.String("name", cmd.Name),
			zap.Stringer("addr", p.Sender),
			zap.Stringer("request_id", req.RequestID),
			zap.Error(err),
		)
	}
}

// actionHandler applies movement and forwards everything else to combat.
type actionHandler struct {
	combat CombatHandler
	step   float32
}

func (h actionHandler) Handle(tc *TickContext, p protocol.Pack) {
	act := p.Cmd.(protocol.PlayerAction).Action
	info, ok := tc.Registry.FindByAddress(p.Sender)
	if !ok {
		tc.Logger.Warn("action from unregistered address",
			zap.Stringer("addr", p.Sender),
			zap.Stringer("action", act),
		)
		return
	}
	info.PendingAction = act

	switch act.Kind {
	case protocol.ActionNothing:
	case protocol.ActionMove:
		before := info.Orientation
		moved := movement.Step(info, tc.Room, act.Facing, h.step)
		if moved || info.Orientation != before {
			tc.Registry.MarkChanged(info.ID)
		}
		if !moved {
			tc.Logger.Debug("move blocked",
				zap.Uint32("id", uint32(info.ID)),
				zap.Stringer("facing", act.Facing),
				zap.Float32("x", info.X),
				zap.Float32("y", info.Y),
			)
		}
	case protocol.ActionAttack, protocol.ActionUseItem:
		if h.combat == nil {
			tc.Logger.Debug("no combat handler, dropping action", zap.Stringer("action", act))
			return
		}
		h.combat.HandleAction(tc, info, act)
	}
}

// removeHandler removes a player by id. Removal is trusted unless
// requireOwnership is set; a mismatch is always logged.
type removeHandler struct {
	requireOwnership bool
}

func (h removeHandler) Handle(tc *TickContext, p protocol.Pack) {
	id := p.Cmd.(protocol.RemovePlayer).ID
	target, ok := tc.Registry.Get(id)
	if !ok {
		tc.Logger.Debug("remove of unknown player", zap.Uint32("id", uint32(id)))
		return
	}
	if target.Address != p.Sender {
		tc.Logger.Warn("remove requested by non-owner",
			zap.Uint32("id", uint32(id)),
			zap.Stringer("owner", target.Address),
			zap.Stringer("sender", p.Sender),
			zap.Bool("enforced", h.requireOwnership),
		)
		if h.requireOwnership {
			return
		}
	}
	tc.Registry.RemoveByID(id)
	tc.Emit(protocol.RemovePlayer{ID: id}, protocol.Broadcast{})
	tc.Logger.Info("player removed", zap.Uint32("id", uint32(id)), zap.String("name", target.Name))
}

// newItemHandler forwards NewItem to the item collaborator.
type newItemHandler struct {
	items ItemHandler
}

func (h newItemHandler) Handle(tc *TickContext, p protocol.Pack) {
	item := p.Cmd.(protocol.NewItem).Item
	info, ok := tc.Registry.FindByAddress(p.Sender)
	if !ok {
		tc.Logger.Warn("new item from unregistered address",
			zap.Stringer("addr", p.Sender),
			zap.Uint32("item", uint32(item)),
		)
		return
	}
	if h.items == nil {
		tc.Logger.Debug("no item handler, dropping item", zap.Uint32("item", uint32(item)))
		return
	}
	h.items.HandleNewItem(tc, info, item)
}

// serverOnlyHandler drops commands only the server may originate.
func serverOnlyHandler(tc *TickContext, p protocol.Pack) {
	tc.Logger.Debug("dropping server-only command from client",
		zap.Stringer("cmd", p.Cmd.Tag()),
		zap.Stringer("addr", p.Sender),
	)
}
