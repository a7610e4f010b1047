// Package client implements the headless tileworld client: it mirrors the
// server's player table from Insert/Update/RemovePlayer commands and turns
// directional input into Move actions.
package client

import (
	"sort"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tileworld/internal/game/player"
	"github.com/cory-johannsen/tileworld/internal/protocol"
)

// Mirror is the client's display-only copy of the players it has been told
// about. It is not safe for concurrent use; the client tick owns it.
type Mirror struct {
	players map[protocol.PlayerID]*player.View
	outfit  player.Outfit
	logger  *zap.Logger
}

// NewMirror creates an empty mirror that dresses every player in outfit.
//
// Precondition: logger must be non-nil.
func NewMirror(outfit player.Outfit, logger *zap.Logger) *Mirror {
	return &Mirror{
		players: make(map[protocol.PlayerID]*player.View),
		outfit:  outfit,
		logger:  logger,
	}
}

// Apply folds a server command into the mirror and reports whether it
// changed anything. Commands other than Insert/Update/RemovePlayer are
// ignored.
//
// An UpdatePlayer for an unknown id inserts it, since the Insert may have
// been lost on an unreliable transport.
func (m *Mirror) Apply(cmd protocol.Cmd) bool {
	switch c := cmd.(type) {
	case protocol.InsertPlayer:
		v := player.ViewOf(c.Player, m.outfit)
		m.players[c.Player.ID] = &v
		m.logChange("player inserted", c.Player.ID, v)
		return true
	case protocol.UpdatePlayer:
		v, ok := m.players[c.Player.ID]
		if !ok {
			nv := player.ViewOf(c.Player, m.outfit)
			m.players[c.Player.ID] = &nv
			m.logChange("player inserted from update", c.Player.ID, nv)
			return true
		}
		v.Apply(c.Player)
		m.logChange("player updated", c.Player.ID, *v)
		return true
	case protocol.RemovePlayer:
		if _, ok := m.players[c.ID]; !ok {
			return false
		}
		delete(m.players, c.ID)
		m.logger.Debug("player removed", zap.Uint32("id", uint32(c.ID)))
		return true
	default:
		return false
	}
}

func (m *Mirror) logChange(msg string, id protocol.PlayerID, v player.View) {
	m.logger.Debug(msg,
		zap.Uint32("id", uint32(id)),
		zap.String("name", v.Name),
		zap.Float32("x", v.X),
		zap.Float32("y", v.Y),
		zap.Stringer("facing", v.Orientation),
		zap.Int("sprite", v.SpriteIndex()),
	)
}

// Get returns a copy of the view for id.
func (m *Mirror) Get(id protocol.PlayerID) (player.View, bool) {
	v, ok := m.players[id]
	if !ok {
		return player.View{}, false
	}
	return *v, true
}

// FindByName returns the id and view of the player named name.
func (m *Mirror) FindByName(name string) (protocol.PlayerID, player.View, bool) {
	for id, v := range m.players {
		if v.Name == name {
			return id, *v, true
		}
	}
	return 0, player.View{}, false
}

// IDs returns the mirrored ids in ascending order.
func (m *Mirror) IDs() []protocol.PlayerID {
	ids := make([]protocol.PlayerID, 0, len(m.players))
	for id := range m.players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of mirrored players.
func (m *Mirror) Len() int { return len(m.players) }
