package gameserver

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tileworld/internal/game/movement"
	"github.com/cory-johannsen/tileworld/internal/game/player"
	"github.com/cory-johannsen/tileworld/internal/game/tilemap"
	"github.com/cory-johannsen/tileworld/internal/protocol"
	"github.com/cory-johannsen/tileworld/internal/transport"
)

// LoopConfig tunes the simulation.
type LoopConfig struct {
	// Step is the distance one Move action walks, in pixels. 0 means
	// movement.DefaultStep.
	Step float32
	// RequireRemoveOwnership restricts RemovePlayer to the player's own
	// address.
	RequireRemoveOwnership bool
}

// Collaborators are the subsystems the default handlers forward to. A nil
// Auth means OpenAuthenticator; a nil Combat or Items drops those commands.
type Collaborators struct {
	Auth   Authenticator
	Combat CombatHandler
	Items  ItemHandler
}

// TickStats summarizes one tick.
type TickStats struct {
	Tick      uint64
	Events    int
	Inbound   int
	Malformed int
	Outbound  int
	Sends     int
}

// Loop is the per-tick ingress, processing and egress driver. It owns the
// registry, client set and room; nothing else may mutate them.
type Loop struct {
	cfg       LoopConfig
	transport transport.Transport
	registry  *player.Registry
	clients   *ClientSet
	room      *tilemap.Room
	router    *Router
	handlers  map[protocol.CmdTag]Handler
	logger    *zap.Logger
	tick      uint64
}

// NewLoop creates a Loop with the default handler for every command tag
// installed.
//
// Precondition: t, room and logger must be non-nil.
func NewLoop(cfg LoopConfig, t transport.Transport, room *tilemap.Room, collab Collaborators, logger *zap.Logger) *Loop {
	if cfg.Step <= 0 {
		cfg.Step = movement.DefaultStep
	}
	if collab.Auth == nil {
		collab.Auth = OpenAuthenticator{}
	}
	registry := player.NewRegistry()
	clients := NewClientSet()
	l := &Loop{
		cfg:       cfg,
		transport: t,
		registry:  registry,
		clients:   clients,
		room:      room,
		router:    NewRouter(t, registry, clients, logger),
		handlers:  make(map[protocol.CmdTag]Handler),
		logger:    logger,
	}
	defaults := map[protocol.CmdTag]Handler{
		protocol.TagConnect:      connectHandler{auth: collab.Auth},
		protocol.TagAction:       actionHandler{combat: collab.Combat, step: cfg.Step},
		protocol.TagRemovePlayer: removeHandler{requireOwnership: cfg.RequireRemoveOwnership},
		protocol.TagNewItem:      newItemHandler{items: collab.Items},
		protocol.TagInsertPlayer: HandlerFunc(serverOnlyHandler),
		protocol.TagUpdatePlayer: HandlerFunc(serverOnlyHandler),
	}
	for tag, h := range defaults {
		l.handlers[tag] = h
	}
	// Nobody has joined yet, so the initial load needs no re-announce.
	room.TakeDirty()
	return l
}

// RegisterHandler installs h for tag, replacing nothing.
//
// Postcondition: Returns an error if tag is outside the wire tag space or
// already has a handler; use ReplaceHandler to override a default.
func (l *Loop) RegisterHandler(tag protocol.CmdTag, h Handler) error {
	if !tag.Known() {
		return fmt.Errorf("registering handler: %w: command tag %d", protocol.ErrUnknownTag, uint32(tag))
	}
	if _, exists := l.handlers[tag]; exists {
		return fmt.Errorf("registering handler: duplicate handler for %s", tag)
	}
	l.handlers[tag] = h
	return nil
}

// ReplaceHandler installs h for tag and returns the previous handler.
func (l *Loop) ReplaceHandler(tag protocol.CmdTag, h Handler) (Handler, error) {
	if !tag.Known() {
		return nil, fmt.Errorf("replacing handler: %w: command tag %d", protocol.ErrUnknownTag, uint32(tag))
	}
	prev := l.handlers[tag]
	l.handlers[tag] = h
	return prev, nil
}

// Registry returns the player table. Callers outside the tick must not
// mutate it.
func (l *Loop) Registry() *player.Registry { return l.registry }

// Clients returns the connected-address set.
func (l *Loop) Clients() *ClientSet { return l.clients }

// Room returns the room.
func (l *Loop) Room() *tilemap.Room { return l.room }

// Router returns the router.
func (l *Loop) Router() *Router { return l.router }

// ChangeMap hot-swaps the room's map. Players in the old room follow it
// under the new room name and are re-announced on the next tick. A player
// whose tile lies outside the new map is moved to its spawn point.
//
// Postcondition: On error nothing changes.
func (l *Loop) ChangeMap(mapPath, tilesetPath string) error {
	old := l.room.Name()
	if err := l.room.Change(mapPath, tilesetPath); err != nil {
		return err
	}
	next := l.room.Name()
	if next != old {
		for _, p := range l.registry.InRoom(old) {
			if _, err := l.registry.MovePlayer(p.ID, next); err != nil {
				return fmt.Errorf("moving player %d to %s: %w", p.ID, next, err)
			}
		}
	}
	respawned := 0
	for _, p := range l.registry.InRoom(next) {
		if l.onMap(p.X, p.Y) {
			continue
		}
		p.X, p.Y = l.room.Map().SpawnPixel()
		l.registry.MarkChanged(p.ID)
		respawned++
	}
	l.logger.Info("map changed",
		zap.String("from", old),
		zap.String("to", next),
		zap.Int("respawned", respawned),
	)
	return nil
}

// onMap reports whether the pixel position falls on a tile of the current map.
func (l *Loop) onMap(px, py float32) bool {
	m := l.room.Map()
	ts := float32(m.TileSize)
	if px < ts || py < ts {
		return false
	}
	tx, ty := l.room.PixelToTile(px, py)
	return tx < m.Width && ty < m.Height
}

// Tick runs one ingress, process and egress pass. Nothing here fails: every
// error is logged and the offending input dropped.
func (l *Loop) Tick() TickStats {
	l.tick++
	tc := &TickContext{
		Tick:     l.tick,
		Registry: l.registry,
		Room:     l.room,
		Clients:  l.clients,
		Logger:   l.logger.With(zap.Uint64("tick", l.tick)),
	}
	stats := TickStats{Tick: l.tick}

	events := l.transport.Drain()
	stats.Events = len(events)
	var inbound []protocol.Pack
	for _, ev := range events {
		switch ev.Kind {
		case transport.EventMessage:
			p, err := protocol.Decode(ev.Payload)
			if err != nil {
				stats.Malformed++
				tc.Logger.Debug("dropping malformed packet",
					zap.Stringer("from", ev.Addr),
					zap.Int("bytes", len(ev.Payload)),
					zap.Error(err),
				)
				continue
			}
			if l.clients.Add(ev.Addr) {
				tc.Logger.Debug("message from unannounced address", zap.Stringer("addr", ev.Addr))
			}
			inbound = append(inbound, p.WithSender(ev.Addr))
		case transport.EventConnect:
			if l.clients.Add(ev.Addr) {
				tc.Logger.Debug("client connected", zap.Stringer("addr", ev.Addr))
			}
		case transport.EventDisconnect:
			l.disconnect(tc, ev)
		case transport.EventReceiveError:
			tc.Logger.Warn("transport receive error", zap.Stringer("addr", ev.Addr), zap.Error(ev.Err))
		default:
			tc.Logger.Warn("unknown transport event", zap.Stringer("kind", ev.Kind))
		}
	}

	stats.Inbound = len(inbound)
	for _, p := range inbound {
		h, ok := l.handlers[p.Cmd.Tag()]
		if !ok {
			tc.Logger.Debug("no handler for command", zap.Stringer("cmd", p.Cmd.Tag()))
			continue
		}
		h.Handle(tc, p)
	}

	if l.room.TakeDirty() {
		for _, p := range l.registry.InRoom(l.room.Name()) {
			l.registry.MarkChanged(p.ID)
		}
	}
	for _, id := range l.registry.TakeChanged() {
		info, ok := l.registry.Get(id)
		if !ok {
			continue
		}
		tc.Emit(protocol.UpdatePlayer{Player: info.Snapshot()}, protocol.ToRoom{Name: info.Room})
	}

	out := tc.takeOutbox()
	stats.Outbound = len(out)
	for _, p := range out {
		stats.Sends += l.router.Dispatch(p)
	}
	return stats
}

func (l *Loop) disconnect(tc *TickContext, ev transport.Event) {
	l.clients.Remove(ev.Addr)
	info, ok := l.registry.RemoveByAddress(ev.Addr)
	if !ok {
		tc.Logger.Info("disconnect from address with no player", zap.Stringer("addr", ev.Addr))
		return
	}
	tc.Emit(protocol.RemovePlayer{ID: info.ID}, protocol.Broadcast{})
	tc.Logger.Info("player disconnected",
		zap.Uint32("id", uint32(info.ID)),
		zap.String("name", info.Name),
		zap.Stringer("addr", ev.Addr),
	)
}
