package client

import (
	"net/netip"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tileworld/internal/game/movement"
	"github.com/cory-johannsen/tileworld/internal/protocol"
	"github.com/cory-johannsen/tileworld/internal/transport"
)

// Config configures a Client.
type Config struct {
	// Name is the player name sent in Connect.
	Name string
	// Server is the server address packs are sent to. The dialed client
	// transports ignore it. The zero value addresses packs as Broadcast.
	Server netip.AddrPort
	// ConnectRetry is the number of ticks to wait for the local player's
	// InsertPlayer before sending Connect again. Non-positive means
	// DefaultConnectRetry.
	ConnectRetry int
}

// DefaultConnectRetry is one second at the default 50ms tick.
const DefaultConnectRetry = 20

// TickStats summarizes one client tick.
type TickStats struct {
	Received  int
	Malformed int
	Changed   int
	Sent      int
}

// Client is the headless game client. Tick must be called from a single
// goroutine.
type Client struct {
	cfg       Config
	transport transport.Transport
	input     InputSource
	mirror    *Mirror
	logger    *zap.Logger

	connectWait int
	self        protocol.PlayerID
	joined      bool
	removed     bool
	facing      protocol.Orientation
	lost        bool
}

// New creates a Client that has not yet sent Connect.
//
// Precondition: t, input, mirror and logger must be non-nil.
func New(cfg Config, t transport.Transport, input InputSource, mirror *Mirror, logger *zap.Logger) *Client {
	if cfg.ConnectRetry <= 0 {
		cfg.ConnectRetry = DefaultConnectRetry
	}
	return &Client{
		cfg:       cfg,
		transport: t,
		input:     input,
		mirror:    mirror,
		logger:    logger,
		facing:    protocol.South,
	}
}

// Mirror returns the client's player table.
func (c *Client) Mirror() *Mirror { return c.mirror }

// Self returns the local player's id once the server has announced it.
func (c *Client) Self() (protocol.PlayerID, bool) { return c.self, c.joined }

// Facing returns the local orientation.
func (c *Client) Facing() protocol.Orientation { return c.facing }

// Lost reports whether the transport reported the server gone.
func (c *Client) Lost() bool { return c.lost }

// Tick sends Connect until the server announces the local player (every
// ConnectRetry ticks), folds every received pack into the mirror, then turns
// one input into a Move action. A client the server removed does not rejoin.
func (c *Client) Tick() TickStats {
	var stats TickStats
	if !c.joined && !c.removed {
		if c.connectWait > 0 {
			c.connectWait--
		} else if c.send(protocol.Connect{Name: c.cfg.Name}) {
			stats.Sent++
			c.connectWait = c.cfg.ConnectRetry
		}
	}

	for _, ev := range c.transport.Drain() {
		switch ev.Kind {
		case transport.EventMessage:
			stats.Received++
			p, err := protocol.Decode(ev.Payload)
			if err != nil {
				stats.Malformed++
				c.logger.Debug("dropping malformed packet", zap.Int("bytes", len(ev.Payload)), zap.Error(err))
				continue
			}
			if c.mirror.Apply(p.Cmd) {
				stats.Changed++
			}
			c.track(p.Cmd)
		case transport.EventDisconnect:
			c.lost = true
			c.logger.Warn("server connection lost", zap.Stringer("addr", ev.Addr))
		case transport.EventReceiveError:
			c.logger.Warn("transport receive error", zap.Error(ev.Err))
		}
	}

	dx, dy := c.input.Poll()
	if dx == 0 && dy == 0 {
		return stats
	}
	c.facing = movement.UpdateOrientation(c.facing, dx, dy)
	if !c.joined {
		c.logger.Debug("input before join ignored")
		return stats
	}
	if c.send(protocol.PlayerAction{Action: protocol.Move(c.facing)}) {
		stats.Sent++
	}
	return stats
}

// track notices the local player's own InsertPlayer and removal.
func (c *Client) track(cmd protocol.Cmd) {
	switch cm := cmd.(type) {
	case protocol.InsertPlayer:
		if !c.joined && cm.Player.Name == c.cfg.Name {
			c.self = cm.Player.ID
			c.joined = true
			c.facing = cm.Player.Orientation
			c.logger.Info("joined",
				zap.Uint32("id", uint32(cm.Player.ID)),
				zap.String("room", cm.Player.Room),
			)
		}
	case protocol.UpdatePlayer:
		if c.joined && cm.Player.ID == c.self {
			c.facing = cm.Player.Orientation
		}
	case protocol.RemovePlayer:
		if c.joined && cm.ID == c.self {
			c.joined = false
			c.removed = true
			c.logger.Warn("removed by server", zap.Uint32("id", uint32(cm.ID)))
		}
	}
}

func (c *Client) send(cmd protocol.Cmd) bool {
	var dest protocol.Dest = protocol.Broadcast{}
	if c.cfg.Server.IsValid() {
		dest = protocol.ToAddress{Addr: c.cfg.Server}
	}
	b, err := protocol.Encode(protocol.NewPack(cmd, dest))
	if err != nil {
		c.logger.Error("encoding pack", zap.Stringer("cmd", cmd.Tag()), zap.Error(err))
		return false
	}
	if err := c.transport.Send(c.cfg.Server, b); err != nil {
		c.logger.Warn("send failed", zap.Stringer("cmd", cmd.Tag()), zap.Error(err))
		return false
	}
	return true
}
