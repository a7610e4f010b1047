package gameserver

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tileworld/internal/game/player"
	"github.com/cory-johannsen/tileworld/internal/protocol"
)

// MaxNameLength bounds player names, in runes.
const MaxNameLength = 32

var (
	// ErrInvalidName is returned for empty or overlong names.
	ErrInvalidName = errors.New("invalid player name")
	// ErrNameInUse is returned when another player already has the name.
	ErrNameInUse = errors.New("player name in use")
	// ErrAlreadyJoined is returned when the address already owns a player.
	ErrAlreadyJoined = errors.New("address already joined")
)

// AuthRequest is what a Connect command asks the authenticator to admit.
type AuthRequest struct {
	Name string
	Addr netip.AddrPort
	// RequestID correlates the request's log lines.
	RequestID uuid.UUID
}

// Authenticator admits connecting clients as players. Implementations
// create the player record and announce it through tc.
type Authenticator interface {
	Authenticate(tc *TickContext, req AuthRequest) error
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(tc *TickContext, req AuthRequest) error

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(tc *TickContext, req AuthRequest) error { return f(tc, req) }

// OpenAuthenticator admits any unique, non-empty name without credentials.
type OpenAuthenticator struct{}

// Authenticate registers a new player at the map spawn point facing South.
//
// Precondition: req.Addr is a connected client.
// Postcondition: On success the registry holds the new player; the
// newcomer is sent an InsertPlayer for every player already in the room,
// and the whole room, newcomer included, is sent the newcomer's InsertPlayer.
func (OpenAuthenticator) Authenticate(tc *TickContext, req AuthRequest) error {
	name := strings.TrimSpace(req.Name)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return fmt.Errorf("authenticating %q: %w", req.Name, ErrInvalidName)
	}
	if _, ok := tc.Registry.FindByName(name); ok {
		return fmt.Errorf("authenticating %q: %w", name, ErrNameInUse)
	}
	if existing, ok := tc.Registry.FindByAddress(req.Addr); ok {
		return fmt.Errorf("authenticating %q at %s (player %d): %w", name, req.Addr, existing.ID, ErrAlreadyJoined)
	}

	x, y := tc.Room.Map().SpawnPixel()
	info := &player.Info{
		ID:          tc.Registry.NextID(),
		Address:     req.Addr,
		Name:        name,
		Room:        tc.Room.Name(),
		X:           x,
		Y:           y,
		Orientation: protocol.South,
	}
	if err := tc.Registry.Add(info); err != nil {
		return fmt.Errorf("authenticating %q: %w", name, err)
	}

	for _, other := range tc.Registry.InRoom(info.Room) {
		if other.ID == info.ID {
			continue
		}
		tc.Emit(protocol.InsertPlayer{Player: other.Snapshot()}, protocol.ToAddress{Addr: info.Address})
	}
	tc.Emit(protocol.InsertPlayer{Player: info.Snapshot()}, protocol.ToRoom{Name: info.Room})

	tc.Logger.Info("player joined",
		zap.Uint32("id", uint32(info.ID)),
		zap.String("name", info.Name),
		zap.Stringer("addr", info.Address),
		zap.String("room", info.Room),
		zap.Stringer("request_id", req.RequestID),
	)
	return nil
}
