package player

import (
	"errors"
	"fmt"
	"net/netip"
	"sort"

	"github.com/cory-johannsen/tileworld/internal/protocol"
)

var (
	// ErrDuplicateID is returned by Add when the id is already registered.
	ErrDuplicateID = errors.New("duplicate player id")
	// ErrAddressInUse is returned by Add when another player owns the address.
	ErrAddressInUse = errors.New("address already bound to a player")
	// ErrNotFound is returned when no player matches.
	ErrNotFound = errors.New("player not found")
)

// Registry is the single source of truth for who is connected and where.
// It indexes players by id, by transport address and by room.
//
// Registry is not safe for concurrent use. It is owned by the tick loop;
// every mutation is complete before the tick that made it returns.
type Registry struct {
	players  map[protocol.PlayerID]*Info
	byAddr   map[netip.AddrPort]protocol.PlayerID
	roomSets map[string]map[protocol.PlayerID]struct{}
	changed  map[protocol.PlayerID]struct{}
	lastID   protocol.PlayerID
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		players:  make(map[protocol.PlayerID]*Info),
		byAddr:   make(map[netip.AddrPort]protocol.PlayerID),
		roomSets: make(map[string]map[protocol.PlayerID]struct{}),
		changed:  make(map[protocol.PlayerID]struct{}),
	}
}

// NextID allocates a fresh player id. Ids start at 1, increase
// monotonically and are never reused within a process.
func (r *Registry) NextID() protocol.PlayerID {
	r.lastID++
	return r.lastID
}

// Add inserts info keyed by its id.
//
// Precondition: info must be non-nil with a valid Address.
// Postcondition: Returns ErrDuplicateID or ErrAddressInUse without
// modifying the registry, or nil once info is indexed.
func (r *Registry) Add(info *Info) error {
	if _, exists := r.players[info.ID]; exists {
		return fmt.Errorf("adding player %d: %w", info.ID, ErrDuplicateID)
	}
	if owner, exists := r.byAddr[info.Address]; exists {
		return fmt.Errorf("adding player %d at %s (owned by %d): %w", info.ID, info.Address, owner, ErrAddressInUse)
	}
	if info.ID > r.lastID {
		r.lastID = info.ID
	}
	r.players[info.ID] = info
	r.byAddr[info.Address] = info.ID
	r.joinRoom(info.ID, info.Room)
	return nil
}

// RemoveByAddress removes and returns the player bound to addr. A missing
// entry is not an error: unauthenticated sockets disconnect all the time.
func (r *Registry) RemoveByAddress(addr netip.AddrPort) (*Info, bool) {
	id, ok := r.byAddr[addr]
	if !ok {
		return nil, false
	}
	return r.RemoveByID(id)
}

// RemoveByID removes and returns the player with id.
func (r *Registry) RemoveByID(id protocol.PlayerID) (*Info, bool) {
	info, ok := r.players[id]
	if !ok {
		return nil, false
	}
	r.leaveRoom(id, info.Room)
	delete(r.byAddr, info.Address)
	delete(r.players, id)
	delete(r.changed, id)
	return info, true
}

// FindByAddress returns the player bound to addr.
func (r *Registry) FindByAddress(addr netip.AddrPort) (*Info, bool) {
	id, ok := r.byAddr[addr]
	if !ok {
		return nil, false
	}
	return r.players[id], true
}

// Get returns the player with id.
func (r *Registry) Get(id protocol.PlayerID) (*Info, bool) {
	info, ok := r.players[id]
	return info, ok
}

// FindByName returns the player with the given display name.
func (r *Registry) FindByName(name string) (*Info, bool) {
	for _, info := range r.players {
		if info.Name == name {
			return info, true
		}
	}
	return nil, false
}

// AddressesInRoom returns the address of every player registered in room.
// Order is not significant.
func (r *Registry) AddressesInRoom(room string) []netip.AddrPort {
	ids, ok := r.roomSets[room]
	if !ok {
		return nil
	}
	addrs := make([]netip.AddrPort, 0, len(ids))
	for id := range ids {
		addrs = append(addrs, r.players[id].Address)
	}
	return addrs
}

// InRoom returns the players registered in room, ordered by id.
func (r *Registry) InRoom(room string) []*Info {
	ids := r.roomSets[room]
	out := make([]*Info, 0, len(ids))
	for id := range ids {
		out = append(out, r.players[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MovePlayer moves the player to newRoom and marks it changed.
//
// Postcondition: Returns the old room name, or ErrNotFound.
func (r *Registry) MovePlayer(id protocol.PlayerID, newRoom string) (string, error) {
	info, ok := r.players[id]
	if !ok {
		return "", fmt.Errorf("moving player %d: %w", id, ErrNotFound)
	}
	old := info.Room
	r.leaveRoom(id, old)
	info.Room = newRoom
	r.joinRoom(id, newRoom)
	r.MarkChanged(id)
	return old, nil
}

// All returns every registered player ordered by id.
func (r *Registry) All() []*Info {
	out := make([]*Info, 0, len(r.players))
	for _, info := range r.players {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered players.
func (r *Registry) Len() int {
	return len(r.players)
}

// MarkChanged records that id's public state changed during this tick.
// Unknown ids are ignored.
func (r *Registry) MarkChanged(id protocol.PlayerID) {
	if _, ok := r.players[id]; ok {
		r.changed[id] = struct{}{}
	}
}

// TakeChanged returns the ids marked since the last call, in ascending
// order, and clears the set.
func (r *Registry) TakeChanged() []protocol.PlayerID {
	if len(r.changed) == 0 {
		return nil
	}
	ids := make([]protocol.PlayerID, 0, len(r.changed))
	for id := range r.changed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	clear(r.changed)
	return ids
}

func (r *Registry) joinRoom(id protocol.PlayerID, room string) {
	if r.roomSets[room] == nil {
		r.roomSets[room] = make(map[protocol.PlayerID]struct{})
	}
	r.roomSets[room][id] = struct{}{}
}

func (r *Registry) leaveRoom(id protocol.PlayerID, room string) {
	if rs, ok := r.roomSets[room]; ok {
		delete(rs, id)
		if len(rs) == 0 {
			delete(r.roomSets, room)
		}
	}
}
