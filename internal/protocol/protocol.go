// Package protocol defines the messages exchanged between tileworld clients
// and the authoritative server, and their binary wire encoding.
//
// Every message is a Pack: a command, a destination selector and, once the
// server has received it, the sender's address. Commands, destinations and
// actions are tagged variants whose tags are positional on the wire. New
// variants must be appended; existing tags are never renumbered.
package protocol

import (
	"fmt"
	"net/netip"
)

// PlayerID uniquely identifies a connected player for the lifetime of its
// connection.
type PlayerID uint32

// ItemID references an item definition owned by the inventory collaborator.
type ItemID uint32

// Orientation is the direction a player faces. The numeric values are the
// wire encoding.
type Orientation uint8

const (
	South Orientation = iota
	West
	East
	North
)

// Orientations lists every valid orientation in wire order.
var Orientations = []Orientation{South, West, East, North}

// Valid reports whether o is one of the four compass orientations.
func (o Orientation) Valid() bool {
	return o <= North
}

func (o Orientation) String() string {
	switch o {
	case South:
		return "south"
	case West:
		return "west"
	case East:
		return "east"
	case North:
		return "north"
	default:
		return fmt.Sprintf("orientation(%d)", uint8(o))
	}
}

// ActionKind tags the Action variant.
type ActionKind uint8

const (
	ActionNothing ActionKind = iota
	ActionMove
	ActionAttack
	ActionUseItem
)

func (k ActionKind) String() string {
	switch k {
	case ActionNothing:
		return "nothing"
	case ActionMove:
		return "move"
	case ActionAttack:
		return "attack"
	case ActionUseItem:
		return "use_item"
	default:
		return fmt.Sprintf("action(%d)", uint8(k))
	}
}

// Action is what a player asks to do this tick.
//
// Facing is meaningful only for ActionMove and Target only for ActionAttack
// (a PlayerID) and ActionUseItem (an ItemID). Use the constructors so that
// unused fields stay zero.
type Action struct {
	Kind   ActionKind
	Facing Orientation
	Target uint32
}

// Nothing returns the idle action.
func Nothing() Action { return Action{Kind: ActionNothing} }

// Move returns an action that walks one step towards o.
func Move(o Orientation) Action { return Action{Kind: ActionMove, Facing: o} }

// Attack returns an action targeting another player.
func Attack(target PlayerID) Action { return Action{Kind: ActionAttack, Target: uint32(target)} }

// UseItem returns an action using an item.
func UseItem(item ItemID) Action { return Action{Kind: ActionUseItem, Target: uint32(item)} }

func (a Action) String() string {
	switch a.Kind {
	case ActionMove:
		return "move(" + a.Facing.String() + ")"
	case ActionAttack, ActionUseItem:
		return fmt.Sprintf("%s(%d)", a.Kind, a.Target)
	default:
		return a.Kind.String()
	}
}

// CmdTag is the positional wire tag of a command.
type CmdTag uint32

const (
	TagConnect CmdTag = iota
	TagAction
	TagRemovePlayer
	TagNewItem
	TagInsertPlayer
	TagUpdatePlayer

	// cmdTagCount must stay last.
	cmdTagCount
)

func (t CmdTag) String() string {
	switch t {
	case TagConnect:
		return "connect"
	case TagAction:
		return "action"
	case TagRemovePlayer:
		return "remove_player"
	case TagNewItem:
		return "new_item"
	case TagInsertPlayer:
		return "insert_player"
	case TagUpdatePlayer:
		return "update_player"
	default:
		return fmt.Sprintf("cmd(%d)", uint32(t))
	}
}

// Known reports whether t is a tag this build understands.
func (t CmdTag) Known() bool { return t < cmdTagCount }

// Cmd is the application-level command carried by a Pack.
type Cmd interface {
	Tag() CmdTag
}

// Connect asks the server to admit a player under Name.
type Connect struct {
	Name string
}

// PlayerAction carries an Action for the sender's player.
type PlayerAction struct {
	Action Action
}

// RemovePlayer removes the player with ID.
type RemovePlayer struct {
	ID PlayerID
}

// NewItem hands an item to the sender's player.
type NewItem struct {
	Item ItemID
}

// InsertPlayer tells a client that a player appeared.
type InsertPlayer struct {
	Player PlayerSnapshot
}

// UpdatePlayer tells a client that a player's position or facing changed.
type UpdatePlayer struct {
	Player PlayerSnapshot
}

func (Connect) Tag() CmdTag      { return TagConnect }
func (PlayerAction) Tag() CmdTag { return TagAction }
func (RemovePlayer) Tag() CmdTag { return TagRemovePlayer }
func (NewItem) Tag() CmdTag      { return TagNewItem }
func (InsertPlayer) Tag() CmdTag { return TagInsertPlayer }
func (UpdatePlayer) Tag() CmdTag { return TagUpdatePlayer }

// PlayerSnapshot is the public state of a player sent to clients.
type PlayerSnapshot struct {
	ID          PlayerID
	Name        string
	Address     netip.AddrPort
	Room        string
	X           float32
	Y           float32
	Orientation Orientation
}

// DestTag is the positional wire tag of a destination selector.
type DestTag uint32

const (
	TagAddress DestTag = iota
	TagBroadcast
	TagRoom
	TagBroadcastExcept

	destTagCount
)

func (t DestTag) String() string {
	switch t {
	case TagAddress:
		return "address"
	case TagBroadcast:
		return "broadcast"
	case TagRoom:
		return "room"
	case TagBroadcastExcept:
		return "broadcast_except"
	default:
		return fmt.Sprintf("dest(%d)", uint32(t))
	}
}

// Dest selects the recipients of an outgoing Pack. It is resolved to
// concrete addresses at send time.
type Dest interface {
	Tag() DestTag
}

// ToAddress targets a single client.
type ToAddress struct {
	Addr netip.AddrPort
}

// Broadcast targets every known client.
type Broadcast struct{}

// ToRoom targets every player registered in the named room.
type ToRoom struct {
	Name string
}

// BroadcastExcept targets every known client but Addr.
type BroadcastExcept struct {
	Addr netip.AddrPort
}

func (ToAddress) Tag() DestTag       { return TagAddress }
func (Broadcast) Tag() DestTag       { return TagBroadcast }
func (ToRoom) Tag() DestTag          { return TagRoom }
func (BroadcastExcept) Tag() DestTag { return TagBroadcastExcept }

// Pack is the wire envelope.
//
// Sender is the zero AddrPort until the ingress loop stamps it from the
// transport envelope.
type Pack struct {
	Cmd    Cmd
	Dest   Dest
	Sender netip.AddrPort
}

// NewPack returns a Pack without a sender.
func NewPack(cmd Cmd, dest Dest) Pack {
	return Pack{Cmd: cmd, Dest: dest}
}

// HasSender reports whether the pack carries a sender address.
func (p Pack) HasSender() bool {
	return p.Sender.IsValid()
}

// WithSender returns a copy of p received from addr: Sender is set and the
// destination becomes the sender's own address.
func (p Pack) WithSender(addr netip.AddrPort) Pack {
	p.Sender = addr
	p.Dest = ToAddress{Addr: addr}
	return p
}

func (p Pack) String() string {
	cmd, dest := "<nil>", "<nil>"
	if p.Cmd != nil {
		cmd = p.Cmd.Tag().String()
	}
	if p.Dest != nil {
		dest = p.Dest.Tag().String()
	}
	if p.HasSender() {
		return fmt.Sprintf("pack{%s -> %s from %s}", cmd, dest, p.Sender)
	}
	return fmt.Sprintf("pack{%s -> %s}", cmd, dest)
}
