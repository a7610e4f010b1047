package protocol

import (
	"fmt"
	"math"
	"net/netip"

	"google.golang.org/protobuf/encoding/protowire"
)

// WireVersion is written into every encoded Pack. Decode rejects any other
// version.
const WireVersion = 1

// Pack field numbers.
const (
	packVersion protowire.Number = 1
	packCmdTag  protowire.Number = 2
	packCmdBody protowire.Number = 3
	packDestTag protowire.Number = 4
	packDstBody protowire.Number = 5
	packSender  protowire.Number = 6
)

// Nested message field numbers. Each body message numbers its fields from 1.
const (
	bodyField1 protowire.Number = iota + 1
	bodyField2
	bodyField3
	bodyField4
	bodyField5
	bodyField6
	bodyField7
)

// Encode serializes p in protobuf wire format.
//
// Precondition: p.Cmd and p.Dest are non-nil values of this package's
// variant types; address destinations carry a valid address.
// Postcondition: Decode(Encode(p)) equals p.
func Encode(p Pack) ([]byte, error) {
	if p.Cmd == nil {
		return nil, fmt.Errorf("%w: nil command", ErrInvalidPack)
	}
	if p.Dest == nil {
		return nil, fmt.Errorf("%w: nil destination", ErrInvalidPack)
	}
	cmdBody, err := encodeCmd(p.Cmd)
	if err != nil {
		return nil, err
	}
	destBody, err := encodeDest(p.Dest)
	if err != nil {
		return nil, err
	}

	b := make([]byte, 0, 16+len(cmdBody)+len(destBody))
	b = appendVarint(b, packVersion, WireVersion)
	b = appendVarint(b, packCmdTag, uint64(p.Cmd.Tag()))
	b = appendBytes(b, packCmdBody, cmdBody)
	b = appendVarint(b, packDestTag, uint64(p.Dest.Tag()))
	b = appendBytes(b, packDstBody, destBody)
	if p.Sender.IsValid() {
		addr, err := p.Sender.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("%w: sender: %v", ErrInvalidPack, err)
		}
		b = appendBytes(b, packSender, addr)
	}
	return b, nil
}

// Decode parses bytes produced by Encode.
//
// Postcondition: Returns the Pack, or a *ProtocolError for malformed,
// truncated or unsupported input. Decode never panics.
func Decode(b []byte) (Pack, error) {
	var (
		version          uint64
		haveVersion      bool
		cmdTag, destTag  uint64
		haveCmd, haveDst bool
		cmdBody, dstBody []byte
		sender           netip.AddrPort
	)
	err := walk("pack", b, func(f field) error {
		var err error
		switch f.num {
		case packVersion:
			version, err = f.uint("version")
			haveVersion = err == nil
		case packCmdTag:
			cmdTag, err = f.uint("command tag")
			haveCmd = err == nil
		case packCmdBody:
			cmdBody, err = f.raw("command body")
		case packDestTag:
			destTag, err = f.uint("destination tag")
			haveDst = err == nil
		case packDstBody:
			dstBody, err = f.raw("destination body")
		case packSender:
			sender, err = f.addr("sender")
		}
		return err
	})
	if err != nil {
		return Pack{}, err
	}
	switch {
	case !haveVersion:
		return Pack{}, protoErr("pack", "missing version", nil)
	case version != WireVersion:
		return Pack{}, protoErr("pack", fmt.Sprintf("unsupported version %d", version), nil)
	case !haveCmd:
		return Pack{}, protoErr("pack", "missing command tag", nil)
	case !haveDst:
		return Pack{}, protoErr("pack", "missing destination tag", nil)
	}

	cmd, err := decodeCmd(cmdTag, cmdBody)
	if err != nil {
		return Pack{}, err
	}
	dest, err := decodeDest(destTag, dstBody)
	if err != nil {
		return Pack{}, err
	}
	return Pack{Cmd: cmd, Dest: dest, Sender: sender}, nil
}

func encodeCmd(c Cmd) ([]byte, error) {
	var b []byte
	switch c := c.(type) {
	case Connect:
		b = appendString(b, bodyField1, c.Name)
	case PlayerAction:
		if !c.Action.Facing.Valid() {
			return nil, fmt.Errorf("%w: orientation %d", ErrInvalidPack, c.Action.Facing)
		}
		b = appendVarint(b, bodyField1, uint64(c.Action.Kind))
		b = appendVarint(b, bodyField2, uint64(c.Action.Facing))
		b = appendVarint(b, bodyField3, uint64(c.Action.Target))
	case RemovePlayer:
		b = appendVarint(b, bodyField1, uint64(c.ID))
	case NewItem:
		b = appendVarint(b, bodyField1, uint64(c.Item))
	case InsertPlayer:
		return encodeSnapshot(c.Player)
	case UpdatePlayer:
		return encodeSnapshot(c.Player)
	default:
		return nil, fmt.Errorf("%w: unsupported command %T", ErrInvalidPack, c)
	}
	return b, nil
}

func decodeCmd(tag uint64, body []byte) (Cmd, error) {
	if tag > math.MaxUint32 {
		return nil, protoErr("pack", fmt.Sprintf("command tag %d", tag), ErrUnknownTag)
	}
	switch CmdTag(tag) {
	case TagConnect:
		var c Connect
		err := walk("connect", body, func(f field) error {
			if f.num == bodyField1 {
				s, err := f.raw("name")
				c.Name = string(s)
				return err
			}
			return nil
		})
		return c, err
	case TagAction:
		a, err := decodeAction(body)
		return PlayerAction{Action: a}, err
	case TagRemovePlayer:
		var c RemovePlayer
		err := walk("remove_player", body, func(f field) error {
			if f.num == bodyField1 {
				id, err := f.uint32("id")
				c.ID = PlayerID(id)
				return err
			}
			return nil
		})
		return c, err
	case TagNewItem:
		var c NewItem
		err := walk("new_item", body, func(f field) error {
			if f.num == bodyField1 {
				id, err := f.uint32("item")
				c.Item = ItemID(id)
				return err
			}
			return nil
		})
		return c, err
	case TagInsertPlayer:
		s, err := decodeSnapshot(body)
		return InsertPlayer{Player: s}, err
	case TagUpdatePlayer:
		s, err := decodeSnapshot(body)
		return UpdatePlayer{Player: s}, err
	default:
		return nil, protoErr("pack", fmt.Sprintf("command tag %d", tag), ErrUnknownTag)
	}
}

func decodeAction(body []byte) (Action, error) {
	var a Action
	err := walk("action", body, func(f field) error {
		switch f.num {
		case bodyField1:
			v, err := f.uint("kind")
			if err != nil {
				return err
			}
			if v > uint64(ActionUseItem) {
				return protoErr("action", fmt.Sprintf("action kind %d", v), ErrUnknownTag)
			}
			a.Kind = ActionKind(v)
		case bodyField2:
			o, err := f.orientation()
			a.Facing = o
			return err
		case bodyField3:
			v, err := f.uint32("target")
			a.Target = v
			return err
		}
		return nil
	})
	return a, err
}

func encodeSnapshot(s PlayerSnapshot) ([]byte, error) {
	if !s.Orientation.Valid() {
		return nil, fmt.Errorf("%w: orientation %d", ErrInvalidPack, s.Orientation)
	}
	var b []byte
	b = appendVarint(b, bodyField1, uint64(s.ID))
	b = appendString(b, bodyField2, s.Name)
	if s.Address.IsValid() {
		addr, err := s.Address.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("%w: snapshot address: %v", ErrInvalidPack, err)
		}
		b = appendBytes(b, bodyField3, addr)
	}
	b = appendString(b, bodyField4, s.Room)
	b = protowire.AppendTag(b, bodyField5, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(s.X))
	b = protowire.AppendTag(b, bodyField6, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(s.Y))
	b = appendVarint(b, bodyField7, uint64(s.Orientation))
	return b, nil
}

func decodeSnapshot(body []byte) (PlayerSnapshot, error) {
	var s PlayerSnapshot
	err := walk("player", body, func(f field) error {
		var err error
		switch f.num {
		case bodyField1:
			var id uint32
			id, err = f.uint32("id")
			s.ID = PlayerID(id)
		case bodyField2:
			var name []byte
			name, err = f.raw("name")
			s.Name = string(name)
		case bodyField3:
			s.Address, err = f.addr("address")
		case bodyField4:
			var room []byte
			room, err = f.raw("room")
			s.Room = string(room)
		case bodyField5:
			s.X, err = f.float32("x")
		case bodyField6:
			s.Y, err = f.float32("y")
		case bodyField7:
			s.Orientation, err = f.orientation()
		}
		return err
	})
	return s, err
}

func encodeDest(d Dest) ([]byte, error) {
	switch d := d.(type) {
	case ToAddress:
		return encodeAddr(d.Addr)
	case Broadcast:
		return nil, nil
	case ToRoom:
		return appendString(nil, bodyField1, d.Name), nil
	case BroadcastExcept:
		return encodeAddr(d.Addr)
	default:
		return nil, fmt.Errorf("%w: unsupported destination %T", ErrInvalidPack, d)
	}
}

func encodeAddr(a netip.AddrPort) ([]byte, error) {
	if !a.IsValid() {
		return nil, fmt.Errorf("%w: destination address is not valid", ErrInvalidPack)
	}
	raw, err := a.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: destination address: %v", ErrInvalidPack, err)
	}
	return appendBytes(nil, bodyField1, raw), nil
}

func decodeDest(tag uint64, body []byte) (Dest, error) {
	if tag > math.MaxUint32 {
		return nil, protoErr("pack", fmt.Sprintf("destination tag %d", tag), ErrUnknownTag)
	}
	switch DestTag(tag) {
	case TagAddress:
		a, err := decodeDestAddr(body)
		return ToAddress{Addr: a}, err
	case TagBroadcast:
		return Broadcast{}, walk("broadcast", body, func(field) error { return nil })
	case TagRoom:
		var d ToRoom
		err := walk("room", body, func(f field) error {
			if f.num == bodyField1 {
				name, err := f.raw("name")
				d.Name = string(name)
				return err
			}
			return nil
		})
		return d, err
	case TagBroadcastExcept:
		a, err := decodeDestAddr(body)
		return BroadcastExcept{Addr: a}, err
	default:
		return nil, protoErr("pack", fmt.Sprintf("destination tag %d", tag), ErrUnknownTag)
	}
}

func decodeDestAddr(body []byte) (netip.AddrPort, error) {
	var a netip.AddrPort
	err := walk("destination", body, func(f field) error {
		if f.num == bodyField1 {
			var err error
			a, err = f.addr("address")
			return err
		}
		return nil
	})
	if err != nil {
		return netip.AddrPort{}, err
	}
	if !a.IsValid() {
		return netip.AddrPort{}, protoErr("destination", "missing address", nil)
	}
	return a, nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}
