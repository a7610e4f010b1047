package protocol

import (
	"fmt"
	"math"
	"net/netip"

	"google.golang.org/protobuf/encoding/protowire"
)

// field is one decoded protobuf field. Only the member matching typ is set.
type field struct {
	msg     string
	num     protowire.Number
	typ     protowire.Type
	varint  uint64
	fixed32 uint32
	bytes   []byte
}

// walk visits every field of the protobuf message in b in order. Fields of
// wire types the codec never emits are skipped so that newer peers can add
// fields without breaking older ones.
func walk(msg string, b []byte, visit func(field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protoErr(msg, "bad field tag", protowire.ParseError(n))
		}
		b = b[n:]

		f := field{msg: msg, num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			f.fixed32, n = protowire.ConsumeFixed32(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protoErr(msg, fmt.Sprintf("field %d truncated", num), protowire.ParseError(n))
		}
		b = b[n:]

		if err := visit(f); err != nil {
			return err
		}
	}
	return nil
}

func (f field) expect(name string, typ protowire.Type) error {
	if f.typ != typ {
		return protoErr(f.msg, fmt.Sprintf("%s: wire type %d, want %d", name, f.typ, typ), nil)
	}
	return nil
}

func (f field) uint(name string) (uint64, error) {
	if err := f.expect(name, protowire.VarintType); err != nil {
		return 0, err
	}
	return f.varint, nil
}

func (f field) uint32(name string) (uint32, error) {
	v, err := f.uint(name)
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, protoErr(f.msg, fmt.Sprintf("%s: %d overflows uint32", name, v), nil)
	}
	return uint32(v), nil
}

func (f field) float32(name string) (float32, error) {
	if err := f.expect(name, protowire.Fixed32Type); err != nil {
		return 0, err
	}
	return math.Float32frombits(f.fixed32), nil
}

func (f field) raw(name string) ([]byte, error) {
	if err := f.expect(name, protowire.BytesType); err != nil {
		return nil, err
	}
	return f.bytes, nil
}

func (f field) addr(name string) (netip.AddrPort, error) {
	raw, err := f.raw(name)
	if err != nil {
		return netip.AddrPort{}, err
	}
	var a netip.AddrPort
	if err := a.UnmarshalBinary(raw); err != nil {
		return netip.AddrPort{}, protoErr(f.msg, name, err)
	}
	return a, nil
}

func (f field) orientation() (Orientation, error) {
	v, err := f.uint("orientation")
	if err != nil {
		return 0, err
	}
	if v > uint64(North) {
		return 0, protoErr(f.msg, fmt.Sprintf("orientation %d", v), ErrUnknownTag)
	}
	return Orientation(v), nil
}
