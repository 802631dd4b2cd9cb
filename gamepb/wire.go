// Package gamepb holds the wire types exchanged with the farm gateway.
//
// The gate speaks length-less protobuf frames over a binary websocket:
// every frame is a Message envelope whose body carries one of the
// service-specific payloads below. The schema is fixed by the remote
// server, so the codecs are assembled by hand on protowire instead of
// generated stubs.
package gamepb

import (
	"google.golang.org/protobuf/encoding/protowire"

	"qq-farm-runtime/errors"
)

// wireValue is one decoded field value handed to walk callbacks.
// num holds varint/fixed values, raw holds length-delimited payloads.
type wireValue struct {
	num uint64
	raw []byte
}

func (v wireValue) int64() int64   { return int64(v.num) }
func (v wireValue) int32() int32   { return int32(v.num) }
func (v wireValue) bool() bool     { return v.num != 0 }
func (v wireValue) string() string { return string(v.raw) }

func (v wireValue) bytes() []byte {
	out := make([]byte, len(v.raw))
	copy(out, v.raw)
	return out
}

// walk iterates the fields of one encoded message, decoding each field
// value and passing it to fn. Unknown fields are decoded and dropped by
// the caller simply not matching the field number.
func walk(data []byte, fn func(num protowire.Number, typ protowire.Type, val wireValue) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.WithStack(protowire.ParseError(n))
		}
		data = data[n:]

		var val wireValue
		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return errors.WithStack(protowire.ParseError(m))
			}
			val.num = v
			n = m
		case protowire.Fixed32Type:
			v, m := protowire.ConsumeFixed32(data)
			if m < 0 {
				return errors.WithStack(protowire.ParseError(m))
			}
			val.num = uint64(v)
			n = m
		case protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(data)
			if m < 0 {
				return errors.WithStack(protowire.ParseError(m))
			}
			val.num = v
			n = m
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return errors.WithStack(protowire.ParseError(m))
			}
			val.raw = v
			n = m
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return errors.WithStack(protowire.ParseError(m))
			}
			n = m
		}

		if err := fn(num, typ, val); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// Append helpers follow proto3 presence rules: zero values are omitted.

func appendInt64(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	return appendInt64(b, num, int64(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

type marshaler interface {
	Marshal() []byte
}

func appendMessage(b []byte, num protowire.Number, m marshaler) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.Marshal())
}

// appendPackedInt64 writes a repeated int64 field in packed encoding.
func appendPackedInt64(b []byte, num protowire.Number, vs []int64) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

// consumeRepeatedInt64 accepts both packed and unpacked encodings of a
// repeated varint field.
func consumeRepeatedInt64(dst []int64, typ protowire.Type, val wireValue) ([]int64, error) {
	if typ == protowire.VarintType {
		return append(dst, val.int64()), nil
	}
	data := val.raw
	for len(data) > 0 {
		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return dst, errors.WithStack(protowire.ParseError(n))
		}
		dst = append(dst, int64(v))
		data = data[n:]
	}
	return dst, nil
}
