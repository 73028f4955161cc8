package types

import (
	"encoding/binary"
	"fmt"

	"github.com/intellect4all/numstore/internal/storeerr"
)

// Encode serializes t to a self-describing byte string that Decode can
// round-trip — the tlen blob a hash-leaf entry stores next to a
// variable's name (spec.md §3 "Hash-leaf page").
func (t *Type) Encode() []byte {
	var buf []byte
	encodeInto(&buf, t)
	return buf
}

func encodeInto(buf *[]byte, t *Type) {
	*buf = append(*buf, byte(t.Kind))
	switch t.Kind {
	case Array:
		*buf = append(*buf, byte(len(t.Dims)))
		for _, d := range t.Dims {
			*buf = appendUint32(*buf, d)
		}
		encodeInto(buf, t.Elem)
	case Struct, Union:
		*buf = appendUint16(*buf, uint16(len(t.Fields)))
		for _, f := range t.Fields {
			*buf = appendUint16(*buf, uint16(len(f.Name)))
			*buf = append(*buf, f.Name...)
			encodeInto(buf, f.Type)
		}
	case Enum:
		*buf = appendUint16(*buf, uint16(len(t.Variants)))
		for _, v := range t.Variants {
			*buf = appendUint16(*buf, uint16(len(v)))
			*buf = append(*buf, v...)
		}
	default:
		// Primitive kinds carry no extra payload beyond the tag byte.
	}
}

func appendUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

// Decode parses a Type.Encode blob, erroring with storeerr.Corrupt if b
// contains a truncated or unrecognized encoding (spec.md §7: "hash index
// translate deserialization failures into CORRUPT").
func Decode(b []byte) (*Type, error) {
	t, rest, err := decodeFrom(b)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: trailing bytes after type encoding", storeerr.Corrupt)
	}
	return t, nil
}

func decodeFrom(b []byte) (*Type, []byte, error) {
	if len(b) < 1 {
		return nil, nil, fmt.Errorf("%w: empty type encoding", storeerr.Corrupt)
	}
	kind := Kind(b[0])
	b = b[1:]

	switch kind {
	case Array:
		if len(b) < 1 {
			return nil, nil, fmt.Errorf("%w: truncated array rank", storeerr.Corrupt)
		}
		rank := int(b[0])
		b = b[1:]
		if len(b) < rank*4 {
			return nil, nil, fmt.Errorf("%w: truncated array dims", storeerr.Corrupt)
		}
		dims := make([]uint32, rank)
		for i := 0; i < rank; i++ {
			dims[i] = binary.LittleEndian.Uint32(b)
			b = b[4:]
		}
		elem, rest, err := decodeFrom(b)
		if err != nil {
			return nil, nil, err
		}
		return &Type{Kind: Array, Dims: dims, Elem: elem}, rest, nil

	case Struct, Union:
		if len(b) < 2 {
			return nil, nil, fmt.Errorf("%w: truncated field count", storeerr.Corrupt)
		}
		nfields := int(binary.LittleEndian.Uint16(b))
		b = b[2:]
		fields := make([]Field, nfields)
		for i := 0; i < nfields; i++ {
			if len(b) < 2 {
				return nil, nil, fmt.Errorf("%w: truncated field name length", storeerr.Corrupt)
			}
			nlen := int(binary.LittleEndian.Uint16(b))
			b = b[2:]
			if len(b) < nlen {
				return nil, nil, fmt.Errorf("%w: truncated field name", storeerr.Corrupt)
			}
			name := string(b[:nlen])
			b = b[nlen:]
			ft, rest, err := decodeFrom(b)
			if err != nil {
				return nil, nil, err
			}
			fields[i] = Field{Name: name, Type: ft}
			b = rest
		}
		return &Type{Kind: kind, Fields: fields}, b, nil

	case Enum:
		if len(b) < 2 {
			return nil, nil, fmt.Errorf("%w: truncated variant count", storeerr.Corrupt)
		}
		nvariants := int(binary.LittleEndian.Uint16(b))
		b = b[2:]
		variants := make([]string, nvariants)
		for i := 0; i < nvariants; i++ {
			if len(b) < 2 {
				return nil, nil, fmt.Errorf("%w: truncated variant name length", storeerr.Corrupt)
			}
			nlen := int(binary.LittleEndian.Uint16(b))
			b = b[2:]
			if len(b) < nlen {
				return nil, nil, fmt.Errorf("%w: truncated variant name", storeerr.Corrupt)
			}
			variants[i] = string(b[:nlen])
			b = b[nlen:]
		}
		return &Type{Kind: Enum, Variants: variants}, b, nil

	default:
		if !kind.IsPrimitive() {
			return nil, nil, fmt.Errorf("%w: unrecognized type kind %d", storeerr.Corrupt, kind)
		}
		return &Type{Kind: kind}, b, nil
	}
}
