package types

import (
	"bytes"
	"testing"

	"github.com/intellect4all/numstore/internal/storeerr"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []*Type{
		{Kind: U8},
		{Kind: I64},
		{Kind: F128},
		{Kind: C64},
		{Kind: Array, Dims: []uint32{4}, Elem: &Type{Kind: U8}},
		{Kind: Array, Dims: []uint32{2, 3}, Elem: &Type{Kind: F32}},
		{
			Kind: Struct,
			Fields: []Field{
				{Name: "x", Type: &Type{Kind: I32}},
				{Name: "y", Type: &Type{Kind: I32}},
			},
		},
		{
			Kind: Union,
			Fields: []Field{
				{Name: "i", Type: &Type{Kind: I64}},
				{Name: "f", Type: &Type{Kind: F64}},
			},
		},
		{Kind: Enum, Variants: []string{"red", "green", "blue"}},
	}

	for _, tc := range cases {
		enc := tc.Encode()
		got, err := Decode(enc)
		if err != nil {
			t.Fatalf("Decode(%v): %v", tc.Kind, err)
		}
		if !typesEqual(tc, got) {
			t.Fatalf("round trip mismatch for %v: got %+v", tc.Kind, got)
		}
	}
}

func typesEqual(a, b *Type) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case Array:
		if len(a.Dims) != len(b.Dims) {
			return false
		}
		for i := range a.Dims {
			if a.Dims[i] != b.Dims[i] {
				return false
			}
		}
		return typesEqual(a.Elem, b.Elem)
	case Struct, Union:
		if len(a.Fields) != len(b.Fields) {
			return false
		}
		for i := range a.Fields {
			if a.Fields[i].Name != b.Fields[i].Name || !typesEqual(a.Fields[i].Type, b.Fields[i].Type) {
				return false
			}
		}
		return true
	case Enum:
		if len(a.Variants) != len(b.Variants) {
			return false
		}
		for i := range a.Variants {
			if a.Variants[i] != b.Variants[i] {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func TestDecodeTruncatedIsCorrupt(t *testing.T) {
	_, err := Decode([]byte{byte(Struct), 0x05, 0x00})
	if !storeerr.Is(err, storeerr.Corrupt) {
		t.Fatalf("got %v, want Corrupt", err)
	}
}

func TestStructSize(t *testing.T) {
	ty := &Type{Kind: Struct, Fields: []Field{
		{Name: "a", Type: &Type{Kind: U32}},
		{Name: "b", Type: &Type{Kind: U8}},
	}}
	sz, err := ty.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if sz != 5 {
		t.Fatalf("got size %d, want 5", sz)
	}
}

func TestUnionSize(t *testing.T) {
	ty := &Type{Kind: Union, Fields: []Field{
		{Name: "small", Type: &Type{Kind: U8}},
		{Name: "big", Type: &Type{Kind: U64}},
	}}
	sz, err := ty.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if sz != 9 { // 1 tag byte + 8-byte largest member
		t.Fatalf("got size %d, want 9", sz)
	}
}

func TestEncodeRejectsEmptyBlob(t *testing.T) {
	if _, err := Decode(nil); !storeerr.Is(err, storeerr.Corrupt) {
		t.Fatalf("got %v, want Corrupt", err)
	}
}

func TestArrayEncodeMatchesDirectBytes(t *testing.T) {
	ty := &Type{Kind: Array, Dims: []uint32{3}, Elem: &Type{Kind: U8}}
	enc := ty.Encode()
	want := []byte{byte(Array), 1, 3, 0, 0, 0, byte(U8)}
	if !bytes.Equal(enc, want) {
		t.Fatalf("got %v, want %v", enc, want)
	}
}
