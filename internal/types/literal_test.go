package types

import (
	"bytes"
	"testing"

	"github.com/intellect4all/numstore/internal/storeerr"
)

func TestEncodeIntInRange(t *testing.T) {
	b, err := Encode(Literal{Kind: LitInt, Uint: 255}, &Type{Kind: U8})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(b, []byte{255}) {
		t.Fatalf("got %v, want [255]", b)
	}
}

func TestEncodeIntOutOfRangeIsArith(t *testing.T) {
	_, err := Encode(Literal{Kind: LitInt, Uint: 256}, &Type{Kind: U8})
	if !storeerr.Is(err, storeerr.Arith) {
		t.Fatalf("got %v, want Arith", err)
	}
}

func TestEncodeNegativeIntoUnsignedIsArith(t *testing.T) {
	_, err := Encode(Literal{Kind: LitInt, Uint: 5, Neg: true}, &Type{Kind: U16})
	if !storeerr.Is(err, storeerr.Arith) {
		t.Fatalf("got %v, want Arith", err)
	}
}

func TestEncodeSignedBoundary(t *testing.T) {
	b, err := Encode(Literal{Kind: LitInt, Uint: 128, Neg: true}, &Type{Kind: I8})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(b, []byte{0x80}) { // -128 two's complement
		t.Fatalf("got %v, want [0x80]", b)
	}
	if _, err := Encode(Literal{Kind: LitInt, Uint: 129, Neg: true}, &Type{Kind: I8}); !storeerr.Is(err, storeerr.Arith) {
		t.Fatalf("got %v, want Arith for -129 into i8", err)
	}
}

func TestEncodeWrongLiteralKindIsSyntax(t *testing.T) {
	_, err := Encode(Literal{Kind: LitString, Str: "x"}, &Type{Kind: I32})
	if !storeerr.Is(err, storeerr.Syntax) {
		t.Fatalf("got %v, want Syntax", err)
	}
}

func TestEncodeStringIntoByteArray(t *testing.T) {
	ty := &Type{Kind: Array, Dims: []uint32{4}, Elem: &Type{Kind: U8}}
	b, err := Encode(Literal{Kind: LitString, Str: "ab"}, ty)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(b, []byte{'a', 'b', 0, 0}) {
		t.Fatalf("got %v, want zero-padded ab00", b)
	}
}

func TestEncodeStringTooLongIsSyntax(t *testing.T) {
	ty := &Type{Kind: Array, Dims: []uint32{2}, Elem: &Type{Kind: U8}}
	_, err := Encode(Literal{Kind: LitString, Str: "abc"}, ty)
	if !storeerr.Is(err, storeerr.Syntax) {
		t.Fatalf("got %v, want Syntax", err)
	}
}

func TestEncodeArrayOfInts(t *testing.T) {
	ty := &Type{Kind: Array, Dims: []uint32{3}, Elem: &Type{Kind: U16}}
	lit := Literal{Kind: LitArray, Elems: []Literal{
		{Kind: LitInt, Uint: 1},
		{Kind: LitInt, Uint: 2},
		{Kind: LitInt, Uint: 3},
	}}
	b, err := Encode(lit, ty)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{1, 0, 2, 0, 3, 0}
	if !bytes.Equal(b, want) {
		t.Fatalf("got %v, want %v", b, want)
	}
}

func TestEncodeArrayWrongLengthIsSyntax(t *testing.T) {
	ty := &Type{Kind: Array, Dims: []uint32{3}, Elem: &Type{Kind: U8}}
	lit := Literal{Kind: LitArray, Elems: []Literal{{Kind: LitInt, Uint: 1}}}
	if _, err := Encode(lit, ty); !storeerr.Is(err, storeerr.Syntax) {
		t.Fatalf("got %v, want Syntax", err)
	}
}

func TestEncodeStruct(t *testing.T) {
	ty := &Type{Kind: Struct, Fields: []Field{
		{Name: "x", Type: &Type{Kind: U8}},
		{Name: "y", Type: &Type{Kind: U8}},
	}}
	lit := Literal{Kind: LitStruct, Fields: map[string]Literal{
		"x": {Kind: LitInt, Uint: 10},
		"y": {Kind: LitInt, Uint: 20},
	}}
	b, err := Encode(lit, ty)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(b, []byte{10, 20}) {
		t.Fatalf("got %v, want [10 20]", b)
	}
}

func TestEncodeUnionPicksDiscriminant(t *testing.T) {
	ty := &Type{Kind: Union, Fields: []Field{
		{Name: "small", Type: &Type{Kind: U8}},
		{Name: "big", Type: &Type{Kind: U32}},
	}}
	lit := Literal{Kind: LitStruct, Fields: map[string]Literal{
		"big": {Kind: LitInt, Uint: 300},
	}}
	b, err := Encode(lit, ty)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if b[0] != 1 {
		t.Fatalf("discriminant = %d, want 1 (big is index 1)", b[0])
	}
	if len(b) != 5 { // 1 tag + 4-byte u32 payload
		t.Fatalf("got len %d, want 5", len(b))
	}
}

func TestEncodeEnumVariant(t *testing.T) {
	ty := &Type{Kind: Enum, Variants: []string{"red", "green", "blue"}}
	b, err := Encode(Literal{Kind: LitString, Str: "green"}, ty)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(b, []byte{1}) {
		t.Fatalf("got %v, want [1]", b)
	}
}

func TestEncodeUnknownEnumVariantIsSyntax(t *testing.T) {
	ty := &Type{Kind: Enum, Variants: []string{"red", "green"}}
	_, err := Encode(Literal{Kind: LitString, Str: "purple"}, ty)
	if !storeerr.Is(err, storeerr.Syntax) {
		t.Fatalf("got %v, want Syntax", err)
	}
}

func TestEncodeFloatOutOfRangeIsArith(t *testing.T) {
	_, err := Encode(Literal{Kind: LitFloat, Float: 1e40}, &Type{Kind: F32})
	if !storeerr.Is(err, storeerr.Arith) {
		t.Fatalf("got %v, want Arith", err)
	}
}

func TestEncodeBool(t *testing.T) {
	b, err := Encode(Literal{Kind: LitBool, Bool: true}, &Type{Kind: Bool})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(b, []byte{1}) {
		t.Fatalf("got %v, want [1]", b)
	}
}
