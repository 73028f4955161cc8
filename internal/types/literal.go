// literal.go grounds internal/types/literal.go named in SPEC_FULL.md §3
// on original_source/libs/nscompiler/literal_validate_type.c: validating
// a parsed DSL literal against a declared Type, surfacing ARITH on
// numeric range overflow and SYNTAX on shape mismatch, then producing
// the literal's fixed-width wire encoding for internal/dsl to hand the
// rptree.
package types

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/intellect4all/numstore/internal/storeerr"
)

// LiteralKind tags the shape of a parsed DSL literal (the scanner/parser
// in internal/dsl produces these; this package only validates and
// encodes them).
type LiteralKind int

const (
	LitInt LiteralKind = iota
	LitFloat
	LitBool
	LitString
	LitArray
	LitStruct
)

// Literal is a parsed literal value awaiting validation against a
// declared Type. Int values carry their magnitude and sign separately
// (Uint, Neg), mirroring numstore_dtype.c's try_parse_u64_neg/isneg
// split — the same reason: a u64 literal's magnitude can exceed what an
// int64 can hold, so sign and magnitude are tracked independently until
// range-checked against the target Kind.
type Literal struct {
	Kind   LiteralKind
	Uint   uint64
	Neg    bool
	Float  float64
	Bool   bool
	Str    string
	Elems  []Literal
	Fields map[string]Literal
}

// Encode validates lit against t and, if valid, returns its fixed-width
// on-disk encoding (t.Size() bytes). Range overflow surfaces as
// storeerr.Arith; shape/kind mismatches surface as storeerr.Syntax —
// exactly the split spec.md §8 describes at the DSL/type boundary.
func Encode(lit Literal, t *Type) ([]byte, error) {
	switch t.Kind {
	case Bool:
		if lit.Kind != LitBool {
			return nil, syntaxf("expected bool literal, got %v", lit.Kind)
		}
		if lit.Bool {
			return []byte{1}, nil
		}
		return []byte{0}, nil

	case U8, U16, U32, U64, I8, I16, I32, I64:
		if lit.Kind != LitInt {
			return nil, syntaxf("expected integer literal for %s, got %v", t.Kind, lit.Kind)
		}
		if !intInRange(t.Kind, lit.Uint, lit.Neg) {
			return nil, fmt.Errorf("%w: %d%s out of range for %s", storeerr.Arith, lit.Uint, signSuffix(lit.Neg), t.Kind)
		}
		return encodeInt(t.Kind, lit.Uint, lit.Neg), nil

	case F16, F32, F64, F128:
		f, err := literalFloat(lit)
		if err != nil {
			return nil, err
		}
		if !floatInRange(t.Kind, f) {
			return nil, fmt.Errorf("%w: %g out of range for %s", storeerr.Arith, f, t.Kind)
		}
		return encodeFloat(t.Kind, f), nil

	case C32, C64, C128:
		return encodeComplexLiteral(lit, t)

	case Array:
		return encodeArray(t.Dims, t.Elem, lit)

	case Struct:
		return encodeStruct(t.Fields, lit)

	case Union:
		return encodeUnion(t.Fields, lit)

	case Enum:
		return encodeEnum(t.Variants, lit)

	default:
		return nil, fmt.Errorf("%w: unencodable type kind %s", storeerr.Syntax, t.Kind)
	}
}

func syntaxf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{storeerr.Syntax}, args...)...)
}

func signSuffix(neg bool) string {
	if neg {
		return " (negative)"
	}
	return ""
}

// intInRange mirrors numstore_dtype.c's dtype_int_in_range exactly,
// generalized from its eight integer dtypes to the matching Kind values.
func intInRange(k Kind, val uint64, neg bool) bool {
	switch k {
	case U8:
		return val <= math.MaxUint8 && !neg
	case U16:
		return val <= math.MaxUint16 && !neg
	case U32:
		return val <= math.MaxUint32 && !neg
	case U64:
		return !neg
	case I8:
		if neg {
			return val <= uint64(math.MaxInt8)+1
		}
		return val <= math.MaxInt8
	case I16:
		if neg {
			return val <= uint64(math.MaxInt16)+1
		}
		return val <= math.MaxInt16
	case I32:
		if neg {
			return val <= uint64(math.MaxInt32)+1
		}
		return val <= math.MaxInt32
	case I64:
		if neg {
			return val <= uint64(math.MaxInt64)+1
		}
		return val <= math.MaxInt64
	default:
		return false
	}
}

func encodeInt(k Kind, val uint64, neg bool) []byte {
	var signed int64
	if neg {
		signed = -int64(val)
	} else {
		signed = int64(val)
	}
	buf := make([]byte, k.PrimitiveSize())
	switch k {
	case U8, I8:
		buf[0] = byte(signed)
	case U16, I16:
		binary.LittleEndian.PutUint16(buf, uint16(signed))
	case U32, I32:
		binary.LittleEndian.PutUint32(buf, uint32(signed))
	case U64, I64:
		binary.LittleEndian.PutUint64(buf, uint64(signed))
	}
	return buf
}

func literalFloat(lit Literal) (float64, error) {
	switch lit.Kind {
	case LitFloat:
		return lit.Float, nil
	case LitInt:
		if lit.Neg {
			return -float64(lit.Uint), nil
		}
		return float64(lit.Uint), nil
	default:
		return 0, syntaxf("expected numeric literal, got %v", lit.Kind)
	}
}

// floatInRange mirrors numstore_dtype.c's dtype_float_in_range, extended
// to F16 (which the original dtype enum did not have) and F128 (which
// Go has no native quad-precision type for, so validation is bounded by
// float64 precision — documented in DESIGN.md).
func floatInRange(k Kind, val float64) bool {
	switch k {
	case F16:
		return val <= maxFloat16 && val >= -maxFloat16
	case F32:
		return val <= math.MaxFloat32 && val >= -math.MaxFloat32
	case F64, F128:
		return val <= math.MaxFloat64 && val >= -math.MaxFloat64
	default:
		return false
	}
}

const maxFloat16 = 65504.0

func encodeFloat(k Kind, val float64) []byte {
	buf := make([]byte, k.PrimitiveSize())
	switch k {
	case F16:
		binary.LittleEndian.PutUint16(buf, float32ToFloat16(float32(val)))
	case F32:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(val)))
	case F64:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(val))
	case F128:
		// No native 128-bit float; store the nearest float64 value in
		// the low 8 bytes and zero the high 8, keeping the type's
		// declared 16-byte wire width.
		binary.LittleEndian.PutUint64(buf[:8], math.Float64bits(val))
	}
	return buf
}

// float32ToFloat16 is a standard round-to-nearest IEEE 754 binary16
// conversion; Go has no native float16 type to delegate to.
func float32ToFloat16(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16((bits >> 16) & 0x8000)
	exp := int32((bits>>23)&0xff) - 127 + 15
	mant := bits & 0x7fffff

	switch {
	case exp <= 0:
		return sign
	case exp >= 0x1f:
		return sign | 0x7c00
	default:
		return sign | uint16(exp<<10) | uint16(mant>>13)
	}
}

func encodeComplexLiteral(lit Literal, t *Type) ([]byte, error) {
	if lit.Kind != LitStruct || len(lit.Fields) != 2 {
		return nil, syntaxf("expected {re, im} literal for %s", t.Kind)
	}
	re, ok := lit.Fields["re"]
	if !ok {
		return nil, syntaxf("%s literal missing \"re\" field", t.Kind)
	}
	im, ok := lit.Fields["im"]
	if !ok {
		return nil, syntaxf("%s literal missing \"im\" field", t.Kind)
	}
	var partKind Kind
	switch t.Kind {
	case C32:
		partKind = F16
	case C64:
		partKind = F32
	case C128:
		partKind = F64
	}
	reBytes, err := Encode(re, &Type{Kind: partKind})
	if err != nil {
		return nil, err
	}
	imBytes, err := Encode(im, &Type{Kind: partKind})
	if err != nil {
		return nil, err
	}
	return append(reBytes, imBytes...), nil
}

func encodeArray(dims []uint32, elem *Type, lit Literal) ([]byte, error) {
	if len(dims) == 0 {
		return Encode(lit, elem)
	}
	n := int(dims[0])

	// A fixed [N]u8/[N]i8 array accepts a string literal no longer than
	// N, zero-padded — original_source's string_fits_fixed.
	if len(dims) == 1 && lit.Kind == LitString && elem.Kind.IsPrimitive() &&
		(elem.Kind == U8 || elem.Kind == I8) {
		if len(lit.Str) > n {
			return nil, syntaxf("string of length %d does not fit in [%d]%s", len(lit.Str), n, elem.Kind)
		}
		buf := make([]byte, n)
		copy(buf, lit.Str)
		return buf, nil
	}

	if lit.Kind != LitArray {
		return nil, syntaxf("expected array literal of length %d", n)
	}
	if len(lit.Elems) != n {
		return nil, syntaxf("array literal has %d elements, want %d", len(lit.Elems), n)
	}
	var out []byte
	for _, e := range lit.Elems {
		b, err := encodeArray(dims[1:], elem, e)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

func encodeStruct(fields []Field, lit Literal) ([]byte, error) {
	if lit.Kind != LitStruct {
		return nil, syntaxf("expected struct literal")
	}
	if len(lit.Fields) != len(fields) {
		return nil, syntaxf("struct literal has %d fields, want %d", len(lit.Fields), len(fields))
	}
	var out []byte
	for _, f := range fields {
		v, ok := lit.Fields[f.Name]
		if !ok {
			return nil, syntaxf("struct literal missing field %q", f.Name)
		}
		b, err := Encode(v, f.Type)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

func encodeUnion(fields []Field, lit Literal) ([]byte, error) {
	if lit.Kind != LitStruct || len(lit.Fields) != 1 {
		return nil, syntaxf("expected single-field union literal")
	}
	maxSize := 0
	for _, f := range fields {
		sz, err := f.Type.Size()
		if err != nil {
			return nil, err
		}
		if sz > maxSize {
			maxSize = sz
		}
	}
	for idx, f := range fields {
		v, ok := lit.Fields[f.Name]
		if !ok {
			continue
		}
		payload, err := Encode(v, f.Type)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 1+maxSize)
		out[0] = byte(idx)
		copy(out[1:], payload)
		return out, nil
	}
	return nil, syntaxf("union literal names no declared field")
}

func encodeEnum(variants []string, lit Literal) ([]byte, error) {
	if lit.Kind != LitString {
		return nil, syntaxf("expected enum variant name literal")
	}
	for i, v := range variants {
		if v == lit.Str {
			backing := (&Type{Kind: Enum, Variants: variants}).BackingKind()
			return encodeInt(backing, uint64(i), false), nil
		}
	}
	return nil, fmt.Errorf("%w: %q is not a variant of this enum", storeerr.Syntax, lit.Str)
}
