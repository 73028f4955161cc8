// Package types implements the tagged type union the DSL surface uses to
// declare variables (spec.md §3 "Variable"), generalized from
// original_source/src/numstore_dtype.c/.h's flat scalar dtype enum into
// the nested array/struct/union/enum type system spec.md describes. A
// Type's Encode output is the "serialized type" (tlen) blob a hash-index
// entry stores alongside a variable's name (internal/hashindex.Entry.Type).
package types

import "fmt"

// Kind is the tag distinguishing a Type's shape (spec.md §3's "kind"
// field of a Variable's declared type).
type Kind uint8

const (
	U8 Kind = iota + 1
	U16
	U32
	U64
	I8
	I16
	I32
	I64
	F16
	F32
	F64
	F128
	Bool
	C32
	C64
	C128
	Array
	Struct
	Union
	Enum
)

func (k Kind) String() string {
	switch k {
	case U8:
		return "u8"
	case U16:
		return "u16"
	case U32:
		return "u32"
	case U64:
		return "u64"
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F16:
		return "f16"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case F128:
		return "f128"
	case Bool:
		return "bool"
	case C32:
		return "c32"
	case C64:
		return "c64"
	case C128:
		return "c128"
	case Array:
		return "array"
	case Struct:
		return "struct"
	case Union:
		return "union"
	case Enum:
		return "enum"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// IsPrimitive reports whether k is a scalar leaf kind (everything
// original_source's flat dtype enum covered, plus f16/bool which
// spec.md adds and the original did not).
func (k Kind) IsPrimitive() bool {
	return k >= U8 && k <= C128
}

// Field is one named member of a Struct or Union.
type Field struct {
	Name string
	Type *Type
}

// Type is the tagged union itself. Exactly the fields relevant to Kind
// are populated; the rest are zero.
type Type struct {
	Kind Kind

	// Array: Dims holds one entry per rank (outermost first) and Elem is
	// the innermost element type — [N][M]T decodes to Dims=[N,M],
	// Elem=T, matching spec.md's single Array kind with a "rank, dims"
	// field rather than the original's rank-1-only fixed array.
	Dims []uint32
	Elem *Type

	// Struct / Union: ordered named fields. A Union additionally carries
	// an implicit u8 discriminant tag ahead of its payload on the wire
	// (see literal.go), per spec.md §3's "tagged; on-disk tag is a u8
	// index".
	Fields []Field

	// Enum: the variant names, in declaration order; BackingKind
	// derives the smallest unsigned primitive that indexes them all.
	Variants []string
}

// BackingKind returns the smallest unsigned integer primitive that can
// index t's variants (spec.md: "backing integer is the smallest unsigned
// primitive that fits the variant count").
func (t *Type) BackingKind() Kind {
	n := len(t.Variants)
	switch {
	case n <= 1<<8:
		return U8
	case n <= 1<<16:
		return U16
	default:
		return U32
	}
}

// PrimitiveSize returns the fixed wire size of a primitive kind in bytes.
// Composite kinds (Array/Struct/Union/Enum) are not primitives and panic
// if passed here — callers use Type.Size for those.
func (k Kind) PrimitiveSize() int {
	switch k {
	case U8, I8, Bool:
		return 1
	case U16, I16, F16:
		return 2
	case U32, I32, F32, C32:
		return 4
	case U64, I64, F64, C64:
		return 8
	case F128, C128:
		return 16
	default:
		panic(fmt.Sprintf("types: %s is not a primitive kind", k))
	}
}

// Size returns t's fixed on-disk byte width, or an error if t contains a
// kind whose size cannot be determined statically (none currently —
// every Type spec.md allows is fixed-width, matching the rptree's
// fixed-stride element model).
func (t *Type) Size() (int, error) {
	switch t.Kind {
	case Array:
		elemSize, err := t.Elem.Size()
		if err != nil {
			return 0, err
		}
		n := 1
		for _, d := range t.Dims {
			n *= int(d)
		}
		return n * elemSize, nil
	case Struct:
		total := 0
		for _, f := range t.Fields {
			sz, err := f.Type.Size()
			if err != nil {
				return 0, err
			}
			total += sz
		}
		return total, nil
	case Union:
		max := 0
		for _, f := range t.Fields {
			sz, err := f.Type.Size()
			if err != nil {
				return 0, err
			}
			if sz > max {
				max = sz
			}
		}
		return 1 + max, nil // 1 byte discriminant tag + largest member
	case Enum:
		return t.BackingKind().PrimitiveSize(), nil
	default:
		return t.Kind.PrimitiveSize(), nil
	}
}
