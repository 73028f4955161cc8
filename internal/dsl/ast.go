package dsl

import "github.com/intellect4all/numstore/internal/types"

// Range is the `[<range>]` suffix of insert/read/write statements
// (spec.md §6): a half-open byte-offset-independent element range
// `[a..b]`, or a single starting offset `[a]` (End == Start+1) for a
// point insert.
type Range struct {
	Start, End int64
}

// Expr is the right-hand side of `insert`/`write`: either a literal value
// (validated against the variable's declared type in internal/types) or
// the `range(a,b)` builtin generator spec.md §6 names explicitly.
type Expr interface{ exprNode() }

type LiteralExpr struct{ Lit types.Literal }

func (LiteralExpr) exprNode() {}

// RangeExpr lowers to the little-endian encoding of a, a+1, ..., b-1 cast
// to the variable's element type (SPEC_FULL.md §4's `range(a,b)` builtin),
// driving the seed-suite scenario 1 end-to-end test in spec.md §8.
type RangeExpr struct{ A, B int64 }

func (RangeExpr) exprNode() {}

// ArrayExpr/StructExpr let a literal be written `[1, 2, 3]` or
// `{x: 1, y: 2}` directly in DSL source rather than only through Go-level
// construction of types.Literal.
type ArrayExpr struct{ Elems []Expr }

func (ArrayExpr) exprNode() {}

type StructExpr struct{ Fields map[string]Expr }

func (StructExpr) exprNode() {}

// TypeExpr is the parsed form of `<type>` in `create <name> <type>;`,
// mirroring SPEC_FULL.md §3's Array/Struct/Union/Enum system.
type TypeExpr struct {
	Prim     types.Kind // valid when Composite == ""
	Composite string    // "", "array", "struct", "union", "enum"
	Dims     []uint32   // array
	Elem     *TypeExpr  // array
	Fields   []FieldExpr
	Variants []string // enum
}

type FieldExpr struct {
	Name string
	Type *TypeExpr
}

// Statement is one parsed DSL statement (spec.md §6 DSL surface).
type Statement interface{ stmtNode() }

type CreateStmt struct {
	Name string
	Type *TypeExpr
}

func (CreateStmt) stmtNode() {}

type DeleteStmt struct{ Name string }

func (DeleteStmt) stmtNode() {}

type InsertStmt struct {
	Name  string
	Range Range
	Value Expr
}

func (InsertStmt) stmtNode() {}

type ReadStmt struct {
	Name  string
	Range Range
}

func (ReadStmt) stmtNode() {}

type WriteStmt struct {
	Name  string
	Range Range
	Value Expr
}

func (WriteStmt) stmtNode() {}
