// Package dsl implements the statement scanner, parser, and semantic
// lowering for the external DSL surface of spec.md §6: `create`, `delete`,
// `insert`, `read`, `write`. Grounded on
// original_source/libs/nscompiler/scanner.c's magic-token keyword table
// (TT_CREATE/TT_DELETE/TT_INSERT, TT_PRIM with per-primitive tokens) and
// original_source/src/numstore_parsing.c's numeric-literal parse
// functions (try_parse_u64_neg's sign/magnitude split in particular,
// already carried into internal/types.Literal).
package dsl

import "github.com/intellect4all/numstore/internal/types"

// TokenKind tags a scanned lexeme, mirroring scanner.c's `token_t` enum
// (TT_CREATE, TT_PRIM, TT_IDENTIFIER, ...) narrowed to what the DSL
// surface in spec.md §6 actually needs.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokIdent
	TokInt
	TokFloat
	TokString
	TokTrue
	TokFalse

	TokCreate
	TokDelete
	TokInsert
	TokRead
	TokWrite
	TokRange // the `range` builtin, spec.md §6 DSL surface

	TokLBracket // [
	TokRBracket // ]
	TokLBrace   // {
	TokRBrace   // }
	TokLParen   // (
	TokRParen   // )
	TokComma
	TokDotDot // ..
	TokEquals
	TokSemi
	TokColon

	TokPrimType // u8, i32, f64, ... — carries PrimKind
)

// keywords mirrors scanner.c's op_codes/magic_tokens static tables: a
// flat string->token lookup built once, checked before falling back to
// TokIdent.
var keywords = map[string]TokenKind{
	"create": TokCreate,
	"delete": TokDelete,
	"insert": TokInsert,
	"read":   TokRead,
	"write":  TokWrite,
	"range":  TokRange,
	"true":   TokTrue,
	"false":  TokFalse,
}

// primKeywords mirrors scanner.c's TT_PRIM magic_tokens, mapping the
// spelled primitive type name to its internal/types.Kind.
var primKeywords = map[string]types.Kind{
	"u8":   types.U8,
	"u16":  types.U16,
	"u32":  types.U32,
	"u64":  types.U64,
	"i8":   types.I8,
	"i16":  types.I16,
	"i32":  types.I32,
	"i64":  types.I64,
	"f16":  types.F16,
	"f32":  types.F32,
	"f64":  types.F64,
	"f128": types.F128,
	"cf32": types.C32,
	"cf64": types.C64,
	"cf128": types.C128,
	"bool": types.Bool,
}

// Token is one scanned lexeme: its kind, the source text (for
// identifiers/numbers/strings), and for TokPrimType the resolved
// primitive Kind.
type Token struct {
	Kind TokenKind
	Text string
	Prim types.Kind
	Pos  int // byte offset into the source line, for error messages
}
