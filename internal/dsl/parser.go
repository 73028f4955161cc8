package dsl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/intellect4all/numstore/internal/storeerr"
	"github.com/intellect4all/numstore/internal/types"
)

// parser is a recursive-descent parser over a flat token slice, the Go
// analogue of scanner.c/numstore_parsing.c's hand-rolled C state
// machines — one statement per Parse call, matching the DSL surface's
// line-oriented external-collaborator role (spec.md §6).
type parser struct {
	toks []Token
	pos  int
}

// Parse scans and parses one DSL statement (spec.md §6: `create`,
// `delete`, `insert`, `read`, `write`).
func Parse(src string) (Statement, error) {
	toks, err := NewScanner(src).Tokens()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokSemi); err != nil {
		return nil, err
	}
	if p.cur().Kind != TokEOF {
		return nil, p.errf("unexpected trailing input after ';'")
	}
	return stmt, nil
}

func (p *parser) cur() Token  { return p.toks[p.pos] }
func (p *parser) advance() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) errf(format string, args ...any) error {
	return fmt.Errorf("%w: at token %d (%q): "+format, append([]any{storeerr.Syntax, p.cur().Pos, p.cur().Text}, args...)...)
}

func (p *parser) expect(k TokenKind) error {
	if p.cur().Kind != k {
		return p.errf("expected token kind %d, got %d", k, p.cur().Kind)
	}
	p.advance()
	return nil
}

func (p *parser) expectIdent() (string, error) {
	if p.cur().Kind != TokIdent {
		return "", p.errf("expected identifier")
	}
	return p.advance().Text, nil
}

func (p *parser) parseStatement() (Statement, error) {
	switch p.cur().Kind {
	case TokCreate:
		p.advance()
		return p.parseCreate()
	case TokDelete:
		p.advance()
		return p.parseDelete()
	case TokInsert:
		p.advance()
		return p.parseInsertOrWrite(false)
	case TokRead:
		p.advance()
		return p.parseRead()
	case TokWrite:
		p.advance()
		return p.parseInsertOrWrite(true)
	default:
		return nil, p.errf("expected statement keyword (create/delete/insert/read/write)")
	}
}

func (p *parser) parseCreate() (Statement, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	ty, err := p.parseType()
	if err != nil {
		return nil, err
	}
	return CreateStmt{Name: name, Type: ty}, nil
}

func (p *parser) parseDelete() (Statement, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return DeleteStmt{Name: name}, nil
}

func (p *parser) parseRead() (Statement, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	rng, err := p.parseRange()
	if err != nil {
		return nil, err
	}
	return ReadStmt{Name: name, Range: rng}, nil
}

func (p *parser) parseInsertOrWrite(isWrite bool) (Statement, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	rng, err := p.parseRange()
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokEquals); err != nil {
		return nil, err
	}
	val, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if isWrite {
		return WriteStmt{Name: name, Range: rng, Value: val}, nil
	}
	return InsertStmt{Name: name, Range: rng, Value: val}, nil
}

// parseRange parses `[a..b]` or `[a]`, per spec.md §6's
// `<name>[<range>]` syntax.
func (p *parser) parseRange() (Range, error) {
	if err := p.expect(TokLBracket); err != nil {
		return Range{}, err
	}
	a, err := p.parseIntLiteralValue()
	if err != nil {
		return Range{}, err
	}
	end := a + 1
	if p.cur().Kind == TokDotDot {
		p.advance()
		b, err := p.parseIntLiteralValue()
		if err != nil {
			return Range{}, err
		}
		end = b
	}
	if err := p.expect(TokRBracket); err != nil {
		return Range{}, err
	}
	return Range{Start: a, End: end}, nil
}

func (p *parser) parseIntLiteralValue() (int64, error) {
	if p.cur().Kind != TokInt {
		return 0, p.errf("expected integer in range")
	}
	tok := p.advance()
	v, err := strconv.ParseInt(tok.Text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: range bound %q: %v", storeerr.Syntax, tok.Text, err)
	}
	return v, nil
}

// parseExpr parses insert/write's right-hand side: a literal, the
// `range(a,b)` builtin, an array literal `[...]`, or a struct/union
// literal `{...}`.
func (p *parser) parseExpr() (Expr, error) {
	switch p.cur().Kind {
	case TokRange:
		p.advance()
		if err := p.expect(TokLParen); err != nil {
			return nil, err
		}
		a, err := p.parseIntLiteralValue()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokComma); err != nil {
			return nil, err
		}
		b, err := p.parseIntLiteralValue()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		return RangeExpr{A: a, B: b}, nil
	case TokLBracket:
		return p.parseArrayExpr()
	case TokLBrace:
		return p.parseStructExpr()
	default:
		lit, err := p.parseScalarLiteral()
		if err != nil {
			return nil, err
		}
		return LiteralExpr{Lit: lit}, nil
	}
}

func (p *parser) parseArrayExpr() (Expr, error) {
	if err := p.expect(TokLBracket); err != nil {
		return nil, err
	}
	var elems []Expr
	for p.cur().Kind != TokRBracket {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
		if p.cur().Kind == TokComma {
			p.advance()
			continue
		}
		break
	}
	if err := p.expect(TokRBracket); err != nil {
		return nil, err
	}
	return ArrayExpr{Elems: elems}, nil
}

func (p *parser) parseStructExpr() (Expr, error) {
	if err := p.expect(TokLBrace); err != nil {
		return nil, err
	}
	fields := map[string]Expr{}
	for p.cur().Kind != TokRBrace {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokColon); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		fields[name] = val
		if p.cur().Kind == TokComma {
			p.advance()
			continue
		}
		break
	}
	if err := p.expect(TokRBrace); err != nil {
		return nil, err
	}
	return StructExpr{Fields: fields}, nil
}

// parseScalarLiteral parses an int/float/string/bool literal straight
// into a types.Literal — magnitude/sign split exactly as
// numstore_parsing.c's try_parse_u64_neg does (internal/types.Literal
// already carries Uint+Neg for this reason).
func (p *parser) parseScalarLiteral() (types.Literal, error) {
	tok := p.cur()
	switch tok.Kind {
	case TokInt:
		p.advance()
		text := tok.Text
		neg := strings.HasPrefix(text, "-")
		if neg {
			text = text[1:]
		}
		v, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return types.Literal{}, fmt.Errorf("%w: integer literal %q: %v", storeerr.Syntax, tok.Text, err)
		}
		return types.Literal{Kind: types.LitInt, Uint: v, Neg: neg}, nil
	case TokFloat:
		p.advance()
		v, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return types.Literal{}, fmt.Errorf("%w: float literal %q: %v", storeerr.Syntax, tok.Text, err)
		}
		return types.Literal{Kind: types.LitFloat, Float: v}, nil
	case TokString:
		p.advance()
		return types.Literal{Kind: types.LitString, Str: tok.Text}, nil
	case TokTrue:
		p.advance()
		return types.Literal{Kind: types.LitBool, Bool: true}, nil
	case TokFalse:
		p.advance()
		return types.Literal{Kind: types.LitBool, Bool: false}, nil
	case TokIdent:
		// A bare identifier names an enum variant (types.Encode accepts a
		// LitString naming a variant — see internal/types/literal.go).
		p.advance()
		return types.Literal{Kind: types.LitString, Str: tok.Text}, nil
	default:
		return types.Literal{}, p.errf("expected a literal value")
	}
}

// parseType parses `<type>` in `create <name> <type>;`, covering
// SPEC_FULL.md §3's full Array/Struct/Union/Enum system: primitives,
// `[N]T` arrays (nested for multi-rank), `struct{name:T,...}`,
// `union{name:T,...}`, `enum{a,b,c}`.
func (p *parser) parseType() (*TypeExpr, error) {
	switch p.cur().Kind {
	case TokPrimType:
		prim := p.advance().Prim
		return &TypeExpr{Prim: prim}, nil
	case TokLBracket:
		p.advance()
		n, err := p.parseIntLiteralValue()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokRBracket); err != nil {
			return nil, err
		}
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		return &TypeExpr{Composite: "array", Dims: []uint32{uint32(n)}, Elem: elem}, nil
	case TokIdent:
		kw := p.cur().Text
		switch kw {
		case "struct", "union":
			p.advance()
			fields, err := p.parseFieldList()
			if err != nil {
				return nil, err
			}
			return &TypeExpr{Composite: kw, Fields: fields}, nil
		case "enum":
			p.advance()
			variants, err := p.parseIdentList()
			if err != nil {
				return nil, err
			}
			return &TypeExpr{Composite: "enum", Variants: variants}, nil
		}
		return nil, p.errf("unknown type name %q", kw)
	default:
		return nil, p.errf("expected a type")
	}
}

func (p *parser) parseFieldList() ([]FieldExpr, error) {
	if err := p.expect(TokLBrace); err != nil {
		return nil, err
	}
	var fields []FieldExpr
	for p.cur().Kind != TokRBrace {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokColon); err != nil {
			return nil, err
		}
		ty, err := p.parseType()
		if err != nil {
			return nil, err
		}
		fields = append(fields, FieldExpr{Name: name, Type: ty})
		if p.cur().Kind == TokComma {
			p.advance()
			continue
		}
		break
	}
	if err := p.expect(TokRBrace); err != nil {
		return nil, err
	}
	return fields, nil
}

func (p *parser) parseIdentList() ([]string, error) {
	if err := p.expect(TokLBrace); err != nil {
		return nil, err
	}
	var names []string
	for p.cur().Kind != TokRBrace {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		names = append(names, name)
		if p.cur().Kind == TokComma {
			p.advance()
			continue
		}
		break
	}
	if err := p.expect(TokRBrace); err != nil {
		return nil, err
	}
	return names, nil
}
