package dsl

import (
	"fmt"

	"github.com/intellect4all/numstore/internal/cursor"
	"github.com/intellect4all/numstore/internal/hashindex"
	"github.com/intellect4all/numstore/internal/pager"
	"github.com/intellect4all/numstore/internal/rptree"
	"github.com/intellect4all/numstore/internal/storeerr"
	"github.com/intellect4all/numstore/internal/types"
)

// Engine is the semantic analyzer + lowering step of SPEC_FULL.md §4: it
// resolves a parsed Statement's <name> against the hash index, checks its
// <expr> against the declared type, and drives the matching
// internal/cursor tick loop — `create`->hm_insert+rptree alloc,
// `delete`->hm_delete+rptree free, `insert`/`write`/`read`->rpt_seek+the
// matching rptree op, exactly as SPEC_FULL.md §4 names the lowering.
type Engine struct {
	p    *pager.Pager
	ix   *hashindex.Index
	tree *rptree.Tree
}

func NewEngine(p *pager.Pager, ix *hashindex.Index) *Engine {
	return &Engine{p: p, ix: ix, tree: rptree.New(p)}
}

// Tree exposes the engine's rope tree for callers that need read-only
// queries (e.g. internal/cli's `ds append`, which needs Tree.Size) not
// expressible as a Statement.
func (e *Engine) Tree() *rptree.Tree { return e.tree }

// Result is what Execute returns for a statement that produces data
// (`read`); zero value for statements that don't.
type Result struct {
	Data []byte
}

// Execute runs one parsed statement to completion within tid.
func (e *Engine) Execute(tid uint64, stmt Statement) (Result, error) {
	switch s := stmt.(type) {
	case CreateStmt:
		return Result{}, e.execCreate(tid, s)
	case DeleteStmt:
		return Result{}, e.execDelete(tid, s)
	case InsertStmt:
		return Result{}, e.execInsertOrWrite(tid, s.Name, s.Range, s.Value, cursor.StateInsert)
	case WriteStmt:
		return Result{}, e.execInsertOrWrite(tid, s.Name, s.Range, s.Value, cursor.StateWrite)
	case ReadStmt:
		return e.execRead(tid, s)
	default:
		return Result{}, fmt.Errorf("%w: unhandled statement type %T", storeerr.InvalidArgument, stmt)
	}
}

func (e *Engine) execCreate(tid uint64, s CreateStmt) error {
	ty, err := typeExprToType(s.Type)
	if err != nil {
		return err
	}
	root, err := e.tree.CreateRoot(tid)
	if err != nil {
		return err
	}
	return e.ix.Insert(tid, hashindex.Entry{Name: s.Name, Type: ty.Encode(), Pg0: root})
}

func (e *Engine) execDelete(tid uint64, s DeleteStmt) error {
	entry, err := e.ix.Get(tid, s.Name)
	if err != nil {
		return err
	}
	if err := e.ix.Delete(tid, s.Name); err != nil {
		return err
	}
	return e.tree.FreeRope(tid, entry.Pg0)
}

func (e *Engine) execInsertOrWrite(tid uint64, name string, rng Range, val Expr, state cursor.State) error {
	entry, err := e.ix.Get(tid, name)
	if err != nil {
		return err
	}
	elemType, err := types.Decode(entry.Type)
	if err != nil {
		return err
	}
	elemSize, err := elemType.Size()
	if err != nil {
		return err
	}
	n := int(rng.End - rng.Start)
	if n <= 0 {
		return fmt.Errorf("%w: empty or inverted range", storeerr.InvalidArgument)
	}
	data, gotN, err := evalValue(val, elemType, elemSize, n)
	if err != nil {
		return err
	}
	if gotN != n {
		return fmt.Errorf("%w: value has %d elements, range asks for %d", storeerr.Syntax, gotN, n)
	}

	c := cursor.New(e.tree, e.ix, nil)
	if err := c.Begin(tid, state, name, rng.Start*int64(elemSize), elemSize, n, 1); err != nil {
		return err
	}
	off := 0
	for {
		for off < len(data) && c.Buf().Free() > 0 {
			off += c.Buf().Write(data[off:])
		}
		done, err := c.Execute()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func (e *Engine) execRead(tid uint64, s ReadStmt) (Result, error) {
	entry, err := e.ix.Get(tid, s.Name)
	if err != nil {
		return Result{}, err
	}
	elemType, err := types.Decode(entry.Type)
	if err != nil {
		return Result{}, err
	}
	elemSize, err := elemType.Size()
	if err != nil {
		return Result{}, err
	}
	n := int(s.Range.End - s.Range.Start)
	if n <= 0 {
		return Result{}, fmt.Errorf("%w: empty or inverted range", storeerr.InvalidArgument)
	}

	c := cursor.New(e.tree, e.ix, nil)
	if err := c.Begin(tid, cursor.StateRead, s.Name, s.Range.Start*int64(elemSize), elemSize, n, 1); err != nil {
		return Result{}, err
	}
	out := make([]byte, 0, n*elemSize)
	for {
		done, err := c.Execute()
		if err != nil {
			return Result{}, err
		}
		chunk := make([]byte, c.Buf().Len())
		c.Buf().Read(chunk)
		out = append(out, chunk...)
		if done {
			return Result{Data: out}, nil
		}
	}
}

// typeExprToType lowers a parsed TypeExpr (spec.md §6's `<type>`) into
// internal/types' tagged Type union.
func typeExprToType(te *TypeExpr) (*types.Type, error) {
	switch te.Composite {
	case "":
		return &types.Type{Kind: te.Prim}, nil
	case "array":
		elem, err := typeExprToType(te.Elem)
		if err != nil {
			return nil, err
		}
		return &types.Type{Kind: types.Array, Dims: te.Dims, Elem: elem}, nil
	case "struct":
		fields, err := fieldExprsToFields(te.Fields)
		if err != nil {
			return nil, err
		}
		return &types.Type{Kind: types.Struct, Fields: fields}, nil
	case "union":
		fields, err := fieldExprsToFields(te.Fields)
		if err != nil {
			return nil, err
		}
		return &types.Type{Kind: types.Union, Fields: fields}, nil
	case "enum":
		return &types.Type{Kind: types.Enum, Variants: te.Variants}, nil
	default:
		return nil, fmt.Errorf("%w: unknown composite type %q", storeerr.Syntax, te.Composite)
	}
}

func fieldExprsToFields(fes []FieldExpr) ([]types.Field, error) {
	fields := make([]types.Field, len(fes))
	for i, fe := range fes {
		ty, err := typeExprToType(fe.Type)
		if err != nil {
			return nil, err
		}
		fields[i] = types.Field{Name: fe.Name, Type: ty}
	}
	return fields, nil
}

// evalValue lowers insert/write's right-hand side Expr into the raw
// element bytes the cursor inserts/writes, and the element count it
// represents. A RangeExpr or a top-level ArrayExpr produce multiple
// elements, each elemSize bytes; any other Expr is a single element
// (wantN must be 1 in that case).
//
// This fixes an Open Question the distilled spec leaves implicit:
// spec.md §6 only shows `range(a,b)` used against a whole dataset
// (`insert x[0..2048] = range(0,2048)`), so a bulk value must be able to
// supply more than one element per statement — resolved here by treating
// RangeExpr/top-level-ArrayExpr as per-element generators rather than a
// single composite literal.
func evalValue(e Expr, elemType *types.Type, elemSize, wantN int) ([]byte, int, error) {
	switch v := e.(type) {
	case RangeExpr:
		n := int(v.B - v.A)
		out := make([]byte, 0, n*elemSize)
		for i := v.A; i < v.B; i++ {
			b, err := types.Encode(types.Literal{Kind: types.LitInt, Uint: uint64(i)}, elemType)
			if err != nil {
				return nil, 0, err
			}
			out = append(out, b...)
		}
		return out, n, nil
	case ArrayExpr:
		if elemType.Kind == types.Array {
			lit, err := literalFromExpr(e)
			if err != nil {
				return nil, 0, err
			}
			b, err := types.Encode(lit, elemType)
			if err != nil {
				return nil, 0, err
			}
			return b, 1, nil
		}
		out := make([]byte, 0, len(v.Elems)*elemSize)
		for _, sub := range v.Elems {
			lit, err := literalFromExpr(sub)
			if err != nil {
				return nil, 0, err
			}
			b, err := types.Encode(lit, elemType)
			if err != nil {
				return nil, 0, err
			}
			out = append(out, b...)
		}
		return out, len(v.Elems), nil
	default:
		lit, err := literalFromExpr(e)
		if err != nil {
			return nil, 0, err
		}
		b, err := types.Encode(lit, elemType)
		if err != nil {
			return nil, 0, err
		}
		return b, 1, nil
	}
}

// literalFromExpr converts the AST shape produced by parser.go into a
// types.Literal for internal/types/literal.go to validate and encode.
func literalFromExpr(e Expr) (types.Literal, error) {
	switch v := e.(type) {
	case LiteralExpr:
		return v.Lit, nil
	case ArrayExpr:
		elems := make([]types.Literal, len(v.Elems))
		for i, sub := range v.Elems {
			lit, err := literalFromExpr(sub)
			if err != nil {
				return types.Literal{}, err
			}
			elems[i] = lit
		}
		return types.Literal{Kind: types.LitArray, Elems: elems}, nil
	case StructExpr:
		fields := make(map[string]types.Literal, len(v.Fields))
		for name, sub := range v.Fields {
			lit, err := literalFromExpr(sub)
			if err != nil {
				return types.Literal{}, err
			}
			fields[name] = lit
		}
		return types.Literal{Kind: types.LitStruct, Fields: fields}, nil
	case RangeExpr:
		return types.Literal{}, fmt.Errorf("%w: range(...) cannot appear inside a nested literal", storeerr.Syntax)
	default:
		return types.Literal{}, fmt.Errorf("%w: unhandled expression type %T", storeerr.Syntax, e)
	}
}
