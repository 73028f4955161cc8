package dsl

import (
	"testing"

	"github.com/intellect4all/numstore/internal/types"
)

func TestParseCreatePrimitive(t *testing.T) {
	stmt, err := Parse("create temp f32;")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	c, ok := stmt.(CreateStmt)
	if !ok {
		t.Fatalf("got %T, want CreateStmt", stmt)
	}
	if c.Name != "temp" || c.Type.Prim != types.F32 {
		t.Fatalf("got %+v", c)
	}
}

func TestParseCreateArrayOfStruct(t *testing.T) {
	stmt, err := Parse("create pt [3]struct{x:i32,y:i32};")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	c := stmt.(CreateStmt)
	if c.Type.Composite != "array" || c.Type.Dims[0] != 3 {
		t.Fatalf("got %+v", c.Type)
	}
	if c.Type.Elem.Composite != "struct" || len(c.Type.Elem.Fields) != 2 {
		t.Fatalf("got elem %+v", c.Type.Elem)
	}
}

func TestParseDelete(t *testing.T) {
	stmt, err := Parse("delete x;")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if stmt.(DeleteStmt).Name != "x" {
		t.Fatalf("got %+v", stmt)
	}
}

func TestParseInsertWithRange(t *testing.T) {
	stmt, err := Parse("insert x[0..2048] = range(0,2048);")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ins := stmt.(InsertStmt)
	if ins.Name != "x" || ins.Range.Start != 0 || ins.Range.End != 2048 {
		t.Fatalf("got %+v", ins)
	}
	rng, ok := ins.Value.(RangeExpr)
	if !ok || rng.A != 0 || rng.B != 2048 {
		t.Fatalf("got value %+v", ins.Value)
	}
}

func TestParseWriteSingleIndexDefaultsToOneElement(t *testing.T) {
	stmt, err := Parse("write x[5] = 42;")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	w := stmt.(WriteStmt)
	if w.Range.Start != 5 || w.Range.End != 6 {
		t.Fatalf("got range %+v, want [5..6)", w.Range)
	}
}

func TestParseReadRange(t *testing.T) {
	stmt, err := Parse("read x[10..20];")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	r := stmt.(ReadStmt)
	if r.Name != "x" || r.Range.Start != 10 || r.Range.End != 20 {
		t.Fatalf("got %+v", r)
	}
}

func TestParseStructLiteral(t *testing.T) {
	stmt, err := Parse("insert pt[0] = {x: 1, y: -2};")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ins := stmt.(InsertStmt)
	se, ok := ins.Value.(StructExpr)
	if !ok || len(se.Fields) != 2 {
		t.Fatalf("got %+v", ins.Value)
	}
}

func TestParseMissingSemicolonIsError(t *testing.T) {
	if _, err := Parse("delete x"); err == nil {
		t.Fatalf("expected error for missing semicolon")
	}
}

func TestParseEnumType(t *testing.T) {
	stmt, err := Parse("create color enum{red,green,blue};")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	c := stmt.(CreateStmt)
	if c.Type.Composite != "enum" || len(c.Type.Variants) != 3 {
		t.Fatalf("got %+v", c.Type)
	}
}
