package dsl

import "testing"

func TestScanSimpleCreate(t *testing.T) {
	toks, err := NewScanner("create x u32;").Tokens()
	if err != nil {
		t.Fatalf("Tokens: %v", err)
	}
	want := []TokenKind{TokCreate, TokIdent, TokPrimType, TokSemi, TokEOF}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(toks), len(want))
	}
	for i, k := range want {
		if toks[i].Kind != k {
			t.Fatalf("token %d: got kind %d, want %d", i, toks[i].Kind, k)
		}
	}
}

func TestScanRangeDotsBetweenInts(t *testing.T) {
	toks, err := NewScanner("x[0..10]").Tokens()
	if err != nil {
		t.Fatalf("Tokens: %v", err)
	}
	want := []TokenKind{TokIdent, TokLBracket, TokInt, TokDotDot, TokInt, TokRBracket, TokEOF}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d (%v)", len(toks), len(want), toks)
	}
}

func TestScanString(t *testing.T) {
	toks, err := NewScanner(`"hello\nworld"`).Tokens()
	if err != nil {
		t.Fatalf("Tokens: %v", err)
	}
	if toks[0].Kind != TokString || toks[0].Text != "hello\nworld" {
		t.Fatalf("got %+v", toks[0])
	}
}

func TestScanFloat(t *testing.T) {
	toks, err := NewScanner("-1.5e3").Tokens()
	if err != nil {
		t.Fatalf("Tokens: %v", err)
	}
	if toks[0].Kind != TokFloat || toks[0].Text != "-1.5e3" {
		t.Fatalf("got %+v", toks[0])
	}
}

func TestScanUnexpectedCharIsSyntaxError(t *testing.T) {
	_, err := NewScanner("x @ y").Tokens()
	if err == nil {
		t.Fatalf("expected scan error")
	}
}
