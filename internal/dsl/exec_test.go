package dsl

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/intellect4all/numstore/internal/hashindex"
	"github.com/intellect4all/numstore/internal/pager"
)

func newTestEngine(t *testing.T) (*Engine, *pager.Pager) {
	t.Helper()
	dir := t.TempDir()
	p, err := pager.Open(filepath.Join(dir, "data"), filepath.Join(dir, "wal"), pager.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("pager.Open: %v", err)
	}
	t.Cleanup(func() { p.Close() })

	var ix *hashindex.Index
	withExecTxn(t, p, func(tid uint64) {
		var err error
		ix, err = hashindex.Create(p, tid, 4)
		if err != nil {
			t.Fatalf("hashindex.Create: %v", err)
		}
	})
	return NewEngine(p, ix), p
}

func withExecTxn(t *testing.T, p *pager.Pager, f func(tid uint64)) {
	t.Helper()
	tid, err := p.BeginTxn()
	if err != nil {
		t.Fatalf("BeginTxn: %v", err)
	}
	f(tid)
	if err := p.Commit(tid); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func mustParse(t *testing.T, src string) Statement {
	t.Helper()
	stmt, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return stmt
}

// TestEndToEndRangeScenario mirrors spec.md §8 seed-suite scenario 1:
// create x u32; insert x[0..2048] = range(0,2048); read x[0..2048] should
// return the little-endian bytes of 0..2047 cast to u32.
func TestEndToEndRangeScenario(t *testing.T) {
	eng, p := newTestEngine(t)

	withExecTxn(t, p, func(tid uint64) {
		if _, err := eng.Execute(tid, mustParse(t, "create x u32;")); err != nil {
			t.Fatalf("create: %v", err)
		}
	})
	withExecTxn(t, p, func(tid uint64) {
		if _, err := eng.Execute(tid, mustParse(t, "insert x[0..2048] = range(0,2048);")); err != nil {
			t.Fatalf("insert: %v", err)
		}
	})

	var got Result
	withExecTxn(t, p, func(tid uint64) {
		var err error
		got, err = eng.Execute(tid, mustParse(t, "read x[0..2048];"))
		if err != nil {
			t.Fatalf("read: %v", err)
		}
	})

	if len(got.Data) != 2048*4 {
		t.Fatalf("got %d bytes, want %d", len(got.Data), 2048*4)
	}
	want := make([]byte, 2048*4)
	for i := 0; i < 2048; i++ {
		binary.LittleEndian.PutUint32(want[i*4:], uint32(i))
	}
	if !bytes.Equal(got.Data, want) {
		t.Fatalf("range round trip mismatch")
	}
}

func TestWriteOverwritesSubrange(t *testing.T) {
	eng, p := newTestEngine(t)

	withExecTxn(t, p, func(tid uint64) {
		if _, err := eng.Execute(tid, mustParse(t, "create n u8;")); err != nil {
			t.Fatalf("create: %v", err)
		}
	})
	withExecTxn(t, p, func(tid uint64) {
		if _, err := eng.Execute(tid, mustParse(t, "insert n[0..5] = [10, 20, 30, 40, 50];")); err != nil {
			t.Fatalf("insert: %v", err)
		}
	})
	withExecTxn(t, p, func(tid uint64) {
		if _, err := eng.Execute(tid, mustParse(t, "write n[1] = 99;")); err != nil {
			t.Fatalf("write: %v", err)
		}
	})

	var got Result
	withExecTxn(t, p, func(tid uint64) {
		var err error
		got, err = eng.Execute(tid, mustParse(t, "read n[0..5];"))
		if err != nil {
			t.Fatalf("read: %v", err)
		}
	})
	want := []byte{10, 99, 30, 40, 50}
	if !bytes.Equal(got.Data, want) {
		t.Fatalf("got %v, want %v", got.Data, want)
	}
}

func TestDeleteThenRecreateReusesVariableName(t *testing.T) {
	eng, p := newTestEngine(t)

	withExecTxn(t, p, func(tid uint64) {
		if _, err := eng.Execute(tid, mustParse(t, "create x u8;")); err != nil {
			t.Fatalf("create: %v", err)
		}
	})
	withExecTxn(t, p, func(tid uint64) {
		if _, err := eng.Execute(tid, mustParse(t, "insert x[0..3] = [1, 2, 3];")); err != nil {
			t.Fatalf("insert: %v", err)
		}
	})
	withExecTxn(t, p, func(tid uint64) {
		if _, err := eng.Execute(tid, mustParse(t, "delete x;")); err != nil {
			t.Fatalf("delete: %v", err)
		}
	})
	withExecTxn(t, p, func(tid uint64) {
		if _, err := eng.Execute(tid, mustParse(t, "create x u8;")); err != nil {
			t.Fatalf("recreate: %v", err)
		}
	})
	withExecTxn(t, p, func(tid uint64) {
		if _, err := eng.Execute(tid, mustParse(t, "insert x[0..1] = [7];")); err != nil {
			t.Fatalf("insert after recreate: %v", err)
		}
	})

	var got Result
	withExecTxn(t, p, func(tid uint64) {
		var err error
		got, err = eng.Execute(tid, mustParse(t, "read x[0..1];"))
		if err != nil {
			t.Fatalf("read: %v", err)
		}
	})
	if len(got.Data) != 1 || got.Data[0] != 7 {
		t.Fatalf("got %v, want [7]", got.Data)
	}
}

func TestReadMissingVariableIsDoesntExist(t *testing.T) {
	eng, p := newTestEngine(t)
	withExecTxn(t, p, func(tid uint64) {
		if _, err := eng.Execute(tid, mustParse(t, "read ghost[0..1];")); err == nil {
			t.Fatalf("expected error reading undeclared variable")
		}
	})
}
