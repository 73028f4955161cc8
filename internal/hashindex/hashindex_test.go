package hashindex

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/intellect4all/numstore/internal/page"
	"github.com/intellect4all/numstore/internal/pager"
	"github.com/intellect4all/numstore/internal/storeerr"
)

func newTestPager(t *testing.T) *pager.Pager {
	t.Helper()
	dir := t.TempDir()
	p, err := pager.Open(filepath.Join(dir, "data"), filepath.Join(dir, "wal"), pager.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("pager.Open: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func withTxn(t *testing.T, p *pager.Pager, f func(tid uint64)) {
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

func mustCreateIndex(t *testing.T, p *pager.Pager, nbuckets int) *Index {
	t.Helper()
	var ix *Index
	withTxn(t, p, func(tid uint64) {
		var err error
		ix, err = Create(p, tid, nbuckets)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
	})
	return ix
}

func TestInsertThenGet(t *testing.T) {
	p := newTestPager(t)
	ix := mustCreateIndex(t, p, 4)

	e := Entry{Name: "counter", Type: []byte{0x01, 0x02}, Pg0: page.Num(7)}
	withTxn(t, p, func(tid uint64) {
		if err := ix.Insert(tid, e); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	})

	var got Entry
	var err error
	withTxn(t, p, func(tid uint64) {
		got, err = ix.Get(tid, "counter")
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "counter" || got.Pg0 != page.Num(7) || string(got.Type) != "\x01\x02" {
		t.Fatalf("got %+v, want name=counter pg0=7 type=0102", got)
	}
}

func TestGetMissingIsDoesntExist(t *testing.T) {
	p := newTestPager(t)
	ix := mustCreateIndex(t, p, 4)

	var err error
	withTxn(t, p, func(tid uint64) {
		_, err = ix.Get(tid, "nope")
	})
	if !storeerr.Is(err, storeerr.DoesntExist) {
		t.Fatalf("Get on missing name: got %v, want DoesntExist", err)
	}
}

func TestDuplicateInsertIsAlreadyExists(t *testing.T) {
	p := newTestPager(t)
	ix := mustCreateIndex(t, p, 4)

	e := Entry{Name: "x", Type: []byte{0x09}, Pg0: page.Num(2)}
	withTxn(t, p, func(tid uint64) {
		if err := ix.Insert(tid, e); err != nil {
			t.Fatalf("first Insert: %v", err)
		}
	})

	var dupErr error
	withTxn(t, p, func(tid uint64) {
		dupErr = ix.Insert(tid, e)
	})
	if !storeerr.Is(dupErr, storeerr.AlreadyExists) {
		t.Fatalf("duplicate Insert: got %v, want AlreadyExists", dupErr)
	}
}

func TestDeleteThenGetIsDoesntExist(t *testing.T) {
	p := newTestPager(t)
	ix := mustCreateIndex(t, p, 4)

	e := Entry{Name: "temp", Type: []byte{0x03}, Pg0: page.Num(9)}
	withTxn(t, p, func(tid uint64) {
		if err := ix.Insert(tid, e); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	})
	withTxn(t, p, func(tid uint64) {
		if err := ix.Delete(tid, "temp"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
	})

	var err error
	withTxn(t, p, func(tid uint64) {
		_, err = ix.Get(tid, "temp")
	})
	if !storeerr.Is(err, storeerr.DoesntExist) {
		t.Fatalf("Get after Delete: got %v, want DoesntExist", err)
	}
}

func TestDeleteMissingIsDoesntExist(t *testing.T) {
	p := newTestPager(t)
	ix := mustCreateIndex(t, p, 4)

	var err error
	withTxn(t, p, func(tid uint64) {
		err = ix.Delete(tid, "ghost")
	})
	if !storeerr.Is(err, storeerr.DoesntExist) {
		t.Fatalf("Delete on missing name: got %v, want DoesntExist", err)
	}
}

// TestManyEntriesAcrossLeaves forces at least one bucket chain past a
// single HASH_LEAF, exercising the straddling-entry allocation path in
// writeChain and the chain-following path in leafReader.
func TestManyEntriesAcrossLeaves(t *testing.T) {
	p := newTestPager(t)
	ix := mustCreateIndex(t, p, 1)

	const numVars = 400
	for i := 0; i < numVars; i++ {
		name := fmt.Sprintf("var_%04d", i)
		withTxn(t, p, func(tid uint64) {
			e := Entry{Name: name, Type: []byte{byte(i % 251)}, Pg0: page.Num(i + 100)}
			if err := ix.Insert(tid, e); err != nil {
				t.Fatalf("Insert %s: %v", name, err)
			}
		})
	}

	for i := 0; i < numVars; i++ {
		name := fmt.Sprintf("var_%04d", i)
		var got Entry
		var err error
		withTxn(t, p, func(tid uint64) {
			got, err = ix.Get(tid, name)
		})
		if err != nil {
			t.Fatalf("Get %s: %v", name, err)
		}
		if got.Pg0 != page.Num(i+100) {
			t.Fatalf("Get %s: pg0=%d, want %d", name, got.Pg0, i+100)
		}
	}
}

func TestInsertAfterDeleteReusesName(t *testing.T) {
	p := newTestPager(t)
	ix := mustCreateIndex(t, p, 4)

	withTxn(t, p, func(tid uint64) {
		if err := ix.Insert(tid, Entry{Name: "v", Type: []byte{1}, Pg0: 5}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	})
	withTxn(t, p, func(tid uint64) {
		if err := ix.Delete(tid, "v"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
	})
	withTxn(t, p, func(tid uint64) {
		if err := ix.Insert(tid, Entry{Name: "v", Type: []byte{2}, Pg0: 8}); err != nil {
			t.Fatalf("re-Insert: %v", err)
		}
	})

	var got Entry
	var err error
	withTxn(t, p, func(tid uint64) {
		got, err = ix.Get(tid, "v")
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Pg0 != 8 {
		t.Fatalf("got pg0=%d, want 8", got.Pg0)
	}
}
