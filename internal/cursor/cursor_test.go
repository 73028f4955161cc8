package cursor

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/intellect4all/numstore/internal/hashindex"
	"github.com/intellect4all/numstore/internal/pager"
	"github.com/intellect4all/numstore/internal/rptree"
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

// newTestVar creates a hash index with one empty rope registered under
// name, ready for a cursor to INSERT/READ/WRITE against.
func newTestVar(t *testing.T, p *pager.Pager, name string) (*hashindex.Index, *rptree.Tree) {
	t.Helper()
	tree := rptree.New(p)
	var ix *hashindex.Index
	withTxn(t, p, func(tid uint64) {
		var err error
		ix, err = hashindex.Create(p, tid, 4)
		if err != nil {
			t.Fatalf("hashindex.Create: %v", err)
		}
		root, err := tree.CreateRoot(tid)
		if err != nil {
			t.Fatalf("CreateRoot: %v", err)
		}
		if err := ix.Insert(tid, hashindex.Entry{Name: name, Type: []byte{0}, Pg0: root}); err != nil {
			t.Fatalf("Insert entry: %v", err)
		}
	})
	return ix, tree
}

func TestCursorInsertThenRead(t *testing.T) {
	p := newTestPager(t)
	ix, tree := newTestVar(t, p, "v")

	payload := []byte("0123456789")
	withTxn(t, p, func(tid uint64) {
		c := New(tree, ix, nil)
		if err := c.Begin(tid, StateInsert, "v", 0, 1, len(payload), 1); err != nil {
			t.Fatalf("Begin: %v", err)
		}
		c.Buf().Write(payload)
		for {
			done, err := c.Execute()
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if done {
				break
			}
		}
		if c.State() != StateIdle {
			t.Fatalf("state after completion = %s, want IDLE", c.State())
		}
	})

	var entry hashindex.Entry
	var err error
	withTxn(t, p, func(tid uint64) {
		entry, err = ix.Get(tid, "v")
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	withTxn(t, p, func(tid uint64) {
		c := New(tree, ix, nil)
		if err := c.Begin(tid, StateRead, "v", 0, 1, len(payload), 1); err != nil {
			t.Fatalf("Begin: %v", err)
		}
		got := make([]byte, 0, len(payload))
		for {
			done, err := c.Execute()
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			chunk := make([]byte, c.Buf().Len())
			c.Buf().Read(chunk)
			got = append(got, chunk...)
			if done {
				break
			}
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("read %q, want %q", got, payload)
		}
	})
	_ = entry
}

func TestCursorWriteOverwritesInPlace(t *testing.T) {
	p := newTestPager(t)
	ix, tree := newTestVar(t, p, "v")

	original := []byte("AAAAAAAAAA")
	withTxn(t, p, func(tid uint64) {
		c := New(tree, ix, nil)
		if err := c.Begin(tid, StateInsert, "v", 0, 1, len(original), 1); err != nil {
			t.Fatalf("Begin: %v", err)
		}
		c.Buf().Write(original)
		for {
			done, err := c.Execute()
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if done {
				break
			}
		}
	})

	patch := []byte("BBBB")
	withTxn(t, p, func(tid uint64) {
		c := New(tree, ix, nil)
		if err := c.Begin(tid, StateWrite, "v", 2, 1, len(patch), 1); err != nil {
			t.Fatalf("Begin: %v", err)
		}
		c.Buf().Write(patch)
		for {
			done, err := c.Execute()
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if done {
				break
			}
		}
	})

	withTxn(t, p, func(tid uint64) {
		c := New(tree, ix, nil)
		if err := c.Begin(tid, StateRead, "v", 0, 1, len(original), 1); err != nil {
			t.Fatalf("Begin: %v", err)
		}
		got := make([]byte, 0, len(original))
		for {
			done, err := c.Execute()
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			chunk := make([]byte, c.Buf().Len())
			c.Buf().Read(chunk)
			got = append(got, chunk...)
			if done {
				break
			}
		}
		want := []byte("AABBBBAAAA")
		if !bytes.Equal(got, want) {
			t.Fatalf("read %q, want %q", got, want)
		}
	})
}

func TestCursorInsertAcrossManyTicksWithSmallBuffer(t *testing.T) {
	p := newTestPager(t)
	ix, tree := newTestVar(t, p, "big")

	payload := bytes.Repeat([]byte("xyz123"), 500) // 3000 bytes: fits in one leaf
	withTxn(t, p, func(tid uint64) {
		c := New(tree, ix, NewRingBuffer(64)) // small scratch forces many ticks
		if err := c.Begin(tid, StateInsert, "big", 0, 1, len(payload), 1); err != nil {
			t.Fatalf("Begin: %v", err)
		}
		off := 0
		for {
			for off < len(payload) && c.Buf().Free() > 0 {
				n := c.Buf().Write(payload[off:])
				off += n
			}
			done, err := c.Execute()
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if done {
				break
			}
		}
	})

	var entry hashindex.Entry
	var err error
	withTxn(t, p, func(tid uint64) {
		entry, err = ix.Get(tid, "big")
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	got := make([]byte, len(payload))
	c, err := tree.Seek(entry.Pg0, 0)
	if err != nil {
		t.Fatalf("Seek: %v", err)
	}
	n, err := tree.Read(c, got, 1, len(payload), 1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != len(payload) || !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch, got %d bytes", n)
	}
}

func TestBeginRejectsBusyCursor(t *testing.T) {
	p := newTestPager(t)
	ix, tree := newTestVar(t, p, "v")

	withTxn(t, p, func(tid uint64) {
		c := New(tree, ix, nil)
		if err := c.Begin(tid, StateInsert, "v", 0, 1, 4, 1); err != nil {
			t.Fatalf("Begin: %v", err)
		}
		if err := c.Begin(tid, StateRead, "v", 0, 1, 4, 1); err == nil {
			t.Fatalf("expected error re-beginning a busy cursor")
		}
	})
}
