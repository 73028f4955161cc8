package rptree

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/intellect4all/numstore/internal/page"
	"github.com/intellect4all/numstore/internal/pager"
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

func TestInsertThenReadBack(t *testing.T) {
	p := newTestPager(t)
	tree := New(p)
	root := mustCreateRoot(t, p, tree)

	payload := []byte("hello, numstore")
	withTxn(t, p, func(tid uint64) {
		c, err := tree.Seek(root, 0)
		if err != nil {
			t.Fatalf("Seek: %v", err)
		}
		newRoot, err := tree.Insert(tid, c, payload)
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		root = newRoot
	})

	c, err := tree.Seek(root, 0)
	if err != nil {
		t.Fatalf("Seek: %v", err)
	}
	dst := make([]byte, len(payload))
	n, err := tree.Read(c, dst, 1, len(payload), 1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("read %d bytes, want %d", n, len(payload))
	}
	if !bytes.Equal(dst, payload) {
		t.Fatalf("read back %q, want %q", dst, payload)
	}
}

func mustCreateRoot(t *testing.T, p *pager.Pager, tree *Tree) (root page.Num) {
	t.Helper()
	withTxn(t, p, func(tid uint64) {
		r, err := tree.CreateRoot(tid)
		if err != nil {
			t.Fatalf("CreateRoot: %v", err)
		}
		root = r
	})
	return root
}

func TestWriteOverwritesInPlace(t *testing.T) {
	p := newTestPager(t)
	tree := New(p)
	root := mustCreateRoot(t, p, tree)

	withTxn(t, p, func(tid uint64) {
		c, _ := tree.Seek(root, 0)
		var err error
		root, err = tree.Insert(tid, c, []byte("aaaaaaaaaa"))
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
	})

	withTxn(t, p, func(tid uint64) {
		c, _ := tree.Seek(root, 2)
		if err := tree.Write(tid, c, []byte("XYZ"), 1, 3, 1); err != nil {
			t.Fatalf("Write: %v", err)
		}
	})

	c, _ := tree.Seek(root, 0)
	dst := make([]byte, 10)
	if _, err := tree.Read(c, dst, 1, 10, 1); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(dst) != "aaXYZaaaaa" {
		t.Fatalf("got %q, want aaXYZaaaaa", dst)
	}
}

func TestInsertAcrossManyLeaves(t *testing.T) {
	p := newTestPager(t)
	tree := New(p)
	root := mustCreateRoot(t, p, tree)

	var want []byte
	const numElems = 600
	for i := 0; i < numElems; i++ {
		chunk := []byte(fmt.Sprintf("elem-%04d;", i))
		want = append(want, chunk...)
		withTxn(t, p, func(tid uint64) {
			c, err := tree.Seek(root, int64(len(want)-len(chunk)))
			if err != nil {
				t.Fatalf("Seek: %v", err)
			}
			root, err = tree.Insert(tid, c, chunk)
			if err != nil {
				t.Fatalf("Insert at elem %d: %v", i, err)
			}
		})
	}

	c, err := tree.Seek(root, 0)
	if err != nil {
		t.Fatalf("final Seek: %v", err)
	}
	got := make([]byte, len(want))
	n, err := tree.Read(c, got, 1, len(want), 1)
	if err != nil {
		t.Fatalf("final Read: %v", err)
	}
	if n != len(want) {
		t.Fatalf("read %d bytes, want %d", n, len(want))
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("rope content mismatch after %d inserts", numElems)
	}
}

func TestDeleteShrinksRope(t *testing.T) {
	p := newTestPager(t)
	tree := New(p)
	root := mustCreateRoot(t, p, tree)

	withTxn(t, p, func(tid uint64) {
		c, _ := tree.Seek(root, 0)
		var err error
		root, err = tree.Insert(tid, c, []byte("0123456789"))
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
	})

	withTxn(t, p, func(tid uint64) {
		c, err := tree.Seek(root, 3)
		if err != nil {
			t.Fatalf("Seek: %v", err)
		}
		if err := tree.Delete(tid, c, 1, 4, 1); err != nil {
			t.Fatalf("Delete: %v", err)
		}
	})

	c, _ := tree.Seek(root, 0)
	dst := make([]byte, 6)
	if _, err := tree.Read(c, dst, 1, 6, 1); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(dst) != "012789" {
		t.Fatalf("got %q, want 012789", dst)
	}
}

func TestTakeCopiesRemovedBytes(t *testing.T) {
	p := newTestPager(t)
	tree := New(p)
	root := mustCreateRoot(t, p, tree)

	withTxn(t, p, func(tid uint64) {
		c, _ := tree.Seek(root, 0)
		var err error
		root, err = tree.Insert(tid, c, []byte("abcdefghij"))
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
	})

	taken := make([]byte, 3)
	withTxn(t, p, func(tid uint64) {
		c, err := tree.Seek(root, 4)
		if err != nil {
			t.Fatalf("Seek: %v", err)
		}
		if err := tree.Take(tid, c, taken, 1, 3, 1); err != nil {
			t.Fatalf("Take: %v", err)
		}
	})
	if string(taken) != "efg" {
		t.Fatalf("took %q, want efg", taken)
	}

	c, _ := tree.Seek(root, 0)
	dst := make([]byte, 7)
	if _, err := tree.Read(c, dst, 1, 7, 1); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(dst) != "abcdhij" {
		t.Fatalf("got %q, want abcdhij", dst)
	}
}
