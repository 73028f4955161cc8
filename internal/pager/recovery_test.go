package pager

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/intellect4all/numstore/internal/page"
)

// openPager is shared scaffolding for this file's restart tests.
func openPager(t *testing.T, dataPath, walPath string) *Pager {
	t.Helper()
	p, err := Open(dataPath, walPath, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return p
}

// TestCrashAfterCommitRecoversViaRedo grounds on
// intellect4all-storage-engines/btree/wal_test.go's TestWALCrashRecovery:
// commit a page write, sync the WAL, then simulate a crash by closing the
// raw file handles directly instead of calling Close() (skipping its
// graceful dirty-frame flush), so the update only survives in the WAL.
// Reopening must redo it (spec.md §8 scenario 3).
func TestCrashAfterCommitRecoversViaRedo(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "data")
	walPath := filepath.Join(dir, "wal")

	var pgno page.Num
	payload := []byte("hello after crash")

	{
		p := openPager(t, dataPath, walPath)

		tid, err := p.BeginTxn()
		if err != nil {
			t.Fatalf("BeginTxn: %v", err)
		}
		h, err := p.New(tid, page.TypeDataList)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		pgno = h.Pgno
		dl := page.DataList{Buf: h.Buf()}
		dl.Append(payload)
		if err := p.Save(tid, h, page.MaskOf(page.TypeDataList)); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if err := p.Release(h, page.MaskOf(page.TypeDataList)); err != nil {
			t.Fatalf("Release: %v", err)
		}
		if err := p.Commit(tid); err != nil {
			t.Fatalf("Commit: %v", err)
		}

		// Simulate a crash: the WAL is durable (Commit already forced it),
		// but the dirty data-file frame never reached disk because Close's
		// flush loop never ran.
		p.wal.Close()
		p.file.Close()
	}

	{
		p := openPager(t, dataPath, walPath)
		defer p.Close()

		h, err := p.Get(pgno, page.MaskOf(page.TypeDataList))
		if err != nil {
			t.Fatalf("Get after recovery: %v", err)
		}
		dl := page.DataList{Buf: h.Buf()}
		if !bytes.Equal(dl.Bytes(), payload) {
			t.Fatalf("recovered bytes = %q, want %q", dl.Bytes(), payload)
		}
		if err := p.Release(h, page.MaskOf(page.TypeDataList)); err != nil {
			t.Fatalf("Release: %v", err)
		}
	}
}

// TestCrashBeforeCommitRollsBackViaUndo exercises the other half of ARIES
// restart (spec.md §8 scenario 4): a transaction saves a page but never
// commits before the crash. Recovery's Analysis pass must find it
// uncommitted (a candidate for undo, since it logged an UPDATE) and Undo
// must restore the page's pre-transaction image.
func TestCrashBeforeCommitRollsBackViaUndo(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "data")
	walPath := filepath.Join(dir, "wal")

	var pgno page.Num
	original := []byte("committed first")
	abandoned := []byte("never committed!")

	{
		p := openPager(t, dataPath, walPath)

		tid1, err := p.BeginTxn()
		if err != nil {
			t.Fatalf("BeginTxn: %v", err)
		}
		h, err := p.New(tid1, page.TypeDataList)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		pgno = h.Pgno
		page.DataList{Buf: h.Buf()}.Append(original)
		if err := p.Save(tid1, h, page.MaskOf(page.TypeDataList)); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if err := p.Release(h, page.MaskOf(page.TypeDataList)); err != nil {
			t.Fatalf("Release: %v", err)
		}
		if err := p.Commit(tid1); err != nil {
			t.Fatalf("Commit tid1: %v", err)
		}

		tid2, err := p.BeginTxn()
		if err != nil {
			t.Fatalf("BeginTxn tid2: %v", err)
		}
		h2, err := p.GetWritable(tid2, page.MaskOf(page.TypeDataList), pgno)
		if err != nil {
			t.Fatalf("GetWritable: %v", err)
		}
		dl2 := page.DataList{Buf: h2.Buf()}
		dl2.Truncate(0)
		dl2.Append(abandoned)
		if err := p.Save(tid2, h2, page.MaskOf(page.TypeDataList)); err != nil {
			t.Fatalf("Save tid2: %v", err)
		}
		if err := p.Release(h2, page.MaskOf(page.TypeDataList)); err != nil {
			t.Fatalf("Release tid2: %v", err)
		}

		// tid2 never commits: simulate a crash right here.
		p.wal.Close()
		p.file.Close()
	}

	{
		p := openPager(t, dataPath, walPath)
		defer p.Close()

		h, err := p.Get(pgno, page.MaskOf(page.TypeDataList))
		if err != nil {
			t.Fatalf("Get after recovery: %v", err)
		}
		dl := page.DataList{Buf: h.Buf()}
		if !bytes.Equal(dl.Bytes(), original) {
			t.Fatalf("recovered bytes = %q, want undone back to %q", dl.Bytes(), original)
		}
		if err := p.Release(h, page.MaskOf(page.TypeDataList)); err != nil {
			t.Fatalf("Release: %v", err)
		}
	}
}
