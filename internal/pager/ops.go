package pager

import (
	"fmt"

	"github.com/intellect4all/numstore/internal/page"
	"github.com/intellect4all/numstore/internal/storeerr"
	"github.com/intellect4all/numstore/internal/wal"
)

// Get returns an S-handle on pgno, validated against mask (spec.md §4.1
// "get"). The returned buffer is the committed read image; concurrent
// writers never mutate it in place (spec.md §5 ordering guarantee 4).
// pgno's own database-global root exemption (page 0, always TYPE_ROOT) is
// the only one applied here — a rope tree's own root page, which can be
// any pgno, needs GetAsRoot instead.
func (p *Pager) Get(pgno page.Num, mask page.Mask) (*Handle, error) {
	return p.get(pgno, mask, true, pgno == 0)
}

// GetAsRoot is Get for a page the caller knows is currently serving as a
// rope/B+tree's own root (a dataset's pg0, tracked in its hash-index
// entry — distinct from the database's single page-0 TYPE_ROOT page).
// Root leaves and root inner nodes are exempt from the half-full
// invariant (spec.md line 41), but that exemption has to travel with
// whichever pgno the tree's root currently lives at, not with page 0.
func (p *Pager) GetAsRoot(pgno page.Num, mask page.Mask) (*Handle, error) {
	return p.get(pgno, mask, true, true)
}

// GetUnverified fetches a page without validating its layout invariants —
// used only by redo, which may observe a page mid-update (spec.md §4.3
// "Redo": "fetch page unverified").
func (p *Pager) GetUnverified(pgno page.Num) (*Handle, error) {
	return p.get(pgno, page.MaskAny, false, false)
}

func (p *Pager) get(pgno page.Num, mask page.Mask, verify, isRoot bool) (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	slot, err := p.findOrLoadLocked(pgno)
	if err != nil {
		return nil, err
	}
	f := &p.frames[slot]
	if verify {
		if err := page.ValidateForDB(pgno, &f.buf, mask, isRoot); err != nil {
			return nil, fmt.Errorf("%w: %v", storeerr.Corrupt, err)
		}
	}
	f.pin++
	return &Handle{Pgno: pgno, Mode: ModeShared, slot: slot, p: p}, nil
}

// New allocates a fresh page of the given type, preferring the tombstone
// free list over growing the file (spec.md §4.1 "Page allocation").
// Only the root page's free-list/extension change is saved here. The
// returned handle is X-locked and pinned, with the page initialized to
// ptype in its write buffer; it is not marked dirty or WAL-logged until
// the caller populates it and calls Save (or Release, which saves an
// X handle).
func (p *Pager) New(tid uint64, ptype byte) (*Handle, error) {
	rootH, err := p.Get(0, page.MaskOf(page.TypeRoot))
	if err != nil {
		return nil, err
	}
	rootH.Mode = ModeShared
	rootXH, err := p.MakeWritable(tid, rootH)
	if err != nil {
		p.Release(rootH, page.MaskOf(page.TypeRoot))
		return nil, err
	}
	root := page.Root{Buf: rootXH.Buf()}

	var pgno page.Num
	if ft := root.FirstTombstone(); ft != page.NullNum {
		tH, err := p.Get(ft, page.MaskOf(page.TypeTombstone))
		if err != nil {
			p.CancelW(rootXH)
			p.Release(rootH, page.MaskOf(page.TypeRoot))
			return nil, err
		}
		tomb := page.Tombstone{Buf: tH.Buf()}
		next := tomb.Next()
		p.Release(tH, page.MaskOf(page.TypeTombstone))
		root.SetFirstTombstone(next)
		pgno = ft
	} else {
		p.mu.Lock()
		n, err := p.numPagesLocked()
		if err != nil {
			p.mu.Unlock()
			p.CancelW(rootXH)
			p.Release(rootH, page.MaskOf(page.TypeRoot))
			return nil, err
		}
		pgno = page.Num(n)
		var zero page.Buf
		if _, err := p.file.WriteAt(zero[:], int64(pgno)*page.Size); err != nil {
			p.mu.Unlock()
			p.CancelW(rootXH)
			p.Release(rootH, page.MaskOf(page.TypeRoot))
			return nil, fmt.Errorf("%w: extend file: %v", storeerr.IO, err)
		}
		p.mu.Unlock()
	}

	if err := p.Save(tid, rootXH, page.MaskOf(page.TypeRoot)); err != nil {
		return nil, err
	}

	h, err := p.GetUnverified(pgno)
	if err != nil {
		return nil, err
	}
	xh, err := p.MakeWritable(tid, h)
	if err != nil {
		p.Release(h, page.MaskAny)
		return nil, err
	}
	initPage(xh.Buf(), ptype)
	return xh, nil
}

func initPage(b *page.Buf, ptype byte) {
	switch ptype {
	case page.TypeDataList:
		page.InitDataList(b)
	case page.TypeInnerNode:
		page.InitInnerNode(b)
	case page.TypeHashLeaf:
		page.InitHashLeaf(b)
	case page.TypeTombstone:
		page.InitTombstone(b, page.NullNum)
	case page.TypeVarTail:
		page.InitVarTail(b)
	default:
		b.SetType(ptype)
	}
}

// MakeWritable promotes an S-handle to X by reserving a private write
// buffer seeded from the current read image (spec.md §4.1
// "Copy-on-write handles"). Only one X-holder per page is permitted.
func (p *Pager) MakeWritable(tid uint64, h *Handle) (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := &p.frames[h.slot]
	if f.xlock {
		return nil, fmt.Errorf("%w: page %d already exclusively locked", storeerr.InvalidArgument, h.Pgno)
	}
	wb := f.buf
	f.wbuf = &wb
	f.xlock = true
	f.wtid = tid
	h.Mode = ModeExclusive
	return h, nil
}

// GetWritable is Get followed by MakeWritable in one call (spec.md §4.1).
func (p *Pager) GetWritable(tid uint64, mask page.Mask, pgno page.Num) (*Handle, error) {
	h, err := p.Get(pgno, mask)
	if err != nil {
		return nil, err
	}
	return p.MakeWritable(tid, h)
}

// Save validates the write buffer, WAL-logs an UPDATE record (undo image
// = committed read frame, redo image = write frame), copies write back
// into the read frame, and downgrades the handle to S (spec.md §4.1
// "save", §4.3 "Update logging inside save"). Only h.Pgno's
// database-global root exemption (page 0) applies here; see GetAsRoot.
func (p *Pager) Save(tid uint64, h *Handle, mask page.Mask) error {
	return p.save(tid, h, mask, h.Pgno == 0)
}

// SaveAsRoot is Save for a page the caller knows is currently serving as
// a rope/B+tree's own root — see GetAsRoot.
func (p *Pager) SaveAsRoot(tid uint64, h *Handle, mask page.Mask) error {
	return p.save(tid, h, mask, true)
}

func (p *Pager) save(tid uint64, h *Handle, mask page.Mask, isRoot bool) error {
	p.mu.Lock()
	f := &p.frames[h.slot]
	if !f.xlock || f.wbuf == nil {
		p.mu.Unlock()
		return fmt.Errorf("%w: save on non-exclusive handle", storeerr.InvalidArgument)
	}
	if err := page.ValidateForDB(h.Pgno, f.wbuf, mask, isRoot); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("%w: %v", storeerr.Corrupt, err)
	}
	undo := f.buf
	redo := *f.wbuf
	p.mu.Unlock()

	tx := p.txn(tid)
	if tx == nil {
		return fmt.Errorf("%w: save under unknown transaction %d", storeerr.InvalidArgument, tid)
	}
	tx.mu.Lock()
	prev := tx.LastLSN
	tx.mu.Unlock()

	rec := &wal.Record{
		Kind:      wal.KindUpdate,
		TID:       tid,
		Pgno:      h.Pgno,
		PrevLSN:   prev,
		UndoImage: &undo,
		RedoImage: &redo,
	}
	lsn, err := p.wal.Append(rec)
	if err != nil {
		return err
	}

	p.mu.Lock()
	redo.SetPageLSN(uint64(lsn))
	f.wbuf = &redo
	f.buf = *f.wbuf
	f.dirty = true
	f.xlock = false
	f.wsib = -1
	h.Mode = ModeShared
	p.mu.Unlock()

	tx.mu.Lock()
	tx.LastLSN = lsn
	tx.UndoNextLSN = lsn
	tx.mu.Unlock()
	p.touchDPT(h.Pgno, lsn)

	return nil
}

// Release unpins h, saving it first if it is still X-locked (spec.md
// §4.1 "release": "call save if X; unpins; validates"). The save uses
// whichever tid last called MakeWritable on this frame, since an X-handle
// carries no tid of its own.
func (p *Pager) Release(h *Handle, mask page.Mask) error {
	if h.Mode == ModeExclusive {
		p.mu.Lock()
		tid := p.frames[h.slot].wtid
		p.mu.Unlock()
		if err := p.Save(tid, h, mask); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	f := &p.frames[h.slot]
	if f.pin > 0 {
		f.pin--
	}
	return nil
}

// CancelW drops the write frame of an X-handle without committing it
// (spec.md §4.1 "Copy-on-write handles": "cancel_w drops the write frame
// without commit").
func (p *Pager) CancelW(h *Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := &p.frames[h.slot]
	f.wbuf = nil
	f.xlock = false
	f.wsib = -1
	if f.pin > 0 {
		f.pin--
	}
	h.Mode = ModeShared
}

// DeleteAndRelease reinitializes h's page as a TOMBSTONE linked at the
// head of the root's free list, saves, and releases it (spec.md §4.1
// "delete_and_release").
func (p *Pager) DeleteAndRelease(tid uint64, h *Handle) error {
	if h.Mode != ModeExclusive {
		return fmt.Errorf("%w: delete_and_release requires an exclusive handle", storeerr.InvalidArgument)
	}
	rootH, err := p.Get(0, page.MaskOf(page.TypeRoot))
	if err != nil {
		return err
	}
	rootXH, err := p.MakeWritable(tid, rootH)
	if err != nil {
		p.Release(rootH, page.MaskOf(page.TypeRoot))
		return err
	}
	root := page.Root{Buf: rootXH.Buf()}
	oldHead := root.FirstTombstone()
	root.SetFirstTombstone(h.Pgno)
	if err := p.Save(tid, rootXH, page.MaskOf(page.TypeRoot)); err != nil {
		return err
	}

	page.InitTombstone(h.Buf(), oldHead)
	if err := p.Save(tid, h, page.MaskOf(page.TypeTombstone)); err != nil {
		return err
	}
	return p.Release(h, page.MaskOf(page.TypeTombstone))
}
