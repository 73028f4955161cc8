package pager

import (
	"fmt"

	"github.com/intellect4all/numstore/internal/page"
	"github.com/intellect4all/numstore/internal/storeerr"
	"github.com/intellect4all/numstore/internal/wal"
)

// findOrLoadLocked returns the pool slot holding pgno, loading it from
// disk via clock eviction if it is not resident. Caller holds p.mu.
func (p *Pager) findOrLoadLocked(pgno page.Num) (int, error) {
	if slot, ok := p.index[pgno]; ok {
		f := &p.frames[slot]
		f.access = true
		return slot, nil
	}
	slot, err := p.evictClockLocked()
	if err != nil {
		return 0, err
	}
	f := &p.frames[slot]
	if _, err := p.file.ReadAt(f.buf[:], int64(pgno)*page.Size); err != nil {
		return 0, fmt.Errorf("%w: read page %d: %v", storeerr.IO, pgno, err)
	}
	f.pgno = pgno
	f.present = true
	f.dirty = false
	f.access = true
	f.pin = 0
	f.xlock = false
	f.wsib = -1
	f.wbuf = nil
	p.index[pgno] = slot
	return slot, nil
}

// evictClockLocked runs the clock sweep described in spec.md §4.1 "Frame
// pool and eviction": pinned frames are skipped, access-bit=1 frames are
// cleared and skipped, the first unpinned access-bit=0 present frame is
// evicted (flushed if dirty). An unused slot is returned immediately.
func (p *Pager) evictClockLocked() (int, error) {
	n := len(p.frames)
	for i := 0; i < 2*n; i++ {
		slot := p.clockHand
		p.clockHand = (p.clockHand + 1) % n
		f := &p.frames[slot]
		if !f.present {
			return slot, nil
		}
		if f.pin > 0 || f.xlock {
			continue
		}
		if f.access {
			f.access = false
			continue
		}
		if f.dirty {
			if err := p.flushFrameLocked(slot); err != nil {
				return 0, err
			}
		}
		delete(p.index, f.pgno)
		f.present = false
		return slot, nil
	}
	return 0, fmt.Errorf("%w: no evictable frame", storeerr.PagerFull)
}

// flushFrameLocked enforces the WAL rule (spec.md §4.2 "Page LSN
// invariant"): before a dirty page is written to the data file, all log
// records with LSN <= page_lsn must be durable. During recovery
// (p.restarting) WAL forcing is suppressed because redo/undo write
// records that already precede the page images they apply.
func (p *Pager) flushFrameLocked(slot int) error {
	f := &p.frames[slot]
	if !p.restarting {
		if err := p.wal.FlushTo(wal.LSN(f.buf.PageLSN())); err != nil {
			return err
		}
	}
	if _, err := p.file.WriteAt(f.buf[:], int64(f.pgno)*page.Size); err != nil {
		return fmt.Errorf("%w: write page %d: %v", storeerr.IO, f.pgno, err)
	}
	f.dirty = false
	return nil
}
