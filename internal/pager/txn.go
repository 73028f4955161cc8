package pager

import (
	"fmt"
	"sync"

	"github.com/intellect4all/numstore/internal/page"
	"github.com/intellect4all/numstore/internal/storeerr"
	"github.com/intellect4all/numstore/internal/wal"
)

// Transaction is the in-memory transaction table entry (spec.md §3
// "Transaction"). TIDs are monotonically increasing for the life of the
// process; recovery resumes numbering from max_tid+1 (spec.md §4.3
// "Undo": "set next_tid := max_observed_tid + 1").
type Transaction struct {
	mu          sync.Mutex
	TID         uint64
	LastLSN     wal.LSN
	UndoNextLSN wal.LSN
	State       wal.TxnState
}

func (p *Pager) txn(tid uint64) *Transaction {
	p.txnMu.Lock()
	defer p.txnMu.Unlock()
	return p.txns[tid]
}

// BeginTxn allocates the next TID, appends a BEGIN record, and registers
// the transaction (spec.md §4.3 "Begin").
func (p *Pager) BeginTxn() (uint64, error) {
	p.txnMu.Lock()
	p.nextTID++
	tid := p.nextTID
	p.txnMu.Unlock()

	lsn, err := p.wal.Append(&wal.Record{Kind: wal.KindBegin, TID: tid})
	if err != nil {
		return 0, err
	}

	tx := &Transaction{TID: tid, LastLSN: lsn, UndoNextLSN: lsn, State: wal.TxnRunning}
	p.txnMu.Lock()
	p.txns[tid] = tx
	p.txnMu.Unlock()
	return tid, nil
}

// Commit appends COMMIT, forces the WAL to durability, appends END, and
// drops the transaction from the table (spec.md §4.3 "Commit").
func (p *Pager) Commit(tid uint64) error {
	tx := p.txn(tid)
	if tx == nil {
		return fmt.Errorf("%w: commit of unknown transaction %d", storeerr.InvalidArgument, tid)
	}
	tx.mu.Lock()
	prev := tx.LastLSN
	tx.mu.Unlock()

	lsn, err := p.wal.Append(&wal.Record{Kind: wal.KindCommit, TID: tid, PrevLSN: prev})
	if err != nil {
		return err
	}
	if err := p.wal.FlushTo(lsn); err != nil {
		return err
	}
	if _, err := p.wal.Append(&wal.Record{Kind: wal.KindEnd, TID: tid, PrevLSN: lsn}); err != nil {
		return err
	}
	p.locks.ReleaseAll(tid)
	p.txnMu.Lock()
	delete(p.txns, tid)
	p.txnMu.Unlock()
	return nil
}

// Rollback walks tid's undo chain backward from UndoNextLSN, restoring
// each UPDATE's undo image under a CLR, then emits END (spec.md §4.3
// "Rollback (partial or full)").
func (p *Pager) Rollback(tid uint64) error {
	tx := p.txn(tid)
	if tx == nil {
		return fmt.Errorf("%w: rollback of unknown transaction %d", storeerr.InvalidArgument, tid)
	}
	tx.mu.Lock()
	next := tx.UndoNextLSN
	tx.mu.Unlock()

	for next != wal.NullLSN {
		rec, err := p.wal.ReadAt(next)
		if err != nil {
			return err
		}
		switch rec.Kind {
		case wal.KindUpdate:
			if err := p.undoOneUpdate(tid, rec, false); err != nil {
				return err
			}
			next = rec.PrevLSN
		case wal.KindCLR:
			next = rec.UndoNextLSN
		case wal.KindBegin:
			if _, err := p.wal.Append(&wal.Record{Kind: wal.KindEnd, TID: tid, PrevLSN: rec.LSN}); err != nil {
				return err
			}
			next = wal.NullLSN
		default:
			return fmt.Errorf("%w: unexpected %v in undo chain", storeerr.Corrupt, rec.Kind)
		}
	}
	p.locks.ReleaseAll(tid)
	p.txnMu.Lock()
	delete(p.txns, tid)
	p.txnMu.Unlock()
	return nil
}

// undoOneUpdate applies rec's undo image to its page, writes a CLR
// threading undoNext = rec.PrevLSN, and stamps the page LSN — shared by
// Rollback and ARIES restart undo. force additionally flushes the WAL up
// to the CLR's LSN before returning, as restart undo requires (spec.md
// §4.3 "Undo": "write CLR ..., force WAL, stamp page LSN").
func (p *Pager) undoOneUpdate(tid uint64, rec *wal.Record, force bool) error {
	h, err := p.GetUnverified(rec.Pgno)
	if err != nil {
		return err
	}
	xh, err := p.MakeWritable(tid, h)
	if err != nil {
		p.Release(h, page.MaskAny)
		return err
	}
	*xh.Buf() = *rec.UndoImage

	clr := &wal.Record{
		Kind:        wal.KindCLR,
		TID:         tid,
		Pgno:        rec.Pgno,
		PrevLSN:     rec.LSN,
		UndoNextLSN: rec.PrevLSN,
		RedoImage:   rec.UndoImage,
	}
	lsn, err := p.wal.Append(clr)
	if err != nil {
		return err
	}
	if force {
		if err := p.wal.FlushTo(lsn); err != nil {
			return err
		}
	}

	p.mu.Lock()
	xh.Buf().SetPageLSN(uint64(lsn))
	f := &p.frames[xh.slot]
	f.buf = *xh.Buf()
	f.dirty = true
	f.xlock = false
	f.wbuf = nil
	xh.Mode = ModeShared
	p.mu.Unlock()

	tx := p.txn(tid)
	if tx != nil {
		tx.mu.Lock()
		tx.LastLSN = lsn
		tx.UndoNextLSN = rec.PrevLSN
		tx.mu.Unlock()
	}
	p.touchDPT(rec.Pgno, lsn)
	return p.Release(xh, page.MaskAny)
}

func (p *Pager) touchDPT(pgno page.Num, lsn wal.LSN) {
	p.dptMu.Lock()
	defer p.dptMu.Unlock()
	if _, ok := p.dpt[pgno]; !ok {
		p.dpt[pgno] = lsn
	}
}

// Locks exposes the process-wide lock table (spec.md §4.4) so higher
// layers (rptree, hashindex, cursor) can acquire logical locks before
// touching pages.
func (p *Pager) Locks() *LockTable { return p.locks }
