package pager

import (
	"fmt"

	"github.com/intellect4all/numstore/internal/page"
	"github.com/intellect4all/numstore/internal/storeerr"
	"github.com/intellect4all/numstore/internal/wal"
)

// analysisTxn is analysis's working copy of a transaction table entry,
// kept separate from the live p.txns map until undo begins.
type analysisTxn struct {
	lastLSN     wal.LSN
	undoNextLSN wal.LSN
	state       wal.TxnState
}

// recover runs the ARIES restart sequence of spec.md §4.3: Analysis,
// Redo, Undo. It is only called from Open when the data file already
// existed, i.e. a prior process may have crashed mid-transaction.
func (p *Pager) recover() error {
	p.restarting = true
	defer func() { p.restarting = false }()

	masterLSN, err := p.readMasterLSN()
	if err != nil {
		return err
	}

	start, err := p.analysisStart(masterLSN)
	if err != nil {
		return err
	}

	txnTable := map[uint64]*analysisTxn{}
	dpt := map[page.Num]wal.LSN{}

	var maxTID uint64
	cur := start
	for {
		rec, err := p.wal.ReadAt(cur)
		if err != nil {
			return err
		}
		if rec.Kind == wal.KindEOF {
			break
		}
		if rec.TID > maxTID {
			maxTID = rec.TID
		}
		if err := applyAnalysisRecord(rec, txnTable, dpt); err != nil {
			return err
		}
		next, err := p.wal.Next(cur)
		if err != nil {
			return err
		}
		cur = next
	}
	tail := cur

	for tid, ti := range txnTable {
		if tid > maxTID {
			maxTID = tid
		}
		if ti.state == wal.TxnCommitted || ti.undoNextLSN == wal.NullLSN {
			if _, err := p.wal.Append(&wal.Record{Kind: wal.KindEnd, TID: tid, PrevLSN: ti.lastLSN}); err != nil {
				return err
			}
			delete(txnTable, tid)
		}
	}

	redoLSN := tail
	for _, lsn := range dpt {
		if lsn < redoLSN {
			redoLSN = lsn
		}
	}

	if err := p.redoPass(redoLSN, dpt); err != nil {
		return err
	}

	if err := p.undoPass(txnTable); err != nil {
		return err
	}

	p.txnMu.Lock()
	p.nextTID = maxTID
	p.txnMu.Unlock()
	return nil
}

func (p *Pager) readMasterLSN() (uint64, error) {
	h, err := p.GetUnverified(0)
	if err != nil {
		return 0, err
	}
	lsn := page.Root{Buf: h.Buf()}.MasterLSN()
	if err := p.Release(h, page.MaskAny); err != nil {
		return 0, err
	}
	return lsn, nil
}

// analysisStart resolves where the forward scan begins: LSN 0 when the
// root has never been checkpointed, or the record following CKPT_BEGIN
// otherwise (spec.md §4.3 "Analysis").
func (p *Pager) analysisStart(masterLSN uint64) (wal.LSN, error) {
	if masterLSN == 0 {
		return wal.FirstLSN, nil
	}
	begin, err := p.wal.ReadAt(wal.LSN(masterLSN))
	if err != nil {
		return 0, err
	}
	if begin.Kind != wal.KindCkptBegin {
		return 0, fmt.Errorf("%w: master lsn %d is not a CKPT_BEGIN record", storeerr.Corrupt, masterLSN)
	}
	return p.wal.Next(wal.LSN(masterLSN))
}

// applyAnalysisRecord folds one forward-scanned record into the
// in-progress transaction table and dirty page table. CKPT_END, when the
// scan reaches it, pre-populates entries the live scan hasn't already
// produced newer data for (spec.md §4.3 "Analysis").
func applyAnalysisRecord(rec *wal.Record, txnTable map[uint64]*analysisTxn, dpt map[page.Num]wal.LSN) error {
	switch rec.Kind {
	case wal.KindBegin:
		txnTable[rec.TID] = &analysisTxn{lastLSN: rec.LSN, undoNextLSN: rec.LSN, state: wal.TxnRunning}
	case wal.KindUpdate:
		ti, ok := txnTable[rec.TID]
		if !ok {
			ti = &analysisTxn{state: wal.TxnCandidateForUndo}
			txnTable[rec.TID] = ti
		}
		ti.lastLSN = rec.LSN
		ti.undoNextLSN = rec.LSN
		if ti.state == wal.TxnRunning {
			ti.state = wal.TxnCandidateForUndo
		}
		if _, seen := dpt[rec.Pgno]; !seen {
			dpt[rec.Pgno] = rec.LSN
		}
	case wal.KindCLR:
		ti, ok := txnTable[rec.TID]
		if !ok {
			ti = &analysisTxn{state: wal.TxnCandidateForUndo}
			txnTable[rec.TID] = ti
		}
		ti.lastLSN = rec.LSN
		ti.undoNextLSN = rec.UndoNextLSN
	case wal.KindCommit:
		ti, ok := txnTable[rec.TID]
		if !ok {
			ti = &analysisTxn{}
			txnTable[rec.TID] = ti
		}
		ti.lastLSN = rec.LSN
		ti.state = wal.TxnCommitted
	case wal.KindEnd:
		delete(txnTable, rec.TID)
	case wal.KindCkptBegin:
		// already anchored on; nothing further to do
	case wal.KindCkptEnd:
		if rec.Txns != nil {
			for _, t := range *rec.Txns {
				if _, ok := txnTable[t.TID]; !ok {
					txnTable[t.TID] = &analysisTxn{lastLSN: t.LastLSN, undoNextLSN: t.UndoNextLSN, state: t.State}
				}
			}
		}
		if rec.DPT != nil {
			for _, d := range *rec.DPT {
				if _, seen := dpt[d.Pgno]; !seen {
					dpt[d.Pgno] = d.RecLSN
				}
			}
		}
	default:
		return fmt.Errorf("%w: unexpected record kind %d during analysis", storeerr.Corrupt, rec.Kind)
	}
	return nil
}

// redoPass reapplies every UPDATE/CLR from redoLSN forward whose page is
// still behind the log (spec.md §4.3 "Redo"): fetch unverified, and only
// reapply when the resident page_lsn is strictly behind the record's LSN.
func (p *Pager) redoPass(redoLSN wal.LSN, dpt map[page.Num]wal.LSN) error {
	cur := redoLSN
	for {
		rec, err := p.wal.ReadAt(cur)
		if err != nil {
			return err
		}
		if rec.Kind == wal.KindEOF {
			break
		}
		if rec.Kind == wal.KindUpdate || rec.Kind == wal.KindCLR {
			if recLSN, tracked := dpt[rec.Pgno]; tracked && recLSN <= rec.LSN {
				if err := p.redoApply(rec.Pgno, rec.LSN, rec.RedoImage); err != nil {
					return err
				}
			}
		}
		next, err := p.wal.Next(cur)
		if err != nil {
			return err
		}
		cur = next
	}
	return nil
}

// redoApply reinstalls image as pgno's resident page if the page's
// current LSN is behind lsn, bypassing WAL logging entirely — it is
// replaying log records, not producing new ones.
func (p *Pager) redoApply(pgno page.Num, lsn wal.LSN, image *page.Buf) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	slot, err := p.findOrLoadLocked(pgno)
	if err != nil {
		return err
	}
	f := &p.frames[slot]
	if f.buf.PageLSN() < uint64(lsn) {
		f.buf = *image
		f.buf.SetPageLSN(uint64(lsn))
		f.dirty = true
	}
	return nil
}

// undoPass rolls back every loser transaction left after analysis,
// repeatedly undoing the record at the highest undo_next_lsn among them
// until none remain (spec.md §4.3 "Undo").
func (p *Pager) undoPass(txnTable map[uint64]*analysisTxn) error {
	p.txnMu.Lock()
	for tid, ti := range txnTable {
		p.txns[tid] = &Transaction{TID: tid, LastLSN: ti.lastLSN, UndoNextLSN: ti.undoNextLSN, State: wal.TxnCandidateForUndo}
	}
	p.txnMu.Unlock()

	for {
		tid, next, ok := p.pickUndoWinner()
		if !ok {
			break
		}
		rec, err := p.wal.ReadAt(next)
		if err != nil {
			return err
		}
		switch rec.Kind {
		case wal.KindUpdate:
			if err := p.undoOneUpdate(tid, rec, true); err != nil {
				return err
			}
		case wal.KindCLR:
			tx := p.txn(tid)
			tx.mu.Lock()
			tx.UndoNextLSN = rec.UndoNextLSN
			tx.mu.Unlock()
		case wal.KindBegin:
			if _, err := p.wal.Append(&wal.Record{Kind: wal.KindEnd, TID: tid, PrevLSN: rec.LSN}); err != nil {
				return err
			}
			p.txnMu.Lock()
			delete(p.txns, tid)
			p.txnMu.Unlock()
		default:
			return fmt.Errorf("%w: unexpected %v in undo chain", storeerr.Corrupt, rec.Kind)
		}
	}
	return nil
}

// pickUndoWinner returns the tid with the greatest UndoNextLSN among the
// transactions recovery is still undoing, as spec.md §4.3's "Undo"
// requires ("repeatedly pick the max undo_next_lsn").
func (p *Pager) pickUndoWinner() (uint64, wal.LSN, bool) {
	p.txnMu.Lock()
	defer p.txnMu.Unlock()
	var winner uint64
	var winLSN wal.LSN
	found := false
	for tid, tx := range p.txns {
		tx.mu.Lock()
		next := tx.UndoNextLSN
		tx.mu.Unlock()
		if next == wal.NullLSN {
			continue
		}
		if !found || next > winLSN {
			winner, winLSN, found = tid, next, true
		}
	}
	return winner, winLSN, found
}
