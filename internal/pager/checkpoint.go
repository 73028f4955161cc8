package pager

import (
	"github.com/intellect4all/numstore/internal/page"
	"github.com/intellect4all/numstore/internal/wal"
)

// Checkpoint performs a fuzzy checkpoint (spec.md §4.3 "Checkpoint"):
// append CKPT_BEGIN, flush all currently-dirty frames, append CKPT_END
// with transaction-table and DPT snapshots, force the WAL, then persist
// the master LSN into the root page under its own mini-transaction.
// Because the flush step does not block concurrent transactions, other
// writers may dirty pages again before CKPT_END lands — that is the
// "fuzzy" part; redo scans from the DPT's minimum rec_lsn to cover them.
func (p *Pager) Checkpoint() error {
	beginLSN, err := p.wal.Append(&wal.Record{Kind: wal.KindCkptBegin})
	if err != nil {
		return err
	}

	p.mu.Lock()
	for slot := range p.frames {
		f := &p.frames[slot]
		if f.present && f.dirty {
			if err := p.flushFrameLocked(slot); err != nil {
				p.mu.Unlock()
				return err
			}
		}
	}
	p.mu.Unlock()

	p.txnMu.Lock()
	txns := make([]wal.TxnSnapshot, 0, len(p.txns))
	for _, tx := range p.txns {
		tx.mu.Lock()
		txns = append(txns, wal.TxnSnapshot{
			TID: tx.TID, LastLSN: tx.LastLSN, UndoNextLSN: tx.UndoNextLSN, State: tx.State,
		})
		tx.mu.Unlock()
	}
	p.txnMu.Unlock()

	p.dptMu.Lock()
	dpt := make([]wal.DirtyPageSnapshot, 0, len(p.dpt))
	for pgno, lsn := range p.dpt {
		dpt = append(dpt, wal.DirtyPageSnapshot{Pgno: pgno, RecLSN: lsn})
	}
	p.dptMu.Unlock()

	endLSN, err := p.wal.Append(&wal.Record{Kind: wal.KindCkptEnd, Txns: &txns, DPT: &dpt})
	if err != nil {
		return err
	}
	if err := p.wal.FlushTo(endLSN); err != nil {
		return err
	}

	// The master LSN anchors analysis at CKPT_BEGIN, not CKPT_END — the
	// record immediately after it is where the forward scan resumes, and
	// CKPT_END is merged in when the scan reaches it naturally.
	tid, err := p.BeginTxn()
	if err != nil {
		return err
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
	page.Root{Buf: rootXH.Buf()}.SetMasterLSN(uint64(beginLSN))
	if err := p.Save(tid, rootXH, page.MaskOf(page.TypeRoot)); err != nil {
		return err
	}
	return p.Commit(tid)
}
