// Package wal implements the ARIES-style write-ahead log described in
// spec.md §4.2: an append-only sequence of self-delimiting records, each
// addressed by an LSN equal to its byte offset in the log file. Record
// framing and CRC32 checksumming are grounded on
// intellect4all-storage-engines/btree/wal.go's WALRecord codec, extended
// with the full ARIES record set (UPDATE/CLR/COMMIT/END/CKPT_BEGIN/
// CKPT_END) spec.md requires instead of that teacher's single
// page-write/checkpoint/commit set.
package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/intellect4all/numstore/internal/page"
)

// Kind enumerates the WAL record types from spec.md §4.2.
type Kind uint8

const (
	KindBegin Kind = iota + 1
	KindUpdate
	KindCLR
	KindCommit
	KindEnd
	KindCkptBegin
	KindCkptEnd
	// KindEOF never appears on disk; wal_read_entry returns it when the
	// reader reaches the current logical end of the log (spec.md §4.2).
	KindEOF
)

// LSN is a log sequence number: the byte offset of a record's kind byte.
type LSN uint64

// NullLSN marks "no predecessor" (e.g. the first record of a transaction).
const NullLSN LSN = 0

// TxnState mirrors the transaction lifecycle recorded in a checkpoint
// snapshot (spec.md §3 "Transaction").
type TxnState uint8

const (
	TxnRunning TxnState = iota + 1
	TxnCandidateForUndo
	TxnCommitted
	TxnDone
)

// TxnSnapshot and DirtyPageSnapshot are the two tables captured by a fuzzy
// checkpoint's CKPT_END record (spec.md §4.3 "Checkpoint").
type TxnSnapshot struct {
	TID         uint64
	LastLSN     LSN
	UndoNextLSN LSN
	State       TxnState
}

type DirtyPageSnapshot struct {
	Pgno   page.Num
	RecLSN LSN
}

// Record is the decoded form of any WAL entry.
type Record struct {
	Kind Kind
	LSN  LSN

	TID         uint64
	Pgno        page.Num
	PrevLSN     LSN
	UndoNextLSN LSN
	UndoImage   *page.Buf
	RedoImage   *page.Buf

	Txns *[]TxnSnapshot
	DPT  *[]DirtyPageSnapshot
}

const recordHeaderSize = 1 + 4 // kind + length
const recordTrailerSize = 4    // crc32

// encode serializes r's payload (not the kind/length/crc framing, which
// stream.go adds) into a byte slice sized exactly for r.Kind.
func encodePayload(r *Record) ([]byte, error) {
	switch r.Kind {
	case KindBegin:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, r.TID)
		return buf, nil
	case KindUpdate:
		buf := make([]byte, 8+4+8+page.Size+page.Size)
		binary.LittleEndian.PutUint64(buf[0:], r.TID)
		binary.LittleEndian.PutUint32(buf[8:], uint32(r.Pgno))
		binary.LittleEndian.PutUint64(buf[12:], uint64(r.PrevLSN))
		copy(buf[20:20+page.Size], r.UndoImage[:])
		copy(buf[20+page.Size:], r.RedoImage[:])
		return buf, nil
	case KindCLR:
		buf := make([]byte, 8+4+8+8+page.Size)
		binary.LittleEndian.PutUint64(buf[0:], r.TID)
		binary.LittleEndian.PutUint32(buf[8:], uint32(r.Pgno))
		binary.LittleEndian.PutUint64(buf[12:], uint64(r.PrevLSN))
		binary.LittleEndian.PutUint64(buf[20:], uint64(r.UndoNextLSN))
		copy(buf[28:28+page.Size], r.RedoImage[:])
		return buf, nil
	case KindCommit, KindEnd:
		buf := make([]byte, 8+8)
		binary.LittleEndian.PutUint64(buf[0:], r.TID)
		binary.LittleEndian.PutUint64(buf[8:], uint64(r.PrevLSN))
		return buf, nil
	case KindCkptBegin:
		return nil, nil
	case KindCkptEnd:
		txns := []TxnSnapshot{}
		if r.Txns != nil {
			txns = *r.Txns
		}
		dpt := []DirtyPageSnapshot{}
		if r.DPT != nil {
			dpt = *r.DPT
		}
		buf := make([]byte, 4+len(txns)*25+4+len(dpt)*12)
		off := 0
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(txns)))
		off += 4
		for _, t := range txns {
			binary.LittleEndian.PutUint64(buf[off:], t.TID)
			binary.LittleEndian.PutUint64(buf[off+8:], uint64(t.LastLSN))
			binary.LittleEndian.PutUint64(buf[off+16:], uint64(t.UndoNextLSN))
			buf[off+24] = byte(t.State)
			off += 25
		}
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(dpt)))
		off += 4
		for _, d := range dpt {
			binary.LittleEndian.PutUint32(buf[off:], uint32(d.Pgno))
			binary.LittleEndian.PutUint64(buf[off+4:], uint64(d.RecLSN))
			off += 12
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("wal: unknown record kind %d", r.Kind)
	}
}

func decodePayload(kind Kind, buf []byte) (*Record, error) {
	r := &Record{Kind: kind}
	switch kind {
	case KindBegin:
		if len(buf) != 8 {
			return nil, fmt.Errorf("wal: BEGIN payload size %d", len(buf))
		}
		r.TID = binary.LittleEndian.Uint64(buf)
	case KindUpdate:
		want := 8 + 4 + 8 + page.Size + page.Size
		if len(buf) != want {
			return nil, fmt.Errorf("wal: UPDATE payload size %d want %d", len(buf), want)
		}
		r.TID = binary.LittleEndian.Uint64(buf[0:])
		r.Pgno = page.Num(binary.LittleEndian.Uint32(buf[8:]))
		r.PrevLSN = LSN(binary.LittleEndian.Uint64(buf[12:]))
		var undo, redo page.Buf
		copy(undo[:], buf[20:20+page.Size])
		copy(redo[:], buf[20+page.Size:])
		r.UndoImage = &undo
		r.RedoImage = &redo
	case KindCLR:
		want := 8 + 4 + 8 + 8 + page.Size
		if len(buf) != want {
			return nil, fmt.Errorf("wal: CLR payload size %d want %d", len(buf), want)
		}
		r.TID = binary.LittleEndian.Uint64(buf[0:])
		r.Pgno = page.Num(binary.LittleEndian.Uint32(buf[8:]))
		r.PrevLSN = LSN(binary.LittleEndian.Uint64(buf[12:]))
		r.UndoNextLSN = LSN(binary.LittleEndian.Uint64(buf[20:]))
		var redo page.Buf
		copy(redo[:], buf[28:28+page.Size])
		r.RedoImage = &redo
	case KindCommit, KindEnd:
		if len(buf) != 16 {
			return nil, fmt.Errorf("wal: COMMIT/END payload size %d", len(buf))
		}
		r.TID = binary.LittleEndian.Uint64(buf[0:])
		r.PrevLSN = LSN(binary.LittleEndian.Uint64(buf[8:]))
	case KindCkptBegin:
		// empty payload
	case KindCkptEnd:
		if len(buf) < 4 {
			return nil, fmt.Errorf("wal: CKPT_END payload too short")
		}
		off := 0
		nTxns := int(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
		txns := make([]TxnSnapshot, 0, nTxns)
		for i := 0; i < nTxns; i++ {
			if off+25 > len(buf) {
				return nil, fmt.Errorf("wal: CKPT_END truncated txn table")
			}
			txns = append(txns, TxnSnapshot{
				TID:         binary.LittleEndian.Uint64(buf[off:]),
				LastLSN:     LSN(binary.LittleEndian.Uint64(buf[off+8:])),
				UndoNextLSN: LSN(binary.LittleEndian.Uint64(buf[off+16:])),
				State:       TxnState(buf[off+24]),
			})
			off += 25
		}
		if off+4 > len(buf) {
			return nil, fmt.Errorf("wal: CKPT_END truncated DPT length")
		}
		nDPT := int(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
		dpt := make([]DirtyPageSnapshot, 0, nDPT)
		for i := 0; i < nDPT; i++ {
			if off+12 > len(buf) {
				return nil, fmt.Errorf("wal: CKPT_END truncated DPT")
			}
			dpt = append(dpt, DirtyPageSnapshot{
				Pgno:   page.Num(binary.LittleEndian.Uint32(buf[off:])),
				RecLSN: LSN(binary.LittleEndian.Uint64(buf[off+4:])),
			})
			off += 12
		}
		r.Txns = &txns
		r.DPT = &dpt
	default:
		return nil, fmt.Errorf("wal: unknown record kind %d", kind)
	}
	return r, nil
}

func checksum(kind Kind, payload []byte) uint32 {
	h := crc32.NewIEEE()
	h.Write([]byte{byte(kind)})
	h.Write(payload)
	return h.Sum32()
}
