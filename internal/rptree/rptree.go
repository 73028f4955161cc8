// Package rptree implements the rope/B+tree described in spec.md §4.5: a
// balanced tree whose leaves are variable-length byte runs (DATA_LIST
// pages) and whose inner nodes key children by cumulative byte count of
// descendants. It gives O(log n) seek to any byte offset while keeping
// leaves contiguous and cache-friendly.
//
// Grounded on intellect4all-storage-engines/btree/node.go and
// btree/split.go's split/merge machinery, generalized from that teacher's
// fixed-size-key B-tree to numstore's byte-offset-keyed rope, and on
// btree/iterator.go's chain-walking pattern for the leaf-to-leaf reads
// rpt_read/rpt_write/rpt_delete perform.
package rptree

import (
	"fmt"

	"github.com/intellect4all/numstore/internal/page"
	"github.com/intellect4all/numstore/internal/pager"
	"github.com/intellect4all/numstore/internal/storeerr"
)

// fillFactor governs how a node's keys are split between the original and
// a new sibling when either a DATA_LIST or an INNER_NODE overflows
// (spec.md §4.5 "Upper layers (INI)": "distribute keys using a
// fill_factor (0.5 default)").
const fillFactor = 0.5

// Tree is a handle for operating on rope/B+tree instances rooted anywhere
// in the data file; numstore stores one pg0 per named dataset in its hash
// index entry and reopens a Tree value (cheap — it only wraps the pager)
// per operation.
type Tree struct {
	p *pager.Pager
}

func New(p *pager.Pager) *Tree { return &Tree{p: p} }

// Locks exposes the pager's process-wide lock table so callers (cursor.Begin)
// can acquire RPTREE(pgno)-level holds around a statement's lifetime
// (spec.md §4.4).
func (t *Tree) Locks() *pager.LockTable { return t.p.Locks() }

// CreateRoot allocates a single empty DATA_LIST leaf and returns its page
// number to serve as a brand new rope's pg0 (spec.md §6 DSL surface
// "create": "allocates rptree root").
func (t *Tree) CreateRoot(tid uint64) (page.Num, error) {
	h, err := t.p.New(tid, page.TypeDataList)
	if err != nil {
		return page.NullNum, err
	}
	if err := t.p.SaveAsRoot(tid, h, page.MaskOf(page.TypeDataList)); err != nil {
		return page.NullNum, err
	}
	pgno := h.Pgno
	if err := t.p.Release(h, page.MaskOf(page.TypeDataList)); err != nil {
		return page.NullNum, err
	}
	return pgno, nil
}

// seekFrame records the inner node visited and the child index chosen at
// it, so mutations can back-propagate key deltas without re-descending
// from pg0 (spec.md §4.5 "Seek": "The stack is retained so subsequent
// mutations can back-propagate key deltas without re-traversing from
// root").
type seekFrame struct {
	pgno page.Num
	idx  int
}

// Cursor is the result of a Seek: a position inside the rope expressed as
// the inner-node path taken (stack), the leaf landed on, and the local
// byte index within that leaf. EOF is set when the requested offset was
// clipped to the rope's total length.
type Cursor struct {
	pg0      page.Num
	stack    []seekFrame
	leaf     page.Num
	localIdx int
	EOF      bool
}

// Seek descends from pg0 to the DATA_LIST leaf containing byte offset
// byteOffset, per spec.md §4.5 "Seek (rpt_seek(byte))".
func (t *Tree) Seek(pg0 page.Num, byteOffset int64) (*Cursor, error) {
	c := &Cursor{pg0: pg0}
	pgno := pg0
	remaining := byteOffset
	atRoot := true

	for {
		var h *pager.Handle
		var err error
		if atRoot {
			h, err = t.p.GetAsRoot(pgno, page.MaskOf(page.TypeInnerNode, page.TypeDataList))
		} else {
			h, err = t.p.Get(pgno, page.MaskOf(page.TypeInnerNode, page.TypeDataList))
		}
		atRoot = false
		if err != nil {
			return nil, err
		}
		switch h.Buf().Type() {
		case page.TypeInnerNode:
			in := page.InnerNode{Buf: h.Buf()}
			if remaining < 0 {
				remaining = 0
			}
			idx, localByte := in.ChildForByte(clampU32(remaining))
			leaf := in.Leaf(idx)
			c.stack = append(c.stack, seekFrame{pgno: pgno, idx: idx})
			if err := t.p.Release(h, page.MaskOf(page.TypeInnerNode)); err != nil {
				return nil, err
			}
			pgno = leaf
			remaining = int64(localByte)
		case page.TypeDataList:
			dl := page.DataList{Buf: h.Buf()}
			used := int64(dl.Used())
			if remaining > used {
				remaining = used
			}
			if remaining < 0 {
				remaining = 0
			}
			c.EOF = remaining == used
			c.leaf = pgno
			c.localIdx = int(remaining)
			if err := t.p.Release(h, page.MaskOf(page.TypeDataList)); err != nil {
				return nil, err
			}
			return c, nil
		default:
			t.p.Release(h, page.MaskAny)
			return nil, fmt.Errorf("%w: unexpected page type %d in rope", storeerr.Corrupt, h.Buf().Type())
		}
	}
}

func clampU32(v int64) uint32 {
	if v < 0 {
		return 0
	}
	return uint32(v)
}
