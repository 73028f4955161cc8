package rptree

import (
	"github.com/intellect4all/numstore/internal/page"
	"github.com/intellect4all/numstore/internal/pager"
)

// FreeRope walks every page reachable from pg0 (spec.md §6 DSL surface:
// "delete <name>; — marks hash entry tombstone; deletes rptree chain")
// and converts each to a TOMBSTONE page linked into the data file's free
// list (pager.DeleteAndRelease), so a subsequent create can reuse them —
// spec.md §8 scenario 2: "create x u8 reuses the freed page numbers in
// reverse deletion order."
func (t *Tree) FreeRope(tid uint64, pg0 page.Num) error {
	return t.freeSubtree(tid, pg0, true)
}

func (t *Tree) freeSubtree(tid uint64, pgno page.Num, isRoot bool) error {
	var h *pager.Handle
	var err error
	if isRoot {
		h, err = t.p.GetAsRoot(pgno, page.MaskOf(page.TypeInnerNode, page.TypeDataList))
	} else {
		h, err = t.p.Get(pgno, page.MaskOf(page.TypeInnerNode, page.TypeDataList))
	}
	if err != nil {
		return err
	}
	switch h.Buf().Type() {
	case page.TypeInnerNode:
		in := page.InnerNode{Buf: h.Buf()}
		children := make([]page.Num, in.NKeys())
		for i := range children {
			children[i] = in.Leaf(i)
		}
		if err := t.p.Release(h, page.MaskOf(page.TypeInnerNode)); err != nil {
			return err
		}
		for _, child := range children {
			if err := t.freeSubtree(tid, child, false); err != nil {
				return err
			}
		}
		return t.freePage(tid, pgno, page.MaskOf(page.TypeInnerNode), isRoot)
	default:
		if err := t.p.Release(h, page.MaskOf(page.TypeDataList)); err != nil {
			return err
		}
		return t.freePage(tid, pgno, page.MaskOf(page.TypeDataList), isRoot)
	}
}

func (t *Tree) freePage(tid uint64, pgno page.Num, mask page.Mask, isRoot bool) error {
	var h *pager.Handle
	var err error
	if isRoot {
		h, err = t.p.GetAsRoot(pgno, mask)
	} else {
		h, err = t.p.Get(pgno, mask)
	}
	if err != nil {
		return err
	}
	xh, err := t.p.MakeWritable(tid, h)
	if err != nil {
		t.p.Release(h, mask)
		return err
	}
	return t.p.DeleteAndRelease(tid, xh)
}
