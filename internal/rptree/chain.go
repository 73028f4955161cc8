package rptree

import (
	"github.com/intellect4all/numstore/internal/page"
	"github.com/intellect4all/numstore/internal/pager"
)

// levelKind distinguishes whether a set of page numbers being threaded
// through insert's upward propagation (spec.md §4.5 "Upper layers (INI)")
// are DATA_LIST leaves or INNER_NODE routers.
type levelKind int

const (
	levelLeaf levelKind = iota
	levelInner
)

func (k levelKind) mask() page.Mask {
	if k == levelLeaf {
		return page.MaskOf(page.TypeDataList)
	}
	return page.MaskOf(page.TypeInnerNode)
}

// sizeOfChild returns a child's own byte contribution: a leaf's Used(), or
// an inner node's TotalBytes(). isRoot must be true when pgno is still the
// tree's own pg0 at the moment of the call (e.g. growNewRoot sizing the
// old root just before it becomes child 0 of a fresh root).
func (t *Tree) sizeOfChild(kind levelKind, pgno page.Num, isRoot bool) (uint32, error) {
	var h *pager.Handle
	var err error
	if isRoot {
		h, err = t.p.GetAsRoot(pgno, kind.mask())
	} else {
		h, err = t.p.Get(pgno, kind.mask())
	}
	if err != nil {
		return 0, err
	}
	var u uint32
	if kind == levelLeaf {
		u = uint32(page.DataList{Buf: h.Buf()}.Used())
	} else {
		u = page.InnerNode{Buf: h.Buf()}.TotalBytes()
	}
	if err := t.p.Release(h, kind.mask()); err != nil {
		return 0, err
	}
	return u, nil
}

func (t *Tree) getNext(kind levelKind, pgno page.Num) (page.Num, error) {
	if pgno == page.NullNum {
		return page.NullNum, nil
	}
	h, err := t.p.Get(pgno, kind.mask())
	if err != nil {
		return page.NullNum, err
	}
	var n page.Num
	if kind == levelLeaf {
		n = page.DataList{Buf: h.Buf()}.Next()
	} else {
		n = page.InnerNode{Buf: h.Buf()}.Next()
	}
	if err := t.p.Release(h, kind.mask()); err != nil {
		return page.NullNum, err
	}
	return n, nil
}

// setSibling updates pgno's prev and/or next pointers; a nil argument
// leaves that field untouched.
func (t *Tree) setSibling(tid uint64, kind levelKind, pgno page.Num, prev, next *page.Num) error {
	h, err := t.p.Get(pgno, kind.mask())
	if err != nil {
		return err
	}
	xh, err := t.p.MakeWritable(tid, h)
	if err != nil {
		t.p.Release(h, kind.mask())
		return err
	}
	if kind == levelLeaf {
		dl := page.DataList{Buf: xh.Buf()}
		if prev != nil {
			dl.SetPrev(*prev)
		}
		if next != nil {
			dl.SetNext(*next)
		}
	} else {
		in := page.InnerNode{Buf: xh.Buf()}
		if prev != nil {
			in.SetPrev(*prev)
		}
		if next != nil {
			in.SetNext(*next)
		}
	}
	if err := t.p.Save(tid, xh, kind.mask()); err != nil {
		return err
	}
	return t.p.Release(xh, kind.mask())
}

// linkChain splices the pages in chain (already written, in order)
// between before and after in the sibling list at the given level:
// before.next = chain[0], chain[i].prev/next thread the chain, and
// chain[last].next = after (updating after.prev too, if present).
// before may be NullNum (chain becomes the new head); chain must be
// non-empty.
func (t *Tree) linkChain(tid uint64, kind levelKind, before page.Num, chain []page.Num, after page.Num) error {
	for i, pgno := range chain {
		var prev, next *page.Num
		if i == 0 {
			prev = &before
		} else {
			prev = &chain[i-1]
		}
		if i == len(chain)-1 {
			next = &after
		} else {
			next = &chain[i+1]
		}
		if err := t.setSibling(tid, kind, pgno, prev, next); err != nil {
			return err
		}
	}
	if before != page.NullNum {
		head := chain[0]
		if err := t.setSibling(tid, kind, before, nil, &head); err != nil {
			return err
		}
	}
	if after != page.NullNum {
		tail := chain[len(chain)-1]
		if err := t.setSibling(tid, kind, after, &tail, nil); err != nil {
			return err
		}
	}
	return nil
}
