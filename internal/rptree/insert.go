package rptree

import (
	"fmt"

	"github.com/intellect4all/numstore/internal/page"
	"github.com/intellect4all/numstore/internal/pager"
	"github.com/intellect4all/numstore/internal/storeerr"
)

// Insert implements rpt_insert (spec.md §4.5 "Insert"): it grows the rope
// by src bytes at c's current position, splitting and allocating leaves
// (phase DLI) and then propagating the resulting byte-count delta and any
// overflow pages up through the inner-node path recorded in c's seek stack
// (phase INI). It returns the tree's pg0 — unchanged unless a new root had
// to be grown.
func (t *Tree) Insert(tid uint64, c *Cursor, src []byte) (page.Num, error) {
	if len(src) == 0 {
		return c.pg0, nil
	}

	newLeaves, err := t.insertLeafChain(tid, c.leaf, c.localIdx, src)
	if err != nil {
		return page.NullNum, err
	}

	pending := newLeaves
	kind := levelLeaf
	delta := int64(len(src))

	pg0 := c.pg0
	for i := len(c.stack) - 1; i >= 0; i-- {
		frame := c.stack[i]
		// i == 0 is the outermost frame Seek recorded, i.e. the inner node
		// at pg0 itself (spec.md line 41's root exemption travels with
		// whichever pgno the tree's root currently is, not with page 0).
		pending, err = t.propagateLevel(tid, frame.pgno, frame.idx, delta, pending, kind, i == 0)
		if err != nil {
			return page.NullNum, err
		}
		kind = levelInner
	}

	if len(pending) > 0 {
		pg0, err = t.growNewRoot(tid, pg0, kind, pending)
		if err != nil {
			return page.NullNum, err
		}
	}

	return pg0, nil
}

// insertLeafChain implements phase DLI: it splits leafPgno at idx0,
// writing src into the gap, spilling into freshly allocated sibling
// leaves as capacity requires, and returns the newly allocated leaves (in
// chain order) so phase INI can link them into the parent level. The
// original leaf keeps its page number; only pages created to hold
// overflow are returned.
func (t *Tree) insertLeafChain(tid uint64, leafPgno page.Num, idx0 int, src []byte) ([]page.Num, error) {
	h, err := t.p.Get(leafPgno, page.MaskOf(page.TypeDataList))
	if err != nil {
		return nil, err
	}
	xh, err := t.p.MakeWritable(tid, h)
	if err != nil {
		t.p.Release(h, page.MaskOf(page.TypeDataList))
		return nil, err
	}
	dl := page.DataList{Buf: xh.Buf()}
	used := dl.Used()
	if idx0 > used {
		idx0 = used
	}

	tail := append([]byte(nil), dl.Bytes()[idx0:used]...)
	dl.Truncate(idx0)

	var newLeaves []page.Num
	remaining := src
	cur := xh

	for len(remaining) > 0 {
		wdl := page.DataList{Buf: cur.Buf()}
		free := wdl.Free()
		take := free
		if take > len(remaining) {
			take = len(remaining)
		}
		if take > 0 {
			wdl.Append(remaining[:take])
			remaining = remaining[take:]
		}
		if len(remaining) == 0 {
			break
		}
		next, err := t.allocSiblingLeaf(tid, cur)
		if err != nil {
			return nil, err
		}
		newLeaves = append(newLeaves, next.Pgno)
		cur = next
	}

	// Append the preserved tail, spilling into further new leaves if the
	// current tail leaf doesn't have room.
	remaining = tail
	for len(remaining) > 0 {
		wdl := page.DataList{Buf: cur.Buf()}
		free := wdl.Free()
		take := free
		if take > len(remaining) {
			take = len(remaining)
		}
		if take > 0 {
			wdl.Append(remaining[:take])
			remaining = remaining[take:]
		}
		if len(remaining) == 0 {
			break
		}
		next, err := t.allocSiblingLeaf(tid, cur)
		if err != nil {
			return nil, err
		}
		newLeaves = append(newLeaves, next.Pgno)
		cur = next
	}

	if err := t.p.Save(tid, cur, page.MaskOf(page.TypeDataList)); err != nil {
		return nil, err
	}
	if err := t.p.Release(cur, page.MaskOf(page.TypeDataList)); err != nil {
		return nil, err
	}
	return newLeaves, nil
}

// allocSiblingLeaf allocates a new DATA_LIST leaf, links it in after prevH
// in the sibling chain (relinking prevH's old next's prev pointer too),
// saves and releases prevH, and returns the new leaf's handle (still
// exclusively held, unsaved) for the caller to fill in further.
func (t *Tree) allocSiblingLeaf(tid uint64, prevH *pager.Handle) (*pager.Handle, error) {
	prevDL := page.DataList{Buf: prevH.Buf()}
	oldNext := prevDL.Next()

	nh, err := t.p.New(tid, page.TypeDataList)
	if err != nil {
		return nil, err
	}
	ndl := page.DataList{Buf: nh.Buf()}
	ndl.SetPrev(prevH.Pgno)
	ndl.SetNext(oldNext)

	prevDL.SetNext(nh.Pgno)
	if err := t.p.Save(tid, prevH, page.MaskOf(page.TypeDataList)); err != nil {
		return nil, err
	}
	if err := t.p.Release(prevH, page.MaskOf(page.TypeDataList)); err != nil {
		return nil, err
	}

	if oldNext != page.NullNum {
		if err := t.setSibling(tid, levelLeaf, oldNext, &nh.Pgno, nil); err != nil {
			return nil, err
		}
	}
	return nh, nil
}

// propagateLevel implements phase INI for a single inner-node level
// (spec.md §4.5 "Upper layers (INI)"). parentPgno is the node visited at
// this level during seek, childIdx the child index the seek descended
// into. delta is the byte-count growth of that child's subtree; pending
// is the set of brand-new sibling pages (one level down) created by the
// level below that still need a routing entry here. It returns any new
// sibling pages this level itself had to create to hold pending's
// overflow, for the caller to propagate one level further up.
func (t *Tree) propagateLevel(tid uint64, parentPgno page.Num, childIdx int, delta int64, pending []page.Num, kind levelKind, isRoot bool) ([]page.Num, error) {
	var h *pager.Handle
	var err error
	if isRoot {
		h, err = t.p.GetAsRoot(parentPgno, page.MaskOf(page.TypeInnerNode))
	} else {
		h, err = t.p.Get(parentPgno, page.MaskOf(page.TypeInnerNode))
	}
	if err != nil {
		return nil, err
	}
	xh, err := t.p.MakeWritable(tid, h)
	if err != nil {
		t.p.Release(h, page.MaskOf(page.TypeInnerNode))
		return nil, err
	}
	in := page.InnerNode{Buf: xh.Buf()}

	// The child's own content was redistributed (it may have shrunk, even
	// though the subtree as a whole grew by delta), so its key is
	// recomputed from its actual current size rather than shifted.
	childPgno := in.Leaf(childIdx)
	childSize, err := t.sizeOfChild(kind, childPgno, false)
	if err != nil {
		return nil, err
	}
	base := uint32(0)
	if childIdx > 0 {
		base = in.Key(childIdx - 1)
	}
	in.AddToKey(childIdx, int64(base)+int64(childSize)-int64(in.Key(childIdx)))
	in.AddToKeysFrom(childIdx+1, delta)

	var overflow []page.Num
	insertAt := childIdx + 1
	for _, childPage := range pending {
		sz, err := t.sizeOfChild(kind, childPage, false)
		if err != nil {
			return nil, err
		}
		prevKey := uint32(0)
		if insertAt > 0 {
			prevKey = in.Key(insertAt - 1)
		}
		if in.Full() {
			overflow = append(overflow, childPage)
			continue
		}
		in.InsertChild(insertAt, prevKey+sz, childPage)
		in.AddToKeysFrom(insertAt+1, int64(sz))
		insertAt++
	}

	if isRoot {
		err = t.p.SaveAsRoot(tid, xh, page.MaskOf(page.TypeInnerNode))
	} else {
		err = t.p.Save(tid, xh, page.MaskOf(page.TypeInnerNode))
	}
	if err != nil {
		return nil, err
	}
	if err := t.p.Release(xh, page.MaskOf(page.TypeInnerNode)); err != nil {
		return nil, err
	}

	if len(overflow) == 0 {
		return nil, nil
	}
	return t.packIntoNewSiblings(tid, kind, overflow, parentPgno)
}

// packIntoNewSiblings batches overflow child pages (one level below kind's
// own level — i.e. of the same kind as pending's children, routed by new
// INNER_NODE pages at kind's level) into freshly allocated inner nodes
// sized to fillFactor occupancy, linking them into the sibling chain right
// after afterNode. It returns the new inner-node page numbers for the
// caller to propagate one level up.
func (t *Tree) packIntoNewSiblings(tid uint64, childKind levelKind, items []page.Num, afterNode page.Num) ([]page.Num, error) {
	batchSize := int(float64(page.MaxKeys) * fillFactor)
	if batchSize < 1 {
		batchSize = 1
	}

	var newNodes []page.Num
	for off := 0; off < len(items); off += batchSize {
		end := off + batchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[off:end]

		nh, err := t.p.New(tid, page.TypeInnerNode)
		if err != nil {
			return nil, err
		}
		in := page.InnerNode{Buf: nh.Buf()}
		var cum uint32
		for _, child := range batch {
			sz, err := t.sizeOfChild(childKind, child, false)
			if err != nil {
				return nil, err
			}
			cum += sz
			in.InsertChild(in.NKeys(), cum, child)
		}
		if err := t.p.Save(tid, nh, page.MaskOf(page.TypeInnerNode)); err != nil {
			return nil, err
		}
		if err := t.p.Release(nh, page.MaskOf(page.TypeInnerNode)); err != nil {
			return nil, err
		}
		newNodes = append(newNodes, nh.Pgno)
	}

	afterNext, err := t.getNext(levelInner, afterNode)
	if err != nil {
		return nil, err
	}
	if err := t.linkChain(tid, levelInner, afterNode, newNodes, afterNext); err != nil {
		return nil, err
	}
	return newNodes, nil
}

// growNewRoot allocates a brand new INNER_NODE root when the seek stack is
// exhausted with pending overflow still unrouted: oldRoot becomes child 0,
// and pending's pages follow as subsequent children. pendingKind is the
// kind of the pending pages (and of oldRoot, which is always the prior
// pg0 — a DATA_LIST only for a one-leaf tree, otherwise an INNER_NODE).
func (t *Tree) growNewRoot(tid uint64, oldRoot page.Num, childKind levelKind, pending []page.Num) (page.Num, error) {
	nh, err := t.p.New(tid, page.TypeInnerNode)
	if err != nil {
		return page.NullNum, err
	}
	in := page.InnerNode{Buf: nh.Buf()}

	oldSize, err := t.sizeOfChild(childKind, oldRoot, true)
	if err != nil {
		return page.NullNum, err
	}
	in.InsertChild(0, oldSize, oldRoot)

	cum := oldSize
	for _, child := range pending {
		sz, err := t.sizeOfChild(childKind, child, false)
		if err != nil {
			return page.NullNum, err
		}
		cum += sz
		in.InsertChild(in.NKeys(), cum, child)
	}

	if in.NKeys() > page.MaxKeys {
		return page.NullNum, fmt.Errorf("%w: new root overflowed on creation", storeerr.Corrupt)
	}

	// nh is becoming the tree's new root right now, so it is exempt from
	// the non-root half-full check even though it typically holds far
	// fewer than MaxKeys/2 children (spec.md line 41).
	if err := t.p.SaveAsRoot(tid, nh, page.MaskOf(page.TypeInnerNode)); err != nil {
		return page.NullNum, err
	}
	if err := t.p.Release(nh, page.MaskOf(page.TypeInnerNode)); err != nil {
		return page.NullNum, err
	}
	return nh.Pgno, nil
}
