package hashindex

import (
	"github.com/intellect4all/numstore/internal/page"
	"github.com/intellect4all/numstore/internal/pager"
)

func (ix *Index) insertIntoNewBucket(tid uint64, bucketIdx int, e Entry) error {
	nh, err := ix.p.New(tid, page.TypeHashLeaf)
	if err != nil {
		return err
	}
	if err := ix.setBucketHead(tid, bucketIdx, nh.Pgno); err != nil {
		return err
	}
	return ix.writeChain(tid, nh, 0, encodedBody(e))
}

func (ix *Index) appendEntry(tid uint64, loc entryLoc, e Entry) error {
	h, err := ix.p.Get(loc.leaf, hlMask)
	if err != nil {
		return err
	}
	xh, err := ix.p.MakeWritable(tid, h)
	if err != nil {
		ix.p.Release(h, hlMask)
		return err
	}
	return ix.writeChain(tid, xh, loc.off, encodedBody(e))
}

func encodedBody(e Entry) []byte {
	return append([]byte{page.EntryPresent}, e.encodeBody()...)
}

// writeChain writes data into xh starting at startOff, allocating and
// linking new HASH_LEAF pages as capacity requires (spec.md §4.6: "If a
// record straddles a page boundary, allocate and link a new HASH_LEAF and
// continue"), then writes a fresh EOF marker immediately after the last
// byte written, saving and releasing every leaf it touches along the way.
func (ix *Index) writeChain(tid uint64, xh *pager.Handle, startOff int, data []byte) error {
	off := startOff
	remaining := data
	for {
		hl := page.HashLeaf{Buf: xh.Buf()}
		d := hl.Data()
		n := len(d) - off
		if n > len(remaining) {
			n = len(remaining)
		}
		if n > 0 {
			copy(d[off:off+n], remaining[:n])
			remaining = remaining[n:]
			off += n
		}
		if len(remaining) == 0 {
			break
		}
		nxh, err := ix.allocLinkedLeaf(tid, xh)
		if err != nil {
			return err
		}
		xh, off = nxh, 0
	}

	d := page.HashLeaf{Buf: xh.Buf()}.Data()
	if off >= len(d) {
		nxh, err := ix.allocLinkedLeaf(tid, xh)
		if err != nil {
			return err
		}
		xh, off = nxh, 0
		d = page.HashLeaf{Buf: xh.Buf()}.Data()
	}
	d[off] = page.EntryEOF

	if err := ix.p.Save(tid, xh, hlMask); err != nil {
		return err
	}
	return ix.p.Release(xh, hlMask)
}

// allocLinkedLeaf allocates a new HASH_LEAF, links it in after prevXH via
// Next(), and saves+releases prevXH — the write-side counterpart of
// internal/rptree's allocSiblingLeaf, specialized to a singly-linked
// chain.
func (ix *Index) allocLinkedLeaf(tid uint64, prevXH *pager.Handle) (*pager.Handle, error) {
	nh, err := ix.p.New(tid, page.TypeHashLeaf)
	if err != nil {
		return nil, err
	}
	prevHL := page.HashLeaf{Buf: prevXH.Buf()}
	prevHL.SetNext(nh.Pgno)
	if err := ix.p.Save(tid, prevXH, hlMask); err != nil {
		return nil, err
	}
	if err := ix.p.Release(prevXH, hlMask); err != nil {
		return nil, err
	}
	return nh, nil
}

func (ix *Index) setBucketHead(tid uint64, bucketIdx int, pgno page.Num) error {
	h, err := ix.p.Get(ix.dir, page.MaskOf(page.TypeHashDirectory))
	if err != nil {
		return err
	}
	xh, err := ix.p.MakeWritable(tid, h)
	if err != nil {
		ix.p.Release(h, page.MaskOf(page.TypeHashDirectory))
		return err
	}
	page.HashDirectory{Buf: xh.Buf()}.SetBucket(bucketIdx, pgno)
	if err := ix.p.Save(tid, xh, page.MaskOf(page.TypeHashDirectory)); err != nil {
		return err
	}
	return ix.p.Release(xh, page.MaskOf(page.TypeHashDirectory))
}
