package rptree

import (
	"fmt"

	"github.com/intellect4all/numstore/internal/page"
	"github.com/intellect4all/numstore/internal/storeerr"
)

// Write implements rpt_write (spec.md §4.5 "Write"): overwrites n
// elements of size bytes in place without growing the rope, honoring
// stride, and never allocates or splits. Reaching the end of the chain
// before all elements are written raises CORRUPT, since overwriting
// past the rope's current extent is not a supported operation (use
// Insert to grow).
func (t *Tree) Write(tid uint64, c *Cursor, src []byte, size, n, stride int) error {
	if size <= 0 || n < 0 || stride <= 0 {
		return fmt.Errorf("%w: invalid size/n/stride", storeerr.InvalidArgument)
	}
	if len(src) < size*n {
		return fmt.Errorf("%w: source buffer too small", storeerr.InvalidArgument)
	}

	cur := c.leaf
	idx := c.localIdx
	for i := 0; i < n; i++ {
		wrote, err := t.overwriteBytes(tid, &cur, &idx, src[i*size:(i+1)*size])
		if err != nil {
			return err
		}
		if wrote != size {
			return fmt.Errorf("%w: write ran past end of rope (%d of %d bytes)", storeerr.Corrupt, wrote, size)
		}
		if i == n-1 {
			break
		}
		if stride > 1 {
			skip := size * (stride - 1)
			skipped, err := t.skipBytes(&cur, &idx, skip)
			if err != nil {
				return err
			}
			if skipped < skip {
				return fmt.Errorf("%w: write stride ran past end of rope", storeerr.Corrupt)
			}
		}
	}
	c.leaf = cur
	c.localIdx = idx
	return nil
}

// overwriteBytes writes n bytes of src starting at (*cur, *idx), crossing
// leaf boundaries in place (never growing a leaf), and returns the number
// of bytes actually written.
func (t *Tree) overwriteBytes(tid uint64, cur *page.Num, idx *int, src []byte) (int, error) {
	remaining := len(src)
	off := 0
	for remaining > 0 {
		h, err := t.p.Get(*cur, page.MaskOf(page.TypeDataList))
		if err != nil {
			return off, err
		}
		dl := page.DataList{Buf: h.Buf()}
		used := dl.Used()
		avail := used - *idx
		if avail <= 0 {
			next := dl.Next()
			if err := t.p.Release(h, page.MaskOf(page.TypeDataList)); err != nil {
				return off, err
			}
			if next == page.NullNum {
				return off, nil
			}
			*cur = next
			*idx = 0
			continue
		}
		take := avail
		if take > remaining {
			take = remaining
		}
		xh, err := t.p.MakeWritable(tid, h)
		if err != nil {
			t.p.Release(h, page.MaskOf(page.TypeDataList))
			return off, err
		}
		wdl := page.DataList{Buf: xh.Buf()}
		wdl.OverwriteAt(*idx, src[off:off+take])
		if err := t.p.Save(tid, xh, page.MaskOf(page.TypeDataList)); err != nil {
			return off, err
		}
		if err := t.p.Release(xh, page.MaskOf(page.TypeDataList)); err != nil {
			return off, err
		}
		*idx += take
		off += take
		remaining -= take
	}
	return off, nil
}
