package rptree

import (
	"fmt"

	"github.com/intellect4all/numstore/internal/page"
	"github.com/intellect4all/numstore/internal/storeerr"
)

// Read implements rpt_read (spec.md §4.5 "Read"): it reads n elements of
// size bytes each, advancing by stride*size per element (stride==1 is a
// contiguous read), starting at c's position and walking the leaf chain
// via dl_next as leaves are exhausted. It returns the element count
// actually read; fewer than n means the chain ended and c.EOF is set.
func (t *Tree) Read(c *Cursor, dst []byte, size, n, stride int) (int, error) {
	if size <= 0 || n < 0 || stride <= 0 {
		return 0, fmt.Errorf("%w: invalid size/n/stride", storeerr.InvalidArgument)
	}
	if len(dst) < size*n {
		return 0, fmt.Errorf("%w: destination buffer too small", storeerr.InvalidArgument)
	}

	cur := c.leaf
	idx := c.localIdx
	elem := make([]byte, size)
	read := 0

	for read < n {
		got, err := t.copyBytes(&cur, &idx, size, elem)
		if err != nil {
			return read, err
		}
		if got == 0 {
			c.EOF = true
			break
		}
		if got != size {
			return read, fmt.Errorf("%w: partial element read (%d of %d bytes)", storeerr.Corrupt, got, size)
		}
		copy(dst[read*size:(read+1)*size], elem)
		read++

		if read == n {
			break
		}
		if stride > 1 {
			skip := size * (stride - 1)
			skipped, err := t.skipBytes(&cur, &idx, skip)
			if err != nil {
				return read, err
			}
			if skipped < skip {
				c.EOF = true
				break
			}
		}
	}

	c.leaf = cur
	c.localIdx = idx
	return read, nil
}

// copyBytes reads up to n bytes into dst starting at (*cur, *idx),
// crossing leaf boundaries via dl_next as needed, and returns the number
// of bytes actually copied (less than n only at end of chain).
func (t *Tree) copyBytes(cur *page.Num, idx *int, n int, dst []byte) (int, error) {
	remaining := n
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
		copy(dst[off:off+take], dl.Bytes()[*idx:*idx+take])
		*idx += take
		off += take
		remaining -= take
		if err := t.p.Release(h, page.MaskOf(page.TypeDataList)); err != nil {
			return off, err
		}
	}
	return off, nil
}

// skipBytes advances (*cur, *idx) by n bytes across leaf boundaries
// without copying, for the inter-element gap of a strided read.
func (t *Tree) skipBytes(cur *page.Num, idx *int, n int) (int, error) {
	remaining := n
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
		*idx += take
		off += take
		remaining -= take
		if err := t.p.Release(h, page.MaskOf(page.TypeDataList)); err != nil {
			return off, err
		}
	}
	return off, nil
}
