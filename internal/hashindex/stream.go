package hashindex

import (
	"fmt"

	"github.com/intellect4all/numstore/internal/page"
	"github.com/intellect4all/numstore/internal/pager"
	"github.com/intellect4all/numstore/internal/storeerr"
)

var hlMask = page.MaskOf(page.TypeHashLeaf)

// entryLoc pins the byte position of an entry's kind byte — always a
// single byte within one leaf, since the kind byte is written and read
// in one piece before anything that might straddle a page boundary
// (spec.md §4.6's header/name/type payload, not the kind tag itself).
type entryLoc struct {
	leaf page.Num
	off  int
}

// leafReader walks a HASH_LEAF chain byte-by-byte, crossing into Next()
// transparently when the current leaf's Data() is exhausted — mirroring
// the sibling-chain-walking pattern internal/rptree borrows from
// intellect4all-storage-engines/btree/iterator.go, specialized here to a
// singly-linked chain with no running length counter (the EOF marker
// bounds valid content instead).
type leafReader struct {
	p    *pager.Pager
	h    *pager.Handle
	cur  page.Num
	data []byte
	off  int
}

func newLeafReader(p *pager.Pager, head page.Num) (*leafReader, error) {
	if head == page.NullNum {
		return nil, nil
	}
	h, err := p.Get(head, hlMask)
	if err != nil {
		return nil, err
	}
	return &leafReader{p: p, h: h, cur: head, data: page.HashLeaf{Buf: h.Buf()}.Data()}, nil
}

func (r *leafReader) loc() entryLoc { return entryLoc{r.cur, r.off} }

// release unpins the current leaf handle. It is a no-op once that handle
// has already been released (advance leaves r.h nil after doing so), so
// walk's deferred cleanup never double-releases a page whose pin may by
// then belong to an unrelated caller.
func (r *leafReader) release() {
	if r.h == nil {
		return
	}
	r.p.Release(r.h, hlMask)
	r.h = nil
}

func (r *leafReader) advance() error {
	next := page.HashLeaf{Buf: r.h.Buf()}.Next()
	r.release()
	if next == page.NullNum {
		return fmt.Errorf("%w: hash leaf chain ended without an EOF marker", storeerr.Corrupt)
	}
	h, err := r.p.Get(next, hlMask)
	if err != nil {
		return err
	}
	r.h, r.cur, r.data, r.off = h, next, page.HashLeaf{Buf: h.Buf()}.Data(), 0
	return nil
}

func (r *leafReader) readByte() (byte, error) {
	if r.off >= len(r.data) {
		if err := r.advance(); err != nil {
			return 0, err
		}
	}
	b := r.data[r.off]
	r.off++
	return b, nil
}

func (r *leafReader) readN(n int) ([]byte, error) {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		b, err := r.readByte()
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// walk scans the chain rooted at head, decoding each entry in turn and
// invoking visit with its location. If visit returns stop=true, walk
// returns immediately with a zero-value entryLoc. Otherwise walk runs to
// the chain's EOF marker and returns its location, for Insert to append
// the new entry in its place.
func (ix *Index) walk(head page.Num, visit func(loc entryLoc, e Entry) (bool, error)) (entryLoc, error) {
	r, err := newLeafReader(ix.p, head)
	if err != nil {
		return entryLoc{}, err
	}
	if r == nil {
		return entryLoc{}, nil
	}
	defer r.release()

	for {
		loc := r.loc()
		kind, err := r.readByte()
		if err != nil {
			return entryLoc{}, err
		}
		if kind == page.EntryEOF {
			return loc, nil
		}
		if kind != page.EntryPresent && kind != page.EntryTombstone {
			return entryLoc{}, fmt.Errorf("%w: bad hash-leaf entry kind %d", storeerr.Corrupt, kind)
		}
		hdr, err := r.readN(entryHeaderSize - 1)
		if err != nil {
			return entryLoc{}, err
		}
		vlen, tlen, pg0, err := decodeHeader(hdr)
		if err != nil {
			return entryLoc{}, err
		}
		name, err := r.readN(vlen)
		if err != nil {
			return entryLoc{}, err
		}
		typ, err := r.readN(tlen)
		if err != nil {
			return entryLoc{}, err
		}
		stop, err := visit(loc, Entry{Kind: kind, Name: string(name), Type: typ, Pg0: pg0})
		if err != nil {
			return entryLoc{}, err
		}
		if stop {
			return entryLoc{}, nil
		}
	}
}
