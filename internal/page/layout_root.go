package page

import "encoding/binary"

// Root is page number 0. It stores the master LSN used to bootstrap ARIES
// analysis on restart (spec.md §4.3) and the head of the tombstone free
// list (spec.md §3, §4.1 "Page allocation").
//
// Layout:
//
//	type(1) masterLSN(8) firstTombstone(4) numPages(4)
const (
	rootOffMasterLSN      = 1
	rootOffFirstTombstone = 9
	rootOffNumPages       = 13
	RootHeaderSize        = 17
)

type Root struct{ Buf *Buf }

func InitRoot(b *Buf, numPages uint32) Root {
	b.SetType(TypeRoot)
	r := Root{b}
	r.SetMasterLSN(0)
	r.SetFirstTombstone(NullNum)
	r.SetNumPages(numPages)
	return r
}

func (r Root) MasterLSN() uint64 {
	return binary.LittleEndian.Uint64(r.Buf[rootOffMasterLSN:])
}

func (r Root) SetMasterLSN(lsn uint64) {
	binary.LittleEndian.PutUint64(r.Buf[rootOffMasterLSN:], lsn)
}

func (r Root) FirstTombstone() Num {
	return Num(binary.LittleEndian.Uint32(r.Buf[rootOffFirstTombstone:]))
}

func (r Root) SetFirstTombstone(n Num) {
	binary.LittleEndian.PutUint32(r.Buf[rootOffFirstTombstone:], uint32(n))
}

func (r Root) NumPages() uint32 {
	return binary.LittleEndian.Uint32(r.Buf[rootOffNumPages:])
}

func (r Root) SetNumPages(n uint32) {
	binary.LittleEndian.PutUint32(r.Buf[rootOffNumPages:], n)
}
