package page

import "encoding/binary"

// Tombstone is the layout of a freed page: type(1) next(4). The chain
// rooted at Root.FirstTombstone() is an implicit singly-linked free list
// (spec.md GLOSSARY "Tombstone page").
const tombstoneOffNext = 1

type Tombstone struct{ Buf *Buf }

func InitTombstone(b *Buf, next Num) Tombstone {
	b.SetType(TypeTombstone)
	t := Tombstone{b}
	t.SetNext(next)
	return t
}

func (t Tombstone) Next() Num {
	return Num(binary.LittleEndian.Uint32(t.Buf[tombstoneOffNext:]))
}

func (t Tombstone) SetNext(n Num) {
	binary.LittleEndian.PutUint32(t.Buf[tombstoneOffNext:], uint32(n))
}
