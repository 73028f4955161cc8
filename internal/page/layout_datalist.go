package page

import "encoding/binary"

// DataList is a rope leaf: a run of raw element bytes plus sibling links.
// Layout: type(1) next(4) prev(4) used(2) bytes[DLCapacity].
const (
	dlOffNext   = 1
	dlOffPrev   = 5
	dlOffUsed   = 9
	DLHeader   = 11
	DLCapacity = UsableSize - DLHeader
)

type DataList struct{ Buf *Buf }

func InitDataList(b *Buf) DataList {
	b.SetType(TypeDataList)
	dl := DataList{b}
	dl.SetNext(NullNum)
	dl.SetPrev(NullNum)
	dl.setUsed(0)
	return dl
}

func LoadDataList(b *Buf) DataList { return DataList{b} }

func (dl DataList) Next() Num { return Num(binary.LittleEndian.Uint32(dl.Buf[dlOffNext:])) }
func (dl DataList) SetNext(n Num) {
	binary.LittleEndian.PutUint32(dl.Buf[dlOffNext:], uint32(n))
}

func (dl DataList) Prev() Num { return Num(binary.LittleEndian.Uint32(dl.Buf[dlOffPrev:])) }
func (dl DataList) SetPrev(n Num) {
	binary.LittleEndian.PutUint32(dl.Buf[dlOffPrev:], uint32(n))
}

func (dl DataList) Used() int {
	return int(binary.LittleEndian.Uint16(dl.Buf[dlOffUsed:]))
}

func (dl DataList) setUsed(n int) {
	binary.LittleEndian.PutUint16(dl.Buf[dlOffUsed:], uint16(n))
}

// Bytes returns the live byte slice [0:Used()) of this leaf's payload.
func (dl DataList) Bytes() []byte {
	return dl.Buf[DLHeader : DLHeader+dl.Used()]
}

// Free returns the number of unused capacity bytes remaining.
func (dl DataList) Free() int { return DLCapacity - dl.Used() }

// Append writes src at the tail of the used region; caller must have
// checked Free() >= len(src). Returns the number of bytes written.
func (dl DataList) Append(src []byte) int {
	used := dl.Used()
	n := copy(dl.Buf[DLHeader+used:DLHeader+DLCapacity], src)
	dl.setUsed(used + n)
	return n
}

// Truncate discards everything from byte offset idx onward.
func (dl DataList) Truncate(idx int) {
	dl.setUsed(idx)
}

// InsertAt shifts bytes [idx:used) right by len(src) and writes src into
// the gap. Caller must ensure Free() >= len(src).
func (dl DataList) InsertAt(idx int, src []byte) {
	used := dl.Used()
	copy(dl.Buf[DLHeader+idx+len(src):DLHeader+used+len(src)], dl.Buf[DLHeader+idx:DLHeader+used])
	copy(dl.Buf[DLHeader+idx:], src)
	dl.setUsed(used + len(src))
}

// RemoveRange deletes [start:end) and shifts the remainder left.
func (dl DataList) RemoveRange(start, end int) {
	used := dl.Used()
	copy(dl.Buf[DLHeader+start:], dl.Buf[DLHeader+end:DLHeader+used])
	dl.setUsed(used - (end - start))
}

// OverwriteAt writes src starting at idx without growing the leaf. Caller
// must ensure idx+len(src) <= Used().
func (dl DataList) OverwriteAt(idx int, src []byte) {
	copy(dl.Buf[DLHeader+idx:], src)
}

// HalfFull reports whether this leaf satisfies the non-root minimum
// occupancy invariant P1.
func (dl DataList) HalfFull() bool {
	return dl.Used() >= DLCapacity/2
}
