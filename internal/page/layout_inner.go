package page

import "encoding/binary"

// InnerNode routes by cumulative byte count. Layout:
//
//	type(1) next(4) prev(4) nkeys(2) keys[MaxKeys]uint32 leaves[MaxKeys]uint32
//
// Keys and leaves are 1:1: key[i] is the cumulative byte count of
// leaves[0..i] (spec.md §3 "Inner-node page"), so the last key always
// equals the total subtree byte count (TotalBytes). MaxKeys is sized so a
// fully packed node fits in one page with headroom.
const (
	inOffNext   = 1
	inOffPrev   = 5
	inOffNKeys  = 9
	InnerHeader = 11
	MaxKeys     = 500
)

type InnerNode struct{ Buf *Buf }

func InitInnerNode(b *Buf) InnerNode {
	b.SetType(TypeInnerNode)
	in := InnerNode{b}
	in.SetNext(NullNum)
	in.SetPrev(NullNum)
	in.setNKeys(0)
	return in
}

func LoadInnerNode(b *Buf) InnerNode { return InnerNode{b} }

func (in InnerNode) Next() Num { return Num(binary.LittleEndian.Uint32(in.Buf[inOffNext:])) }
func (in InnerNode) SetNext(n Num) {
	binary.LittleEndian.PutUint32(in.Buf[inOffNext:], uint32(n))
}

func (in InnerNode) Prev() Num { return Num(binary.LittleEndian.Uint32(in.Buf[inOffPrev:])) }
func (in InnerNode) SetPrev(n Num) {
	binary.LittleEndian.PutUint32(in.Buf[inOffPrev:], uint32(n))
}

// NKeys is both the key count and the leaf (child) count — this node
// models k keys routing k children, not the classic k-keys/k+1-children
// B-tree shape, since every child's cumulative byte count must be
// representable (spec.md §4.5 "Numeric detail").
func (in InnerNode) NKeys() int {
	return int(binary.LittleEndian.Uint16(in.Buf[inOffNKeys:]))
}

func (in InnerNode) setNKeys(n int) {
	binary.LittleEndian.PutUint16(in.Buf[inOffNKeys:], uint16(n))
}

func keyOff(i int) int  { return InnerHeader + i*4 }
func leafOff(i int) int { return InnerHeader + MaxKeys*4 + i*4 }

func (in InnerNode) Key(i int) uint32 {
	return binary.LittleEndian.Uint32(in.Buf[keyOff(i):])
}

func (in InnerNode) setKey(i int, v uint32) {
	binary.LittleEndian.PutUint32(in.Buf[keyOff(i):], v)
}

func (in InnerNode) Leaf(i int) Num {
	return Num(binary.LittleEndian.Uint32(in.Buf[leafOff(i):]))
}

func (in InnerNode) setLeaf(i int, n Num) {
	binary.LittleEndian.PutUint32(in.Buf[leafOff(i):], uint32(n))
}

// TotalBytes is the cumulative byte count of the entire subtree rooted at
// this node: Key(nkeys-1), or 0 if the node has no children yet.
func (in InnerNode) TotalBytes() uint32 {
	n := in.NKeys()
	if n == 0 {
		return 0
	}
	return in.Key(n - 1)
}

// ChildForByte returns the child index whose subtree contains byte offset
// b relative to this node's start — the first index i such that
// b < Key(i), or the last child if b is at or beyond the node's total
// (spec.md §4.5 "Seek": "choose the child index i = first index s.t.
// byte < keys[i] ... or the last child if byte exceeds all keys").
func (in InnerNode) ChildForByte(b uint32) (idx int, localByte uint32) {
	n := in.NKeys()
	for i := 0; i < n; i++ {
		if b < in.Key(i) {
			if i == 0 {
				return 0, b
			}
			return i, b - in.Key(i-1)
		}
	}
	if n == 0 {
		return 0, b
	}
	last := n - 1
	if last == 0 {
		return 0, b
	}
	return last, b - in.Key(last-1)
}

// InsertChild inserts a new (key, leaf) pair as child i, shifting
// existing children at index >= i one slot right. Caller must ensure
// NKeys() < MaxKeys.
func (in InnerNode) InsertChild(i int, key uint32, leaf Num) {
	n := in.NKeys()
	for j := n; j > i; j-- {
		in.setKey(j, in.Key(j-1))
		in.setLeaf(j, in.Leaf(j-1))
	}
	in.setKey(i, key)
	in.setLeaf(i, leaf)
	in.setNKeys(n + 1)
}

// AddToKey adds delta to the single key at index i (spec.md §4.5 insert
// phase 2, fixing up a child whose own content was redistributed rather
// than purely grown).
func (in InnerNode) AddToKey(i int, delta int64) {
	in.setKey(i, uint32(int64(in.Key(i))+delta))
}

// AddToKeysFrom adds delta to every key at index >= from (spec.md §4.5
// insert phase 2: "add written to every routing key right of the chosen
// child").
func (in InnerNode) AddToKeysFrom(from int, delta int64) {
	n := in.NKeys()
	for i := from; i < n; i++ {
		in.setKey(i, uint32(int64(in.Key(i))+delta))
	}
}

// RemoveChild deletes the key/leaf pair at index i, shifting subsequent
// children left.
func (in InnerNode) RemoveChild(i int) {
	n := in.NKeys()
	for j := i; j < n-1; j++ {
		in.setKey(j, in.Key(j+1))
		in.setLeaf(j, in.Leaf(j+1))
	}
	in.setNKeys(n - 1)
}

// Truncate discards every child at index >= n, used when splitting a
// node's trailing children off into a new sibling.
func (in InnerNode) Truncate(n int) {
	in.setNKeys(n)
}

func (in InnerNode) HalfFull() bool {
	return in.NKeys() >= MaxKeys/2
}

func (in InnerNode) Full() bool {
	return in.NKeys() >= MaxKeys
}
