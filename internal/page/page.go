// Package page defines the on-disk page layouts shared by every component
// that reaches into the data file: the buffer manager, the rptree, and the
// hash index. All multi-byte integers are little-endian (see DESIGN.md for
// why, resolving spec.md's open question on endianness).
package page

import "fmt"

// Size is the fixed frame size for every page in the data file. It plays
// the role of the teacher's btree.PageSize constant, carried over from
// intellect4all-storage-engines/btree/page.go.
const Size = 4096

// PageLSNOff is the offset of the 8-byte page LSN footer reserved on
// every page, regardless of type. The buffer manager stamps this field on
// every save/redo/undo (spec.md §4.2 "Page LSN invariant"); type-specific
// layouts must never write past UsableSize.
const PageLSNOff = Size - 8

// UsableSize is how many bytes a type-specific layout may use for its own
// header and payload, after reserving the page LSN footer.
const UsableSize = Size - 8

// Type tags. A page's first byte is always one of these.
const (
	TypeRoot = iota + 1
	TypeHashDirectory
	TypeHashLeaf
	TypeInnerNode
	TypeDataList
	TypeVarTail
	TypeTombstone
)

// Num is a page number. Page numbers are never reused across the life of a
// data file; deletion converts a page to TypeTombstone and links it into
// the free list rooted at the root page.
type Num uint32

// NullNum is the sentinel terminating sibling chains and the free list.
const NullNum Num = 0

func TypeName(t byte) string {
	switch t {
	case TypeRoot:
		return "ROOT"
	case TypeHashDirectory:
		return "HASH_DIRECTORY"
	case TypeHashLeaf:
		return "HASH_LEAF"
	case TypeInnerNode:
		return "INNER_NODE"
	case TypeDataList:
		return "DATA_LIST"
	case TypeVarTail:
		return "VAR_TAIL"
	case TypeTombstone:
		return "TOMBSTONE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", t)
	}
}

// Mask is a bitmask over the seven page type tags, used by the buffer
// manager to validate a fetched page's tag against what the caller expects
// (the "expected_types_mask" parameter of pgr_get in spec.md §4.1).
type Mask uint16

func MaskOf(types ...byte) Mask {
	var m Mask
	for _, t := range types {
		m |= 1 << t
	}
	return m
}

func (m Mask) Allows(t byte) bool {
	return m&(1<<t) != 0
}

// MaskAny accepts any page type; this is spec.md's PG_ANY.
const MaskAny Mask = 1<<TypeRoot | 1<<TypeHashDirectory | 1<<TypeHashLeaf |
	1<<TypeInnerNode | 1<<TypeDataList | 1<<TypeVarTail | 1<<TypeTombstone

// Buf is the raw fixed-size byte frame backing one page. It is always
// exactly Size bytes; readers and writers index into it directly rather
// than copying, mirroring the teacher's btree.Page.data array.
type Buf [Size]byte

func (b *Buf) Type() byte { return b[0] }

func (b *Buf) SetType(t byte) { b[0] = t }

// PageLSN returns the LSN of the last WAL record that dirtied this page
// (spec.md §3 "Page frame (in-memory)").
func (b *Buf) PageLSN() uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[PageLSNOff+i]) << (8 * i)
	}
	return v
}

func (b *Buf) SetPageLSN(lsn uint64) {
	for i := 0; i < 8; i++ {
		b[PageLSNOff+i] = byte(lsn >> (8 * i))
	}
}
