package hashindex

import (
	"encoding/binary"
	"fmt"

	"github.com/intellect4all/numstore/internal/page"
	"github.com/intellect4all/numstore/internal/storeerr"
)

// Entry is a decoded hash-index record: a variable's name, its serialized
// type descriptor blob (the Type.Encode() output, opaque to the hash
// index itself), and the root page of its rptree (spec.md §4.6,
// "Variable" in the GLOSSARY).
type Entry struct {
	Kind byte
	Name string
	Type []byte
	Pg0  page.Num
}

// entryHeaderSize is the fixed portion of a PRESENT/TOMBSTONE entry:
// kind(1) vlen(2) tlen(2) reserved(1) pg0(4) (spec.md §3 "Hash-leaf page").
const entryHeaderSize = 10

// encodeBody serializes e's header+name+type payload, not including the kind
// byte (the caller writes that separately since it is the one byte
// Delete ever has to touch in isolation).
func (e Entry) encodeBody() []byte {
	buf := make([]byte, entryHeaderSize-1+len(e.Name)+len(e.Type))
	binary.LittleEndian.PutUint16(buf[0:], uint16(len(e.Name)))
	binary.LittleEndian.PutUint16(buf[2:], uint16(len(e.Type)))
	buf[4] = 0
	binary.LittleEndian.PutUint32(buf[5:], uint32(e.Pg0))
	copy(buf[9:], e.Name)
	copy(buf[9+len(e.Name):], e.Type)
	return buf
}

func decodeHeader(b []byte) (vlen, tlen int, pg0 page.Num, err error) {
	if len(b) < entryHeaderSize-1 {
		return 0, 0, 0, fmt.Errorf("%w: truncated hash-leaf entry header", storeerr.Corrupt)
	}
	vlen = int(binary.LittleEndian.Uint16(b[0:]))
	tlen = int(binary.LittleEndian.Uint16(b[2:]))
	pg0 = page.Num(binary.LittleEndian.Uint32(b[5:]))
	return vlen, tlen, pg0, nil
}
