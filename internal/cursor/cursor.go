package cursor

import (
	"fmt"

	"github.com/intellect4all/numstore/internal/hashindex"
	"github.com/intellect4all/numstore/internal/page"
	"github.com/intellect4all/numstore/internal/pager"
	"github.com/intellect4all/numstore/internal/rptree"
	"github.com/intellect4all/numstore/internal/storeerr"
)

// State tags a Cursor's current statement (spec.md §4.7: "states {IDLE,
// INSERT, READ, WRITE}"). REDESIGN FLAGS §9 is explicit that this stays a
// tagged state machine advanced by Execute ticks, not goroutines/channels.
type State int

const (
	StateIdle State = iota
	StateInsert
	StateRead
	StateWrite
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateInsert:
		return "INSERT"
	case StateRead:
		return "READ"
	case StateWrite:
		return "WRITE"
	default:
		return "UNKNOWN"
	}
}

// Cursor bridges the hash index and rptree for one streaming statement. It
// holds no goroutine of its own: the caller drives it by filling/draining
// Buf() and calling Execute() until it reports done.
type Cursor struct {
	tree *rptree.Tree
	idx  *hashindex.Index
	buf  *RingBuffer

	tid   uint64
	name  string
	state State

	pg0     page.Num // current rptree root, may change mid-INSERT
	origPg0 page.Num // root at Begin, to detect whether it changed

	rc *rptree.Cursor

	size, stride int
	remaining    int // elements left to process
	byteOffset   int64
}

// New creates a Cursor over tree/idx. A nil buf allocates the default
// ~2 KiB scratch (spec.md §4.7).
func New(tree *rptree.Tree, idx *hashindex.Index, buf *RingBuffer) *Cursor {
	if buf == nil {
		buf = NewRingBuffer(DefaultScratchSize)
	}
	return &Cursor{tree: tree, idx: idx, buf: buf, state: StateIdle}
}

// Buf exposes the scratch ring buffer for the caller to fill (INSERT,
// WRITE) or drain (READ) between Execute ticks.
func (c *Cursor) Buf() *RingBuffer { return c.buf }

// State reports the cursor's current tagged state.
func (c *Cursor) State() State { return c.state }

// Begin transitions the cursor from IDLE into state, seeking the named
// variable's rope to byteOffset and queuing n elements of size bytes
// (stride-separated for READ/WRITE; contiguous for INSERT) for Execute to
// process one scratch-buffer's worth at a time.
func (c *Cursor) Begin(tid uint64, state State, name string, byteOffset int64, size, n, stride int) error {
	if c.state != StateIdle {
		return fmt.Errorf("%w: cursor busy in state %s", storeerr.InvalidArgument, c.state)
	}
	if state == StateIdle {
		return fmt.Errorf("%w: Begin requires a non-IDLE state", storeerr.InvalidArgument)
	}
	if size <= 0 || n < 0 || stride <= 0 {
		return fmt.Errorf("%w: invalid size/n/stride", storeerr.InvalidArgument)
	}

	entry, err := c.idx.Get(tid, name)
	if err != nil {
		return err
	}

	// Held for the statement's lifetime: relies on Pager.Commit/Rollback's
	// ReleaseAll(tid) rather than an explicit release here (spec.md §4.4).
	lockMode := pager.LockShared
	if state == StateInsert || state == StateWrite {
		lockMode = pager.LockExclusive
	}
	lt := c.idx.Locks()
	lt.Acquire(tid, pager.KeyVar(uint32(entry.Pg0)), lockMode)
	lt.Acquire(tid, pager.KeyRPTree(uint32(entry.Pg0)), lockMode)

	rc, err := c.tree.Seek(entry.Pg0, byteOffset)
	if err != nil {
		return err
	}

	c.tid = tid
	c.name = name
	c.state = state
	c.pg0 = entry.Pg0
	c.origPg0 = entry.Pg0
	c.rc = rc
	c.size = size
	c.stride = stride
	c.remaining = n
	c.byteOffset = byteOffset
	c.buf.Reset()
	return nil
}

// Execute advances the cursor by one tick, moving as many elements as
// currently fit through the scratch buffer. It reports done==true once the
// statement has fully completed (state returns to IDLE) or a short read
// hit the end of the rope early.
func (c *Cursor) Execute() (done bool, err error) {
	switch c.state {
	case StateIdle:
		return true, nil
	case StateRead:
		return c.tickRead()
	case StateWrite:
		return c.tickWrite()
	case StateInsert:
		return c.tickInsert()
	default:
		return false, fmt.Errorf("%w: cursor in unknown state %d", storeerr.Corrupt, c.state)
	}
}

func (c *Cursor) finish() error {
	c.state = StateIdle
	if c.pg0 != c.origPg0 {
		// spec.md §4.7: "On completion, if INSERT caused pg0 to change (new
		// root) the cursor rewrites the hash entry."
		if err := c.idx.UpdatePg0(c.tid, c.name, c.pg0); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cursor) tickRead() (bool, error) {
	if c.remaining == 0 {
		return true, c.finish()
	}
	chunk := c.buf.Free() / c.size
	if chunk == 0 {
		return false, nil // scratch buffer full; caller must drain before the next tick
	}
	if chunk > c.remaining {
		chunk = c.remaining
	}

	scratch := make([]byte, chunk*c.size)
	got, err := c.tree.Read(c.rc, scratch, c.size, chunk, c.stride)
	if err != nil {
		return false, err
	}
	c.buf.Write(scratch[:got*c.size])
	c.remaining -= got

	if got < chunk || c.remaining == 0 {
		return true, c.finish()
	}
	return false, nil
}

func (c *Cursor) tickWrite() (bool, error) {
	if c.remaining == 0 {
		return true, c.finish()
	}
	chunk := c.buf.Len() / c.size
	if chunk == 0 {
		return false, nil // waiting on the caller to supply more data
	}
	if chunk > c.remaining {
		chunk = c.remaining
	}

	scratch := make([]byte, chunk*c.size)
	c.buf.Read(scratch)
	if err := c.tree.Write(c.tid, c.rc, scratch, c.size, chunk, c.stride); err != nil {
		return false, err
	}
	c.remaining -= chunk

	if c.remaining == 0 {
		return true, c.finish()
	}
	return false, nil
}

// tickInsert grows the rope by one scratch buffer's worth of contiguous
// bytes. rptree.Insert leaves the Cursor's rptree-level position
// unadvanced, so each chunk re-seeks to byteOffset+already-inserted before
// inserting the next — simpler than threading leaf/index deltas back out
// of Insert, and insert chunks are already bounded to scratch-buffer size.
func (c *Cursor) tickInsert() (bool, error) {
	if c.remaining == 0 {
		return true, c.finish()
	}
	chunk := c.buf.Len() / c.size
	if chunk == 0 {
		return false, nil // waiting on the caller to supply more data
	}
	if chunk > c.remaining {
		chunk = c.remaining
	}

	scratch := make([]byte, chunk*c.size)
	c.buf.Read(scratch)

	newPg0, err := c.tree.Insert(c.tid, c.rc, scratch)
	if err != nil {
		return false, err
	}
	c.pg0 = newPg0
	c.remaining -= chunk
	c.byteOffset += int64(len(scratch))

	if c.remaining == 0 {
		return true, c.finish()
	}

	rc, err := c.tree.Seek(c.pg0, c.byteOffset)
	if err != nil {
		return false, err
	}
	c.rc = rc
	return false, nil
}
