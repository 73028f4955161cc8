package pager

import (
	"fmt"
	"sync"

	"github.com/intellect4all/numstore/internal/storeerr"
)

// LockMode mirrors the teacher's btree.LatchMode (btree/latch.go), widened
// from a page-latch-only concept to the named logical keys of spec.md
// §4.4's lock hierarchy (DB, ROOT, HASH_DIR, VAR(pgno), RPTREE(pgno), ...).
type LockMode int

const (
	LockShared LockMode = iota
	LockExclusive
)

type lockEntry struct {
	mu       sync.Mutex
	cond     *sync.Cond
	sharers  map[uint64]int // holder tid -> count (re-entrant)
	exclOwner uint64
	hasExcl  bool
}

func newLockEntry() *lockEntry {
	e := &lockEntry{sharers: make(map[uint64]int)}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// LockTable is the single process-wide table described in spec.md §4.4.
// Keys are free-form strings built by the Key* helpers below so callers
// can express the hierarchy (DB ⊃ ROOT ⊃ ... ⊃ VAR(pgno) ⊃ RPTREE(pgno))
// without the lock table itself knowing about page semantics.
type LockTable struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
	// held tracks, per transaction, the keys it holds in acquisition
	// order so commit/rollback can release LIFO (spec.md §4.4).
	held map[uint64][]heldLock
}

type heldLock struct {
	key  string
	mode LockMode
}

func NewLockTable() *LockTable {
	return &LockTable{
		entries: make(map[string]*lockEntry),
		held:    make(map[uint64][]heldLock),
	}
}

func (lt *LockTable) entry(key string) *lockEntry {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	e, ok := lt.entries[key]
	if !ok {
		e = newLockEntry()
		lt.entries[key] = e
	}
	return e
}

// Acquire blocks until tid holds key in mode, then records it for LIFO
// release.
func (lt *LockTable) Acquire(tid uint64, key string, mode LockMode) {
	e := lt.entry(key)
	e.mu.Lock()
	for {
		if mode == LockShared {
			if !e.hasExcl || e.exclOwner == tid {
				e.sharers[tid]++
				break
			}
		} else {
			onlySelf := len(e.sharers) == 0 || (len(e.sharers) == 1 && e.sharers[tid] > 0)
			if (!e.hasExcl || e.exclOwner == tid) && onlySelf {
				e.hasExcl = true
				e.exclOwner = tid
				break
			}
		}
		e.cond.Wait()
	}
	e.mu.Unlock()

	lt.mu.Lock()
	lt.held[tid] = append(lt.held[tid], heldLock{key, mode})
	lt.mu.Unlock()
}

// Upgrade promotes tid's shared hold on key to exclusive; it only
// succeeds immediately when tid is the sole shared holder (spec.md §4.4
// "Upgrade S->X is supported when the caller is the sole S-holder").
func (lt *LockTable) Upgrade(tid uint64, key string) error {
	e := lt.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sharers) != 1 || e.sharers[tid] == 0 {
		return fmt.Errorf("%w: upgrade requires sole S-holder on %s", storeerr.InvalidArgument, key)
	}
	delete(e.sharers, tid)
	e.hasExcl = true
	e.exclOwner = tid
	lt.mu.Lock()
	lt.held[tid] = append(lt.held[tid], heldLock{key, LockExclusive})
	lt.mu.Unlock()
	return nil
}

func (lt *LockTable) release(tid uint64, key string, mode LockMode) {
	e := lt.entry(key)
	e.mu.Lock()
	if mode == LockShared {
		if e.sharers[tid] > 0 {
			e.sharers[tid]--
			if e.sharers[tid] == 0 {
				delete(e.sharers, tid)
			}
		}
	} else if e.exclOwner == tid {
		e.hasExcl = false
		e.exclOwner = 0
	}
	e.cond.Broadcast()
	e.mu.Unlock()
}

// Release releases one hold on key for tid (LIFO is only enforced by
// ReleaseAll; explicit single releases are used for short-lived latches
// like a hash-bucket scan).
func (lt *LockTable) Release(tid uint64, key string, mode LockMode) {
	lt.release(tid, key, mode)
	lt.mu.Lock()
	held := lt.held[tid]
	for i := len(held) - 1; i >= 0; i-- {
		if held[i].key == key && held[i].mode == mode {
			lt.held[tid] = append(held[:i], held[i+1:]...)
			break
		}
	}
	lt.mu.Unlock()
}

// ReleaseAll releases every lock tid holds in LIFO order (spec.md §4.4:
// "Each handle keeps its position in a per-transaction intrusive list so
// that commit/rollback can release in LIFO order").
func (lt *LockTable) ReleaseAll(tid uint64) {
	lt.mu.Lock()
	held := lt.held[tid]
	delete(lt.held, tid)
	lt.mu.Unlock()

	for i := len(held) - 1; i >= 0; i-- {
		lt.release(tid, held[i].key, held[i].mode)
	}
}

// Key helpers spelling out the hierarchy in spec.md §4.4.
func KeyDB() string                  { return "DB" }
func KeyRoot() string                { return "ROOT" }
func KeyFirstTombstone() string      { return "ROOT.FSTMBST" }
func KeyMasterLSN() string           { return "ROOT.MSLSN" }
func KeyHashDir() string             { return "HASH_DIR" }
func KeyHashBucket(pos int) string   { return fmt.Sprintf("HASH_BUCKET(%d)", pos) }
func KeyVar(pgno uint32) string      { return fmt.Sprintf("VAR(%d)", pgno) }
func KeyRPTree(pgno uint32) string   { return fmt.Sprintf("RPTREE(%d)", pgno) }
func KeyTombstone(pgno uint32) string { return fmt.Sprintf("TMBST(%d)", pgno) }
