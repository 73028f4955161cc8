// Package hashindex implements the variable name index: a fixed
// HASH_DIRECTORY page of bucket heads plus per-bucket chains of HASH_LEAF
// pages holding serialized {name, type, root_page} entries terminated by
// an EOF marker, with in-place tombstoning on delete (spec.md §4.6).
//
// This replaces the teacher's Bitcask-style segment/shard/compaction
// package of the same name at the workspace root: that package solves
// log-structured segment compaction over an in-memory shard map, a
// different problem from numstore's fixed-bucket on-disk directory. Only
// its bucket-hash choice (hash/fnv) carries over; see DESIGN.md.
package hashindex

import (
	"fmt"

	"github.com/intellect4all/numstore/internal/page"
	"github.com/intellect4all/numstore/internal/pager"
	"github.com/intellect4all/numstore/internal/storeerr"
)

// Index is a handle on the variable name index rooted at a fixed
// HASH_DIRECTORY page (page 1 in a database bootstrapped by pager.Open,
// which writes that directory itself; Create allocates a further one).
type Index struct {
	p   *pager.Pager
	dir page.Num
}

// Open wraps an existing hash directory page for lookups and mutation.
func Open(p *pager.Pager, dirPgno page.Num) *Index {
	return &Index{p: p, dir: dirPgno}
}

// Create allocates and initializes a fresh HASH_DIRECTORY page with
// nbuckets bucket heads, all unallocated. The page comes from Pager.New,
// so on a freshly opened pager (root at page 0, bootstrap directory at
// page 1) it lands on page 2 or later; use DirPage to find it.
func Create(p *pager.Pager, tid uint64, nbuckets int) (*Index, error) {
	if nbuckets <= 0 || nbuckets > page.MaxBucketsPerPage {
		return nil, fmt.Errorf("%w: nbuckets %d out of range", storeerr.InvalidArgument, nbuckets)
	}
	h, err := p.New(tid, page.TypeHashDirectory)
	if err != nil {
		return nil, err
	}
	hd := page.InitHashDirectory(h.Buf(), nbuckets)
	for i := 0; i < nbuckets; i++ {
		hd.SetBucket(i, page.NullNum)
	}
	if err := p.Save(tid, h, page.MaskOf(page.TypeHashDirectory)); err != nil {
		return nil, err
	}
	if err := p.Release(h, page.MaskOf(page.TypeHashDirectory)); err != nil {
		return nil, err
	}
	return &Index{p: p, dir: h.Pgno}, nil
}

// DirPage returns the page number of the index's HASH_DIRECTORY, for the
// caller (db creation / open) to persist alongside the data file's root.
func (ix *Index) DirPage() page.Num { return ix.dir }

// Locks exposes the pager's process-wide lock table so callers (cursor.Begin)
// can acquire VAR(pgno)-level holds around a statement's lifetime (spec.md
// §4.4).
func (ix *Index) Locks() *pager.LockTable { return ix.p.Locks() }

func (ix *Index) nbuckets() (int, error) {
	h, err := ix.p.Get(ix.dir, page.MaskOf(page.TypeHashDirectory))
	if err != nil {
		return 0, err
	}
	defer ix.p.Release(h, page.MaskOf(page.TypeHashDirectory))
	return page.HashDirectory{Buf: h.Buf()}.NBuckets(), nil
}

func (ix *Index) bucketHead(name string) (int, page.Num, error) {
	n, err := ix.nbuckets()
	if err != nil {
		return 0, page.NullNum, err
	}
	idx := int(bucketHash(name) % uint32(n))
	h, err := ix.p.Get(ix.dir, page.MaskOf(page.TypeHashDirectory))
	if err != nil {
		return idx, page.NullNum, err
	}
	defer ix.p.Release(h, page.MaskOf(page.TypeHashDirectory))
	return idx, page.HashDirectory{Buf: h.Buf()}.Bucket(idx), nil
}

// Get implements hm_get: walk the bucket chain consuming entries until a
// PRESENT entry named name is found (→ its Entry), a TOMBSTONE or mismatch
// is skipped, or EOF is reached (→ DoesntExist). tid's HASH_DIR hold is
// short-lived (spec.md §4.4: "explicit single releases are used for
// short-lived latches like a hash-bucket scan"); the HASH_BUCKET hold spans
// the chain walk.
func (ix *Index) Get(tid uint64, name string) (Entry, error) {
	lt := ix.p.Locks()
	lt.Acquire(tid, pager.KeyHashDir(), pager.LockShared)
	bucketIdx, head, err := ix.bucketHead(name)
	lt.Release(tid, pager.KeyHashDir(), pager.LockShared)
	if err != nil {
		return Entry{}, err
	}
	lt.Acquire(tid, pager.KeyHashBucket(bucketIdx), pager.LockShared)
	defer lt.Release(tid, pager.KeyHashBucket(bucketIdx), pager.LockShared)

	var found Entry
	ok := false
	_, err = ix.walk(head, func(loc entryLoc, e Entry) (bool, error) {
		if e.Kind == page.EntryPresent && e.Name == name {
			found, ok = e, true
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		return Entry{}, fmt.Errorf("%w: variable %q", storeerr.DoesntExist, name)
	}
	return found, nil
}

// Insert implements hm_insert: traverse to the EOF marker (duplicate name
// along the way → AlreadyExists), then write a new entry over the EOF
// byte and append a fresh EOF, allocating and linking a new HASH_LEAF if
// the entry would straddle a page boundary. The bucket's exclusive hold
// also guards the dir's bucket-head slot for insertIntoNewBucket's write.
func (ix *Index) Insert(tid uint64, e Entry) error {
	e.Kind = page.EntryPresent
	lt := ix.p.Locks()
	lt.Acquire(tid, pager.KeyHashDir(), pager.LockShared)
	bucketIdx, head, err := ix.bucketHead(e.Name)
	lt.Release(tid, pager.KeyHashDir(), pager.LockShared)
	if err != nil {
		return err
	}
	lt.Acquire(tid, pager.KeyHashBucket(bucketIdx), pager.LockExclusive)
	defer lt.Release(tid, pager.KeyHashBucket(bucketIdx), pager.LockExclusive)

	dup := false
	eofLoc, err := ix.walk(head, func(loc entryLoc, cur Entry) (bool, error) {
		if cur.Kind == page.EntryPresent && cur.Name == e.Name {
			dup = true
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	if dup {
		return fmt.Errorf("%w: variable %q", storeerr.AlreadyExists, e.Name)
	}

	if head == page.NullNum {
		return ix.insertIntoNewBucket(tid, bucketIdx, e)
	}
	return ix.appendEntry(tid, eofLoc, e)
}

// Delete implements hm_delete: locate the PRESENT entry and flip its kind
// byte to TOMBSTONE in place.
func (ix *Index) Delete(tid uint64, name string) error {
	lt := ix.p.Locks()
	lt.Acquire(tid, pager.KeyHashDir(), pager.LockShared)
	bucketIdx, head, err := ix.bucketHead(name)
	lt.Release(tid, pager.KeyHashDir(), pager.LockShared)
	if err != nil {
		return err
	}
	lt.Acquire(tid, pager.KeyHashBucket(bucketIdx), pager.LockExclusive)
	defer lt.Release(tid, pager.KeyHashBucket(bucketIdx), pager.LockExclusive)

	found := false
	var target entryLoc
	_, err = ix.walk(head, func(loc entryLoc, e Entry) (bool, error) {
		if e.Kind == page.EntryPresent && e.Name == name {
			target, found = loc, true
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: variable %q", storeerr.DoesntExist, name)
	}
	return ix.tombstone(tid, target)
}

// UpdatePg0 implements the cursor's post-INSERT hash-entry rewrite
// (spec.md §4.7: "if INSERT caused pg0 to change (new root) the cursor
// rewrites the hash entry"). Rather than patching the 4-byte pg0 field
// in place — which would need its own straddling-write path alongside
// writeChain's — this reuses Get/Delete/Insert directly: simpler, and
// consistent with Delete's already-documented choice not to compact the
// bucket chain, since this too just leaves a TOMBSTONE behind.
func (ix *Index) UpdatePg0(tid uint64, name string, newPg0 page.Num) error {
	cur, err := ix.Get(tid, name)
	if err != nil {
		return err
	}
	if err := ix.Delete(tid, name); err != nil {
		return err
	}
	cur.Pg0 = newPg0
	return ix.Insert(tid, cur)
}

// tombstone flips an entry's kind byte to TOMBSTONE in place — the
// entirety of hm_delete's mutation (spec.md §4.6: "flip its kind byte to
// TOMBSTONE (in-place edit)").
func (ix *Index) tombstone(tid uint64, loc entryLoc) error {
	h, err := ix.p.Get(loc.leaf, hlMask)
	if err != nil {
		return err
	}
	xh, err := ix.p.MakeWritable(tid, h)
	if err != nil {
		ix.p.Release(h, hlMask)
		return err
	}
	page.HashLeaf{Buf: xh.Buf()}.Data()[loc.off] = page.EntryTombstone
	if err := ix.p.Save(tid, xh, hlMask); err != nil {
		return err
	}
	return ix.p.Release(xh, hlMask)
}
