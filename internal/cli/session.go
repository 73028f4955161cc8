package cli

import (
	"fmt"

	"github.com/intellect4all/numstore/internal/config"
	"github.com/intellect4all/numstore/internal/dbfile"
	"github.com/intellect4all/numstore/internal/dsl"
	"github.com/intellect4all/numstore/internal/hashindex"
	"github.com/intellect4all/numstore/internal/pager"
	"github.com/intellect4all/numstore/internal/storeerr"
)

// hashDirPage is the HASH_DIRECTORY page that pager.Open's bootstrap
// writes for a fresh database, right after the root at page 0.
// OpenSession wraps it with hashindex.Open; no session calls
// hashindex.Create (spec.md §3 "Hash directory page (page 1 of each
// namespace)").
const hashDirPage = 1

// Session is an open numstore database directory: the process-exclusive
// lock, the pager, the hash index, and the DSL engine layered on top —
// everything `db`/`ds` subcommands need, torn down together by Close.
type Session struct {
	lock   *dbfile.Lock
	Pager  *pager.Pager
	Index  *hashindex.Index
	Engine *dsl.Engine
}

// OpenSession acquires dir's process-exclusive lock and opens (or, for a
// brand-new directory, bootstraps) its pager and hash index.
func OpenSession(dir string, cliOverride config.Config) (*Session, error) {
	lock, err := dbfile.Acquire(dir, dbfile.DefaultLockTimeout)
	if err != nil {
		return nil, err
	}

	cfg, _, err := config.Load(dir, cliOverride)
	if err != nil {
		lock.Release() //nolint:errcheck
		return nil, err
	}

	paths := dbfile.PathsFor(dir)
	p, err := pager.Open(paths.Data, paths.WAL, cfg.PagerConfig(), nil)
	if err != nil {
		lock.Release() //nolint:errcheck
		return nil, err
	}

	ix := hashindex.Open(p, hashDirPage)
	return &Session{lock: lock, Pager: p, Index: ix, Engine: dsl.NewEngine(p, ix)}, nil
}

// Close releases the pager and then the process-exclusive lock, in that
// order, so a crash between the two never leaves the lock held over an
// already-closed pager.
func (s *Session) Close() error {
	closeErr := s.Pager.Close()
	lockErr := s.lock.Release()
	if closeErr != nil {
		return closeErr
	}
	return lockErr
}

// WithTxn runs f inside a freshly begun transaction, committing on
// success and rolling back on any error f (or Commit itself) returns —
// the same begin/commit-or-rollback wrapper internal/dsl's own tests use,
// promoted here so every CLI command gets it for free.
func (s *Session) WithTxn(f func(tid uint64) error) error {
	tid, err := s.Pager.BeginTxn()
	if err != nil {
		return err
	}
	if err := f(tid); err != nil {
		_ = s.Pager.Rollback(tid)
		return err
	}
	if err := s.Pager.Commit(tid); err != nil {
		return err
	}
	return nil
}

// createDatabase bootstraps a brand new database directory (data file,
// WAL, lock file) per SPEC_FULL.md §5 "numstore db create <dir>". It is
// an error to create over an existing database.
func createDatabase(dir string, cliOverride config.Config) error {
	if dbfile.Exists(dir) {
		return fmt.Errorf("%w: database already exists at %s", storeerr.AlreadyExists, dir)
	}
	sess, err := OpenSession(dir, cliOverride)
	if err != nil {
		return err
	}

	cfg, _, err := config.Load(dir, cliOverride)
	if err != nil {
		sess.Close() //nolint:errcheck
		return err
	}
	if err := config.Save(dir, cfg); err != nil {
		sess.Close() //nolint:errcheck
		return err
	}

	return sess.Close()
}
