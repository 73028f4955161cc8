package dbfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireCreatesDirAndLockFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")

	lock, err := Acquire(dir, DefaultLockTimeout)
	require.NoError(t, err)
	defer lock.Release() //nolint:errcheck

	_, statErr := os.Stat(PathsFor(dir).Lock)
	require.NoError(t, statErr)
}

func TestAcquireSecondHolderTimesOut(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir, DefaultLockTimeout)
	require.NoError(t, err)
	defer first.Release() //nolint:errcheck

	_, err = Acquire(dir, 50*time.Millisecond)
	require.Error(t, err)
}

func TestReleaseThenReacquireSucceeds(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir, DefaultLockTimeout)
	require.NoError(t, err)
	require.NoError(t, first.Release())

	second, err := Acquire(dir, DefaultLockTimeout)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestReleaseIsIdempotentOnNilFile(t *testing.T) {
	l := &Lock{}
	require.NoError(t, l.Release())
}

func TestExistsReflectsDataFilePresence(t *testing.T) {
	dir := t.TempDir()
	require.False(t, Exists(dir))

	require.NoError(t, os.WriteFile(PathsFor(dir).Data, []byte{0}, 0o600))
	require.True(t, Exists(dir))
}
