package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intellect4all/numstore/internal/cli"
	"github.com/intellect4all/numstore/internal/config"
)

func runCLI(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()
	var out, errOut bytes.Buffer
	exitCode = cli.Run(&out, &errOut, args)
	return out.String(), errOut.String(), exitCode
}

func TestDbCreateThenDsCreateReadWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mydb")

	_, stderr, code := runCLI(t, "db", "create", dir)
	require.Equal(t, 0, code, stderr)

	_, stderr, code = runCLI(t, "ds", "create", dir, "counter", "u32")
	require.Equal(t, 0, code, stderr)

	// write only overwrites existing elements, so give it one to overwrite.
	_, stderr, code = runCLI(t, "ds", "insert", dir, "counter", "0..1", "[0]")
	require.Equal(t, 0, code, stderr)

	_, stderr, code = runCLI(t, "ds", "write", dir, "counter", "0..1", "[42]")
	require.Equal(t, 0, code, stderr)

	stdout, stderr, code := runCLI(t, "ds", "read", dir, "counter", "0..1")
	require.Equal(t, 0, code, stderr)
	require.Equal(t, "2a000000\n", stdout)
}

func TestDbCreatePinsProjectConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mydb")

	_, stderr, code := runCLI(t, "db", "create", dir)
	require.Equal(t, 0, code, stderr)

	data, err := os.ReadFile(filepath.Join(dir, config.FileName))
	require.NoError(t, err)
	require.Contains(t, string(data), "nbuckets")
	require.Contains(t, string(data), "memory_page_len")
}

func TestDbCreateTwiceFails(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mydb")

	_, stderr, code := runCLI(t, "db", "create", dir)
	require.Equal(t, 0, code, stderr)

	_, _, code = runCLI(t, "db", "create", dir)
	require.Equal(t, 6, code) // storeerr.AlreadyExists
}

func TestDsAppendGrowsDataset(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mydb")

	_, stderr, code := runCLI(t, "db", "create", dir)
	require.Equal(t, 0, code, stderr)

	_, stderr, code = runCLI(t, "ds", "create", dir, "list", "[4]u8")
	require.Equal(t, 0, code, stderr)

	_, stderr, code = runCLI(t, "ds", "append", dir, "list", "[1,2,3,4]")
	require.Equal(t, 0, code, stderr)

	stdout, stderr, code := runCLI(t, "ds", "read", dir, "list", "0..1")
	require.Equal(t, 0, code, stderr)
	require.Equal(t, "01020304\n", stdout)
}

func TestDsDeleteThenReadFails(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mydb")

	_, stderr, code := runCLI(t, "db", "create", dir)
	require.Equal(t, 0, code, stderr)

	_, stderr, code = runCLI(t, "ds", "create", dir, "x", "u8")
	require.Equal(t, 0, code, stderr)

	_, stderr, code = runCLI(t, "ds", "delete", dir, "x")
	require.Equal(t, 0, code, stderr)

	_, _, code = runCLI(t, "ds", "read", dir, "x", "0..1")
	require.Equal(t, 5, code) // storeerr.DoesntExist
}

func TestUnknownGroupReturnsSyntaxExitCode(t *testing.T) {
	_, stderr, code := runCLI(t, "frobnicate", "thing")
	require.Equal(t, 3, code) // storeerr.Syntax
	require.Contains(t, stderr, "unknown command group")
}

func TestNoArgsPrintsUsage(t *testing.T) {
	stdout, _, code := runCLI(t)
	require.Equal(t, 0, code)
	require.Contains(t, stdout, "Usage: numstore")
}
