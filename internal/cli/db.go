package cli

import (
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/intellect4all/numstore/internal/config"
)

// DbCreateCmd implements `numstore db create <dir>` (SPEC_FULL.md §5).
func DbCreateCmd() *Command {
	fs := flag.NewFlagSet("db create", flag.ContinueOnError)
	nbuckets := fs.Int("nbuckets", 0, "hash directory bucket count override")
	pageLen := fs.Int("memory-page-len", 0, "in-memory page pool size override")
	return &Command{
		Flags: fs,
		Usage: "db create <dir>",
		Short: "Create a new database directory",
		Exec: func(o *IO, args []string) error {
			if len(args) < 1 {
				return fmt.Errorf("%w: usage: numstore db create <dir>", errUsage)
			}
			override := config.Config{NBuckets: *nbuckets, MemoryPageLen: *pageLen}
			if err := createDatabase(args[0], override); err != nil {
				return err
			}
			o.Println("created", args[0])
			return nil
		},
	}
}

// DbReplCmd implements `numstore db repl <dir>`: opens dir and hands the
// session to an interactive liner-backed loop (repl.go).
func DbReplCmd() *Command {
	return &Command{
		Usage: "db repl <dir>",
		Short: "Open an interactive session against a database",
		Exec: func(o *IO, args []string) error {
			if len(args) < 1 {
				return fmt.Errorf("%w: usage: numstore db repl <dir>", errUsage)
			}
			s, err := OpenSession(args[0], config.Config{})
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck
			return RunREPL(o, s)
		},
	}
}
