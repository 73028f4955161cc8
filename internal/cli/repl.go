package cli

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/intellect4all/numstore/internal/dsl"
)

// replCommands lists the words the completer offers — the DSL keywords
// plus the REPL's own meta-commands, mirrored from
// calvinalkan-agent-task/cmd/sloty/main.go's completer list.
var replCommands = []string{
	"create", "delete", "insert", "read", "write",
	"help", "exit", "quit",
}

// historyFile returns the path to numstore's REPL history file, or ""
// if $HOME cannot be resolved.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".numstore_history")
}

// RunREPL drives an interactive line-oriented session against an
// already-open database: each line is parsed and executed as one DSL
// statement (SPEC_FULL.md §4), wrapped in its own transaction so a
// single bad statement never aborts the session.
func RunREPL(o *IO, s *Session) error {
	line := liner.NewLiner()
	defer line.Close() //nolint:errcheck

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(partial string) []string {
		var out []string
		lower := strings.ToLower(partial)
		for _, c := range replCommands {
			if strings.HasPrefix(c, lower) {
				out = append(out, c)
			}
		}
		return out
	})

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}

	o.Println("numstore interactive session. Type 'help' for commands, 'exit' to quit.")

	for {
		text, err := line.Prompt("numstore> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				o.Println("bye")
				break
			}
			return err
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		line.AppendHistory(text)

		switch strings.ToLower(strings.Fields(text)[0]) {
		case "exit", "quit":
			saveHistory(line)
			return nil
		case "help", "?":
			printREPLHelp(o)
			continue
		}

		execREPLStatement(o, s, text)
	}

	saveHistory(line)
	return nil
}

func execREPLStatement(o *IO, s *Session, text string) {
	if !strings.HasSuffix(strings.TrimSpace(text), ";") {
		text += ";"
	}
	stmt, err := dsl.Parse(text)
	if err != nil {
		o.ErrPrintln("error:", err)
		return
	}

	var result dsl.Result
	err = s.WithTxn(func(tid uint64) error {
		var execErr error
		result, execErr = s.Engine.Execute(tid, stmt)
		return execErr
	})
	if err != nil {
		o.ErrPrintln("error:", err)
		return
	}
	if result.Data != nil {
		o.Println(hexDump(result.Data))
	}
}

func saveHistory(line *liner.State) {
	path := historyFile()
	if path == "" {
		return
	}
	if f, err := os.Create(path); err == nil {
		_, _ = line.WriteHistory(f)
		f.Close()
	}
}

func printREPLHelp(o *IO) {
	o.Println("commands:")
	o.Println("  create <name> <type>;")
	o.Println("  delete <name>;")
	o.Println("  insert <name>[a..b] = <value>;")
	o.Println("  write <name>[a..b] = <value>;")
	o.Println("  read <name>[a..b];")
	o.Println("  exit | quit")
}
