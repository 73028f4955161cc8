package cli

import (
	"io"
	"sort"
	"strings"

	"github.com/intellect4all/numstore/internal/storeerr"
)

// Run is numstore's entry point, mirroring
// calvinalkan-agent-task/internal/cli.Run's flat command-table dispatch
// but grouped two levels deep (`db <subcmd>`, `ds <subcmd>`) per
// SPEC_FULL.md §5.
func Run(out, errOut io.Writer, args []string) int {
	groups := allGroups()
	o := NewIO(out, errOut)

	if len(args) == 0 {
		printUsage(o, groups)
		return 0
	}

	groupName := args[0]
	if groupName == "-h" || groupName == "--help" || groupName == "help" {
		printUsage(o, groups)
		return 0
	}

	group, ok := groups[groupName]
	if !ok {
		o.ErrPrintln("error: unknown command group:", groupName)
		printUsage(o, groups)
		return storeerr.ExitCode(storeerr.Syntax)
	}

	if len(args) < 2 {
		o.ErrPrintln("error: missing subcommand for", groupName)
		printGroupUsage(o, groupName, group)
		return storeerr.ExitCode(storeerr.Syntax)
	}

	cmdName := args[1]
	cmd, ok := group[cmdName]
	if !ok {
		o.ErrPrintln("error: unknown subcommand:", groupName, cmdName)
		printGroupUsage(o, groupName, group)
		return storeerr.ExitCode(storeerr.Syntax)
	}

	return cmd.Run(o, args[2:])
}

func allGroups() map[string]map[string]*Command {
	return map[string]map[string]*Command{
		"db": {
			"create": DbCreateCmd(),
			"repl":   DbReplCmd(),
		},
		"ds": {
			"create": DsCreateCmd(),
			"delete": DsDeleteCmd(),
			"read":   DsReadCmd(),
			"write":  DsWriteCmd(),
			"insert": DsInsertCmd(),
			"append": DsAppendCmd(),
		},
	}
}

func printUsage(o *IO, groups map[string]map[string]*Command) {
	o.Println("Usage: numstore <db|ds> <subcommand> [args]")
	o.Println()
	for _, group := range []string{"db", "ds"} {
		printGroupUsage(o, group, groups[group])
	}
}

func printGroupUsage(o *IO, name string, group map[string]*Command) {
	o.Println(strings.ToUpper(name) + ":")
	for _, cmdName := range sortedKeys(group) {
		o.Println(group[cmdName].HelpLine())
	}
	o.Println()
}

func sortedKeys(m map[string]*Command) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
