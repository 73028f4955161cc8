package cli

import (
	"errors"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/intellect4all/numstore/internal/storeerr"
)

// Command defines one numstore subcommand, grounded on
// calvinalkan-agent-task/internal/cli/command.go's unified help/run
// shape, adapted to return numstore's §7 exit codes instead of a flat
// 0/1.
type Command struct {
	Flags *flag.FlagSet
	Usage string
	Short string
	Exec  func(o *IO, args []string) error
}

func (c *Command) HelpLine() string {
	return "  " + c.Usage + strings.Repeat(" ", max(1, 28-len(c.Usage))) + c.Short
}

// Run parses flags and executes the command, returning a §7 exit code.
func (c *Command) Run(o *IO, args []string) int {
	if c.Flags != nil {
		c.Flags.SetOutput(&strings.Builder{})
		if err := c.Flags.Parse(args); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return 0
			}
			o.ErrPrintln("error:", err)
			return storeerr.ExitCode(storeerr.Syntax)
		}
		args = c.Flags.Args()
	}
	if err := c.Exec(o, args); err != nil {
		o.ErrPrintln("error:", err)
		return storeerr.ExitCode(err)
	}
	return 0
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
