package cli

import (
	"fmt"
	"io"
)

// IO is the command output sink, mirroring calvinalkan-agent-task's
// internal/cli.IO: a thin wrapper kept separate from a command's own
// logic so tests can capture stdout/stderr without touching os.Stdout.
type IO struct {
	out    io.Writer
	errOut io.Writer
}

func NewIO(out, errOut io.Writer) *IO {
	return &IO{out: out, errOut: errOut}
}

func (o *IO) Println(a ...any) {
	_, _ = fmt.Fprintln(o.out, a...)
}

func (o *IO) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(o.out, format, a...)
}

func (o *IO) ErrPrintln(a ...any) {
	_, _ = fmt.Fprintln(o.errOut, a...)
}
