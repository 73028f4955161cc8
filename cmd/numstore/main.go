// Package main provides numstore, a CLI and interactive shell over the
// numstore storage engine.
package main

import (
	"os"

	"github.com/intellect4all/numstore/internal/cli"
)

func main() {
	exitCode := cli.Run(os.Stdout, os.Stderr, os.Args[1:])
	os.Exit(exitCode)
}
