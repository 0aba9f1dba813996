// Package cli implements the tracesink command surface: a validate
// command for configuration files and a run command hosting a lifecycle
// manager.
package cli

import (
	"io"
	"os"
)

// CLI is the root command structure for tracesink.
type CLI struct {
	Verbose bool `short:"v" help:"Show debug output"`

	Run      RunCmd      `cmd:"" help:"Run destinations from a configuration file"`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file and print its destinations"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// Globals holds shared state for all commands.
type Globals struct {
	Verbose bool
	Stdout  io.Writer
	Stderr  io.Writer
}

// NewGlobals creates a Globals instance from CLI flags.
func NewGlobals(c *CLI) *Globals {
	return &Globals{
		Verbose: c.Verbose,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}
