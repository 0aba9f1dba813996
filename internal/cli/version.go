package cli

import "fmt"

// Version is set at build time via -ldflags.
var Version = "dev"

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run(globals *Globals) error {
	_, err := fmt.Fprintf(globals.Stdout, "tracesink %s\n", Version)
	return err
}
