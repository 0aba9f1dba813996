package main

import (
	"github.com/alecthomas/kong"

	"github.com/vburojevic/tracesink/internal/cli"
)

func main() {
	var c cli.CLI
	ctx := kong.Parse(&c,
		kong.Name("tracesink"),
		kong.Description("Manage trace-event destinations with rotation, retention and filtering"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
	)

	err := ctx.Run(cli.NewGlobals(&c))
	ctx.FatalIfErrorf(err)
}
