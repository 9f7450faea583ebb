// Command pantry is the thin CLI shim wiring config, resolver, downloader,
// installer, activation, and daemon together (§1: "the CLI argument parser,
// user-facing help/formatting" are out of scope for this specification;
// this binary exists only as the collaborator surface the other packages
// need to be invoked at all).
package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"

	pantryerrors "github.com/pantryhq/pantry/internal/errors"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:       "pantry",
		Level:      hclog.Info,
		Output:     os.Stderr,
		JSONFormat: false,
	})

	root := newRootCmd(logger)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		color.New(color.FgRed, color.Bold).Fprintln(os.Stderr, err)
		if pe, ok := pantryerrors.As(err); ok {
			if hint := pe.Kind.Suggestion(); hint != "" {
				color.New(color.Faint).Fprintln(os.Stderr, hint)
			}
			return pe.Kind.ExitCode()
		}
		return 1
	}
	return 0
}
