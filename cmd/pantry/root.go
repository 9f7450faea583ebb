package main

import (
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pantryhq/pantry/internal/config"
	"github.com/pantryhq/pantry/internal/fspath"
	"github.com/pantryhq/pantry/internal/platform"
)

// rootOpts holds the flags every subcommand shares.
type rootOpts struct {
	cwd string
}

func newRootCmd(logger hclog.Logger) *cobra.Command {
	opts := &rootOpts{}

	root := &cobra.Command{
		Use:           "pantry",
		Short:         "cross-project dependency manager",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.cwd, "cwd", "", "directory to operate in (default: current directory)")
	config.BindFlags(root.PersistentFlags())

	root.AddCommand(newInstallCmd(opts, logger))
	root.AddCommand(newActivateCmd(opts, logger))
	root.AddCommand(newDaemonCmd(opts, logger))
	root.AddCommand(newServicesCmd(opts, logger))

	return root
}

// resolveProjectRoot returns opts.cwd as an AbsolutePath, defaulting to the
// process's current directory.
func resolveProjectRoot(opts *rootOpts) (fspath.AbsolutePath, error) {
	dir := opts.cwd
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = wd
	}
	return fspath.New(dir)
}

// loadSettings resolves platform directories and merges pantry.toml/.npmrc/
// PANTRY_* settings for the given command's flag set.
func loadSettings(projectRoot fspath.AbsolutePath, flags *pflag.FlagSet) (config.Settings, platform.Dirs, error) {
	dirs, err := platform.Resolve()
	if err != nil {
		return config.Settings{}, platform.Dirs{}, err
	}
	settings, err := config.Load(projectRoot, dirs, flags)
	return settings, dirs, err
}
