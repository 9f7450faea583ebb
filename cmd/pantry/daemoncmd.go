package main

import (
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/pantryhq/pantry/internal/activation"
	"github.com/pantryhq/pantry/internal/daemon"
	"github.com/pantryhq/pantry/internal/envcache"
	"github.com/pantryhq/pantry/internal/platform"
)

// idleTimeout shuts the daemon down after this much inactivity; §1's
// Non-goals exclude supervising pantryd under launchd/systemd, so the
// process must be able to exit on its own rather than being reaped.
const idleTimeout = 30 * time.Minute

func newDaemonCmd(root *rootOpts, logger hclog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "manage the warm-activation-cache daemon",
	}
	cmd.AddCommand(newDaemonStartCmd(root, logger))
	cmd.AddCommand(newDaemonStopCmd(root, logger))
	cmd.AddCommand(newDaemonServeCmd(root, logger))
	return cmd
}

func newDaemonStartCmd(root *rootOpts, logger hclog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "start pantryd in the background for this repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			repoRoot, err := resolveProjectRoot(root)
			if err != nil {
				return err
			}
			dirs, err := platform.Resolve()
			if err != nil {
				return err
			}
			return daemon.Start(dirs.Data, string(repoRoot), logger.Named("daemon"))
		},
	}
}

func newDaemonStopCmd(root *rootOpts, logger hclog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "stop a running pantryd for this repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			repoRoot, err := resolveProjectRoot(root)
			if err != nil {
				return err
			}
			dirs, err := platform.Resolve()
			if err != nil {
				return err
			}
			return daemon.Stop(dirs.Data, string(repoRoot))
		},
	}
}

// newDaemonServeCmd is invoked by daemon.Start as a detached subprocess; it
// is not meant to be run interactively (daemon.ServeSubcommand is the
// subcommand name daemon.Start passes as the binary's first argument).
func newDaemonServeCmd(root *rootOpts, logger hclog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:    daemon.ServeSubcommand + " <repo-root>",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoRoot := args[0]
			dirs, err := platform.Resolve()
			if err != nil {
				return err
			}

			hook := activation.New(activation.Options{
				Cache: envcache.New(),
				Dirs:  dirs,
				Installer: &pipelineInstaller{
					dirs:   dirs,
					logger: logger.Named("activate"),
				},
			})

			server := daemon.New(daemon.Options{
				Hook:        hook,
				RepoRoot:    repoRoot,
				RuntimeRoot: dirs.Data,
				Logger:      logger.Named("daemon"),
				IdleTimeout: idleTimeout,
			})

			shutdown := make(chan struct{})
			return server.Serve(shutdown)
		},
	}
}
