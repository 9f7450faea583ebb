package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/pantryhq/pantry/internal/manifest"
	"github.com/pantryhq/pantry/internal/platform"
	"github.com/pantryhq/pantry/internal/services"
)

func newServicesCmd(root *rootOpts, logger hclog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "services",
		Short: "manage the long-running processes a project's manifest declares",
	}
	cmd.AddCommand(newServicesRunCmd(root, logger))
	return cmd
}

func newServicesRunCmd(root *rootOpts, logger hclog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "activate the project and run its declared services until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectRoot, err := resolveProjectRoot(root)
			if err != nil {
				return err
			}
			dirs, err := platform.Resolve()
			if err != nil {
				return err
			}

			payload, _, err := activate(cmd.Context(), string(projectRoot), dirs, logger.Named("services"))
			if err != nil {
				return err
			}

			m, err := manifest.Load(projectRoot)
			if err != nil {
				return err
			}
			if len(m.Services) == 0 {
				logger.Info("no services declared, nothing to run")
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			supervisor := services.NewSupervisor(logger.Named("supervisor"))
			return supervisor.Run(ctx, string(projectRoot), m.Services, payload.EnvVars)
		},
	}
}
