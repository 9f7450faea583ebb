package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/pantryhq/pantry/internal/activation"
	"github.com/pantryhq/pantry/internal/daemon"
	"github.com/pantryhq/pantry/internal/envcache"
	"github.com/pantryhq/pantry/internal/fspath"
	"github.com/pantryhq/pantry/internal/platform"
)

// pipelineInstaller adapts runInstall to activation.Installer, so the same
// resolve/download/install pipeline backs both `pantry install` and a shell
// hook's on-demand activation.
type pipelineInstaller struct {
	dirs   platform.Dirs
	logger hclog.Logger
}

func (p *pipelineInstaller) Install(ctx context.Context, root fspath.AbsolutePath) (fspath.AbsolutePath, fspath.AbsolutePath, error) {
	settings, _, err := loadSettings(root, nil)
	if err != nil {
		return "", "", err
	}
	result, err := runInstall(ctx, root, p.dirs, settings, p.logger)
	if err != nil {
		return "", "", err
	}
	return result.BinDir, result.LibDir, nil
}

func newActivateCmd(root *rootOpts, logger hclog.Logger) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "activate",
		Short: "print the PATH/env payload for the current directory's project",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveProjectRoot(root)
			if err != nil {
				return err
			}
			dirs, err := platform.Resolve()
			if err != nil {
				return err
			}

			payload, ok, err := activate(cmd.Context(), string(dir), dirs, logger.Named("activate"))
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			return printPayload(payload, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the payload as JSON instead of shell exports")
	return cmd
}

// activate dials the warm daemon first and falls back to an in-process
// hook on any failure, so a cold daemon never blocks activation (the
// warm-daemon supplement to §4.J).
func activate(ctx context.Context, dir string, dirs platform.Dirs, logger hclog.Logger) (*activation.Payload, bool, error) {
	if client, err := daemon.Dial(dirs.Data, dir); err == nil {
		defer client.Close()
		if payload, ok, derr := client.Activate(dir); derr == nil {
			return payload, ok, nil
		}
	}

	hook := activation.New(activation.Options{
		Cache: envcache.New(),
		Dirs:  dirs,
		Installer: &pipelineInstaller{
			dirs:   dirs,
			logger: logger,
		},
	})
	return hook.Activate(ctx, dir)
}

func printPayload(payload *activation.Payload, jsonOutput bool) error {
	if jsonOutput {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		fmt.Println(string(raw))
		return nil
	}

	fmt.Printf("export PATH=%q\n", payload.PathValue)
	for k, v := range payload.EnvVars {
		fmt.Printf("export %s=%q\n", k, v)
	}
	return nil
}
