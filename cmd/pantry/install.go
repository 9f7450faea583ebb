package main

import (
	"context"
	"net/url"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/pantryhq/pantry/internal/artifactcache"
	"github.com/pantryhq/pantry/internal/ci"
	"github.com/pantryhq/pantry/internal/config"
	"github.com/pantryhq/pantry/internal/downloader"
	pantryerrors "github.com/pantryhq/pantry/internal/errors"
	"github.com/pantryhq/pantry/internal/fspath"
	"github.com/pantryhq/pantry/internal/hashing"
	"github.com/pantryhq/pantry/internal/installer"
	"github.com/pantryhq/pantry/internal/lockfile"
	"github.com/pantryhq/pantry/internal/manifest"
	"github.com/pantryhq/pantry/internal/platform"
	"github.com/pantryhq/pantry/internal/registry"
	"github.com/pantryhq/pantry/internal/resolver"
)

func newInstallCmd(root *rootOpts, logger hclog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "resolve and materialize a project's environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectRoot, err := resolveProjectRoot(root)
			if err != nil {
				return err
			}
			settings, dirs, err := loadSettings(projectRoot, cmd.Flags())
			if err != nil {
				return err
			}
			_, err = runInstall(cmd.Context(), projectRoot, dirs, settings, logger.Named("install"))
			return err
		},
	}
	return cmd
}

// runInstall wires the full §4 pipeline: load manifest/lockfile, resolve,
// download, install, and persist the lockfile. It backs both the "install"
// command and pipelineInstaller, the production activation.Installer used
// by the in-process activation hook.
func runInstall(ctx context.Context, projectRoot fspath.AbsolutePath, dirs platform.Dirs, settings config.Settings, logger hclog.Logger) (*installer.Result, error) {
	m, err := manifest.Load(projectRoot)
	if err != nil {
		return nil, err
	}

	lockPath := projectRoot.Join("pantry-lock.json")
	lf, err := lockfile.Load(lockPath)
	if err != nil {
		if _, mismatch := err.(*lockfile.VersionMismatchError); mismatch {
			return nil, pantryerrors.Wrap(pantryerrors.KindLockfileVersionMismatch, err)
		}
		lf = lockfile.New(m.Version, time.Now().Unix())
	}

	reg := registry.New(registry.Options{
		BaseURL:        settings.Install.Registry,
		ScopeOverrides: settings.Npmrc.ScopeRegistries,
		Token:          settings.Npmrc.AuthTokens[registryHost(settings.Install.Registry)],
		Logger:         logger.Named("registry"),
		Proxy:          settings.Npmrc.Proxy,
	})

	policy := resolver.Policy{
		Peer:                      settings.Install.Peer,
		IncludeDev:                settings.Install.Dev && !settings.Install.Production,
		IncludeOptional:           settings.Install.Optional,
		MinimumReleaseAge:         m.MinimumReleaseAge.Duration(),
		MinimumReleaseAgeExcludes: toExcludeSet(m.MinimumReleaseAgeExcludes),
	}
	graph, err := resolver.Resolve(ctx, resolver.Options{
		Manifest: m,
		Lockfile: lf,
		Fetcher:  reg,
		Policy:   policy,
	})
	if err != nil {
		return nil, err
	}
	if settings.Install.FrozenLockfile && graphChangesLockfile(graph, lf) {
		return nil, pantryerrors.New(pantryerrors.KindLockfileOutOfDate)
	}

	cache, err := artifactcache.Open(artifactcache.Options{Root: dirs.StoreRoot()})
	if err != nil {
		return nil, err
	}

	tasks := make([]downloader.Task, 0, len(graph.Nodes))
	for _, name := range graph.Order {
		node := graph.Nodes[name]
		if node.Workspace {
			continue
		}
		tasks = append(tasks, downloader.Task{
			Name:        node.Name,
			Version:     node.Version,
			ResolvedURL: node.Candidate.ResolvedURL,
			Integrity:   node.Candidate.Integrity,
		})
	}
	dl := downloader.New(downloader.Options{
		Cache:        cache,
		Offline:      settings.Env.Offline,
		Concurrency:  settings.Install.Concurrency,
		Logger:       logger.Named("downloader"),
		ShowProgress: showProgress(),
	})
	if err := dl.Ensure(ctx, tasks); err != nil {
		return nil, err
	}

	rawManifest, err := m.Path.ReadFile()
	if err != nil {
		return nil, err
	}
	envRoot := dirs.EnvironmentsRoot().Join(hashing.FingerprintHex(rawManifest))

	result, err := installer.Install(ctx, installer.Options{
		EnvironmentRoot: envRoot,
		Cache:           cache,
		Linker:          installer.Linker(settings.Install.Linker),
		ProjectRoot:     projectRoot,
		Logger:          logger.Named("installer"),
	}, graph)
	if err != nil {
		return nil, err
	}

	lf.ProjectVersion = m.Version
	lf.GeneratedAt = time.Now().Unix()
	writeLockfileFromGraph(lf, graph)
	if err := lf.Save(lockPath); err != nil {
		return nil, err
	}

	return result, nil
}

// toExcludeSet turns the manifest's minimumReleaseAgeExcludes list into the
// set shape resolver.Policy expects.
func toExcludeSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// registryHost extracts the host portion of a registry URL, matching how
// .npmrc's "//host/:_authToken" keys are keyed (§3).
func registryHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}

// graphChangesLockfile reports whether graph resolved any package to a
// version not already pinned in lf, the frozen-lockfile guard from §3
// ("frozenLockfile: bool").
func graphChangesLockfile(graph *resolver.Graph, lf *lockfile.Lockfile) bool {
	for name, node := range graph.Nodes {
		if node.Workspace {
			continue
		}
		if _, ok := lf.Get(name, node.Version); !ok {
			return true
		}
	}
	return false
}

// showProgress reports whether stdout is an interactive terminal and not a
// recognized CI vendor (§4's download step has no business drawing progress
// bars into a log file another system is scraping).
func showProgress() bool {
	return !ci.IsCi() && isatty.IsTerminal(os.Stdout.Fd())
}

// writeLockfileFromGraph puts graph's resolved set into lf under the
// "name@version" keying lockfile.Put uses; entries already in lf that the
// graph does not contain are kept.
func writeLockfileFromGraph(lf *lockfile.Lockfile, graph *resolver.Graph) {
	for name, node := range graph.Nodes {
		if node.Workspace {
			continue
		}
		lf.Put(lockfile.Package{
			Name:                 name,
			Version:              node.Version,
			Source:               node.Candidate.Source,
			URL:                  node.Candidate.URL,
			Resolved:             node.Candidate.ResolvedURL,
			Integrity:            node.Candidate.Integrity,
			Dependencies:         node.Candidate.Dependencies,
			OptionalDependencies: node.Candidate.OptionalDependencies,
			PeerDependencies:     node.Candidate.PeerDependencies,
		})
	}
}
