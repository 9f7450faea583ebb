// Package installer implements §4.I: extracting resolved packages into a
// per-project environment, linking them per the configured strategy,
// generating binary shims, running lifecycle hooks, and committing the
// result atomically (or rolling back on failure).
package installer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/pyr-sh/dag"

	"github.com/pantryhq/pantry/internal/artifactcache"
	pantryerrors "github.com/pantryhq/pantry/internal/errors"
	"github.com/pantryhq/pantry/internal/fs"
	"github.com/pantryhq/pantry/internal/fspath"
	"github.com/pantryhq/pantry/internal/lifecycle"
	"github.com/pantryhq/pantry/internal/platform"
	"github.com/pantryhq/pantry/internal/resolver"
)

// Linker selects how resolved packages are arranged under the
// environment's bin/ and lib/ (§4.I step 3, pantry.toml's [install].linker).
type Linker string

const (
	LinkerHoisted  Linker = "hoisted"
	LinkerIsolated Linker = "isolated"
)

// Options configures Install.
type Options struct {
	EnvironmentRoot fspath.AbsolutePath // <data>/environments/<hex(env-hash)>/
	Cache           *artifactcache.Store
	Linker          Linker
	Force           bool // overwrite existing shims
	Concurrency     int
	IgnoreScripts   bool
	ScriptTimeout   time.Duration
	ProjectRoot     fspath.AbsolutePath // CWD for lifecycle scripts
	Logger          hclog.Logger
}

// Result summarizes a completed install.
type Result struct {
	BinDir   fspath.AbsolutePath
	LibDir   fspath.AbsolutePath
	ShareDir fspath.AbsolutePath
}

// Install materializes graph into opts.EnvironmentRoot: for each node in
// topological order (running independent nodes in a level concurrently),
// ensure-extract-link-shim, then run lifecycle hooks, then atomically swap
// staging in for the live environment. On any failure, staging is deleted
// and the previous environment (if any) is left untouched (§4.I step 6).
func Install(ctx context.Context, opts Options, graph *resolver.Graph) (*Result, error) {
	if opts.Linker == "" {
		opts.Linker = LinkerHoisted
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	stagingName := ".pantry-staging-" + uuid.NewString()
	staging := opts.EnvironmentRoot.Dir().Join(stagingName)
	if err := staging.MkdirAll(); err != nil {
		return nil, err
	}

	packagesDir := staging.Join("packages")
	binDir := staging.Join("bin")
	libDir := staging.Join("lib")
	shareDir := staging.Join("share")
	for _, d := range []fspath.AbsolutePath{packagesDir, binDir, libDir, shareDir} {
		if err := d.MkdirAll(); err != nil {
			staging.RemoveAll()
			return nil, err
		}
	}

	if err := extractAll(ctx, opts, graph, packagesDir); err != nil {
		staging.RemoveAll()
		return nil, classifyFailure(err)
	}

	manifest := &EnvironmentManifest{Linker: string(opts.Linker)}
	if err := linkAll(opts, graph, packagesDir, binDir, libDir, shareDir, manifest); err != nil {
		staging.RemoveAll()
		return nil, classifyFailure(err)
	}

	if !opts.IgnoreScripts {
		if err := runLifecycle(ctx, opts, graph, packagesDir); err != nil {
			staging.RemoveAll()
			return nil, err
		}
	}

	if err := manifest.save(staging.Join("manifest.json")); err != nil {
		staging.RemoveAll()
		return nil, err
	}

	if opts.EnvironmentRoot.Exists() {
		if err := opts.EnvironmentRoot.RemoveAll(); err != nil {
			staging.RemoveAll()
			return nil, err
		}
	}
	if err := staging.Rename(opts.EnvironmentRoot); err != nil {
		staging.RemoveAll()
		return nil, err
	}

	return &Result{
		BinDir:   opts.EnvironmentRoot.Join("bin"),
		LibDir:   opts.EnvironmentRoot.Join("lib"),
		ShareDir: opts.EnvironmentRoot.Join("share"),
	}, nil
}

// extractAll walks graph's dependency DAG, extracting each node's cached
// artifact into packagesDir/<name>@<version>/ once its own deps have
// extracted (parallelism within a level bounded by opts.Concurrency, via
// dag.AcyclicGraph.Walk's own level-respecting scheduler).
func extractAll(ctx context.Context, opts Options, graph *resolver.Graph, packagesDir fspath.AbsolutePath) error {
	var g dag.AcyclicGraph
	for name := range graph.Nodes {
		g.Add(name)
	}
	for _, e := range graph.Edges {
		if e.Kind == resolver.EdgePeer || e.Parent == "" {
			continue
		}
		if _, ok := graph.Nodes[e.Parent]; !ok {
			continue
		}
		g.Connect(dag.BasicEdge(e.Parent, e.Child))
	}

	sem := make(chan struct{}, opts.Concurrency)
	var mu sync.Mutex
	var firstErr error

	errs := g.Walk(func(v dag.Vertex) error {
		name := dag.VertexName(v)
		node, ok := graph.Nodes[name]
		if !ok {
			return nil
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		defer func() { <-sem }()

		if err := extractOne(opts, node, packagesDir); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("extracting %s@%s: %w", node.Name, node.Version, err)
			}
			mu.Unlock()
			return err
		}
		return nil
	})
	if len(errs) > 0 && firstErr == nil {
		firstErr = errs[0]
	}
	return firstErr
}

func extractOne(opts Options, node *resolver.Node, packagesDir fspath.AbsolutePath) error {
	dest := packagesDir.Join(node.Name + "@" + node.Version)
	if dest.DirExists() && !opts.Force {
		return nil
	}

	if node.Workspace {
		src := opts.ProjectRoot.Join(node.Candidate.LocalPath)
		return fs.RecursiveLinkOrCopy(src.String(), dest.String(), true)
	}

	raw, err := opts.Cache.Read(node.Name, node.Version)
	if err != nil {
		return err
	}
	if raw == nil {
		return pantryerrors.New(pantryerrors.KindCacheCorrupt)
	}

	return extractTar(bytes.NewReader(raw), dest)
}

// linkAll arranges extracted packages into bin/lib/share per the configured
// linker strategy and writes each declared binary's shim.
func linkAll(opts Options, graph *resolver.Graph, packagesDir, binDir, libDir, shareDir fspath.AbsolutePath, manifest *EnvironmentManifest) error {
	for _, name := range graph.Order {
		node, ok := graph.Nodes[name]
		if !ok {
			continue
		}
		pkgDir := packagesDir.Join(node.Name + "@" + node.Version)
		if !pkgDir.DirExists() {
			continue
		}

		switch opts.Linker {
		case LinkerIsolated:
			if err := linkIsolated(pkgDir, libDir, node); err != nil {
				return err
			}
		default:
			if err := linkHoisted(pkgDir, libDir, node); err != nil {
				return err
			}
		}

		if err := shimBinaries(binDir, node, opts.Force); err != nil {
			return err
		}

		size, _ := dirSize(pkgDir)
		manifest.Packages = append(manifest.Packages, InstalledPackage{
			Name: node.Name, Version: node.Version, SizeBytes: size, InstalledAt: time.Now(),
		})
	}
	return nil
}

// linkHoisted hard-links (falling back to copy) pkgDir's tree into
// libDir/<name>, one flat directory per package name with no version in
// the path, the way a classic node_modules hoist lays packages out. The
// graph holds one node per name, so two packages never share a directory.
func linkHoisted(pkgDir, libDir fspath.AbsolutePath, node *resolver.Node) error {
	dest := libDir.Join(node.Name)
	return fs.RecursiveLinkOrCopy(pkgDir.String(), dest.String(), true)
}

// linkIsolated keeps each package in its own subtree under libDir, named by
// name@version so two different resolved versions of the same package
// coexist without collision.
func linkIsolated(pkgDir, libDir fspath.AbsolutePath, node *resolver.Node) error {
	dest := libDir.Join(node.Name + "@" + node.Version)
	return fs.RecursiveLinkOrCopy(pkgDir.String(), dest.String(), true)
}

// shimBinaries writes one launcher per node.Candidate.Binaries entry. The
// target is expressed relative to binDir ("../packages/<name>@<version>/...")
// so the shim keeps working after Install renames the staging root into
// place (see writeShim).
func shimBinaries(binDir fspath.AbsolutePath, node *resolver.Node, force bool) error {
	pkgDirName := node.Name + "@" + node.Version
	for binName, relPath := range node.Candidate.Binaries {
		relTarget := "../packages/" + pkgDirName + "/" + relPath
		shimPath := binDir.Join(binName + shimExt())
		if err := writeShim(shimPath, relTarget, node.Candidate.Env, force); err != nil {
			return err
		}
	}
	return nil
}

// runLifecycle runs preinstall/install/postinstall for every node that
// declares them, via the internal/lifecycle package (§4.K), CWD'd at
// opts.ProjectRoot.
func runLifecycle(ctx context.Context, opts Options, graph *resolver.Graph, packagesDir fspath.AbsolutePath) error {
	runner := lifecycle.New(lifecycle.Options{
		ProjectRoot: opts.ProjectRoot,
		Timeout:     opts.ScriptTimeout,
		Logger:      opts.Logger,
	})
	var scripts []lifecycle.Script
	for _, name := range graph.Order {
		node, ok := graph.Nodes[name]
		if !ok {
			continue
		}
		for _, phase := range []string{"preinstall", "install", "postinstall"} {
			if cmd, ok := node.Candidate.Scripts[phase]; ok && cmd != "" {
				scripts = append(scripts, lifecycle.Script{
					Package: node.Name, Phase: phase, Command: cmd, Dir: opts.ProjectRoot,
				})
			}
		}
	}
	return runner.RunSequential(ctx, scripts)
}

// classifyFailure maps a raw extraction/link error to a Kind whose
// Suggestion fits it: KindPermission for a permission error, KindDiskFull
// for a full disk, KindCacheCorrupt for anything else. Already-classified
// *pantryerrors.Error values are left as-is.
func classifyFailure(err error) error {
	if _, ok := pantryerrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, os.ErrPermission):
		return pantryerrors.Wrap(pantryerrors.KindPermission, err)
	case errors.Is(err, syscall.ENOSPC):
		return pantryerrors.Wrap(pantryerrors.KindDiskFull, err)
	}
	return pantryerrors.Wrap(pantryerrors.KindCacheCorrupt, err)
}

func dirSize(root fspath.AbsolutePath) (int64, error) {
	var total int64
	err := fs.Walk(root.String(), func(name string, isDir bool) error {
		if isDir {
			return nil
		}
		info, statErr := fspath.UnsafeFrom(name).Lstat()
		if statErr != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total, err
}

// DynamicLoaderEnv returns the {var: value} pair the activation hook
// prepends libDir onto (§4.B, §4.J).
func DynamicLoaderEnv(libDir fspath.AbsolutePath) (string, string) {
	return platform.DynamicLoaderVar(), libDir.String()
}
