// Package resolver implements §4.G: turning a normalized manifest (plus an
// optional lockfile) into a resolved, topologically ordered dependency
// graph, or a conflict/peer/optional report.
package resolver

import (
	"time"

	"github.com/pantryhq/pantry/internal/manifest"
)

// EdgeKind classifies how a dependency was declared.
type EdgeKind int

const (
	EdgeNormal EdgeKind = iota
	EdgeDev
	EdgeOptional
	EdgePeer
)

// Candidate is one version of a package as returned by the registry
// metadata fetch (§4.H), the input the resolver needs to pick among.
type Candidate struct {
	Version              string
	PublishedAt          time.Time
	ResolvedURL          string
	Integrity            string
	Dependencies         map[string]string
	OptionalDependencies map[string]string
	PeerDependencies     map[string]string

	// Source classifies where this candidate's artifact came from (§3:
	// registry, github, http, git, local), carried through to the
	// lockfile entry so a non-registry dependency can be reproduced from
	// the lockfile alone. Defaults to manifest.SourceRegistry.
	Source manifest.Source
	// URL is the source-specific origin for a non-registry candidate: the
	// tarball URL for SourceHTTP, the remote for SourceGit, the
	// "owner/repo" for SourceGitHub. Empty for SourceRegistry and
	// SourceLocal, which are identified by name/version and LocalPath
	// respectively.
	URL string

	// Binaries maps a declared binary name to its path relative to the
	// extracted package root (§4.I step 4: "executable shims for each
	// declared binary entry").
	Binaries map[string]string
	// Env is the set of environment variables this package's services or
	// binaries want published alongside the environment's PATH (§4.B).
	Env map[string]string
	// Scripts maps a lifecycle phase ("preinstall", "install",
	// "postinstall") to the command line to run (§4.K).
	Scripts map[string]string

	// LocalPath is set instead of ResolvedURL for a local-source
	// dependency (§3): a path on disk, relative to the project root, to
	// link into the environment rather than download.
	LocalPath string
}

// Node is one resolved package in the graph.
type Node struct {
	Name       string
	Version    string
	Candidate  Candidate
	Kind       EdgeKind
	Requesters []string // names of packages (or "" for the root) that require Name
	Workspace  bool      // true if this is a local workspace package, not a download
}

// PeerHint records a peer dependency that was not installed (the default
// policy, §4.G step 4).
type PeerHint struct {
	Name       string
	Constraint string
	Requesters []string
}

// DroppedOptional records an optional dependency that failed resolution
// and was dropped rather than aborting the whole resolve (§4.G step 5).
type DroppedOptional struct {
	Name   string
	Reason string
}

// Edge is one edge actually installed into the graph (peer edges that were
// dropped to a PeerHint, and optional edges that were dropped, are not
// recorded here). Parent is "" for a direct (root manifest) dependency.
type Edge struct {
	Parent string
	Child  string
	Kind   EdgeKind
}

// Graph is the resolver's output: a topologically ordered set of
// resolved packages plus peer-hints and dropped-optional reports.
type Graph struct {
	Nodes map[string]*Node // keyed by package name
	Edges []Edge
	Order []string // topological order of Nodes' keys

	PeerHints []PeerHint
	Dropped   []DroppedOptional
}

