package resolver

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/Masterminds/semver"
	mapset "github.com/deckarep/golang-set"
	"github.com/pyr-sh/dag"

	pantryerrors "github.com/pantryhq/pantry/internal/errors"
	"github.com/pantryhq/pantry/internal/lockfile"
	"github.com/pantryhq/pantry/internal/manifest"
	"github.com/pantryhq/pantry/internal/source"
	"github.com/pantryhq/pantry/internal/util"
)

// MetadataFetcher fetches the candidate version set for a package name from
// a registry (§4.H owns the actual transport; the resolver only needs this
// narrow seam so it can be tested against a fixture registry).
type MetadataFetcher interface {
	FetchCandidates(ctx context.Context, name string) ([]Candidate, error)
}

// Policy tunes the resolver's peer/optional/dev/release-age behavior: the
// peer/dev/optional switches come from pantry.toml's [install] section, the
// release-age fields from the manifest (§4.C, §4.G steps 4-6).
type Policy struct {
	// Peer, when true, treats peer edges as normal edges (installed,
	// participating in ordering) instead of the default warn-only hint.
	Peer bool
	// IncludeDev controls whether devDependencies are seeded at all
	// (false in production mode).
	IncludeDev bool
	// IncludeOptional controls whether optionalDependencies are seeded;
	// even when true, a failing optional edge is dropped, never fatal.
	IncludeOptional bool
	// MinimumReleaseAge excludes any candidate published more recently
	// than this, unless its package name is in MinimumReleaseAgeExcludes.
	MinimumReleaseAge         time.Duration
	MinimumReleaseAgeExcludes map[string]bool
}

// Options is the resolver's full input (§4.G).
type Options struct {
	Manifest *manifest.Manifest
	Lockfile *lockfile.Lockfile // optional; pinned versions are preferred when still valid
	Fetcher  MetadataFetcher
	Policy   Policy
	// Now is injectable for deterministic release-age tests; defaults to time.Now.
	Now func() time.Time
}

type requirement struct {
	Constraint string
	Requester  string
	Kind       EdgeKind
}

type queuedEdge struct {
	Name       string
	Constraint string
	Kind       EdgeKind
	Requester  string
	// Static, when non-nil, is a direct dependency whose source (github,
	// http, git, local) fixes its artifact location in the manifest
	// itself (§3). Only direct edges ever carry this: transitive
	// dependencies are named by a resolved package's own registry
	// metadata, which has no shape for an alternate source.
	Static *manifest.Dependency
}

// Resolve runs the seed/expand/merge/order algorithm from §4.G and returns
// the resolved, topologically ordered graph, or a classified
// *pantryerrors.Error (VersionConflict, UnresolvableConstraint,
// RegistryFetchFailed, or CycleAmongNonPeerEdges).
func Resolve(ctx context.Context, opts Options) (*Graph, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	g := &Graph{Nodes: map[string]*Node{}}
	reqs := map[string][]requirement{}
	seenEdge := mapset.NewSet() // dedupes identical (parent,child,kind) edges already recorded

	queue := seedQueue(opts.Manifest, opts.Policy)

	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]

		if e.Kind == EdgePeer && !opts.Policy.Peer {
			g.PeerHints = append(g.PeerHints, PeerHint{
				Name:       e.Name,
				Constraint: e.Constraint,
				Requesters: []string{e.Requester},
			})
			continue
		}

		reqs[e.Name] = append(reqs[e.Name], requirement{Constraint: e.Constraint, Requester: e.Requester, Kind: e.Kind})

		var chosen Candidate
		var workspace bool
		if e.Static != nil {
			resolved, err := source.Resolve(*e.Static)
			if err != nil {
				if e.Kind == EdgeOptional {
					g.Dropped = append(g.Dropped, DroppedOptional{Name: e.Name, Reason: err.Error()})
					continue
				}
				return nil, pantryerrors.RegistryFetchFailed(e.Name, err)
			}
			workspace = resolved.Kind == source.KindWorkspace
			chosen = Candidate{
				Version:     resolved.Version,
				ResolvedURL: resolved.ResolvedURL,
				LocalPath:   resolved.LocalPath,
				Source:      e.Static.Source,
				URL:         sourceURL(*e.Static),
			}
		} else {
			candidates, err := opts.Fetcher.FetchCandidates(ctx, e.Name)
			if err != nil {
				if e.Kind == EdgeOptional {
					g.Dropped = append(g.Dropped, DroppedOptional{Name: e.Name, Reason: err.Error()})
					continue
				}
				return nil, pantryerrors.RegistryFetchFailed(e.Name, err)
			}

			candidates = filterByReleaseAge(candidates, opts.Policy, e.Name, now())
			matching, err := filterBySatisfyingAll(e.Name, candidates, reqs[e.Name])
			if err != nil {
				if e.Kind == EdgeOptional {
					g.Dropped = append(g.Dropped, DroppedOptional{Name: e.Name, Reason: err.Error()})
					continue
				}
				return nil, err
			}
			if len(matching) == 0 {
				if e.Kind == EdgeOptional {
					g.Dropped = append(g.Dropped, DroppedOptional{Name: e.Name, Reason: "no candidate satisfies " + e.Constraint})
					continue
				}
				return nil, pantryerrors.UnresolvableConstraint(e.Name, e.Constraint)
			}

			chosen = pickVersion(matching, opts.Lockfile, e.Name)
			if chosen.Source == "" {
				chosen.Source = manifest.SourceRegistry
			}
		}

		edgeKey := e.Requester + "\x00" + e.Name + "\x00" + strconv.Itoa(int(e.Kind))
		if !seenEdge.Contains(edgeKey) {
			seenEdge.Add(edgeKey)
			g.Edges = append(g.Edges, Edge{Parent: e.Requester, Child: e.Name, Kind: e.Kind})
		}

		existing, already := g.Nodes[e.Name]
		if already {
			existing.Requesters = appendUnique(existing.Requesters, e.Requester)
			if existing.Version == chosen.Version {
				continue
			}
			// Every requirement on this name (existing.Requesters' original
			// edges are already folded into reqs[e.Name]) was just
			// re-validated against matching above, so overwrite in place
			// and re-expand the (possibly new) candidate's own edges.
			existing.Version = chosen.Version
			existing.Candidate = chosen
		} else {
			g.Nodes[e.Name] = &Node{
				Name:       e.Name,
				Version:    chosen.Version,
				Candidate:  chosen,
				Kind:       e.Kind,
				Requesters: []string{e.Requester},
				Workspace:  workspace,
			}
		}

		for _, childName := range sortedKeys(chosen.Dependencies) {
			queue = append(queue, queuedEdge{Name: childName, Constraint: chosen.Dependencies[childName], Kind: EdgeNormal, Requester: e.Name})
		}
		if opts.Policy.IncludeOptional {
			for _, childName := range sortedKeys(chosen.OptionalDependencies) {
				queue = append(queue, queuedEdge{Name: childName, Constraint: chosen.OptionalDependencies[childName], Kind: EdgeOptional, Requester: e.Name})
			}
		}
		for _, childName := range sortedKeys(chosen.PeerDependencies) {
			queue = append(queue, queuedEdge{Name: childName, Constraint: chosen.PeerDependencies[childName], Kind: EdgePeer, Requester: e.Name})
		}
	}

	order, err := topoSort(g.Nodes, g.Edges)
	if err != nil {
		return nil, err
	}
	g.Order = order
	return g, nil
}

// seedQueue converts the manifest's four dependency lists into the initial
// queue of edges from the (virtual) root, in manifest order, honoring
// IncludeDev/IncludeOptional.
func seedQueue(m *manifest.Manifest, policy Policy) []queuedEdge {
	var queue []queuedEdge
	if m == nil {
		return queue
	}
	seed := func(d manifest.Dependency, kind EdgeKind) queuedEdge {
		e := queuedEdge{Name: d.Name, Constraint: d.Version, Kind: kind, Requester: ""}
		if source.Static(d) {
			dep := d
			e.Static = &dep
		}
		return e
	}
	for _, d := range m.Dependencies {
		queue = append(queue, seed(d, EdgeNormal))
	}
	if policy.IncludeDev {
		for _, d := range m.DevDependencies {
			queue = append(queue, seed(d, EdgeDev))
		}
	}
	if policy.IncludeOptional {
		for _, d := range m.OptionalDependencies {
			queue = append(queue, seed(d, EdgeOptional))
		}
	}
	for _, d := range m.PeerDependencies {
		queue = append(queue, seed(d, EdgePeer))
	}
	return queue
}

// filterByReleaseAge drops candidates published too recently (§4.G step 6),
// unless name is in the excludes set.
func filterByReleaseAge(candidates []Candidate, policy Policy, name string, now time.Time) []Candidate {
	if policy.MinimumReleaseAge <= 0 || policy.MinimumReleaseAgeExcludes[name] {
		return candidates
	}
	cutoff := now.Add(-policy.MinimumReleaseAge)
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.PublishedAt.IsZero() || !c.PublishedAt.After(cutoff) {
			out = append(out, c)
		}
	}
	return out
}

// filterBySatisfyingAll returns the candidates satisfying every accumulated
// requirement for a name. If the set becomes empty specifically because two
// requirements are individually satisfiable but never together, a
// KindVersionConflict error is returned instead of a bare empty result, matching
// §4.G step 3's "intersect constraints; if empty, emit VersionConflict".
func filterBySatisfyingAll(name string, candidates []Candidate, reqs []requirement) ([]Candidate, error) {
	constraints := make([]*semver.Constraints, 0, len(reqs))
	for _, r := range reqs {
		c, err := semver.NewConstraint(r.Constraint)
		if err != nil {
			// An unparseable constraint (e.g. "latest", a git ref) matches
			// anything; the resolver defers to whatever the registry/source
			// returns as the sole candidate.
			continue
		}
		constraints = append(constraints, c)
	}

	var matching []Candidate
	satisfiesAny := make([]bool, len(reqs))
	for _, cand := range candidates {
		v, err := semver.NewVersion(cand.Version)
		if err != nil {
			continue
		}
		satisfiesAll := true
		for i, c := range constraints {
			if c.Check(v) {
				satisfiesAny[i] = true
			} else {
				satisfiesAll = false
			}
		}
		if satisfiesAll {
			matching = append(matching, cand)
		}
	}

	if len(matching) == 0 && len(reqs) > 1 {
		allIndividuallySatisfiable := true
		for _, ok := range satisfiesAny {
			if !ok {
				allIndividuallySatisfiable = false
				break
			}
		}
		if allIndividuallySatisfiable {
			a, b := reqs[len(reqs)-2], reqs[len(reqs)-1]
			return nil, pantryerrors.VersionConflict(name, a.Constraint, b.Constraint)
		}
	}
	return matching, nil
}

// pickVersion prefers the lockfile's pinned version when it's among the
// satisfying candidates, else the highest version (§4.G step 2).
func pickVersion(candidates []Candidate, lf *lockfile.Lockfile, name string) Candidate {
	if lf != nil {
		for _, c := range candidates {
			if pkg, ok := lf.Get(name, c.Version); ok && pkg.Version == c.Version {
				return c
			}
		}
	}
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		vi, erri := semver.NewVersion(sorted[i].Version)
		vj, errj := semver.NewVersion(sorted[j].Version)
		if erri != nil || errj != nil {
			return sorted[i].Version > sorted[j].Version
		}
		return vi.GreaterThan(vj)
	})
	return sorted[0]
}

// topoSort orders nodes so that for every normal/dev edge parent->child,
// parent precedes child (§8 invariant 5), breaking ties by name for
// determinism (§4.G step 7). Cycle detection runs over a pyr-sh/dag
// AcyclicGraph built from the same edges before the Kahn sort executes.
func topoSort(nodes map[string]*Node, edges []Edge) ([]string, error) {
	var g dag.AcyclicGraph
	for name := range nodes {
		g.Add(name)
	}

	inDegree := map[string]int{}
	children := map[string][]string{}
	for name := range nodes {
		inDegree[name] = 0
	}
	for _, e := range edges {
		if e.Kind == EdgePeer {
			continue
		}
		if e.Parent == "" || e.Parent == e.Child {
			continue
		}
		if _, ok := nodes[e.Parent]; !ok {
			continue
		}
		if _, ok := nodes[e.Child]; !ok {
			continue
		}
		g.Connect(dag.BasicEdge(e.Parent, e.Child))
		children[e.Parent] = append(children[e.Parent], e.Child)
		inDegree[e.Child]++
	}

	// ValidateGraph uses Cycles, not Validate: the dependency graph
	// legitimately has multiple roots (one per direct dependency), and
	// Validate mandates a single one.
	if err := util.ValidateGraph(&g); err != nil {
		return nil, pantryerrors.CycleAmongNonPeerEdges()
	}

	var ready []string
	for name, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	var order []string
	remaining := inDegree
	for len(ready) > 0 {
		sort.Strings(ready)
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		nextChildren := append([]string(nil), children[name]...)
		sort.Strings(nextChildren)
		for _, child := range nextChildren {
			remaining[child]--
			if remaining[child] == 0 {
				ready = append(ready, child)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, pantryerrors.CycleAmongNonPeerEdges()
	}
	return order, nil
}

// sourceURL extracts the non-registry origin worth recording in the
// lockfile for dep (§3's optional LockfileEntry.url): the tarball URL for
// SourceHTTP, the remote for SourceGit, and "owner/repo" for SourceGitHub.
// Registry and local dependencies have no such URL.
func sourceURL(dep manifest.Dependency) string {
	switch dep.Source {
	case manifest.SourceHTTP:
		if dep.URL != "" {
			return dep.URL
		}
		return dep.Version // string form: the tarball URL is the version
	case manifest.SourceGit, manifest.SourceGitHub:
		return dep.Repo
	default:
		return ""
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
