package manifest

import (
	"github.com/gobwas/glob"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/pantryhq/pantry/internal/fs"
	"github.com/pantryhq/pantry/internal/fspath"
)

// Workspace is a local package discovered by expanding the manifest's
// workspaces globs, with its own manifest loaded.
type Workspace struct {
	Dir      fspath.AbsolutePath
	Manifest *Manifest
}

// ExpandWorkspaces resolves m.Workspaces into the set of local package
// directories it names (§4.C, §4.G step 8). Each pattern may be a plain
// glob ("packages/*") or a negated exclusion ("!packages/excluded"),
// matched against directory entries relative to m.Root. The .gitignore at
// m.Root, if any, filters the walk; .gitignore files in subdirectories are
// not read.
func (m *Manifest) ExpandWorkspaces() ([]Workspace, error) {
	var includes, excludes []glob.Glob
	for _, pattern := range m.Workspaces {
		if len(pattern) > 0 && pattern[0] == '!' {
			g, err := glob.Compile(pattern[1:], '/')
			if err != nil {
				return nil, err
			}
			excludes = append(excludes, g)
			continue
		}
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, err
		}
		includes = append(includes, g)
	}

	rootIgnore := compileIgnore(m.Root.Join(".gitignore").String())

	seen := map[string]bool{}
	var workspaces []Workspace
	err := fs.Walk(m.Root.String(), func(name string, isDir bool) error {
		if !isDir || name == m.Root.String() {
			return nil
		}
		rel, err := fspath.UnsafeFrom(name).RelativeTo(m.Root)
		if err != nil {
			return err
		}
		if rootIgnore != nil && rootIgnore.MatchesPath(rel) {
			return nil
		}
		if !matchesAny(includes, rel) {
			return nil
		}
		if matchesAny(excludes, rel) {
			return nil
		}
		if seen[rel] {
			return nil
		}
		seen[rel] = true

		dir := fspath.UnsafeFrom(name)
		wsManifest, err := Load(dir)
		if err != nil {
			if _, ok := err.(*NotFoundError); ok {
				return nil
			}
			return err
		}
		workspaces = append(workspaces, Workspace{Dir: dir, Manifest: wsManifest})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return workspaces, nil
}

func matchesAny(globs []glob.Glob, rel string) bool {
	for _, g := range globs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// compileIgnore compiles path as a gitignore file, returning nil (meaning
// "ignore nothing") if it doesn't exist rather than erroring, since most
// projects have no root .gitignore pattern relevant to workspace discovery.
func compileIgnore(path string) *gitignore.GitIgnore {
	if !fs.FileExists(path) {
		return nil
	}
	ignore, err := gitignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return ignore
}
