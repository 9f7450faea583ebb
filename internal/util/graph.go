package util

import (
	"fmt"
	"strings"

	"github.com/pyr-sh/dag"
)

// ValidateGraph checks a resolved dependency DAG (§4.G, one vertex per
// package name) for cycles and self-referential edges; the resolver's
// topoSort calls it before ordering the nodes. We differ from the
// underlying DAG's own Validate method in that we allow multiple roots:
// every direct dependency is its own entrypoint, not a single root like
// Validate assumes.
func ValidateGraph(graph *dag.AcyclicGraph) error {
	// Cycles rather than Validate, since Validate mandates a single root.
	cycles := graph.Cycles()
	if len(cycles) > 0 {
		cycleLines := make([]string, len(cycles))
		for i, cycle := range cycles {
			vertices := make([]string, len(cycle))
			for j, vertex := range cycle {
				vertices[j] = vertex.(string)
			}
			cycleLines[i] = "\t" + strings.Join(vertices, ",")
		}
		return fmt.Errorf("cyclic dependency detected:\n%s", strings.Join(cycleLines, "\n"))
	}

	for _, e := range graph.Edges() {
		if e.Source() == e.Target() {
			return fmt.Errorf("%s depends on itself", e.Source())
		}
	}
	return nil
}
