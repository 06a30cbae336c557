package extract

import "github.com/limaJavier/extraction/pkg/egraph"

// Verify reports whether choices is a legal selection for roots: one valid
// node per root, every child of a chosen node chosen as well, and no class
// reachable from itself through chosen nodes.
func Verify(g *egraph.EGraph, roots []int, choices []int) bool {
	if len(choices) != g.NumClasses() {
		return false
	}
	for class, index := range choices {
		if index != Unselected && (index < 0 || index >= len(g.Classes[class].Nodes)) {
			return false
		}
	}
	for _, root := range roots {
		if root < 0 || root >= len(choices) || choices[root] == Unselected {
			return false
		}
	}

	//** Downward closure and acyclicity
	const (
		unvisited = iota
		visiting
		done
	)
	color := make([]int, len(choices))
	var visit func(class int) bool
	visit = func(class int) bool {
		switch color[class] {
		case visiting:
			return false
		case done:
			return true
		}
		color[class] = visiting
		for _, child := range g.Node(class, choices[class]).Children {
			if choices[child] == Unselected || !visit(child) {
				return false
			}
		}
		color[class] = done
		return true
	}
	for class, index := range choices {
		if index != Unselected && !visit(class) {
			return false
		}
	}
	return true
}
