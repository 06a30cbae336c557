package extract

import (
	"context"

	"github.com/limaJavier/extraction/pkg/egraph"
)

type bottomUpExtractor struct{}

// NewBottomUpExtractor returns the greedy extractor that picks, for every
// class, the node of cheapest tree cost. The result is legal but only optimal
// when the best selection shares no subterms.
func NewBottomUpExtractor() Extractor {
	return bottomUpExtractor{}
}

func (bottomUpExtractor) Extract(ctx context.Context, g *egraph.EGraph, roots []int) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if roots == nil {
		roots = g.Roots
	}
	if err := g.Validate(); err != nil {
		return Result{}, err
	}

	tree := egraph.TreeCosts(g, g.Costs(), 0)

	//** Keep the closure of the roots
	choices := make([]int, g.NumClasses())
	for i := range choices {
		choices[i] = Unselected
	}
	stack := append([]int(nil), roots...)
	for len(stack) > 0 {
		class := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if choices[class] != Unselected {
			continue
		}
		best := tree.Best(class)
		if best < 0 {
			return Result{}, ErrNoModelFound
		}
		choices[class] = best
		stack = append(stack, g.Node(class, best).Children...)
	}

	return Result{Choices: choices, Models: 1}, nil
}
