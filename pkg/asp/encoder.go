package asp

import (
	"errors"
	"fmt"
	"math"

	"github.com/limaJavier/extraction/pkg/egraph"
)

var ErrEncoding = errors.New("encoding failed")

const (
	TreeCostBoundConstant = "treecost_bound"
	DefaultTreeCostBound  = 20
)

// Encoding is what a backend receives: the facts of one extraction and the
// fixed rule program they are interpreted with.
type Encoding struct {
	Facts     *FactBase
	Program   string
	Constants map[string]int64
}

// TreeCostBound returns the heuristic threshold the program is run with.
func (e *Encoding) TreeCostBound() int64 {
	if bound, ok := e.Constants[TreeCostBoundConstant]; ok {
		return bound
	}
	return DefaultTreeCostBound
}

type options struct {
	seed          []int
	treeCostBound int64
}

type Option func(*options)

// WithSeed emits a bottomsel fact for every class with a non-negative choice.
func WithSeed(choices []int) Option {
	return func(o *options) {
		o.seed = choices
	}
}

func WithTreeCostBound(bound int64) Option {
	return func(o *options) {
		o.treeCostBound = bound
	}
}

func Encode(g *egraph.EGraph, roots []int, opts ...Option) (*Encoding, error) {
	o := options{treeCostBound: DefaultTreeCostBound}
	for _, opt := range opts {
		opt(&o)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	if o.treeCostBound <= 0 || o.treeCostBound > math.MaxInt32 {
		return nil, fmt.Errorf("%w: tree cost bound %d out of range", ErrEncoding, o.treeCostBound)
	}

	facts := NewFactBase()

	//** Roots
	for _, root := range roots {
		if root < 0 || root >= g.NumClasses() {
			return nil, fmt.Errorf("%w: root %d is not a class", ErrEncoding, root)
		}
		facts.AddRoot(Root{Class: root})
	}

	//** Nodes and child edges
	for _, class := range g.Classes {
		for index, node := range class.Nodes {
			cost := math.Round(node.Cost)
			if cost > math.MaxInt32 {
				return nil, fmt.Errorf("%w: cost %v of node %d of class %d does not fit the objective", ErrEncoding, node.Cost, index, class.Id)
			}
			facts.AddEnode(Enode{Class: class.Id, Index: index, Op: node.Op, Cost: int64(cost)})
			for _, child := range node.Children {
				facts.AddChild(Child{Class: class.Id, Index: index, ChildClass: child})
			}
		}
	}

	//** Seed
	for class, index := range o.seed {
		if class >= g.NumClasses() || index < 0 {
			continue
		}
		if index >= len(g.Classes[class].Nodes) {
			return nil, fmt.Errorf("%w: seed selects node %d of class %d which has %d nodes", ErrEncoding, index, class, len(g.Classes[class].Nodes))
		}
		facts.AddBottomSel(BottomSel{Class: class, Index: index})
	}

	return &Encoding{
		Facts:     facts,
		Program:   Program,
		Constants: map[string]int64{TreeCostBoundConstant: o.treeCostBound},
	}, nil
}
