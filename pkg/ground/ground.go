package ground

import (
	"fmt"
	"math/bits"
	"slices"

	"github.com/go-air/gini/inter"
	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"
	"github.com/limaJavier/extraction/pkg/asp"
	"github.com/limaJavier/extraction/pkg/egraph"
	"github.com/samber/lo"
)

// Level is one priority tier of the objective. Its internal value, the sum of
// the weights of the true terms, is minimised. Value reports it the way clingo
// prints optimisation values, so maximised tiers come out negated.
type Level struct {
	Name     string
	Priority int
	Terms    []Term
	Maximize bool
	Offset   int64

	sum []z.Lit
}

// Internal is the minimised sum under model, which must give the truth value of a literal.
func (l *Level) Internal(model func(z.Lit) bool) int64 {
	total := int64(0)
	for _, term := range l.Terms {
		if model(term.Lit) {
			total += term.Weight
		}
	}
	return total
}

func (l *Level) Value(model func(z.Lit) bool) int64 {
	return l.Internal(model) + l.Offset
}

// Upper is the largest internal value the level can take.
func (l *Level) Upper() int64 {
	return lo.SumBy(l.Terms, func(term Term) int64 { return term.Weight })
}

// Ground is the propositional form of an encoding under the fixed program.
// Variables of the circuit and of the solver it is taught to coincide.
type Ground struct {
	Circuit *logic.C

	// Sel[E][I] is sel(E,I). Class[E] is selclass(E).
	Sel   [][]z.Lit
	Class []z.Lit
	Seed  []z.Lit

	// Levels in decreasing priority.
	Levels []*Level

	// Clauses hold the hard constraints and the definitions of every level term.
	Clauses [][]z.Lit

	// Unsat is set when some hard constraint simplified to false.
	Unsat bool

	marks []int8
}

// New grounds enc. Its program must be asp.Program.
func New(enc *asp.Encoding) (*Ground, error) {
	if enc.Program != asp.Program {
		return nil, fmt.Errorf("only the extraction program can be grounded in process")
	}
	facts := enc.Facts
	derivation, err := asp.Derive(facts)
	if err != nil {
		return nil, err
	}

	numClasses := facts.NumClasses()
	graph, costs, err := view(facts, numClasses)
	if err != nil {
		return nil, err
	}

	c := logic.NewCCap(4 * (facts.Len() + numClasses + 2))
	g := &Ground{
		Circuit: c,
		Sel:     make([][]z.Lit, numClasses),
		Class:   make([]z.Lit, numClasses),
	}
	var hard []z.Lit

	//** Selection variables
	for class := range graph.Classes {
		g.Sel[class] = make([]z.Lit, len(graph.Classes[class].Nodes))
		for index := range g.Sel[class] {
			g.Sel[class][index] = c.Lit()
		}
		g.Class[class] = c.Ors(g.Sel[class]...)
	}

	//** Legality
	for class, nodes := range graph.Classes {
		reachable := derivation.IsReachable(class)
		for index, node := range nodes.Nodes {
			sel := g.Sel[class][index]
			if !reachable && costs[class][index] > 0 {
				hard = append(hard, sel.Not())
				continue
			}
			for _, child := range node.Children {
				if child == class {
					hard = append(hard, sel.Not())
					break
				}
				hard = append(hard, c.Implies(sel, g.Class[child]))
			}
		}
		hard = append(hard, atMostOne(c, g.Sel[class]))
	}
	for _, root := range facts.Roots {
		hard = append(hard, g.Class[root.Class])
	}

	//** Well-foundedness
	hard = append(hard, g.acyclic(graph)...)

	//** Objective
	tree := egraph.TreeCosts(graph, costs, enc.TreeCostBound())
	g.Levels = g.levels(costs, tree)

	//** Seed
	for _, b := range facts.BottomSels {
		if b.Class < numClasses && b.Index < len(g.Sel[b.Class]) {
			g.Seed = append(g.Seed, g.Sel[b.Class][b.Index])
		}
	}

	//** Clauses
	roots := slices.Clone(hard)
	roots = append(roots, g.Class...)
	for _, level := range g.Levels {
		for _, term := range level.Terms {
			roots = append(roots, term.Lit)
		}
	}
	collector := &clauseCollector{}
	g.marks, _ = c.CnfSince(collector, nil, roots...)
	for _, m := range hard {
		switch m {
		case c.T:
			continue
		case c.F:
			g.Unsat = true
		}
		collector.Add(m)
		collector.Add(z.LitNull)
	}
	g.Clauses = collector.clauses

	return g, nil
}

// NumVars is the number of variables the clauses and bounds may mention.
func (g *Ground) NumVars() int {
	return g.Circuit.Len() - 1
}

// Bound returns a literal that holds iff the internal value of the level is
// at most k. Gates not yet seen by dst are added to it, so dst must be the
// only solver the ground state has been taught to since its clauses were
// collected.
func (g *Ground) Bound(dst inter.Adder, level int, k int64) z.Lit {
	l := g.Levels[level]
	if l.sum == nil {
		l.sum = weightedSum(g.Circuit, l.Terms)
	}
	m := atMost(g.Circuit, l.sum, k)
	g.marks, _ = g.Circuit.CnfSince(dst, g.marks, m)
	return m
}

// Selected lists the (class, index) pairs whose sel literal holds under model.
func (g *Ground) Selected(model func(z.Lit) bool) [][2]int {
	var selected [][2]int
	for class, lits := range g.Sel {
		for index, m := range lits {
			if model(m) {
				selected = append(selected, [2]int{class, index})
			}
		}
	}
	return selected
}

// Values evaluates every level under model, highest priority first.
func (g *Ground) Values(model func(z.Lit) bool) []int64 {
	return lo.Map(g.Levels, func(l *Level, _ int) int64 { return l.Value(model) })
}

func (g *Ground) levels(costs [][]int64, tree egraph.TreeCost[int64]) []*Level {
	c := g.Circuit
	cost := &Level{Name: "cost", Priority: 4}
	match := &Level{Name: "tree", Priority: 3, Maximize: true}
	count := &Level{Name: "classes", Priority: 2}
	tie := &Level{Name: "tiebreak", Priority: 1}

	for class, lits := range g.Sel {
		var preferred []z.Lit
		for index, sel := range lits {
			if costs[class][index] > 0 {
				cost.Terms = append(cost.Terms, Term{Lit: sel, Weight: costs[class][index]})
			}
			if tree.Preferred(class, index) {
				preferred = append(preferred, sel)
			}
			if weight := int64(class) * int64(index); weight > 0 {
				tie.Terms = append(tie.Terms, Term{Lit: sel, Weight: weight})
			}
		}
		if len(preferred) > 0 {
			match.Terms = append(match.Terms, Term{Lit: c.Ors(preferred...).Not(), Weight: 1})
		}
		if len(lits) > 0 {
			count.Terms = append(count.Terms, Term{Lit: g.Class[class], Weight: 1})
		}
	}
	match.Offset = -int64(len(match.Terms))

	return []*Level{cost, match, count, tie}
}

// acyclic forbids selections whose chosen nodes reference each other in a
// cycle. Classes inside a strongly connected component get a binary rank and
// a selected node must rank strictly above each child in its component.
func (g *Ground) acyclic(graph *egraph.EGraph) []z.Lit {
	c := g.Circuit
	adjacency := make([][]int, len(graph.Classes))
	for class, nodes := range graph.Classes {
		for _, node := range nodes.Nodes {
			for _, child := range node.Children {
				if child != class {
					adjacency[class] = append(adjacency[class], child)
				}
			}
		}
		adjacency[class] = lo.Uniq(adjacency[class])
	}

	component := make([]int, len(graph.Classes))
	var constraints []z.Lit
	for id, members := range stronglyConnected(adjacency) {
		for _, class := range members {
			component[class] = id
		}
		if len(members) < 2 {
			continue
		}

		width := bits.Len(uint(len(members) - 1))
		ranks := make(map[int][]z.Lit, len(members))
		for _, class := range members {
			rank := make([]z.Lit, width)
			for j := range rank {
				rank[j] = c.Lit()
			}
			ranks[class] = rank
		}
		for _, class := range members {
			for index, node := range graph.Classes[class].Nodes {
				for _, child := range lo.Uniq(node.Children) {
					if child == class || component[child] != id {
						continue
					}
					constraints = append(constraints, c.Implies(g.Sel[class][index], less(c, ranks[child], ranks[class])))
				}
			}
		}
	}
	return constraints
}

// view rebuilds the class structure described by the facts, with distinct
// children per node.
func view(facts *asp.FactBase, numClasses int) (*egraph.EGraph, [][]int64, error) {
	graph := &egraph.EGraph{Classes: make([]egraph.Class, numClasses)}
	costs := make([][]int64, numClasses)
	for class := range graph.Classes {
		graph.Classes[class].Id = class
	}

	for _, e := range facts.Enodes {
		if e.Index != len(graph.Classes[e.Class].Nodes) {
			return nil, nil, fmt.Errorf("enode %d of class %d is out of order", e.Index, e.Class)
		}
		if e.Cost < 0 {
			return nil, nil, fmt.Errorf("enode %d of class %d has negative cost %d", e.Index, e.Class, e.Cost)
		}
		graph.Classes[e.Class].Nodes = append(graph.Classes[e.Class].Nodes, egraph.Node{Op: e.Op, Cost: float64(e.Cost)})
		costs[e.Class] = append(costs[e.Class], e.Cost)
	}
	for _, child := range facts.Children {
		nodes := graph.Classes[child.Class].Nodes
		if child.Index >= len(nodes) {
			return nil, nil, fmt.Errorf("child fact references unknown enode %d of class %d", child.Index, child.Class)
		}
		nodes[child.Index].Children = append(nodes[child.Index].Children, child.ChildClass)
	}
	for _, root := range facts.Roots {
		graph.Roots = append(graph.Roots, root.Class)
	}
	return graph, costs, nil
}

type clauseCollector struct {
	clauses [][]z.Lit
	current []z.Lit
}

func (cc *clauseCollector) Add(m z.Lit) {
	if m == z.LitNull {
		cc.clauses = append(cc.clauses, cc.current)
		cc.current = nil
		return
	}
	cc.current = append(cc.current, m)
}
