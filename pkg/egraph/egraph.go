package egraph

import (
	"fmt"
	"math"
)

// Node is one expression alternative of a class. Children hold class ids.
type Node struct {
	Name     string
	Op       string
	Cost     float64
	Children []int
}

type Class struct {
	Id    int
	Name  string
	Nodes []Node
}

// EGraph is a read-only snapshot of an e-graph. Classes are stored in a contiguous
// slice and Classes[i].Id == i for every i, so class ids can be used as indices.
type EGraph struct {
	Classes []Class
	Roots   []int
}

func (g *EGraph) NumClasses() int {
	return len(g.Classes)
}

func (g *EGraph) NumNodes() int {
	total := 0
	for _, class := range g.Classes {
		total += len(class.Nodes)
	}
	return total
}

// Node returns the index-th node of class. It panics if either id is out of range.
func (g *EGraph) Node(class, index int) Node {
	return g.Classes[class].Nodes[index]
}

func (g *EGraph) Validate() error {
	for i, class := range g.Classes {
		if class.Id != i {
			return fmt.Errorf("class at position %d has id %d: class ids must be dense", i, class.Id)
		}
		for j, node := range class.Nodes {
			if math.IsNaN(node.Cost) || math.IsInf(node.Cost, 0) || node.Cost < 0 {
				return fmt.Errorf("node %d of class %d has invalid cost %v", j, i, node.Cost)
			}
			for _, child := range node.Children {
				if child < 0 || child >= len(g.Classes) {
					return fmt.Errorf("node %d of class %d references unknown class %d", j, i, child)
				}
			}
		}
	}
	for _, root := range g.Roots {
		if root < 0 || root >= len(g.Classes) {
			return fmt.Errorf("root %d is not a class", root)
		}
	}
	return nil
}

// DagCost sums the cost of the chosen node of every class that has a choice.
// Negative entries mean the class is not part of the selection.
func (g *EGraph) DagCost(choices []int) float64 {
	cost := 0.0
	for class, index := range choices {
		if index < 0 {
			continue
		}
		cost += g.Classes[class].Nodes[index].Cost
	}
	return cost
}

// Builder assembles an EGraph incrementally. It is not safe for concurrent use.
type Builder struct {
	graph EGraph
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) AddClass(name string) int {
	id := len(b.graph.Classes)
	b.graph.Classes = append(b.graph.Classes, Class{Id: id, Name: name})
	return id
}

// AddNode appends a node to class and returns its index within the class.
func (b *Builder) AddNode(class int, op string, cost float64, children ...int) int {
	nodes := b.graph.Classes[class].Nodes
	index := len(nodes)
	b.graph.Classes[class].Nodes = append(nodes, Node{
		Name:     fmt.Sprintf("%d.%d", class, index),
		Op:       op,
		Cost:     cost,
		Children: append([]int(nil), children...),
	})
	return index
}

func (b *Builder) AddRoot(class int) {
	b.graph.Roots = append(b.graph.Roots, class)
}

func (b *Builder) Build() (*EGraph, error) {
	graph := b.graph
	if err := graph.Validate(); err != nil {
		return nil, err
	}
	return &graph, nil
}

// Costs returns the node costs indexed by class and node index.
func (g *EGraph) Costs() [][]float64 {
	costs := make([][]float64, len(g.Classes))
	for c, class := range g.Classes {
		costs[c] = make([]float64, len(class.Nodes))
		for i, node := range class.Nodes {
			costs[c][i] = node.Cost
		}
	}
	return costs
}

// RoundedCosts is Costs rounded to the nearest integer, halves away from zero.
func (g *EGraph) RoundedCosts() [][]int64 {
	costs := make([][]int64, len(g.Classes))
	for c, class := range g.Classes {
		costs[c] = make([]int64, len(class.Nodes))
		for i, node := range class.Nodes {
			costs[c][i] = int64(math.Round(node.Cost))
		}
	}
	return costs
}
