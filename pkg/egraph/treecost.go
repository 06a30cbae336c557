package egraph

import (
	"container/heap"

	"github.com/samber/lo"
)

// Undefined marks a class or node whose tree cost could not be derived, either
// because it depends on a cycle that never bottoms out or because its children
// add up beyond the bound.
const Undefined = -1

type Cost interface {
	~int64 | ~float64
}

// TreeCost holds the tree-accumulated cost of every node and class. A shared
// subclass is counted once per distinct parent reference, as if the selection
// were expanded into a tree.
type TreeCost[C Cost] struct {
	Nodes   [][]C
	Classes []C
	// Final is the node whose cost finalised each class, or -1.
	Final []int
}

// Preferred reports whether the node is a cheapest tree expansion of its class.
func (t TreeCost[C]) Preferred(class, index int) bool {
	cost := t.Nodes[class][index]
	return cost != Undefined && cost == t.Classes[class]
}

// Best returns the node that finalised class, or -1 when the class has no tree
// cost. Following Best from any class never revisits a class, whereas a
// preferred node recorded after its class became final may close a cycle
// through zero-cost nodes.
func (t TreeCost[C]) Best(class int) int {
	return t.Final[class]
}

// TreeCosts computes tree costs from per-node costs indexed like g's nodes.
// Candidates whose child sum reaches bound are dropped. A bound <= 0 disables
// the cutoff.
//
// Classes are finalised in increasing cost order (Knuth's generalisation of
// Dijkstra to superior functions): a node becomes a candidate once all of its
// distinct child classes are final, so each class is popped at most once and
// cycles cannot cause non-termination.
func TreeCosts[C Cost](g *EGraph, costs [][]C, bound C) TreeCost[C] {
	result := TreeCost[C]{
		Nodes:   make([][]C, len(g.Classes)),
		Classes: make([]C, len(g.Classes)),
		Final:   make([]int, len(g.Classes)),
	}

	//** Index parents by distinct child class
	type nodeRef struct{ class, index int }
	pending := make([][]int, len(g.Classes))
	parents := make([][]nodeRef, len(g.Classes))
	queue := &candidateQueue[C]{}
	for c, class := range g.Classes {
		result.Classes[c] = Undefined
		result.Final[c] = -1
		result.Nodes[c] = make([]C, len(class.Nodes))
		pending[c] = make([]int, len(class.Nodes))
		for i, node := range class.Nodes {
			result.Nodes[c][i] = Undefined
			children := lo.Uniq(node.Children)
			pending[c][i] = len(children)
			for _, child := range children {
				parents[child] = append(parents[child], nodeRef{c, i})
			}
			if len(children) == 0 {
				result.Nodes[c][i] = costs[c][i]
				heap.Push(queue, candidate[C]{class: c, index: i, cost: costs[c][i]})
			}
		}
	}

	//** Finalise classes cheapest first
	final := make([]bool, len(g.Classes))
	for queue.Len() > 0 {
		next := heap.Pop(queue).(candidate[C])
		if final[next.class] {
			continue
		}
		final[next.class] = true
		result.Classes[next.class] = next.cost
		result.Final[next.class] = next.index

		for _, parent := range parents[next.class] {
			pending[parent.class][parent.index]--
			if pending[parent.class][parent.index] > 0 {
				continue
			}

			node := g.Classes[parent.class].Nodes[parent.index]
			childSum := lo.SumBy(lo.Uniq(node.Children), func(child int) C { return result.Classes[child] })
			if bound > 0 && childSum >= bound {
				continue
			}
			cost := costs[parent.class][parent.index] + childSum
			result.Nodes[parent.class][parent.index] = cost
			if !final[parent.class] {
				heap.Push(queue, candidate[C]{class: parent.class, index: parent.index, cost: cost})
			}
		}
	}

	return result
}

type candidate[C Cost] struct {
	class int
	index int
	cost  C
}

// candidateQueue is a min-heap of class candidates ordered by cost, class id and node index.
type candidateQueue[C Cost] []candidate[C]

func (q candidateQueue[C]) Len() int { return len(q) }

func (q candidateQueue[C]) Less(i, j int) bool {
	if q[i].cost != q[j].cost {
		return q[i].cost < q[j].cost
	}
	if q[i].class != q[j].class {
		return q[i].class < q[j].class
	}
	return q[i].index < q[j].index
}

func (q candidateQueue[C]) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *candidateQueue[C]) Push(x any) { *q = append(*q, x.(candidate[C])) }

func (q *candidateQueue[C]) Pop() any {
	old := *q
	item := old[len(old)-1]
	*q = old[:len(old)-1]
	return item
}
