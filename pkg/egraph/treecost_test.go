package egraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTreeCostsSharedChildren(t *testing.T) {
	//** Arrange
	// c0 -> {a: 1 + c1 + c1, b: 5}; c1 -> {x: 2}
	builder := NewBuilder()
	c0 := builder.AddClass("c0")
	c1 := builder.AddClass("c1")
	builder.AddNode(c0, "a", 1, c1, c1)
	builder.AddNode(c0, "b", 5)
	builder.AddNode(c1, "x", 2)
	graph, _ := builder.Build()

	//** Act
	tree := TreeCosts(graph, graph.RoundedCosts(), 0)

	//** Assert
	// Distinct children count once
	assert.Equal(t, []int64{3, 5}, tree.Nodes[c0])
	assert.Equal(t, int64(3), tree.Classes[c0])
	assert.True(t, tree.Preferred(c0, 0))
	assert.False(t, tree.Preferred(c0, 1))
	assert.Equal(t, 0, tree.Best(c0))
}

func TestTreeCostsBound(t *testing.T) {
	//** Arrange
	builder := NewBuilder()
	c0 := builder.AddClass("c0")
	c1 := builder.AddClass("c1")
	builder.AddNode(c0, "deep", 0, c1)
	builder.AddNode(c0, "flat", 30)
	builder.AddNode(c1, "big", 25)
	graph, _ := builder.Build()

	//** Act
	tree := TreeCosts(graph, graph.RoundedCosts(), 20)

	//** Assert
	// The child sum of "deep" reaches the bound, so it is discarded rather than clamped
	assert.Equal(t, int64(Undefined), tree.Nodes[c0][0])
	assert.Equal(t, int64(30), tree.Classes[c0])
	assert.True(t, tree.Preferred(c0, 1))
}

func TestTreeCostsCycle(t *testing.T) {
	//** Arrange
	builder := NewBuilder()
	c0 := builder.AddClass("c0")
	c1 := builder.AddClass("c1")
	c2 := builder.AddClass("c2")
	builder.AddNode(c0, "f", 1, c1)
	builder.AddNode(c1, "g", 1, c0)
	builder.AddNode(c2, "h", 1, c2)
	graph, _ := builder.Build()

	//** Act
	tree := TreeCosts(graph, graph.Costs(), 20)

	//** Assert
	for class := range graph.Classes {
		assert.Equal(t, float64(Undefined), tree.Classes[class])
		assert.Equal(t, -1, tree.Best(class))
	}
}

func TestTreeCostsCycleWithExit(t *testing.T) {
	builder := NewBuilder()
	c0 := builder.AddClass("c0")
	c1 := builder.AddClass("c1")
	builder.AddNode(c0, "f", 1, c1)
	builder.AddNode(c1, "g", 1, c0)
	builder.AddNode(c1, "leaf", 3)
	graph, _ := builder.Build()

	tree := TreeCosts(graph, graph.Costs(), 0)

	assert.Equal(t, []float64{4}, tree.Nodes[c0])
	assert.Equal(t, []float64{5, 3}, tree.Nodes[c1])
	assert.Equal(t, 1, tree.Best(c1))
}

func TestTreeCostsBestAvoidsZeroCostCycles(t *testing.T) {
	//** Arrange
	// c0 -> {a: 0 + c1, b: 1}; c1 -> {g: 0 + c0, leaf: 1}
	builder := NewBuilder()
	c0 := builder.AddClass("c0")
	c1 := builder.AddClass("c1")
	builder.AddNode(c0, "a", 0, c1)
	builder.AddNode(c0, "b", 1)
	builder.AddNode(c1, "g", 0, c0)
	builder.AddNode(c1, "leaf", 1)
	graph, _ := builder.Build()

	//** Act
	tree := TreeCosts(graph, graph.RoundedCosts(), 20)

	//** Assert
	// Every node is preferred, but only b and g finalised their classes
	assert.True(t, tree.Preferred(c0, 0))
	assert.True(t, tree.Preferred(c1, 0))
	assert.Equal(t, 1, tree.Best(c0))
	assert.Equal(t, 0, tree.Best(c1))
}
