package egraph

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"
)

const defaultNodeCost = 1.0

// RawNode mirrors a node entry of the serialized e-graph format, where children are node names
type RawNode struct {
	Op       string
	Children []string
	Eclass   string
	Cost     *float64
}

type RawEGraph struct {
	Nodes        map[string]RawNode
	RootEclasses []string `mapstructure:"root_eclasses"`
}

func FromJson(file string) (*EGraph, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("cannot open egraph file: %w", err)
	}
	defer f.Close()
	return FromReader(f)
}

func FromReader(r io.Reader) (*EGraph, error) {
	var inputJson map[string]any
	if err := json.NewDecoder(r).Decode(&inputJson); err != nil {
		return nil, fmt.Errorf("cannot decode egraph json: %w", err)
	}

	var raw RawEGraph
	if err := mapstructure.Decode(inputJson, &raw); err != nil {
		return nil, fmt.Errorf("cannot decode egraph: %w", err)
	}
	return ProcessRawEGraph(raw)
}

// ProcessRawEGraph turns node-addressed raw input into the dense class-addressed model.
// Classes are numbered in sorted name order and nodes are sorted by name inside
// their class, so the same input always yields the same ids.
func ProcessRawEGraph(raw RawEGraph) (*EGraph, error) {
	//** Assign class ids
	classNames := lo.Uniq(lo.MapToSlice(raw.Nodes, func(_ string, node RawNode) string { return node.Eclass }))
	slices.Sort(classNames)
	classIds := make(map[string]int, len(classNames))
	for i, name := range classNames {
		classIds[name] = i
	}

	graph := &EGraph{Classes: make([]Class, len(classNames))}
	for i, name := range classNames {
		graph.Classes[i] = Class{Id: i, Name: name}
	}

	//** Fill classes with their nodes
	nodeNames := lo.Keys(raw.Nodes)
	slices.Sort(nodeNames)
	for _, nodeName := range nodeNames {
		rawNode := raw.Nodes[nodeName]
		children := make([]int, 0, len(rawNode.Children))
		for _, childName := range rawNode.Children {
			child, ok := raw.Nodes[childName]
			if !ok {
				return nil, fmt.Errorf("node \"%v\" references unknown node \"%v\"", nodeName, childName)
			}
			children = append(children, classIds[child.Eclass])
		}

		cost := defaultNodeCost
		if rawNode.Cost != nil {
			cost = *rawNode.Cost
		}

		class := classIds[rawNode.Eclass]
		graph.Classes[class].Nodes = append(graph.Classes[class].Nodes, Node{
			Name:     nodeName,
			Op:       rawNode.Op,
			Cost:     cost,
			Children: children,
		})
	}

	//** Resolve roots
	for _, rootName := range raw.RootEclasses {
		root, ok := classIds[rootName]
		if !ok {
			return nil, fmt.Errorf("root eclass \"%v\" has no nodes", rootName)
		}
		graph.Roots = append(graph.Roots, root)
	}
	graph.Roots = lo.Uniq(graph.Roots)

	if err := graph.Validate(); err != nil {
		return nil, err
	}
	return graph, nil
}
