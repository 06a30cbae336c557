package ground

// stronglyConnected returns the strongly connected components of the graph
// given by adjacency lists (Tarjan's algorithm). Components come out in
// reverse topological order.
func stronglyConnected(adjacency [][]int) [][]int {
	n := len(adjacency)
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}

	var (
		components [][]int
		stack      []int
		counter    int
	)

	var visit func(v int)
	visit = func(v int) {
		index[v] = counter
		low[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adjacency[v] {
			if index[w] == -1 {
				visit(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] == index[v] {
			var component []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			components = append(components, component)
		}
	}

	for v := range adjacency {
		if index[v] == -1 {
			visit(v)
		}
	}
	return components
}
