package stacktheory

import "slices"

const (
	unvisited = iota
	visiting
	visited
)

// topoSort orders ids so every id comes after its prerequisites. Roots and
// prerequisites are visited in the order given, which makes the result
// stable for identical input.
func topoSort(ids []string, prereqs func(string) []string) ([]string, error) {
	state := make(map[string]int, len(ids))
	out := make([]string, 0, len(ids))
	var stack []string

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visited:
			return nil
		case visiting:
			return &CyclicDependencyError{Path: cyclePath(stack, id)}
		}
		state[id] = visiting
		stack = append(stack, id)
		for _, dep := range prereqs(id) {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = visited
		out = append(out, id)
		return nil
	}

	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func cyclePath(stack []string, id string) []string {
	start := slices.Index(stack, id)
	if start < 0 {
		return []string{id, id}
	}
	path := slices.Clone(stack[start:])
	return append(path, id)
}

// Sort returns every node ordered so that each node comes after all of its
// dependencies. Ties follow declaration order.
func (g *Graph) Sort() ([]*Node, error) {
	ids, err := g.sortedIDs()
	if err != nil {
		return nil, err
	}
	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.nodes[id])
	}
	return out, nil
}

func (g *Graph) sortedIDs() ([]string, error) {
	if err := g.resolve(); err != nil {
		return nil, err
	}
	return topoSort(g.order, func(id string) []string { return g.deps[id] })
}

// depths assigns every node its longest-path distance from a root.
func (g *Graph) depths() (map[string]int, []string, error) {
	ids, err := g.sortedIDs()
	if err != nil {
		return nil, nil, err
	}
	depth := make(map[string]int, len(ids))
	for _, id := range ids {
		d := 0
		for _, dep := range g.deps[id] {
			if depth[dep]+1 > d {
				d = depth[dep] + 1
			}
		}
		depth[id] = d
	}
	return depth, ids, nil
}

// Levels partitions the nodes into groups that are safe to provision in
// parallel. Group i holds the nodes whose longest dependency chain has
// length i; within a group ids follow declaration order.
func (g *Graph) Levels() ([][]string, error) {
	depth, _, err := g.depths()
	if err != nil {
		return nil, err
	}
	return groupByDepth(g.order, depth), nil
}

func groupByDepth(order []string, depth map[string]int) [][]string {
	var groups [][]string
	for _, id := range order {
		d, ok := depth[id]
		if !ok {
			continue
		}
		for len(groups) <= d {
			groups = append(groups, nil)
		}
		groups[d] = append(groups[d], id)
	}
	return groups
}
