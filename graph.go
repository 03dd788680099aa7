package stacktheory

import (
	"slices"
	"strings"
)

// Edge records that From depends on To.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph owns every node of a stack keyed by id and the dependency edges
// derived from their references. A Graph is not safe for concurrent use.
type Graph struct {
	nodes map[string]*Node
	order []string
	index map[string]int

	resolved   bool
	edges      []Edge
	deps       map[string][]string
	dependents map[string][]string
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: map[string]*Node{},
		index: map[string]int{},
	}
}

// NewGraphFrom registers nodes in order and fails on the first rejected node.
func NewGraphFrom(nodes []*Node) (*Graph, error) {
	g := NewGraph()
	for _, n := range nodes {
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// AddNode registers a copy of n, so a node value never aliases state across
// graphs. A duplicate id leaves the graph unchanged and returns a
// DuplicateIDError.
func (g *Graph) AddNode(n *Node) error {
	if n == nil {
		return &ValidationError{Message: "node is nil"}
	}
	if strings.TrimSpace(n.id) == "" {
		return &ValidationError{Field: "id", Message: "node id is empty"}
	}
	if _, exists := g.nodes[n.id]; exists {
		return &DuplicateIDError{ID: n.id}
	}
	g.nodes[n.id] = n.clone()
	g.index[n.id] = len(g.order)
	g.order = append(g.order, n.id)
	g.invalidate()
	return nil
}

// Declare builds a node, registers it and returns the graph-owned node.
func (g *Graph) Declare(id string, kind Kind, props Properties) (*Node, error) {
	if err := g.AddNode(NewNode(id, kind, props)); err != nil {
		return nil, err
	}
	return g.nodes[id], nil
}

// Node looks a node up by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns every node in declaration order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Len returns the number of registered nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// SetProperty replaces one declared property of a node.
func (g *Graph) SetProperty(id, key string, value any) error {
	n, ok := g.nodes[id]
	if !ok {
		return &ValidationError{NodeID: id, Field: key, Message: reasonNodeNotDeclared}
	}
	n.properties[key] = cloneValue(value)
	g.invalidate()
	return nil
}

// RecordOutputs stores provider-reported outputs on a node, marking it
// provisioned. Outputs merge over any already recorded.
func (g *Graph) RecordOutputs(id string, outputs map[string]any) error {
	n, ok := g.nodes[id]
	if !ok {
		return &ValidationError{NodeID: id, Message: reasonNodeNotDeclared}
	}
	if n.outputs == nil {
		n.outputs = map[string]any{}
	}
	for k, v := range outputs {
		n.outputs[k] = cloneValue(v)
	}
	return nil
}

func (g *Graph) invalidate() {
	g.resolved = false
	g.edges = nil
	g.deps = nil
	g.dependents = nil
}

// ResolveEdges derives one edge per distinct (dependent, dependency) pair
// from the references in node properties. Edges are ordered by dependent
// then dependency declaration order.
func (g *Graph) ResolveEdges() ([]Edge, error) {
	if err := g.resolve(); err != nil {
		return nil, err
	}
	return slices.Clone(g.edges), nil
}

func (g *Graph) resolve() error {
	if g.resolved {
		return nil
	}

	deps := make(map[string][]string, len(g.order))
	dependents := make(map[string][]string, len(g.order))
	var edges []Edge

	for _, id := range g.order {
		n := g.nodes[id]
		seen := map[string]bool{}
		var targets []string
		for _, ref := range n.Refs() {
			if _, ok := g.nodes[ref.Node]; !ok {
				return &UnresolvedReferenceError{From: id, Ref: ref, Reason: reasonNodeNotDeclared}
			}
			if seen[ref.Node] {
				continue
			}
			seen[ref.Node] = true
			targets = append(targets, ref.Node)
		}
		slices.SortFunc(targets, func(a, b string) int {
			return g.index[a] - g.index[b]
		})
		deps[id] = targets
		for _, to := range targets {
			edges = append(edges, Edge{From: id, To: to})
			dependents[to] = append(dependents[to], id)
		}
	}

	g.edges = edges
	g.deps = deps
	g.dependents = dependents
	g.resolved = true
	return nil
}

// DependenciesOf returns the direct prerequisites of id in declaration order.
func (g *Graph) DependenciesOf(id string) ([]string, error) {
	if _, ok := g.nodes[id]; !ok {
		return nil, &ValidationError{NodeID: id, Message: reasonNodeNotDeclared}
	}
	if err := g.resolve(); err != nil {
		return nil, err
	}
	return slices.Clone(g.deps[id]), nil
}

// DependentsOf returns the nodes that directly depend on id in declaration
// order.
func (g *Graph) DependentsOf(id string) ([]string, error) {
	if _, ok := g.nodes[id]; !ok {
		return nil, &ValidationError{NodeID: id, Message: reasonNodeNotDeclared}
	}
	if err := g.resolve(); err != nil {
		return nil, err
	}
	return slices.Clone(g.dependents[id]), nil
}

// TransitiveDependents returns every node that depends on id directly or
// indirectly, in declaration order.
func (g *Graph) TransitiveDependents(id string) ([]string, error) {
	if _, ok := g.nodes[id]; !ok {
		return nil, &ValidationError{NodeID: id, Message: reasonNodeNotDeclared}
	}
	if err := g.resolve(); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, dep := range g.dependents[cur] {
			if seen[dep] || dep == id {
				continue
			}
			seen[dep] = true
			queue = append(queue, dep)
		}
	}
	out := make([]string, 0, len(seen))
	for _, nid := range g.order {
		if seen[nid] {
			out = append(out, nid)
		}
	}
	return out, nil
}
