package stacktheory

import (
	"maps"
	"slices"
)

// Node is one deployable resource: a unique id, a kind, declared properties
// and, once provisioned, the outputs the provider reported for it.
type Node struct {
	id         string
	kind       Kind
	properties Properties
	outputs    map[string]any
}

// NewNode builds a node. props is deep-copied.
func NewNode(id string, kind Kind, props Properties) *Node {
	p := Properties(cloneMap(props))
	if p == nil {
		p = Properties{}
	}
	return &Node{id: id, kind: kind, properties: p}
}

func (n *Node) clone() *Node {
	return &Node{
		id:         n.id,
		kind:       n.kind,
		properties: Properties(cloneMap(n.properties)),
		outputs:    cloneMap(n.outputs),
	}
}

func (n *Node) ID() string { return n.id }

func (n *Node) Kind() Kind { return n.kind }

// Properties returns a deep copy of the declared properties.
func (n *Node) Properties() Properties {
	return Properties(cloneMap(n.properties))
}

// Property returns a copy of a single declared property.
func (n *Node) Property(name string) (any, bool) {
	v, ok := n.properties[name]
	if !ok {
		return nil, false
	}
	return cloneValue(v), true
}

// Outputs returns a copy of the recorded outputs, or nil when the node has
// not been provisioned.
func (n *Node) Outputs() map[string]any {
	return cloneMap(n.outputs)
}

// Output returns a single recorded output.
func (n *Node) Output(name string) (any, bool) {
	if n.outputs == nil {
		return nil, false
	}
	v, ok := n.outputs[name]
	return cloneValue(v), ok
}

// Provisioned reports whether outputs have been recorded for the node.
func (n *Node) Provisioned() bool {
	return n.outputs != nil
}

// Refs returns every reference held in the node's properties, walking keys in
// sorted order. Duplicates are kept.
func (n *Node) Refs() []Ref {
	var refs []Ref
	walkRefs(n.properties, func(r Ref) {
		refs = append(refs, r)
	})
	return refs
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	return slices.Sorted(maps.Keys(m))
}
