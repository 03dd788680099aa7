package stacktheory

import "encoding/json"

// Operation is the action a plan takes for one node.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// ProvisionOperation is one step of a plan. ResolvedProperties carries the
// node's properties with every reference replaced by a known value or an
// Unknown placeholder.
type ProvisionOperation struct {
	Operation          Operation  `json:"operation"`
	NodeID             string     `json:"node_id"`
	Kind               Kind       `json:"kind"`
	ResolvedProperties Properties `json:"resolved_properties"`
	DependsOn          []string   `json:"depends_on,omitempty"`
	Level              int        `json:"level"`
}

// Summary counts a plan's operations by type.
type Summary struct {
	Create int `json:"create"`
	Update int `json:"update"`
	Delete int `json:"delete"`
}

// Total returns the number of operations.
func (s Summary) Total() int {
	return s.Create + s.Update + s.Delete
}

// Plan is the ordered list of operations for a stack plus the parallel
// groups derived from it.
type Plan struct {
	Stack      string               `json:"stack,omitempty"`
	Operations []ProvisionOperation `json:"operations"`
	Groups     [][]string           `json:"groups"`
	Summary    Summary              `json:"summary"`
}

// Operation returns the operation for a node id.
func (p *Plan) Operation(nodeID string) (ProvisionOperation, bool) {
	if p == nil {
		return ProvisionOperation{}, false
	}
	for _, op := range p.Operations {
		if op.NodeID == nodeID {
			return op, true
		}
	}
	return ProvisionOperation{}, false
}

// NodeIDs returns the node ids in plan order.
func (p *Plan) NodeIDs() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.Operations))
	for _, op := range p.Operations {
		out = append(out, op.NodeID)
	}
	return out
}

// JSON renders the plan as indented JSON. Unknown values render as
// "${node.output}".
func (p *Plan) JSON() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// PriorResource is a resource recorded by an earlier deployment.
type PriorResource struct {
	Kind         Kind           `json:"kind"`
	Properties   Properties     `json:"properties,omitempty"`
	Outputs      map[string]any `json:"outputs,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
}

// Prior maps node ids to the resources that already exist for a stack.
type Prior map[string]PriorResource
