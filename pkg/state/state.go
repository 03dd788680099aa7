package state

import (
	"context"
	"errors"
	"slices"
	"time"

	stacktheory "github.com/theory-cloud/stacktheory"
)

// ErrStackRequired is returned when a store call omits the stack name.
var ErrStackRequired = errors.New("state: stack is required")

// Resource is the recorded state of one provisioned node.
type Resource struct {
	Stack        string                 `json:"stack"`
	NodeID       string                 `json:"node_id"`
	Kind         stacktheory.Kind       `json:"kind"`
	Properties   stacktheory.Properties `json:"properties,omitempty"`
	Outputs      map[string]any         `json:"outputs,omitempty"`
	Dependencies []string               `json:"dependencies,omitempty"`
	DeploymentID string                 `json:"deployment_id,omitempty"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// Store persists the resources of deployed stacks.
type Store interface {
	// Load returns every resource of a stack ordered by node id.
	Load(ctx context.Context, stack string) ([]Resource, error)
	// Put inserts or replaces one resource.
	Put(ctx context.Context, resource Resource) error
	// Delete removes one resource; deleting a missing resource is not an error.
	Delete(ctx context.Context, stack, nodeID string) error
}

// ToPrior converts stored resources into the prior state the emitter diffs
// against.
func ToPrior(resources []Resource) stacktheory.Prior {
	prior := make(stacktheory.Prior, len(resources))
	for _, r := range resources {
		prior[r.NodeID] = stacktheory.PriorResource{
			Kind:         r.Kind,
			Properties:   r.Properties,
			Outputs:      r.Outputs,
			Dependencies: slices.Clone(r.Dependencies),
		}
	}
	return prior
}

// FromOperation builds the resource recorded after op succeeded with outputs.
func FromOperation(stack, deploymentID string, op stacktheory.ProvisionOperation, outputs map[string]any, now time.Time) Resource {
	return Resource{
		Stack:        stack,
		NodeID:       op.NodeID,
		Kind:         op.Kind,
		Properties:   op.ResolvedProperties,
		Outputs:      outputs,
		Dependencies: slices.Clone(op.DependsOn),
		DeploymentID: deploymentID,
		UpdatedAt:    now.UTC(),
	}
}

func sortResources(resources []Resource) {
	slices.SortFunc(resources, func(a, b Resource) int {
		switch {
		case a.NodeID < b.NodeID:
			return -1
		case a.NodeID > b.NodeID:
			return 1
		default:
			return 0
		}
	})
}
