package testkit

import (
	"context"
	"maps"
	"sync"

	stacktheory "github.com/theory-cloud/stacktheory"
	"github.com/theory-cloud/stacktheory/pkg/deploy"
)

// RecordingBackend records every operation it receives. Outputs default to
// "<output>-of-<node>" for each output the kind declares; Outputs and
// Failures override per node id.
type RecordingBackend struct {
	mu sync.Mutex

	Calls    []stacktheory.ProvisionOperation
	Outputs  map[string]map[string]any
	Failures map[string]error

	// Block, when set, is waited on before each call returns.
	Block chan struct{}
}

var _ deploy.Backend = (*RecordingBackend)(nil)

func NewRecordingBackend() *RecordingBackend {
	return &RecordingBackend{
		Outputs:  map[string]map[string]any{},
		Failures: map[string]error{},
	}
}

// Fail makes the backend fail the given node.
func (b *RecordingBackend) Fail(nodeID string, err error) {
	b.mu.Lock()
	b.Failures[nodeID] = err
	b.mu.Unlock()
}

func (b *RecordingBackend) Provision(ctx context.Context, op stacktheory.ProvisionOperation) (map[string]any, error) {
	b.mu.Lock()
	b.Calls = append(b.Calls, op)
	err := b.Failures[op.NodeID]
	outputs, custom := b.Outputs[op.NodeID]
	block := b.Block
	b.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if custom {
		return maps.Clone(outputs), nil
	}

	out := map[string]any{}
	if schema, ok := stacktheory.SchemaFor(op.Kind); ok && op.Operation != stacktheory.OperationDelete {
		for _, name := range schema.Outputs {
			out[name] = name + "-of-" + op.NodeID
		}
	}
	return out, nil
}

// CallIDs returns the node ids of every call in arrival order.
func (b *RecordingBackend) CallIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.Calls))
	for _, c := range b.Calls {
		out = append(out, c.NodeID)
	}
	return out
}

// Call returns the operation recorded for a node.
func (b *RecordingBackend) Call(nodeID string) (stacktheory.ProvisionOperation, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range b.Calls {
		if c.NodeID == nodeID {
			return c, true
		}
	}
	return stacktheory.ProvisionOperation{}, false
}
