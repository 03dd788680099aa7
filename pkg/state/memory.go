package state

import (
	"context"
	"sync"
)

// MemoryStore keeps resources in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	stacks map[string]map[string]Resource
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stacks: map[string]map[string]Resource{}}
}

func (m *MemoryStore) Load(_ context.Context, stack string) ([]Resource, error) {
	if stack == "" {
		return nil, ErrStackRequired
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Resource, 0, len(m.stacks[stack]))
	for _, r := range m.stacks[stack] {
		out = append(out, r)
	}
	sortResources(out)
	return out, nil
}

func (m *MemoryStore) Put(_ context.Context, resource Resource) error {
	if resource.Stack == "" {
		return ErrStackRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stacks[resource.Stack] == nil {
		m.stacks[resource.Stack] = map[string]Resource{}
	}
	m.stacks[resource.Stack][resource.NodeID] = resource
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, stack, nodeID string) error {
	if stack == "" {
		return ErrStackRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.stacks[stack], nodeID)
	return nil
}
