package deploy

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	stacktheory "github.com/theory-cloud/stacktheory"
)

// NodeStatus is the provisioning state of one operation.
type NodeStatus string

const (
	NodePending      NodeStatus = "pending"
	NodeProvisioning NodeStatus = "provisioning"
	NodeSucceeded    NodeStatus = "succeeded"
	NodeFailed       NodeStatus = "failed"
	NodeSkipped      NodeStatus = "skipped"
)

func (s NodeStatus) terminal() bool {
	return s == NodeSucceeded || s == NodeFailed || s == NodeSkipped
}

// Report is what a backend returns for one dispatched operation.
type Report struct {
	Status  NodeStatus
	Outputs map[string]any
	Err     error
}

// Result is the final record of one operation.
type Result struct {
	NodeID     string                 `json:"node_id"`
	Operation  stacktheory.Operation  `json:"operation"`
	Kind       stacktheory.Kind       `json:"kind"`
	Status     NodeStatus             `json:"status"`
	Properties stacktheory.Properties `json:"properties,omitempty"`
	Outputs    map[string]any         `json:"outputs,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Err        error                  `json:"-"`
}

var (
	ErrUnknownNode   = errors.New("deploy: node is not part of the plan")
	ErrNotDispatched = errors.New("deploy: node was not dispatched")
	ErrInvalidReport = errors.New("deploy: report status must be succeeded or failed")
)

type entry struct {
	op       stacktheory.ProvisionOperation
	status   NodeStatus
	resolved stacktheory.Properties
	outputs  map[string]any
	err      error
}

// Session tracks the provisioning of a plan as reports arrive. It decides
// which operations are ready, re-resolves their references against the
// outputs reported so far, and skips everything downstream of a failure.
// A Session is safe for concurrent use.
type Session struct {
	mu      sync.Mutex
	order   []string
	entries map[string]*entry
	waiters map[string][]string
	pending int
	changes int

	rejected []Result
}

func NewSession(plan *stacktheory.Plan) *Session {
	s := &Session{
		entries: map[string]*entry{},
		waiters: map[string][]string{},
	}
	if plan == nil {
		return s
	}
	for _, op := range plan.Operations {
		if _, dup := s.entries[op.NodeID]; dup {
			continue
		}
		s.order = append(s.order, op.NodeID)
		s.entries[op.NodeID] = &entry{op: op, status: NodePending}
		s.pending++
		if op.Operation != stacktheory.OperationDelete {
			s.changes++
		}
	}
	for _, id := range s.order {
		for _, dep := range s.entries[id].op.DependsOn {
			if _, ok := s.entries[dep]; ok {
				s.waiters[dep] = append(s.waiters[dep], id)
			}
		}
	}
	return s
}

// Ready returns, in plan order, the operations whose prerequisites have all
// succeeded and marks them provisioning. Their ResolvedProperties carry the
// actual outputs of their dependencies. Deletes become ready only once every
// create and update is terminal.
func (s *Session) Ready() []stacktheory.ProvisionOperation {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []stacktheory.ProvisionOperation
	for _, id := range s.order {
		e := s.entries[id]
		if e.status != NodePending || !s.prerequisitesMet(e) {
			continue
		}

		resolved, err := stacktheory.FillUnknowns(e.op.ResolvedProperties, func(ref stacktheory.Ref) (any, error) {
			dep, ok := s.entries[ref.Node]
			if !ok || dep.status != NodeSucceeded {
				return nil, &stacktheory.UnresolvedReferenceError{From: id, Ref: ref, Reason: "node has not been provisioned"}
			}
			v, ok := dep.outputs[ref.Output]
			if !ok {
				return nil, &stacktheory.UnresolvedReferenceError{From: id, Ref: ref, Reason: "output was not reported"}
			}
			return v, nil
		})
		if err != nil {
			s.finish(e, NodeFailed, nil, err)
			s.rejected = append(s.rejected, Result{
				NodeID:    id,
				Operation: e.op.Operation,
				Kind:      e.op.Kind,
				Status:    NodeFailed,
				Error:     err.Error(),
				Err:       err,
			})
			continue
		}

		e.status = NodeProvisioning
		e.resolved = resolved
		op := e.op
		op.ResolvedProperties = resolved
		out = append(out, op)
	}
	return out
}

// Rejected returns, and forgets, the operations Ready failed without
// dispatching because a reference could not be filled.
func (s *Session) Rejected() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.rejected
	s.rejected = nil
	return out
}

func (s *Session) prerequisitesMet(e *entry) bool {
	if e.op.Operation == stacktheory.OperationDelete && s.changes > 0 {
		return false
	}
	for _, dep := range e.op.DependsOn {
		if d, ok := s.entries[dep]; ok && d.status != NodeSucceeded {
			return false
		}
	}
	return true
}

// Report records the terminal status of a dispatched operation.
func (s *Session) Report(nodeID string, r Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[nodeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, nodeID)
	}
	if e.status != NodeProvisioning {
		return fmt.Errorf("%w: %s is %s", ErrNotDispatched, nodeID, e.status)
	}

	switch r.Status {
	case NodeSucceeded:
		s.finish(e, NodeSucceeded, r.Outputs, nil)
	case NodeFailed:
		cause := r.Err
		if cause == nil {
			cause = errors.New("provisioning failed")
		}
		s.finish(e, NodeFailed, nil, cause)
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidReport, r.Status)
	}
	return nil
}

// Abort fails every operation that has not reached a terminal status.
func (s *Session) Abort(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		if e := s.entries[id]; !e.status.terminal() {
			s.finish(e, NodeFailed, nil, cause)
		}
	}
}

// finish moves e to a terminal status. A failure skips every operation that
// waits on e directly or transitively, and a failed create or update skips
// every pending delete.
func (s *Session) finish(e *entry, status NodeStatus, outputs map[string]any, err error) {
	if !s.settle(e, status, outputs, err) || status == NodeSucceeded {
		return
	}

	failedID := e.op.NodeID
	skip := func(id string) {
		s.settle(s.entries[id], NodeSkipped, nil, &stacktheory.DependencyFailedError{NodeID: id, Dependency: failedID, Cause: err})
	}

	queue := slices.Clone(s.waiters[failedID])
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if s.entries[id].status != NodePending {
			continue
		}
		skip(id)
		queue = append(queue, s.waiters[id]...)
	}

	if e.op.Operation != stacktheory.OperationDelete {
		for _, id := range s.order {
			w := s.entries[id]
			if w.op.Operation == stacktheory.OperationDelete && w.status == NodePending {
				skip(id)
			}
		}
	}
}

func (s *Session) settle(e *entry, status NodeStatus, outputs map[string]any, err error) bool {
	if e.status.terminal() {
		return false
	}
	e.status = status
	e.outputs = outputs
	e.err = err
	s.pending--
	if e.op.Operation != stacktheory.OperationDelete {
		s.changes--
	}
	return true
}

// Status returns the current status of a node.
func (s *Session) Status(nodeID string) (NodeStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[nodeID]
	if !ok {
		return "", false
	}
	return e.status, true
}

// Outputs returns the outputs reported for a succeeded node.
func (s *Session) Outputs(nodeID string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[nodeID]
	if !ok || e.status != NodeSucceeded {
		return nil, false
	}
	return e.outputs, true
}

// Done reports whether every operation is terminal.
func (s *Session) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending == 0
}

// Succeeded reports whether every operation succeeded.
func (s *Session) Succeeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.status != NodeSucceeded {
			return false
		}
	}
	return true
}

// Results returns one result per operation in plan order.
func (s *Session) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Result, 0, len(s.order))
	for _, id := range s.order {
		e := s.entries[id]
		props := e.resolved
		if props == nil {
			props = e.op.ResolvedProperties
		}
		r := Result{
			NodeID:     id,
			Operation:  e.op.Operation,
			Kind:       e.op.Kind,
			Status:     e.status,
			Properties: props,
			Outputs:    e.outputs,
			Err:        e.err,
		}
		if e.err != nil {
			r.Error = e.err.Error()
		}
		out = append(out, r)
	}
	return out
}
