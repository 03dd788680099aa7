package deploy

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"pgregory.net/rapid"

	stacktheory "github.com/theory-cloud/stacktheory"
)

func TestProperty_FailureNeverReachesDependents(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(t, "nodes")
		deps := make(map[string][]string, n)
		nodes := make([]*stacktheory.Node, 0, n)
		for i := range n {
			id := fmt.Sprintf("n%d", i)
			for j := range i {
				if rapid.Bool().Draw(t, fmt.Sprintf("edge_%d_%d", i, j)) {
					deps[id] = append(deps[id], fmt.Sprintf("n%d", j))
				}
			}
			nodes = append(nodes, secret(id, deps[id]...))
		}
		nodes = rapid.Permutation(nodes).Draw(t, "declaration")

		failing := map[string]bool{}
		for _, node := range nodes {
			if rapid.IntRange(0, 4).Draw(t, "fail_"+node.ID()) == 0 {
				failing[node.ID()] = true
			}
		}

		g, err := stacktheory.NewGraphFrom(nodes)
		if err != nil {
			t.Fatalf("NewGraphFrom failed: %v", err)
		}
		plan, err := stacktheory.Emit(g, nil)
		if err != nil {
			t.Fatalf("Emit failed: %v", err)
		}

		s := NewSession(plan)
		dispatched := map[string]bool{}
		for !s.Done() {
			ready := s.Ready()
			if len(ready) == 0 {
				t.Fatalf("session stalled")
			}
			for _, op := range ready {
				dispatched[op.NodeID] = true
				report := Report{Status: NodeSucceeded, Outputs: map[string]any{"arn": "arn-" + op.NodeID}}
				if failing[op.NodeID] {
					report = Report{Status: NodeFailed, Err: errors.New("boom")}
				}
				if err := s.Report(op.NodeID, report); err != nil {
					t.Fatalf("Report failed: %v", err)
				}
			}
		}

		results := map[string]Result{}
		for _, r := range s.Results() {
			results[r.NodeID] = r
		}
		for id := range failing {
			if !dispatched[id] {
				continue
			}
			downstream, err := g.TransitiveDependents(id)
			if err != nil {
				t.Fatalf("TransitiveDependents failed: %v", err)
			}
			for _, dep := range downstream {
				if dispatched[dep] {
					t.Fatalf("%s was provisioned although %s failed", dep, id)
				}
				r := results[dep]
				if r.Status != NodeSkipped || stacktheory.ErrorCode(r.Err) != stacktheory.ErrorCodeDependencyFailed {
					t.Fatalf("%s: expected skipped with dependency error, got %s %v", dep, r.Status, r.Err)
				}
			}
		}
		for id, r := range results {
			if r.Status != NodeSucceeded {
				continue
			}
			if i := slices.IndexFunc(deps[id], func(d string) bool { return results[d].Status != NodeSucceeded }); i >= 0 {
				t.Fatalf("%s succeeded although %s did not", id, deps[id][i])
			}
		}
	})
}
