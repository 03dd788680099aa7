package stacktheory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// Emit walks the graph in dependency order and produces a plan. References
// resolve to outputs recorded on the graph, then to outputs recorded in
// prior, and otherwise to Unknown placeholders. Resources present in prior
// but absent from the graph are deleted after every create and update,
// dependents first.
func Emit(g *Graph, prior Prior) (*Plan, error) {
	depth, ordered, err := g.depths()
	if err != nil {
		return nil, err
	}

	plan := &Plan{Operations: make([]ProvisionOperation, 0, len(ordered))}
	known := make(map[string]map[string]any, len(ordered))

	for _, id := range ordered {
		n := g.nodes[id]
		resolved, err := ResolveProperties(n.properties, func(ref Ref) (any, error) {
			outputs, ok := known[ref.Node]
			if !ok {
				return nil, &UnresolvedReferenceError{From: id, Ref: ref, Reason: reasonNodeNotPlanned}
			}
			v, ok := outputs[ref.Output]
			if !ok {
				return nil, &UnresolvedReferenceError{
					From:   id,
					Ref:    ref,
					Reason: fmt.Sprintf("%s does not produce output %q", g.nodes[ref.Node].kind, ref.Output),
				}
			}
			return cloneValue(v), nil
		})
		if err != nil {
			return nil, err
		}

		op := OperationCreate
		prev, existed := prior[id]
		if existed {
			if prev.Kind != n.kind {
				return nil, &ValidationError{
					NodeID:  id,
					Field:   "kind",
					Message: fmt.Sprintf("kind changed from %s to %s", prev.Kind, n.kind),
				}
			}
			op = OperationUpdate
			plan.Summary.Update++
		} else {
			plan.Summary.Create++
		}

		plan.Operations = append(plan.Operations, ProvisionOperation{
			Operation:          op,
			NodeID:             id,
			Kind:               n.kind,
			ResolvedProperties: resolved,
			DependsOn:          slices.Clone(g.deps[id]),
			Level:              depth[id],
		})

		reuse := existed && !ContainsUnknown(resolved) && sameJSON(resolved, prev.Properties)
		known[id] = plannedOutputs(n, prev, reuse)
	}

	plan.Groups = groupByDepth(g.order, depth)

	deletes, err := emitDeletes(g, prior, len(plan.Groups))
	if err != nil {
		return nil, err
	}
	for _, op := range deletes {
		plan.Operations = append(plan.Operations, op)
		plan.Summary.Delete++
		for len(plan.Groups) <= op.Level {
			plan.Groups = append(plan.Groups, nil)
		}
		plan.Groups[op.Level] = append(plan.Groups[op.Level], op.NodeID)
	}

	return plan, nil
}

// plannedOutputs is the output table later nodes resolve against while the
// plan is emitted. Recorded outputs win; prior outputs are reused only when
// the node's properties are unchanged.
func plannedOutputs(n *Node, prev PriorResource, reusePrior bool) map[string]any {
	out := map[string]any{}
	if schema, ok := SchemaFor(n.kind); ok {
		for _, name := range schema.Outputs {
			if v, ok := n.outputs[name]; ok {
				out[name] = v
				continue
			}
			if reusePrior {
				if v, ok := prev.Outputs[name]; ok {
					out[name] = v
					continue
				}
			}
			out[name] = Unknown{Node: n.id, Output: name}
		}
	}
	for name, v := range n.outputs {
		out[name] = v
	}
	return out
}

func emitDeletes(g *Graph, prior Prior, baseLevel int) ([]ProvisionOperation, error) {
	var ids []string
	for _, id := range sortedKeys(prior) {
		if _, ok := g.nodes[id]; !ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	// A resource is deleted only after every deleted resource that depended
	// on it.
	blockers := make(map[string][]string, len(ids))
	for _, id := range ids {
		for _, other := range ids {
			if slices.Contains(prior[other].Dependencies, id) && other != id {
				blockers[id] = append(blockers[id], other)
			}
		}
	}

	order, err := topoSort(ids, func(id string) []string { return blockers[id] })
	if err != nil {
		return nil, err
	}

	level := make(map[string]int, len(order))
	ops := make([]ProvisionOperation, 0, len(order))
	for _, id := range order {
		d := 0
		for _, b := range blockers[id] {
			if level[b]+1 > d {
				d = level[b] + 1
			}
		}
		level[id] = d
		prev := prior[id]
		ops = append(ops, ProvisionOperation{
			Operation:          OperationDelete,
			NodeID:             id,
			Kind:               prev.Kind,
			ResolvedProperties: Properties(cloneMap(prev.Properties)),
			DependsOn:          slices.Clone(blockers[id]),
			Level:              baseLevel + d,
		})
	}
	return ops, nil
}

func sameJSON(a, b any) bool {
	left, err := json.Marshal(a)
	if err != nil {
		return false
	}
	right, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(left, right)
}
