package stacktheory

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Validate checks every node against its kind's schema and every reference
// against the graph. All problems are reported together.
func (g *Graph) Validate() error {
	var result *multierror.Error

	for _, id := range g.order {
		n := g.nodes[id]
		schema, ok := SchemaFor(n.kind)
		if !ok {
			result = multierror.Append(result, &ValidationError{
				NodeID:  id,
				Field:   "kind",
				Message: fmt.Sprintf("unknown kind %q", n.kind),
			})
			continue
		}
		for _, field := range schema.Required {
			if isBlank(n.properties[field]) {
				result = multierror.Append(result, &ValidationError{
					NodeID:  id,
					Field:   field,
					Message: "required property is missing",
				})
			}
		}
		for _, ref := range n.Refs() {
			target, exists := g.nodes[ref.Node]
			if !exists {
				result = multierror.Append(result, &UnresolvedReferenceError{From: id, Ref: ref, Reason: reasonNodeNotDeclared})
				continue
			}
			if targetSchema, ok := SchemaFor(target.kind); ok && !targetSchema.HasOutput(ref.Output) {
				result = multierror.Append(result, &UnresolvedReferenceError{
					From:   id,
					Ref:    ref,
					Reason: fmt.Sprintf("%s does not produce output %q", target.kind, ref.Output),
				})
			}
		}
	}

	return result.ErrorOrNil()
}

func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case []Ref:
		return len(val) == 0
	case []string:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}
