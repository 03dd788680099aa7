package stacktheory

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Properties holds a node's declared configuration. Values are literals
// (strings, numbers, bools, nil), nested []any / map[string]any, or Ref
// values pointing at another node's output.
type Properties map[string]any

// Ref is a symbolic pointer to an output of another node. Refs are the only
// source of dependency edges.
type Ref struct {
	Node   string `json:"node"`
	Output string `json:"output"`
}

// RefTo builds a Ref to output of node.
func RefTo(node, output string) Ref {
	return Ref{Node: node, Output: output}
}

// ParseRef parses the "node.output" form. Node ids may contain dots; the
// output name is everything after the last one.
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	idx := strings.LastIndex(s, ".")
	if idx <= 0 || idx == len(s)-1 {
		return Ref{}, fmt.Errorf("invalid reference %q: expected node.output", s)
	}
	return Ref{Node: s[:idx], Output: s[idx+1:]}, nil
}

func (r Ref) String() string {
	return r.Node + "." + r.Output
}

// Unknown stands in for an output that does not exist until its node is
// provisioned.
type Unknown struct {
	Node   string
	Output string
}

func (u Unknown) String() string {
	return "${" + u.Node + "." + u.Output + "}"
}

func (u Unknown) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// Ref returns the reference the placeholder was produced for.
func (u Unknown) Ref() Ref {
	return Ref{Node: u.Node, Output: u.Output}
}

// walkRefs calls fn for every Ref in v, visiting map keys in sorted order.
func walkRefs(v any, fn func(Ref)) {
	switch val := v.(type) {
	case Ref:
		fn(val)
	case *Ref:
		if val != nil {
			fn(*val)
		}
	case []Ref:
		for _, r := range val {
			fn(r)
		}
	case []any:
		for _, item := range val {
			walkRefs(item, fn)
		}
	case map[string]any:
		for _, k := range sortedKeys(val) {
			walkRefs(val[k], fn)
		}
	case Properties:
		for _, k := range sortedKeys(val) {
			walkRefs(val[k], fn)
		}
	}
}

// resolveValue returns a deep copy of v with every Ref replaced by the
// result of lookup.
func resolveValue(v any, lookup func(Ref) (any, error)) (any, error) {
	switch val := v.(type) {
	case Ref:
		return lookup(val)
	case *Ref:
		if val == nil {
			return nil, nil
		}
		return lookup(*val)
	case []Ref:
		out := make([]any, 0, len(val))
		for _, r := range val {
			resolved, err := lookup(r)
			if err != nil {
				return nil, err
			}
			out = append(out, resolved)
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			resolved, err := resolveValue(item, lookup)
			if err != nil {
				return nil, err
			}
			out = append(out, resolved)
		}
		return out, nil
	case map[string]any:
		return resolveMap(val, lookup)
	case Properties:
		out, err := resolveMap(val, lookup)
		if err != nil {
			return nil, err
		}
		return Properties(out), nil
	default:
		return cloneValue(v), nil
	}
}

func resolveMap(in map[string]any, lookup func(Ref) (any, error)) (map[string]any, error) {
	out := make(map[string]any, len(in))
	for _, k := range sortedKeys(in) {
		resolved, err := resolveValue(in[k], lookup)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

// ResolveProperties returns a copy of props with every Ref replaced by the
// value lookup yields for it.
func ResolveProperties(props Properties, lookup func(Ref) (any, error)) (Properties, error) {
	if props == nil {
		return Properties{}, nil
	}
	out, err := resolveMap(props, lookup)
	if err != nil {
		return nil, err
	}
	return Properties(out), nil
}

// FillUnknowns returns a copy of props with every Unknown placeholder
// replaced by the value lookup yields for its reference.
func FillUnknowns(props Properties, lookup func(Ref) (any, error)) (Properties, error) {
	out, err := fillUnknowns(map[string]any(props), lookup)
	if err != nil {
		return nil, err
	}
	m, _ := out.(map[string]any)
	return Properties(m), nil
}

func fillUnknowns(v any, lookup func(Ref) (any, error)) (any, error) {
	switch val := v.(type) {
	case Unknown:
		return lookup(val.Ref())
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			filled, err := fillUnknowns(item, lookup)
			if err != nil {
				return nil, err
			}
			out = append(out, filled)
		}
		return out, nil
	case Properties:
		return fillUnknowns(map[string]any(val), lookup)
	case map[string]any:
		if val == nil {
			return map[string]any{}, nil
		}
		out := make(map[string]any, len(val))
		for _, k := range sortedKeys(val) {
			filled, err := fillUnknowns(val[k], lookup)
			if err != nil {
				return nil, err
			}
			out[k] = filled
		}
		return out, nil
	default:
		return cloneValue(v), nil
	}
}

// ContainsUnknown reports whether v holds an Unknown placeholder anywhere.
func ContainsUnknown(v any) bool {
	switch val := v.(type) {
	case Unknown:
		return true
	case []any:
		for _, item := range val {
			if ContainsUnknown(item) {
				return true
			}
		}
	case map[string]any:
		for _, item := range val {
			if ContainsUnknown(item) {
				return true
			}
		}
	case Properties:
		for _, item := range val {
			if ContainsUnknown(item) {
				return true
			}
		}
	}
	return false
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []Ref:
		return append([]Ref(nil), val...)
	case []string:
		return append([]string(nil), val...)
	case map[string]any:
		return cloneMap(val)
	case Properties:
		return Properties(cloneMap(val))
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, item := range val {
			out[k] = item
		}
		return out
	default:
		return v
	}
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}
