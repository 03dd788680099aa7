package topology

import (
	"fmt"
	"math/big"
	"os"
	"slices"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	stacktheory "github.com/theory-cloud/stacktheory"
	"github.com/theory-cloud/stacktheory/pkg/config"
)

const (
	rootResource = "resource"
	rootConfig   = "config"
)

// LoadHCL reads a topology written as resource blocks:
//
//	resource "HostedZone" "zone" {
//	  zoneName = config.domain_name
//	}
//
//	resource "Certificate" "cert" {
//	  domainName = config.domain_name
//	  zoneId     = resource.zone.id
//	}
//
// resource.<id>.<output> traversals become references, config.<key>
// traversals read cfg, and nested blocks become nested property maps.
func LoadHCL(src []byte, filename string, cfg config.Config) ([]*stacktheory.Node, error) {
	file, diags := hclsyntax.ParseConfig(src, filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, diags
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected body type %T", filename, file.Body)
	}
	for _, attr := range body.Attributes {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Unexpected attribute",
			Detail:   fmt.Sprintf("Top-level attribute %q is not allowed; declare resource blocks.", attr.Name),
			Subject:  attr.NameRange.Ptr(),
		})
	}

	c := &hclConverter{cfg: cfg, ctx: configContext(cfg)}
	var nodes []*stacktheory.Node
	for _, block := range body.Blocks {
		if block.Type != rootResource || len(block.Labels) != 2 {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid block",
				Detail:   `Only blocks of the form resource "<Kind>" "<id>" are allowed.`,
				Subject:  block.DefRange().Ptr(),
			})
			continue
		}
		kind, err := stacktheory.ParseKind(block.Labels[0])
		if err != nil {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Unknown resource kind",
				Detail:   err.Error(),
				Subject:  block.LabelRanges[0].Ptr(),
			})
			continue
		}
		props, bodyDiags := c.body(block.Body)
		diags = append(diags, bodyDiags...)
		nodes = append(nodes, stacktheory.NewNode(block.Labels[1], kind, stacktheory.Properties(props)))
	}

	if diags.HasErrors() {
		return nil, diags
	}
	if err := c.missing.ErrorOrNil(); err != nil {
		return nil, err
	}
	return nodes, nil
}

func loadHCLFile(path string, cfg config.Config) ([]*stacktheory.Node, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology %s: %w", path, err)
	}
	return LoadHCL(src, path, cfg)
}

// configContext exposes every set configuration value as config.<key> for
// template expressions such as "www.${config.domain_name}".
func configContext(cfg config.Config) *hcl.EvalContext {
	values := map[string]cty.Value{}
	for key, value := range cfg.Values() {
		values[key] = cty.StringVal(value)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{rootConfig: cty.ObjectVal(values)},
	}
}

type hclConverter struct {
	cfg     config.Config
	ctx     *hcl.EvalContext
	missing *multierror.Error
}

func (c *hclConverter) body(body *hclsyntax.Body) (map[string]any, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	out := make(map[string]any, len(body.Attributes)+len(body.Blocks))

	names := make([]string, 0, len(body.Attributes))
	for name := range body.Attributes {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		v, d := c.expr(body.Attributes[name].Expr)
		diags = append(diags, d...)
		out[name] = v
	}

	// A block type used once becomes an object; repeated blocks become a
	// list in source order so references in every block survive.
	counts := map[string]int{}
	for _, block := range body.Blocks {
		counts[block.Type]++
	}
	for _, block := range body.Blocks {
		if _, clash := body.Attributes[block.Type]; clash {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate property",
				Detail:   fmt.Sprintf("%q is set both as an attribute and as a block.", block.Type),
				Subject:  block.TypeRange.Ptr(),
			})
			continue
		}
		nested, d := c.body(block.Body)
		diags = append(diags, d...)
		if counts[block.Type] == 1 {
			out[block.Type] = nested
			continue
		}
		list, _ := out[block.Type].([]any)
		out[block.Type] = append(list, nested)
	}
	return out, diags
}

func (c *hclConverter) expr(expr hclsyntax.Expression) (any, hcl.Diagnostics) {
	switch e := expr.(type) {
	case *hclsyntax.ScopeTraversalExpr:
		return c.traversal(e)

	case *hclsyntax.TemplateWrapExpr:
		return c.expr(e.Wrapped)

	case *hclsyntax.TupleConsExpr:
		var diags hcl.Diagnostics
		out := make([]any, 0, len(e.Exprs))
		for _, item := range e.Exprs {
			v, d := c.expr(item)
			diags = append(diags, d...)
			out = append(out, v)
		}
		return out, diags

	case *hclsyntax.ObjectConsExpr:
		var diags hcl.Diagnostics
		out := make(map[string]any, len(e.Items))
		for _, item := range e.Items {
			key, d := item.KeyExpr.Value(c.ctx)
			diags = append(diags, d...)
			if d.HasErrors() {
				continue
			}
			if key.IsNull() || !key.Type().Equals(cty.String) {
				diags = append(diags, &hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Invalid object key",
					Detail:   "Object keys must be strings.",
					Subject:  item.KeyExpr.Range().Ptr(),
				})
				continue
			}
			v, d := c.expr(item.ValueExpr)
			diags = append(diags, d...)
			out[key.AsString()] = v
		}
		return out, diags
	}

	val, diags := expr.Value(c.ctx)
	if diags.HasErrors() {
		return nil, diags
	}
	v, err := ctyToGo(val)
	if err != nil {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Unsupported value",
			Detail:   err.Error(),
			Subject:  expr.Range().Ptr(),
		})
	}
	return v, diags
}

func (c *hclConverter) traversal(e *hclsyntax.ScopeTraversalExpr) (any, hcl.Diagnostics) {
	names := make([]string, 0, len(e.Traversal))
	for _, step := range e.Traversal {
		switch s := step.(type) {
		case hcl.TraverseRoot:
			names = append(names, s.Name)
		case hcl.TraverseAttr:
			names = append(names, s.Name)
		default:
			// Index steps are not part of a reference.
			names = append(names, "")
		}
	}

	switch {
	case len(names) == 3 && names[0] == rootResource && names[1] != "" && names[2] != "":
		return stacktheory.RefTo(names[1], names[2]), nil
	case len(names) == 2 && names[0] == rootConfig && names[1] != "":
		v, ok := c.cfg.Lookup(names[1])
		if !ok {
			c.missing = multierror.Append(c.missing, &stacktheory.MissingConfigError{Key: names[1]})
			return nil, nil
		}
		return v, nil
	}

	return nil, hcl.Diagnostics{{
		Severity: hcl.DiagError,
		Summary:  "Invalid reference",
		Detail:   "Expected resource.<id>.<output> or config.<key>.",
		Subject:  e.Range().Ptr(),
	}}
}

func ctyToGo(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsWhollyKnown() {
		return nil, fmt.Errorf("value is not known")
	}

	t := v.Type()
	switch {
	case t.Equals(cty.String):
		return v.AsString(), nil
	case t.Equals(cty.Bool):
		return v.True(), nil
	case t.Equals(cty.Number):
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return int(i), nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	case t.IsListType() || t.IsTupleType() || t.IsSetType():
		out := []any{}
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			g, err := ctyToGo(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, g)
		}
		return out, nil
	case t.IsMapType() || t.IsObjectType():
		out := map[string]any{}
		for it := v.ElementIterator(); it.Next(); {
			k, elem := it.Element()
			g, err := ctyToGo(elem)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = g
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported type %s", t.FriendlyName())
}
