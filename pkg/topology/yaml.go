package topology

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	stacktheory "github.com/theory-cloud/stacktheory"
	"github.com/theory-cloud/stacktheory/pkg/config"
)

const (
	tagRef    = "!ref"
	tagConfig = "!config"
)

type yamlDocument struct {
	Resources []yamlResource `yaml:"resources"`
}

type yamlResource struct {
	ID         string    `yaml:"id"`
	Kind       string    `yaml:"kind"`
	Properties yaml.Node `yaml:"properties"`
}

// LoadYAML reads a topology document:
//
//	resources:
//	  - id: zone
//	    kind: HostedZone
//	    properties:
//	      zoneName: !config domain_name
//	  - id: cert
//	    kind: Certificate
//	    properties:
//	      domainName: !config domain_name
//	      zoneId: !ref zone.id
//
// Missing configuration values are reported together.
func LoadYAML(r io.Reader, cfg config.Config) ([]*stacktheory.Node, error) {
	var doc yamlDocument
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("parse topology: %w", err)
	}

	c := &yamlConverter{cfg: cfg}
	nodes := make([]*stacktheory.Node, 0, len(doc.Resources))
	for i, res := range doc.Resources {
		id := strings.TrimSpace(res.ID)
		if id == "" {
			c.fail(&stacktheory.ValidationError{NodeID: fmt.Sprintf("resources[%d]", i), Field: "id", Message: "is required"})
			continue
		}
		kind, err := stacktheory.ParseKind(res.Kind)
		if err != nil {
			c.fail(&stacktheory.ValidationError{NodeID: id, Field: "kind", Message: err.Error()})
			continue
		}

		props := stacktheory.Properties{}
		if res.Properties.Kind != 0 {
			v := c.convert(&res.Properties)
			m, ok := v.(map[string]any)
			if !ok && v != nil {
				c.fail(&stacktheory.ValidationError{NodeID: id, Field: "properties", Message: "must be a mapping"})
				continue
			}
			props = stacktheory.Properties(m)
		}
		nodes = append(nodes, stacktheory.NewNode(id, kind, props))
	}

	if err := c.errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return nodes, nil
}

func loadYAMLFile(path string, cfg config.Config) ([]*stacktheory.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open topology %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return LoadYAML(f, cfg)
}

type yamlConverter struct {
	cfg  config.Config
	errs *multierror.Error
}

func (c *yamlConverter) fail(err error) {
	c.errs = multierror.Append(c.errs, err)
}

func (c *yamlConverter) convert(n *yaml.Node) any {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil
		}
		return c.convert(n.Content[0])

	case yaml.AliasNode:
		return c.convert(n.Alias)

	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			out = append(out, c.convert(item))
		}
		return out

	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			out[n.Content[i].Value] = c.convert(n.Content[i+1])
		}
		return out

	case yaml.ScalarNode:
		switch n.Tag {
		case tagRef:
			ref, err := stacktheory.ParseRef(n.Value)
			if err != nil {
				c.fail(fmt.Errorf("line %d: %w", n.Line, err))
				return nil
			}
			return ref
		case tagConfig:
			v, ok := c.cfg.Lookup(n.Value)
			if !ok {
				c.fail(&stacktheory.MissingConfigError{Key: n.Value})
				return nil
			}
			return v
		}
		var v any
		if err := n.Decode(&v); err != nil {
			c.fail(fmt.Errorf("line %d: %w", n.Line, err))
			return nil
		}
		return v
	}
	return nil
}
