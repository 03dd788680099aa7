package stacktheory

import (
	"context"

	"github.com/theory-cloud/stacktheory/pkg/observability"
)

// Planner turns a set of declared nodes plus prior state into a plan.
type Planner struct {
	logger observability.StructuredLogger
	clock  Clock
	ids    IDGenerator
	stack  string
}

type Option func(*Planner)

// New creates a planner.
func New(opts ...Option) *Planner {
	p := &Planner{
		logger: observability.NewNoOpLogger(),
		clock:  RealClock{},
		ids:    ULIDGenerator{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(p)
	}
	return p
}

func WithLogger(logger observability.StructuredLogger) Option {
	return func(p *Planner) {
		if logger == nil {
			p.logger = observability.NewNoOpLogger()
			return
		}
		p.logger = logger
	}
}

func WithClock(clock Clock) Option {
	return func(p *Planner) {
		if clock == nil {
			p.clock = RealClock{}
			return
		}
		p.clock = clock
	}
}

func WithIDGenerator(ids IDGenerator) Option {
	return func(p *Planner) {
		if ids == nil {
			p.ids = ULIDGenerator{}
			return
		}
		p.ids = ids
	}
}

// WithStackName labels emitted plans and log entries with a stack name.
func WithStackName(name string) Option {
	return func(p *Planner) {
		p.stack = name
	}
}

func (p *Planner) Clock() Clock { return p.clock }

func (p *Planner) IDs() IDGenerator { return p.ids }

func (p *Planner) Logger() observability.StructuredLogger { return p.logger }

func (p *Planner) StackName() string { return p.stack }

// Build registers nodes into a new graph and validates it.
func (p *Planner) Build(nodes []*Node) (*Graph, error) {
	g, err := NewGraphFrom(nodes)
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Plan builds, validates and emits a plan for nodes against prior state.
func (p *Planner) Plan(ctx context.Context, nodes []*Node, prior Prior) (*Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, err := p.Build(nodes)
	if err != nil {
		p.logFailure(err)
		return nil, err
	}
	p.logger.WithStack(p.stack).Debug("graph built", map[string]any{"nodes": g.Len()})
	return p.PlanGraph(ctx, g, prior)
}

// PlanGraph emits a plan for an already built graph.
func (p *Planner) PlanGraph(ctx context.Context, g *Graph, prior Prior) (*Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	edges, err := g.ResolveEdges()
	if err != nil {
		p.logFailure(err)
		return nil, err
	}
	p.logger.WithStack(p.stack).Debug("edges resolved", map[string]any{"edges": len(edges)})

	plan, err := Emit(g, prior)
	if err != nil {
		p.logFailure(err)
		return nil, err
	}
	plan.Stack = p.stack

	p.logger.WithStack(p.stack).Info("plan emitted", map[string]any{
		"nodes":  g.Len(),
		"groups": len(plan.Groups),
		"create": plan.Summary.Create,
		"update": plan.Summary.Update,
		"delete": plan.Summary.Delete,
	})
	return plan, nil
}

func (p *Planner) logFailure(err error) {
	p.logger.WithStack(p.stack).Error("planning failed", map[string]any{
		"error_code": ErrorCode(err),
		"error":      err.Error(),
	})
}
