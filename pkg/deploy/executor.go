package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	stacktheory "github.com/theory-cloud/stacktheory"
	"github.com/theory-cloud/stacktheory/pkg/notify"
	"github.com/theory-cloud/stacktheory/pkg/observability"
	"github.com/theory-cloud/stacktheory/pkg/sanitization"
	"github.com/theory-cloud/stacktheory/pkg/state"
)

// Backend performs one provisioning operation and returns the outputs the
// resource produced.
type Backend interface {
	Provision(ctx context.Context, op stacktheory.ProvisionOperation) (map[string]any, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, op stacktheory.ProvisionOperation) (map[string]any, error)

func (f BackendFunc) Provision(ctx context.Context, op stacktheory.ProvisionOperation) (map[string]any, error) {
	return f(ctx, op)
}

const DefaultConcurrency = 4

// ErrDeploymentFailed wraps the aggregated node failures of a deployment.
var ErrDeploymentFailed = errors.New("deploy: deployment failed")

// Executor runs plans against a Backend.
type Executor struct {
	backend     Backend
	store       state.Store
	publisher   notify.Publisher
	logger      observability.StructuredLogger
	clock       stacktheory.Clock
	ids         stacktheory.IDGenerator
	concurrency int
}

type ExecutorOption func(*Executor)

func NewExecutor(backend Backend, opts ...ExecutorOption) *Executor {
	e := &Executor{
		backend:     backend,
		publisher:   notify.NopPublisher{},
		logger:      observability.NewNoOpLogger(),
		clock:       stacktheory.RealClock{},
		ids:         stacktheory.ULIDGenerator{},
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(e)
	}
	return e
}

// WithStore persists the state of every successful operation.
func WithStore(store state.Store) ExecutorOption {
	return func(e *Executor) {
		e.store = store
	}
}

func WithPublisher(p notify.Publisher) ExecutorOption {
	return func(e *Executor) {
		if p == nil {
			p = notify.NopPublisher{}
		}
		e.publisher = p
	}
}

func WithLogger(logger observability.StructuredLogger) ExecutorOption {
	return func(e *Executor) {
		if logger == nil {
			logger = observability.NewNoOpLogger()
		}
		e.logger = logger
	}
}

func WithClock(clock stacktheory.Clock) ExecutorOption {
	return func(e *Executor) {
		if clock == nil {
			clock = stacktheory.RealClock{}
		}
		e.clock = clock
	}
}

func WithIDGenerator(ids stacktheory.IDGenerator) ExecutorOption {
	return func(e *Executor) {
		if ids == nil {
			ids = stacktheory.ULIDGenerator{}
		}
		e.ids = ids
	}
}

// WithConcurrency bounds the number of operations in flight. Values below
// one fall back to DefaultConcurrency.
func WithConcurrency(n int) ExecutorOption {
	return func(e *Executor) {
		if n < 1 {
			n = DefaultConcurrency
		}
		e.concurrency = n
	}
}

type completion struct {
	op      stacktheory.ProvisionOperation
	outputs map[string]any
	err     error
}

// Execute provisions every operation of plan, dispatching independent
// operations concurrently. The returned deployment carries one result per
// operation; a non-nil error wraps ErrDeploymentFailed together with every
// node failure.
func (e *Executor) Execute(ctx context.Context, plan *stacktheory.Plan) (*Deployment, error) {
	if e.backend == nil {
		return nil, errors.New("deploy: backend is required")
	}
	if plan == nil {
		return nil, errors.New("deploy: plan is required")
	}

	d := NewDeployment(e.ids.NewID(), plan.Stack)
	d.Plan = plan
	d.StartedAt = e.clock.Now().UTC()
	log := e.logger.WithDeploymentID(d.ID).WithStack(d.Stack)

	if err := d.Transition(StatusPlanned); err != nil {
		return nil, err
	}
	if err := d.Transition(StatusProvisioning); err != nil {
		return nil, err
	}
	log.Info("deployment started", map[string]any{
		"operations":  len(plan.Operations),
		"concurrency": e.concurrency,
	})
	e.publish(ctx, log, d, notify.StatusStarted, "", "", "")

	session := NewSession(plan)
	done := make(chan completion)
	inflight := 0
	var queue []stacktheory.ProvisionOperation

	for {
		if ctx.Err() == nil {
			queue = append(queue, session.Ready()...)
			for _, r := range session.Rejected() {
				e.failed(ctx, log, d, r.NodeID, r.Operation, r.Err)
			}
		}
		for ctx.Err() == nil && len(queue) > 0 && inflight < e.concurrency {
			op := queue[0]
			queue = queue[1:]
			inflight++
			log.WithNodeID(op.NodeID).Debug("provisioning", map[string]any{
				"operation":  string(op.Operation),
				"kind":       string(op.Kind),
				"properties": sanitization.SanitizeProperties(op.ResolvedProperties),
			})
			go func() {
				outputs, err := e.backend.Provision(ctx, op)
				done <- completion{op: op, outputs: outputs, err: err}
			}()
		}
		if inflight == 0 {
			break
		}

		c := <-done
		inflight--
		e.complete(ctx, log, d, session, c)
	}

	if err := ctx.Err(); err != nil {
		session.Abort(err)
	} else if !session.Done() {
		session.Abort(errors.New("deploy: operations could not be scheduled"))
	}

	d.Results = session.Results()
	d.FinishedAt = e.clock.Now().UTC()

	var failures *multierror.Error
	for _, r := range d.Results {
		switch r.Status {
		case NodeSkipped:
			log.WithNodeID(r.NodeID).Warn("skipped", map[string]any{"error": r.Error})
			e.publish(ctx, log, d, notify.StatusSkipped, r.NodeID, string(r.Operation), r.Error)
			failures = multierror.Append(failures, r.Err)
		case NodeFailed:
			failures = multierror.Append(failures, r.Err)
		}
	}

	if failures != nil {
		_ = d.Transition(StatusFailed)
		log.Error("deployment failed", map[string]any{
			"failed":     len(failures.Errors),
			"error_code": stacktheory.ErrorCode(failures),
		})
		e.publish(context.WithoutCancel(ctx), log, d, notify.StatusFailed, "", "", failures.Error())
		return d, fmt.Errorf("%w: %w", ErrDeploymentFailed, failures)
	}

	_ = d.Transition(StatusDone)
	log.Info("deployment finished", map[string]any{
		"operations": len(d.Results),
		"duration":   d.FinishedAt.Sub(d.StartedAt).String(),
	})
	e.publish(ctx, log, d, notify.StatusCompleted, "", "", "")
	return d, nil
}

func (e *Executor) complete(ctx context.Context, log observability.StructuredLogger, d *Deployment, session *Session, c completion) {
	nodeLog := log.WithNodeID(c.op.NodeID)
	err := c.err
	if err == nil {
		err = e.persist(ctx, d, c)
	}

	if err != nil {
		if rerr := session.Report(c.op.NodeID, Report{Status: NodeFailed, Err: err}); rerr != nil {
			nodeLog.Error("report rejected", map[string]any{"error": rerr.Error()})
		}
		e.failed(ctx, log, d, c.op.NodeID, c.op.Operation, err)
		return
	}

	if rerr := session.Report(c.op.NodeID, Report{Status: NodeSucceeded, Outputs: c.outputs}); rerr != nil {
		nodeLog.Error("report rejected", map[string]any{"error": rerr.Error()})
		return
	}
	nodeLog.Info("provisioned", map[string]any{
		"operation": string(c.op.Operation),
		"outputs":   len(c.outputs),
	})
	e.publish(ctx, log, d, notify.StatusSucceeded, c.op.NodeID, string(c.op.Operation), "")
}

func (e *Executor) failed(ctx context.Context, log observability.StructuredLogger, d *Deployment, nodeID string, op stacktheory.Operation, err error) {
	log.WithNodeID(nodeID).Error("provisioning failed", map[string]any{
		"operation":  string(op),
		"error":      err.Error(),
		"error_code": stacktheory.ErrorCode(err),
	})
	e.publish(ctx, log, d, notify.StatusFailed, nodeID, string(op), err.Error())
}

func (e *Executor) persist(ctx context.Context, d *Deployment, c completion) error {
	if e.store == nil || d.Stack == "" {
		return nil
	}
	if c.op.Operation == stacktheory.OperationDelete {
		if err := e.store.Delete(ctx, d.Stack, c.op.NodeID); err != nil {
			return fmt.Errorf("record deletion: %w", err)
		}
		return nil
	}
	r := state.FromOperation(d.Stack, d.ID, c.op, c.outputs, e.clock.Now())
	if err := e.store.Put(ctx, r); err != nil {
		return fmt.Errorf("record state: %w", err)
	}
	return nil
}

func (e *Executor) publish(ctx context.Context, log observability.StructuredLogger, d *Deployment, status, nodeID, operation, message string) {
	err := e.publisher.Publish(ctx, notify.Event{
		DeploymentID: d.ID,
		Stack:        d.Stack,
		Status:       status,
		NodeID:       nodeID,
		Operation:    operation,
		Message:      message,
		Timestamp:    e.clock.Now().UTC(),
	})
	if err != nil {
		log.Warn("notification failed", map[string]any{"error": err.Error(), "status": status})
	}
}

// ProvisionTimeout bounds a backend call when the caller sets no deadline.
func ProvisionTimeout(backend Backend, timeout time.Duration) Backend {
	return BackendFunc(func(ctx context.Context, op stacktheory.ProvisionOperation) (map[string]any, error) {
		if _, ok := ctx.Deadline(); ok || timeout <= 0 {
			return backend.Provision(ctx, op)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return backend.Provision(ctx, op)
	})
}
