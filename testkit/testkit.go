package testkit

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	stacktheory "github.com/theory-cloud/stacktheory"
	"github.com/theory-cloud/stacktheory/pkg/deploy"
	"github.com/theory-cloud/stacktheory/pkg/observability"
)

// Env is a deterministic local test environment for planning and deploying
// stacks.
type Env struct {
	Clock  *ManualClock
	IDs    *ManualIDGenerator
	Logger *observability.TestLogger
}

func New() *Env {
	return NewWithTime(time.Unix(0, 0).UTC())
}

func NewWithTime(now time.Time) *Env {
	return &Env{
		Clock:  NewManualClock(now),
		IDs:    NewManualIDGenerator(),
		Logger: observability.NewTestLogger(),
	}
}

// Planner returns a planner wired to the environment's clock, ids and logger.
func (e *Env) Planner(opts ...stacktheory.Option) *stacktheory.Planner {
	combined := make([]stacktheory.Option, 0, len(opts)+3)
	combined = append(combined,
		stacktheory.WithClock(e.Clock),
		stacktheory.WithIDGenerator(e.IDs),
		stacktheory.WithLogger(e.Logger),
	)
	combined = append(combined, opts...)
	return stacktheory.New(combined...)
}

// Executor returns an executor wired to the environment's clock, ids and
// logger.
func (e *Env) Executor(backend deploy.Backend, opts ...deploy.ExecutorOption) *deploy.Executor {
	combined := make([]deploy.ExecutorOption, 0, len(opts)+3)
	combined = append(combined,
		deploy.WithClock(e.Clock),
		deploy.WithIDGenerator(e.IDs),
		deploy.WithLogger(e.Logger),
	)
	combined = append(combined, opts...)
	return deploy.NewExecutor(backend, combined...)
}

// ManualClock is a deterministic, mutable clock for tests.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ stacktheory.Clock = (*ManualClock)(nil)

func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	out := c.now
	c.mu.Unlock()
	return out
}

// ManualIDGenerator hands out queued ids first, then "<prefix>-<n>".
type ManualIDGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int64
	queue  []string
}

var _ stacktheory.IDGenerator = (*ManualIDGenerator)(nil)

func NewManualIDGenerator() *ManualIDGenerator {
	return &ManualIDGenerator{prefix: "deploy", next: 1}
}

func (g *ManualIDGenerator) Queue(ids ...string) {
	g.mu.Lock()
	g.queue = append(g.queue, ids...)
	g.mu.Unlock()
}

func (g *ManualIDGenerator) Reset() {
	g.mu.Lock()
	g.queue = nil
	g.next = 1
	g.mu.Unlock()
}

func (g *ManualIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.queue) > 0 {
		out := g.queue[0]
		g.queue = g.queue[1:]
		return out
	}

	out := fmt.Sprintf("%s-%s", g.prefix, strconv.FormatInt(g.next, 10))
	g.next++
	return out
}
