package deploy_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	stacktheory "github.com/theory-cloud/stacktheory"
	"github.com/theory-cloud/stacktheory/pkg/deploy"
	"github.com/theory-cloud/stacktheory/pkg/notify"
	"github.com/theory-cloud/stacktheory/pkg/state"
	"github.com/theory-cloud/stacktheory/testkit"
)

type eventLog struct {
	mu     sync.Mutex
	events []notify.Event
}

func (l *eventLog) Publish(_ context.Context, e notify.Event) error {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
	return nil
}

func (l *eventLog) statuses(nodeID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.events {
		if e.NodeID == nodeID {
			out = append(out, e.Status)
		}
	}
	return out
}

func site(t *testing.T, env *testkit.Env, prior stacktheory.Prior) *stacktheory.Plan {
	t.Helper()
	nodes := []*stacktheory.Node{
		stacktheory.NewNode("zone", stacktheory.KindHostedZone, stacktheory.Properties{"zoneName": "example.com"}),
		stacktheory.NewNode("cert", stacktheory.KindCertificate, stacktheory.Properties{
			"domainName": "example.com",
			"zoneId":     stacktheory.RefTo("zone", "id"),
		}),
		stacktheory.NewNode("bucket", stacktheory.KindBucket, stacktheory.Properties{"bucketName": "site"}),
		stacktheory.NewNode("cdn", stacktheory.KindDistribution, stacktheory.Properties{
			"origins":     []any{stacktheory.RefTo("bucket", "regionalDomainName")},
			"certificate": stacktheory.RefTo("cert", "arn"),
		}),
	}
	plan, err := env.Planner(stacktheory.WithStackName("site-dev")).Plan(context.Background(), nodes, prior)
	require.NoError(t, err)
	return plan
}

func TestExecutor_ProvisionsInDependencyOrder(t *testing.T) {
	env := testkit.New()
	env.IDs.Queue("dep-1")
	backend := testkit.NewRecordingBackend()
	store := state.NewMemoryStore()
	events := &eventLog{}

	d, err := env.Executor(backend,
		deploy.WithStore(store),
		deploy.WithPublisher(events),
		deploy.WithConcurrency(2),
	).Execute(context.Background(), site(t, env, nil))
	require.NoError(t, err)
	require.Equal(t, deploy.StatusDone, d.Status)
	require.Equal(t, "dep-1", d.ID)
	require.Len(t, d.Results, 4)
	require.Empty(t, d.Failed())

	calls := backend.CallIDs()
	pos := map[string]int{}
	for i, id := range calls {
		pos[id] = i
	}
	require.Less(t, pos["zone"], pos["cert"])
	require.Less(t, pos["cert"], pos["cdn"])
	require.Less(t, pos["bucket"], pos["cdn"])

	cdn, ok := backend.Call("cdn")
	require.True(t, ok)
	require.Equal(t, []any{"regionalDomainName-of-bucket"}, cdn.ResolvedProperties["origins"])
	require.Equal(t, "arn-of-cert", cdn.ResolvedProperties["certificate"])

	stored, err := store.Load(context.Background(), "site-dev")
	require.NoError(t, err)
	require.Len(t, stored, 4)
	require.Equal(t, "dep-1", stored[0].DeploymentID)

	require.Equal(t, []string{notify.StatusSucceeded}, events.statuses("cdn"))
	all := events.statuses("")
	require.Equal(t, []string{notify.StatusStarted, notify.StatusCompleted}, all)
}

func TestExecutor_FailureSkipsDependents(t *testing.T) {
	env := testkit.New()
	backend := testkit.NewRecordingBackend()
	backend.Fail("cert", errors.New("validation timed out"))
	store := state.NewMemoryStore()
	events := &eventLog{}

	d, err := env.Executor(backend, deploy.WithStore(store), deploy.WithPublisher(events)).
		Execute(context.Background(), site(t, env, nil))
	require.ErrorIs(t, err, deploy.ErrDeploymentFailed)
	require.Equal(t, stacktheory.ErrorCodeDependencyFailed, stacktheory.ErrorCode(err))
	require.Equal(t, deploy.StatusFailed, d.Status)

	_, called := backend.Call("cdn")
	require.False(t, called)

	failed := d.Failed()
	require.Len(t, failed, 2)
	require.Equal(t, "cert", failed[0].NodeID)
	require.Equal(t, deploy.NodeFailed, failed[0].Status)
	require.Equal(t, "cdn", failed[1].NodeID)
	require.Equal(t, deploy.NodeSkipped, failed[1].Status)

	stored, err := store.Load(context.Background(), "site-dev")
	require.NoError(t, err)
	require.Len(t, stored, 2)

	require.Equal(t, []string{notify.StatusFailed}, events.statuses("cert"))
	require.Equal(t, []string{notify.StatusSkipped}, events.statuses("cdn"))

	certLogs := env.Logger.EntriesForNode("cert")
	require.NotEmpty(t, certLogs)
	require.Equal(t, "error", certLogs[len(certLogs)-1].Level)
}

func TestExecutor_MissingOutputFailsDependentVisibly(t *testing.T) {
	env := testkit.New()
	backend := testkit.NewRecordingBackend()
	backend.Outputs["cert"] = map[string]any{"domainName": "example.com"}
	events := &eventLog{}

	d, err := env.Executor(backend, deploy.WithPublisher(events)).
		Execute(context.Background(), site(t, env, nil))
	require.ErrorIs(t, err, deploy.ErrDeploymentFailed)
	require.Equal(t, deploy.StatusFailed, d.Status)

	_, called := backend.Call("cdn")
	require.False(t, called)
	failed := d.Failed()
	require.Len(t, failed, 1)
	require.Equal(t, "cdn", failed[0].NodeID)
	require.Equal(t, stacktheory.ErrorCodeUnresolvedReference, stacktheory.ErrorCode(failed[0].Err))

	require.Equal(t, []string{notify.StatusFailed}, events.statuses("cdn"))

	cdnLogs := env.Logger.EntriesForNode("cdn")
	require.NotEmpty(t, cdnLogs)
	last := cdnLogs[len(cdnLogs)-1]
	require.Equal(t, "error", last.Level)
	require.Equal(t, "provisioning failed", last.Message)
	require.Equal(t, stacktheory.ErrorCodeUnresolvedReference, last.Fields["error_code"])
}

func TestExecutor_DeletesRemoveState(t *testing.T) {
	env := testkit.New()
	store := state.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, state.Resource{Stack: "site-dev", NodeID: "legacy", Kind: stacktheory.KindTable}))

	prior, err := store.Load(ctx, "site-dev")
	require.NoError(t, err)
	plan := site(t, env, state.ToPrior(prior))
	require.Equal(t, 1, plan.Summary.Delete)

	backend := testkit.NewRecordingBackend()
	_, err = env.Executor(backend, deploy.WithStore(store)).Execute(ctx, plan)
	require.NoError(t, err)
	require.Equal(t, "legacy", backend.CallIDs()[len(backend.CallIDs())-1])

	stored, err := store.Load(ctx, "site-dev")
	require.NoError(t, err)
	require.Len(t, stored, 4)
	for _, r := range stored {
		require.NotEqual(t, "legacy", r.NodeID)
	}
}

func TestExecutor_RespectsConcurrency(t *testing.T) {
	env := testkit.New()
	var nodes []*stacktheory.Node
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		nodes = append(nodes, stacktheory.NewNode(id, stacktheory.KindSecret, stacktheory.Properties{"name": id}))
	}
	plan, err := env.Planner().Plan(context.Background(), nodes, nil)
	require.NoError(t, err)

	var inflight, peak atomic.Int32
	backend := deploy.BackendFunc(func(_ context.Context, op stacktheory.ProvisionOperation) (map[string]any, error) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inflight.Add(-1)
		return map[string]any{"arn": op.NodeID}, nil
	})

	d, err := env.Executor(backend, deploy.WithConcurrency(2)).Execute(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, d.Results, 6)
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestExecutor_CancellationFailsRemaining(t *testing.T) {
	env := testkit.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := deploy.BackendFunc(func(_ context.Context, op stacktheory.ProvisionOperation) (map[string]any, error) {
		if op.NodeID == "zone" {
			cancel()
		}
		return map[string]any{"id": "Z1", "arn": "arn", "regionalDomainName": "r"}, nil
	})

	d, err := env.Executor(backend, deploy.WithConcurrency(1)).Execute(ctx, site(t, env, nil))
	require.ErrorIs(t, err, deploy.ErrDeploymentFailed)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, deploy.StatusFailed, d.Status)
	require.Equal(t, deploy.NodeSucceeded, d.Results[0].Status)
	for _, r := range d.Results[1:] {
		require.NotEqual(t, deploy.NodeSucceeded, r.Status)
	}
}

type failingStore struct {
	state.Store
}

func (failingStore) Put(context.Context, state.Resource) error { return errors.New("table missing") }

func TestExecutor_StoreFailureFailsNode(t *testing.T) {
	env := testkit.New()
	d, err := env.Executor(testkit.NewRecordingBackend(), deploy.WithStore(failingStore{state.NewMemoryStore()})).
		Execute(context.Background(), site(t, env, nil))
	require.Error(t, err)
	require.Contains(t, d.Results[0].Error, "record state: table missing")
}

func TestExecutor_NotificationFailureIsLogged(t *testing.T) {
	env := testkit.New()
	publisher := notify.PublisherFunc(func(context.Context, notify.Event) error { return errors.New("sns down") })

	_, err := env.Executor(testkit.NewRecordingBackend(), deploy.WithPublisher(publisher)).
		Execute(context.Background(), site(t, env, nil))
	require.NoError(t, err)

	var warned bool
	for _, e := range env.Logger.Entries() {
		if e.Message == "notification failed" {
			warned = true
		}
	}
	require.True(t, warned)
}

func TestExecutor_RequiresBackendAndPlan(t *testing.T) {
	_, err := deploy.NewExecutor(nil).Execute(context.Background(), &stacktheory.Plan{})
	require.Error(t, err)
	_, err = deploy.NewExecutor(testkit.NewRecordingBackend(), nil).Execute(context.Background(), nil)
	require.Error(t, err)
}

func TestProvisionTimeout(t *testing.T) {
	slow := deploy.BackendFunc(func(ctx context.Context, _ stacktheory.ProvisionOperation) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	_, err := deploy.ProvisionTimeout(slow, time.Millisecond).Provision(context.Background(), stacktheory.ProvisionOperation{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
