package testkit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	stacktheory "github.com/theory-cloud/stacktheory"
	"github.com/theory-cloud/stacktheory/testkit"
)

func TestEnvDeterministicTimeAndIDs(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	env := testkit.NewWithTime(now)

	require.Equal(t, now, env.Clock.Now())
	require.Equal(t, now.Add(time.Minute), env.Clock.Advance(time.Minute))

	env.IDs.Queue("first")
	require.Equal(t, "first", env.IDs.NewID())
	require.Equal(t, "deploy-1", env.IDs.NewID())
	require.Equal(t, "deploy-2", env.IDs.NewID())
	env.IDs.Reset()
	require.Equal(t, "deploy-1", env.IDs.NewID())
}

func TestEnvPlansAndExecutes(t *testing.T) {
	env := testkit.New()
	env.IDs.Queue("dep-1")

	nodes := []*stacktheory.Node{
		stacktheory.NewNode("zone", stacktheory.KindHostedZone, stacktheory.Properties{"zoneName": "example.com"}),
		stacktheory.NewNode("cert", stacktheory.KindCertificate, stacktheory.Properties{
			"domainName": "example.com",
			"zoneId":     stacktheory.RefTo("zone", "id"),
		}),
	}
	plan, err := env.Planner(stacktheory.WithStackName("site-dev")).Plan(context.Background(), nodes, nil)
	require.NoError(t, err)

	backend := testkit.NewRecordingBackend()
	d, err := env.Executor(backend).Execute(context.Background(), plan)
	require.NoError(t, err)
	require.Equal(t, "dep-1", d.ID)
	require.Equal(t, []string{"zone", "cert"}, backend.CallIDs())

	cert, ok := backend.Call("cert")
	require.True(t, ok)
	require.Equal(t, "id-of-zone", cert.ResolvedProperties["zoneId"])
	require.NotEmpty(t, env.Logger.Entries())
}

func TestRecordingBackend_OverridesAndFailures(t *testing.T) {
	backend := testkit.NewRecordingBackend()
	backend.Outputs["a"] = map[string]any{"arn": "custom"}
	backend.Fail("b", errors.New("boom"))

	out, err := backend.Provision(context.Background(), stacktheory.ProvisionOperation{NodeID: "a", Kind: stacktheory.KindSecret})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"arn": "custom"}, out)

	_, err = backend.Provision(context.Background(), stacktheory.ProvisionOperation{NodeID: "b", Kind: stacktheory.KindSecret})
	require.EqualError(t, err, "boom")

	out, err = backend.Provision(context.Background(), stacktheory.ProvisionOperation{
		NodeID:    "c",
		Kind:      stacktheory.KindSecret,
		Operation: stacktheory.OperationDelete,
	})
	require.NoError(t, err)
	require.Empty(t, out)

	_, ok := backend.Call("missing")
	require.False(t, ok)
}

func TestRecordingBackend_BlockHonorsContext(t *testing.T) {
	backend := testkit.NewRecordingBackend()
	backend.Block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := backend.Provision(ctx, stacktheory.ProvisionOperation{NodeID: "a", Kind: stacktheory.KindSecret})
	require.ErrorIs(t, err, context.Canceled)
}
