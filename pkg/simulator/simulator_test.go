package simulator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	stacktheory "github.com/theory-cloud/stacktheory"
	"github.com/theory-cloud/stacktheory/pkg/deploy"
)

func op(id string, kind stacktheory.Kind, props stacktheory.Properties) stacktheory.ProvisionOperation {
	return stacktheory.ProvisionOperation{Operation: stacktheory.OperationCreate, NodeID: id, Kind: kind, ResolvedProperties: props}
}

func TestSimulator_OutputsCoverSchemas(t *testing.T) {
	sim := New(WithAccount("123456789012"), WithRegion("eu-west-1"))
	props := map[stacktheory.Kind]stacktheory.Properties{
		stacktheory.KindBucket:       {"bucketName": "site-assets"},
		stacktheory.KindDistribution: {"origins": []any{"o"}},
		stacktheory.KindCertificate:  {"domainName": "example.com"},
		stacktheory.KindHostedZone:   {"zoneName": "example.com."},
		stacktheory.KindRecord:       {"zoneId": "Z1", "recordName": "www.example.com", "target": "d1"},
		stacktheory.KindFunction:     {"handler": "bootstrap", "runtime": "provided.al2023", "functionName": "api"},
		stacktheory.KindRestAPI:      {"name": "api"},
		stacktheory.KindTable:        {"partitionKey": "pk", "tableName": "items"},
		stacktheory.KindSecret:       {"name": "app/secret"},
	}

	for _, kind := range stacktheory.Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			out, err := sim.Provision(context.Background(), op("n-"+string(kind), kind, props[kind]))
			require.NoError(t, err)
			schema, _ := stacktheory.SchemaFor(kind)
			for _, name := range schema.Outputs {
				require.Contains(t, out, name)
			}
		})
	}

	out, err := sim.Provision(context.Background(), op("fn", stacktheory.KindFunction, props[stacktheory.KindFunction]))
	require.NoError(t, err)
	require.Equal(t, "arn:aws:lambda:eu-west-1:123456789012:function:api", out["arn"])
	require.True(t, sim.Exists("fn"))
}

func TestSimulator_IsDeterministic(t *testing.T) {
	first, err := New().Provision(context.Background(), op("cdn", stacktheory.KindDistribution, nil))
	require.NoError(t, err)
	second, err := New().Provision(context.Background(), op("cdn", stacktheory.KindDistribution, nil))
	require.NoError(t, err)
	require.Equal(t, first, second)

	other, err := New(WithAccount("999999999999")).Provision(context.Background(), op("cdn", stacktheory.KindDistribution, nil))
	require.NoError(t, err)
	require.NotEqual(t, first["id"], other["id"])
}

func TestSimulator_ImportedCertificateAndZone(t *testing.T) {
	sim := New()
	out, err := sim.Provision(context.Background(), op("cert", stacktheory.KindCertificate, stacktheory.Properties{
		"domainName":     "example.com",
		"certificateArn": "arn:aws:acm:us-east-1:1:certificate/imported",
	}))
	require.NoError(t, err)
	require.Equal(t, "arn:aws:acm:us-east-1:1:certificate/imported", out["arn"])

	out, err = sim.Provision(context.Background(), op("zone", stacktheory.KindHostedZone, stacktheory.Properties{
		"zoneName":     "example.com",
		"hostedZoneId": "Z123",
	}))
	require.NoError(t, err)
	require.Equal(t, "Z123", out["id"])
}

func TestSimulator_RejectsUnknownsAndMissingProperties(t *testing.T) {
	sim := New()
	_, err := sim.Provision(context.Background(), op("r", stacktheory.KindRecord, stacktheory.Properties{
		"recordName": "www",
		"target":     stacktheory.Unknown{Node: "cdn", Output: "domainName"},
	}))
	require.Equal(t, stacktheory.ErrorCodeValidationFailed, stacktheory.ErrorCode(err))

	_, err = sim.Provision(context.Background(), op("b", stacktheory.KindBucket, stacktheory.Properties{}))
	var verr *stacktheory.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "bucketName", verr.Field)

	_, err = sim.Provision(context.Background(), op("x", stacktheory.Kind("Queue"), nil))
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "kind", verr.Field)
}

func TestSimulator_FailureInjectionAndDelete(t *testing.T) {
	boom := errors.New("limit exceeded")
	sim := New(WithFailure("bad", boom), WithFailure("worse", nil), nil)

	_, err := sim.Provision(context.Background(), op("bad", stacktheory.KindSecret, stacktheory.Properties{"name": "x"}))
	require.ErrorIs(t, err, boom)
	_, err = sim.Provision(context.Background(), op("worse", stacktheory.KindSecret, stacktheory.Properties{"name": "x"}))
	require.ErrorContains(t, err, "simulated failure of worse")

	_, err = sim.Provision(context.Background(), op("ok", stacktheory.KindSecret, stacktheory.Properties{"name": "x"}))
	require.NoError(t, err)
	require.True(t, sim.Exists("ok"))

	del := op("ok", stacktheory.KindSecret, nil)
	del.Operation = stacktheory.OperationDelete
	_, err = sim.Provision(context.Background(), del)
	require.NoError(t, err)
	require.False(t, sim.Exists("ok"))
	require.Equal(t, 4, sim.Calls())
}

func TestSimulator_LatencyHonorsContext(t *testing.T) {
	sim := New(WithLatency(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sim.Provision(ctx, op("s", stacktheory.KindSecret, stacktheory.Properties{"name": "s"}))
	require.ErrorIs(t, err, context.Canceled)
}

func TestSimulator_DrivesExecutor(t *testing.T) {
	nodes := []*stacktheory.Node{
		stacktheory.NewNode("bucket", stacktheory.KindBucket, stacktheory.Properties{"bucketName": "assets"}),
		stacktheory.NewNode("cdn", stacktheory.KindDistribution, stacktheory.Properties{
			"origins": []any{stacktheory.RefTo("bucket", "regionalDomainName")},
		}),
	}
	plan, err := stacktheory.New().Plan(context.Background(), nodes, nil)
	require.NoError(t, err)

	d, err := deploy.NewExecutor(New()).Execute(context.Background(), plan)
	require.NoError(t, err)
	require.Equal(t, []any{"assets.s3.us-east-1.amazonaws.com"}, d.Results[1].Properties["origins"])
}
