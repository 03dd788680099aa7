package synth

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/assertions"
	"github.com/aws/jsii-runtime-go"
	"github.com/stretchr/testify/require"

	stacktheory "github.com/theory-cloud/stacktheory"
	"github.com/theory-cloud/stacktheory/pkg/config"
	"github.com/theory-cloud/stacktheory/pkg/topology"
)

func requireNode(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("node"); err != nil {
		t.Skip("node is required to run the CDK")
	}
}

func sitePlan(t *testing.T) *stacktheory.Plan {
	t.Helper()
	cfg := config.Config{AppName: "site", Stage: "dev", DomainName: "example.com", HostedZoneID: "Z123"}
	nodes, err := topology.StaticSite(cfg)
	require.NoError(t, err)
	g, err := stacktheory.NewGraphFrom(nodes)
	require.NoError(t, err)
	plan, err := stacktheory.Emit(g, nil)
	require.NoError(t, err)
	plan.Stack = cfg.StackName()
	return plan
}

func TestSynth_RequiresPlan(t *testing.T) {
	_, err := Synth(nil, Options{})
	require.EqualError(t, err, "synth: plan is required")
}

func TestPlaceholderAsset(t *testing.T) {
	dir, cleanup, err := placeholderAsset()
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, "bootstrap"))
	require.NoError(t, err)
	require.NotZero(t, info.Mode()&0o100)

	cleanup()
	_, err = os.Stat(dir)
	require.True(t, os.IsNotExist(err))
}

func TestPropertyHelpers(t *testing.T) {
	props := stacktheory.Properties{"a": " x ", "n": 3, "f": 1.5, "b": true, "s": "nope"}
	require.Equal(t, "x", stringProp(props, "a"))
	require.Empty(t, stringProp(props, "n"))

	n, ok := numberProp(props, "n")
	require.True(t, ok)
	require.InDelta(t, 3.0, n, 0)
	f, ok := numberProp(props, "f")
	require.True(t, ok)
	require.InDelta(t, 1.5, f, 0)
	_, ok = numberProp(props, "s")
	require.False(t, ok)

	require.True(t, boolProp(props, "b"))
	require.False(t, boolProp(props, "missing"))
}

func TestNewStack_RendersStaticSite(t *testing.T) {
	requireNode(t)

	asset, cleanup, err := placeholderAsset()
	require.NoError(t, err)
	defer cleanup()

	app := awscdk.NewApp(nil)
	stack, err := NewStack(app, sitePlan(t), Options{Account: "123456789012", Region: "us-east-1", AssetPath: asset})
	require.NoError(t, err)

	template := assertions.Template_FromStack(stack, nil)
	template.ResourceCountIs(jsii.String("AWS::S3::Bucket"), jsii.Number(1))
	template.ResourceCountIs(jsii.String("AWS::CloudFront::Distribution"), jsii.Number(1))
	template.ResourceCountIs(jsii.String("AWS::CertificateManager::Certificate"), jsii.Number(1))
	template.ResourceCountIs(jsii.String("AWS::Route53::RecordSet"), jsii.Number(1))
	template.ResourceCountIs(jsii.String("AWS::DynamoDB::Table"), jsii.Number(1))
	template.ResourceCountIs(jsii.String("AWS::SecretsManager::Secret"), jsii.Number(1))
	template.ResourceCountIs(jsii.String("AWS::ApiGateway::RestApi"), jsii.Number(1))
	template.ResourceCountIs(jsii.String("AWS::Lambda::EventSourceMapping"), jsii.Number(1))
	template.HasResourceProperties(jsii.String("AWS::S3::Bucket"), map[string]any{
		"BucketName": "site-site-dev",
	})
	template.HasResourceProperties(jsii.String("AWS::DynamoDB::Table"), map[string]any{
		"BillingMode":         "PAY_PER_REQUEST",
		"StreamSpecification": map[string]any{"StreamViewType": "NEW_AND_OLD_IMAGES"},
	})
	template.HasOutput(jsii.String("DistributionDomainNameOutput"), map[string]any{})
}

func TestNewStack_SkipsDeletes(t *testing.T) {
	requireNode(t)

	plan := &stacktheory.Plan{
		Stack: "gone-dev",
		Operations: []stacktheory.ProvisionOperation{
			{Operation: stacktheory.OperationDelete, NodeID: "old", Kind: stacktheory.KindSecret},
			{Operation: stacktheory.OperationCreate, NodeID: "secret", Kind: stacktheory.KindSecret, ResolvedProperties: stacktheory.Properties{"name": "s"}},
		},
	}
	stack, err := NewStack(awscdk.NewApp(nil), plan, Options{})
	require.NoError(t, err)

	template := assertions.Template_FromStack(stack, nil)
	template.ResourceCountIs(jsii.String("AWS::SecretsManager::Secret"), jsii.Number(1))
}

func TestNewStack_RejectsDanglingRestAPI(t *testing.T) {
	requireNode(t)

	plan := &stacktheory.Plan{
		Operations: []stacktheory.ProvisionOperation{
			{Operation: stacktheory.OperationCreate, NodeID: "api", Kind: stacktheory.KindRestAPI, ResolvedProperties: stacktheory.Properties{"name": "api", "integration": "arn:aws:lambda:us-east-1:1:function:x"}},
		},
	}
	_, err := NewStack(awscdk.NewApp(nil), plan, Options{})
	require.Equal(t, stacktheory.ErrorCodeValidationFailed, stacktheory.ErrorCode(err))
}

func TestSynth_WritesAssembly(t *testing.T) {
	requireNode(t)

	out := t.TempDir()
	dir, err := Synth(sitePlan(t), Options{OutDir: out})
	require.NoError(t, err)
	require.Equal(t, out, dir)
	require.FileExists(t, filepath.Join(out, "manifest.json"))
	require.FileExists(t, filepath.Join(out, "SiteDev.template.json"))
}
