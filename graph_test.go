package stacktheory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddNode_DuplicateIsAtomic(t *testing.T) {
	g := NewGraph()
	_, err := g.Declare("bucket", KindBucket, Properties{"bucketName": "a"})
	require.NoError(t, err)
	_, err = g.Declare("api", KindRestAPI, Properties{"name": "api"})
	require.NoError(t, err)

	before := g.Nodes()

	_, err = g.Declare("bucket", KindTable, Properties{"partitionKey": "pk"})
	var dup *DuplicateIDError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "bucket", dup.ID)
	require.Equal(t, ErrorCodeDuplicateID, ErrorCode(err))

	require.Equal(t, before, g.Nodes())
	n, ok := g.Node("bucket")
	require.True(t, ok)
	require.Equal(t, KindBucket, n.Kind())
}

func TestAddNode_RejectsNilAndEmptyID(t *testing.T) {
	g := NewGraph()

	var verr *ValidationError
	require.ErrorAs(t, g.AddNode(nil), &verr)
	require.ErrorAs(t, g.AddNode(NewNode("  ", KindBucket, nil)), &verr)
	require.Equal(t, "id", verr.Field)
	require.Zero(t, g.Len())
}

func TestNewNode_CopiesProperties(t *testing.T) {
	props := Properties{"tags": map[string]any{"env": "dev"}, "origins": []any{RefTo("a", "arn")}}
	n := NewNode("n", KindDistribution, props)

	props["tags"].(map[string]any)["env"] = "prod"
	require.Equal(t, "dev", n.Properties()["tags"].(map[string]any)["env"])

	got := n.Properties()
	got["tags"] = "changed"
	v, ok := n.Property("tags")
	require.True(t, ok)
	require.Equal(t, map[string]any{"env": "dev"}, v)

	require.False(t, n.Provisioned())
	require.Nil(t, n.Outputs())
}

func TestResolveEdges_NestedReferences(t *testing.T) {
	g := NewGraph()
	_, _ = g.Declare("site", KindBucket, Properties{"bucketName": "site"})
	_, _ = g.Declare("logs", KindBucket, Properties{"bucketName": "logs"})
	_, _ = g.Declare("cdn", KindDistribution, Properties{
		"origins": []Ref{RefTo("site", "regionalDomainName"), RefTo("logs", "domainName")},
		"logging": map[string]any{
			"bucket": RefTo("logs", "bucketName"),
			"nested": []any{map[string]any{"again": RefTo("site", "arn")}},
		},
	})

	edges, err := g.ResolveEdges()
	require.NoError(t, err)
	require.Equal(t, []Edge{{From: "cdn", To: "site"}, {From: "cdn", To: "logs"}}, edges)

	deps, err := g.DependenciesOf("cdn")
	require.NoError(t, err)
	require.Equal(t, []string{"site", "logs"}, deps)

	dependents, err := g.DependentsOf("logs")
	require.NoError(t, err)
	require.Equal(t, []string{"cdn"}, dependents)
}

func TestResolveEdges_UnresolvedReference(t *testing.T) {
	g := NewGraph()
	_, _ = g.Declare("record", KindRecord, Properties{
		"zoneId":     RefTo("zone", "id"),
		"recordName": "www",
		"target":     "x",
	})

	_, err := g.ResolveEdges()
	var unresolved *UnresolvedReferenceError
	require.ErrorAs(t, err, &unresolved)
	require.Equal(t, "record", unresolved.From)
	require.Equal(t, RefTo("zone", "id"), unresolved.Ref)

	_, err = g.Sort()
	require.True(t, errors.As(err, &unresolved))
}

func TestSetProperty_InvalidatesEdges(t *testing.T) {
	g := NewGraph()
	_, _ = g.Declare("a", KindBucket, Properties{"bucketName": "a"})
	_, _ = g.Declare("b", KindFunction, Properties{"handler": "h", "runtime": "go"})

	edges, err := g.ResolveEdges()
	require.NoError(t, err)
	require.Empty(t, edges)

	require.NoError(t, g.SetProperty("b", "env", map[string]any{"BUCKET": RefTo("a", "bucketName")}))
	edges, err = g.ResolveEdges()
	require.NoError(t, err)
	require.Equal(t, []Edge{{From: "b", To: "a"}}, edges)

	var verr *ValidationError
	require.ErrorAs(t, g.SetProperty("missing", "x", 1), &verr)
}

func TestRecordOutputs(t *testing.T) {
	g := NewGraph()
	_, _ = g.Declare("a", KindBucket, Properties{"bucketName": "a"})

	require.NoError(t, g.RecordOutputs("a", map[string]any{"arn": "arn:aws:s3:::a"}))
	n, _ := g.Node("a")
	require.True(t, n.Provisioned())
	v, ok := n.Output("arn")
	require.True(t, ok)
	require.Equal(t, "arn:aws:s3:::a", v)

	require.Error(t, g.RecordOutputs("nope", nil))
}

func TestTransitiveDependents(t *testing.T) {
	g := diamond(t)

	got, err := g.TransitiveDependents("a")
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c", "d"}, got)

	got, err = g.TransitiveDependents("c")
	require.NoError(t, err)
	require.Equal(t, []string{"d"}, got)

	_, err = g.TransitiveDependents("zzz")
	require.Error(t, err)
}

func TestValidate_AggregatesProblems(t *testing.T) {
	g := NewGraph()
	_, _ = g.Declare("bucket", KindBucket, Properties{})
	_, _ = g.Declare("cert", KindCertificate, Properties{"domainName": "example.com"})
	_, _ = g.Declare("odd", Kind("Queue"), Properties{})
	_, _ = g.Declare("record", KindRecord, Properties{
		"zoneId":     RefTo("cert", "id"),
		"recordName": "www",
		"target":     RefTo("ghost", "domainName"),
	})

	err := g.Validate()
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "bucket", verr.NodeID)
	require.Equal(t, "bucketName", verr.Field)

	var unresolved *UnresolvedReferenceError
	require.ErrorAs(t, err, &unresolved)
	require.Contains(t, err.Error(), `unknown kind "Queue"`)
	require.Contains(t, err.Error(), `does not produce output "id"`)
	require.Contains(t, err.Error(), "ghost.domainName")
}

func diamond(t *testing.T) *Graph {
	t.Helper()

	g := NewGraph()
	_, err := g.Declare("a", KindHostedZone, Properties{"zoneName": "example.com"})
	require.NoError(t, err)
	_, err = g.Declare("b", KindCertificate, Properties{"domainName": "example.com", "zone": RefTo("a", "id")})
	require.NoError(t, err)
	_, err = g.Declare("c", KindBucket, Properties{"bucketName": "site", "zone": RefTo("a", "zoneName")})
	require.NoError(t, err)
	_, err = g.Declare("d", KindDistribution, Properties{
		"origins":     []Ref{RefTo("c", "regionalDomainName")},
		"certificate": RefTo("b", "arn"),
	})
	require.NoError(t, err)
	return g
}

func TestAddNode_GraphsDoNotShareNodes(t *testing.T) {
	n := NewNode("a", KindBucket, Properties{"bucketName": "a"})
	first := NewGraph()
	second := NewGraph()
	require.NoError(t, first.AddNode(n))
	require.NoError(t, second.AddNode(n))

	require.NoError(t, first.RecordOutputs("a", map[string]any{"arn": "arn:aws:s3:::a"}))
	require.NoError(t, first.SetProperty("a", "bucketName", "changed"))

	owned, ok := second.Node("a")
	require.True(t, ok)
	require.False(t, owned.Provisioned())
	require.False(t, n.Provisioned())
	v, _ := owned.Property("bucketName")
	require.Equal(t, "a", v)

	declared, err := first.Declare("b", KindBucket, Properties{"bucketName": "b"})
	require.NoError(t, err)
	require.NoError(t, first.RecordOutputs("b", map[string]any{"arn": "arn:aws:s3:::b"}))
	require.True(t, declared.Provisioned())
}
