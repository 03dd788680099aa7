package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	stacktheory "github.com/theory-cloud/stacktheory"
)

func sampleResource(stack, id string) Resource {
	return Resource{
		Stack:        stack,
		NodeID:       id,
		Kind:         stacktheory.KindBucket,
		Properties:   stacktheory.Properties{"bucketName": id + "-bucket"},
		Outputs:      map[string]any{"arn": "arn:aws:s3:::" + id},
		Dependencies: []string{"zone"},
		DeploymentID: "dep-1",
		UpdatedAt:    time.Unix(100, 0).UTC(),
	}
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	got, err := store.Load(ctx, "site-dev")
	require.NoError(t, err)
	require.Empty(t, got)

	require.NoError(t, store.Put(ctx, sampleResource("site-dev", "logs")))
	require.NoError(t, store.Put(ctx, sampleResource("site-dev", "assets")))
	require.NoError(t, store.Put(ctx, sampleResource("other", "assets")))

	updated := sampleResource("site-dev", "logs")
	updated.Outputs = map[string]any{"arn": "arn:aws:s3:::logs-v2"}
	require.NoError(t, store.Put(ctx, updated))

	got, err = store.Load(ctx, "site-dev")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "assets", got[0].NodeID)
	require.Equal(t, "logs", got[1].NodeID)
	require.Equal(t, "arn:aws:s3:::logs-v2", got[1].Outputs["arn"])
	require.Equal(t, "logs-bucket", got[1].Properties["bucketName"])

	require.NoError(t, store.Delete(ctx, "site-dev", "logs"))
	require.NoError(t, store.Delete(ctx, "site-dev", "missing"))
	got, err = store.Load(ctx, "site-dev")
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = store.Load(ctx, "other")
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, err = store.Load(ctx, "")
	require.ErrorIs(t, err, ErrStackRequired)
	require.ErrorIs(t, store.Put(ctx, Resource{NodeID: "x"}), ErrStackRequired)
	require.ErrorIs(t, store.Delete(ctx, "", "x"), ErrStackRequired)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	exerciseStore(t, NewFileStore(dir))

	raw, err := os.ReadFile(filepath.Join(dir, "site-dev.json"))
	require.NoError(t, err)
	require.Contains(t, string(raw), `"node_id": "assets"`)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.Equal(t, ".json", filepath.Ext(e.Name()))
	}
}

func TestFileStore_RejectsCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	require.NoError(t, os.WriteFile(store.Path("site"), []byte("{not json"), 0o600))

	_, err := store.Load(context.Background(), "site")
	require.Error(t, err)
}

func TestFileStore_DistinctStacksDoNotShareFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileStore(dir)

	require.Equal(t, filepath.Join(dir, "my-stack.json"), store.Path("my-stack"))
	require.Equal(t, filepath.Join(dir, "_4dy_5fstack.json"), store.Path("My_Stack"))
	require.NotEqual(t, store.Path("a.b"), store.Path("a_2eb"))

	require.NoError(t, store.Put(ctx, Resource{Stack: "My_Stack", NodeID: "upper", Kind: stacktheory.KindBucket}))
	require.NoError(t, store.Put(ctx, Resource{Stack: "my-stack", NodeID: "lower", Kind: stacktheory.KindBucket}))

	upper, err := store.Load(ctx, "My_Stack")
	require.NoError(t, err)
	require.Len(t, upper, 1)
	require.Equal(t, "upper", upper[0].NodeID)

	lower, err := store.Load(ctx, "my-stack")
	require.NoError(t, err)
	require.Len(t, lower, 1)
	require.Equal(t, "lower", lower[0].NodeID)

	require.NoError(t, os.WriteFile(store.Path("other"), []byte(`{"stack":"my-stack","resources":[]}`), 0o600))
	_, err = store.Load(ctx, "other")
	require.ErrorContains(t, err, "belongs to stack")
}

func TestToPriorAndFromOperation(t *testing.T) {
	op := stacktheory.ProvisionOperation{
		Operation:          stacktheory.OperationCreate,
		NodeID:             "cert",
		Kind:               stacktheory.KindCertificate,
		ResolvedProperties: stacktheory.Properties{"domainName": "example.com"},
		DependsOn:          []string{"zone"},
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	r := FromOperation("site-dev", "dep-9", op, map[string]any{"arn": "arn:cert"}, now)
	require.Equal(t, now.UTC(), r.UpdatedAt)
	require.Equal(t, "dep-9", r.DeploymentID)

	prior := ToPrior([]Resource{r})
	require.Equal(t, stacktheory.KindCertificate, prior["cert"].Kind)
	require.Equal(t, []string{"zone"}, prior["cert"].Dependencies)
	require.Equal(t, "arn:cert", prior["cert"].Outputs["arn"])
}
