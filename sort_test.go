package stacktheory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func ids(nodes []*Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID())
	}
	return out
}

func TestSort_ReverseDeclarationStillOrdersDependencies(t *testing.T) {
	g := NewGraph()
	_, _ = g.Declare("C", KindFunction, Properties{"handler": "h", "runtime": "go", "a": RefTo("A", "arn"), "b": RefTo("B", "arn")})
	_, _ = g.Declare("B", KindTable, Properties{"partitionKey": "pk", "a": RefTo("A", "arn")})
	_, _ = g.Declare("A", KindSecret, Properties{"name": "s"})

	sorted, err := g.Sort()
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B", "C"}, ids(sorted))

	plan, err := Emit(g, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B", "C"}, plan.NodeIDs())
}

func TestSort_IndependentNodesKeepDeclarationOrder(t *testing.T) {
	g := NewGraph()
	for _, id := range []string{"z", "m", "a"} {
		_, _ = g.Declare(id, KindSecret, Properties{"name": id})
	}
	sorted, err := g.Sort()
	require.NoError(t, err)
	require.Equal(t, []string{"z", "m", "a"}, ids(sorted))
}

func TestSort_CycleReportsPath(t *testing.T) {
	g := NewGraph()
	_, _ = g.Declare("a", KindFunction, Properties{"handler": "h", "runtime": "go", "x": RefTo("b", "arn")})
	_, _ = g.Declare("b", KindFunction, Properties{"handler": "h", "runtime": "go", "x": RefTo("c", "arn")})
	_, _ = g.Declare("c", KindFunction, Properties{"handler": "h", "runtime": "go", "x": RefTo("a", "arn")})

	_, err := g.Sort()
	var cyc *CyclicDependencyError
	require.ErrorAs(t, err, &cyc)
	require.Equal(t, []string{"a", "b", "c", "a"}, cyc.Path)
	require.Equal(t, "stack.cyclic_dependency: a -> b -> c -> a", err.Error())

	_, err = g.Levels()
	require.ErrorAs(t, err, &cyc)
}

func TestSort_SelfReferenceIsCycle(t *testing.T) {
	g := NewGraph()
	_, _ = g.Declare("a", KindBucket, Properties{"bucketName": RefTo("a", "bucketName")})

	_, err := g.Sort()
	var cyc *CyclicDependencyError
	require.ErrorAs(t, err, &cyc)
	require.Equal(t, []string{"a", "a"}, cyc.Path)
}

func TestLevels_GroupsByLongestPath(t *testing.T) {
	g := diamond(t)
	_, _ = g.Declare("e", KindSecret, Properties{"name": "e"})

	levels, err := g.Levels()
	require.NoError(t, err)
	require.Equal(t, [][]string{{"a", "e"}, {"b", "c"}, {"d"}}, levels)
}
