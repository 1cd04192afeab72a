package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/recon-engine/pkg/models"
)

func edge(srcTable, srcCol, dstTable, dstCol string, confidence float64) models.RelationshipEdge {
	return models.RelationshipEdge{
		SourceTable:      srcTable,
		SourceColumn:     srcCol,
		TargetTable:      dstTable,
		TargetColumn:     dstCol,
		Confidence:       confidence,
		RelationshipType: models.RelationshipTypePattern,
	}
}

func newFinder(t *testing.T, tables []string, edges ...models.RelationshipEdge) *JoinPathFinder {
	t.Helper()
	kg := &models.KnowledgeGraph{ID: "test", Version: "v1", Relationships: edges}
	for _, name := range tables {
		kg.Tables = append(kg.Tables, models.KGTable{Name: name})
	}
	return NewJoinPathFinder(NewRelationshipIndex(kg, models.DefaultEdgeConfidence), DefaultPathfindingConfig(), zap.NewNop())
}

func TestFindPath_SingleHop(t *testing.T) {
	f := newFinder(t, nil, edge("brz_lnd_RBP_GPU", "Material", "brz_lnd_OPS_EXCEL_GPU", "PLANNING_SKU", 0.9))

	path, ok := f.FindPath("brz_lnd_RBP_GPU", "brz_lnd_OPS_EXCEL_GPU")
	require.True(t, ok)
	assert.Equal(t, []string{"brz_lnd_RBP_GPU", "brz_lnd_OPS_EXCEL_GPU"}, path.Path)
	assert.Equal(t, []models.ColumnPair{{Left: "Material", Right: "PLANNING_SKU"}}, path.HopColumns)
	assert.InDelta(t, 0.9, path.Confidence, 1e-9)
	assert.InDelta(t, 0.9*0.7+0.3, path.Score, 1e-9)
	assert.Equal(t, 1, path.HopCount())
}

func TestFindPath_ConfidenceIsProductOfTraversedEdges(t *testing.T) {
	f := newFinder(t, nil,
		edge("a", "id", "b", "a_id", 0.9),
		edge("b", "id", "c", "b_id", 0.8),
		edge("c", "id", "d", "c_id", 0.5),
	)

	path, ok := f.FindPath("a", "d")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c", "d"}, path.Path)
	assert.InDelta(t, 0.9*0.8*0.5, path.Confidence, 1e-9)
	require.Len(t, path.Edges, 3)

	product := 1.0
	for _, e := range path.Edges {
		product *= e.Confidence
	}
	assert.InDelta(t, product, path.Confidence, 1e-9)
	assert.Equal(t, []models.ColumnPair{
		{Left: "id", Right: "a_id"},
		{Left: "id", Right: "b_id"},
		{Left: "id", Right: "c_id"},
	}, path.HopColumns)
}

func TestFindPath_ShortConfidentPathBeatsLongerMoreConfidentOne(t *testing.T) {
	// direct: 0.7*0.7 + 1*0.3 = 0.79; three hops: 0.95*0.7 + (1/3)*0.3 = 0.765
	f := newFinder(t, nil,
		edge("a", "x", "d", "x", 0.7),
		edge("a", "y", "b", "y", 0.95),
		edge("b", "z", "c", "z", 1.0),
		edge("c", "w", "d", "w", 1.0),
	)

	path, ok := f.FindPath("a", "d")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "d"}, path.Path)
	assert.InDelta(t, 0.79, path.Score, 1e-9)
}

func TestFindPath_DoesNotStopAtFirstCandidate(t *testing.T) {
	// direct: 0.3*0.7 + 0.3 = 0.51; two hops: 0.81*0.7 + 0.15 = 0.717
	f := newFinder(t, nil,
		edge("a", "x", "c", "x", 0.3),
		edge("a", "y", "b", "y", 0.9),
		edge("b", "z", "c", "z", 0.9),
	)

	path, ok := f.FindPath("a", "c")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, path.Path)
	assert.InDelta(t, 0.81, path.Confidence, 1e-9)
}

func TestFindPath_CycleTerminatesWithoutPath(t *testing.T) {
	f := newFinder(t, []string{"d"},
		edge("a", "id", "b", "a_id", 0.9),
		edge("b", "id", "c", "b_id", 0.9),
		edge("c", "id", "a", "c_id", 0.9),
	)

	path, ok := f.FindPath("a", "d")
	assert.False(t, ok)
	assert.Nil(t, path)

	_, ok = f.FindPath("a", "unknown_table")
	assert.False(t, ok)
}

func TestFindPath_TraversesStoredEdgeInReverse(t *testing.T) {
	f := newFinder(t, nil, edge("B", "b_col", "A", "a_col", 0.8))

	path, ok := f.FindPath("A", "B")
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B"}, path.Path)
	assert.Equal(t, []models.ColumnPair{{Left: "a_col", Right: "b_col"}}, path.HopColumns)
}

func TestFindPath_CycleGuardIgnoresCase(t *testing.T) {
	// The same tables are spelled with different case on different edges.
	f := newFinder(t, nil,
		edge("Orders", "customer_id", "CUSTOMERS", "id", 0.9),
		edge("customers", "region_id", "Regions", "id", 0.9),
		edge("REGIONS", "id", "orders", "region_id", 0.4),
	)

	path, ok := f.FindPath("orders", "regions")
	require.True(t, ok)
	assert.Equal(t, []string{"Orders", "CUSTOMERS", "Regions"}, path.Path)

	for i, a := range path.Path {
		for _, b := range path.Path[i+1:] {
			assert.NotEqual(t, normalizeKey(a), normalizeKey(b), "table visited twice")
		}
	}
}

func TestFindPath_HopCap(t *testing.T) {
	var edges []models.RelationshipEdge
	for i := 0; i < 6; i++ {
		edges = append(edges, edge(fmt.Sprintf("t%d", i), "next_id", fmt.Sprintf("t%d", i+1), "id", 0.9))
	}
	f := newFinder(t, nil, edges...)

	path, ok := f.FindPath("t0", "t5")
	require.True(t, ok)
	assert.Equal(t, 5, path.HopCount())

	_, ok = f.FindPath("t0", "t6")
	assert.False(t, ok, "six hops exceeds the cap")

	kg := &models.KnowledgeGraph{Relationships: edges}
	short := NewJoinPathFinder(NewRelationshipIndex(kg, 0), PathfindingConfig{MaxHops: 2}, zap.NewNop())
	_, ok = short.FindPath("t0", "t3")
	assert.False(t, ok)
	_, ok = short.FindPath("t0", "t2")
	assert.True(t, ok)
}

func TestFindPath_DenseCyclicGraphTerminates(t *testing.T) {
	var edges []models.RelationshipEdge
	const n = 8
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			edges = append(edges, edge(fmt.Sprintf("t%d", i), "id", fmt.Sprintf("t%d", j), fmt.Sprintf("t%d_id", i), 0.5))
		}
	}
	f := newFinder(t, []string{"island"}, edges...)

	path, ok := f.FindPath("t0", "t7")
	require.True(t, ok)
	assert.Equal(t, 1, path.HopCount())

	_, ok = f.FindPath("t0", "island")
	assert.False(t, ok)
}

func TestFindPath_DeterministicTieBreak(t *testing.T) {
	f := newFinder(t, nil,
		edge("a", "c_id", "c", "id", 0.9),
		edge("c", "d_id", "d", "id", 0.9),
		edge("a", "b_id", "b", "id", 0.9),
		edge("b", "d_id", "d", "id", 0.9),
	)

	first, ok := f.FindPath("a", "d")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "d"}, first.Path)

	for i := 0; i < 20; i++ {
		again, ok := f.FindPath("a", "d")
		require.True(t, ok)
		assert.Equal(t, first.Path, again.Path)
		assert.Equal(t, first.HopColumns, again.HopColumns)
	}
}

func TestFindPath_ParallelEdgesPickMostConfident(t *testing.T) {
	f := newFinder(t, nil,
		edge("a", "code", "b", "code", 0.6),
		edge("a", "sku", "b", "sku", 0.95),
	)

	path, ok := f.FindPath("a", "b")
	require.True(t, ok)
	assert.Equal(t, []models.ColumnPair{{Left: "sku", Right: "sku"}}, path.HopColumns)
}

func TestFindPath_UnscoredEdgeUsesDefaultConfidence(t *testing.T) {
	f := newFinder(t, nil, edge("a", "id", "b", "a_id", 0))

	path, ok := f.FindPath("a", "b")
	require.True(t, ok)
	assert.InDelta(t, models.DefaultEdgeConfidence, path.Confidence, 1e-9)
}

func TestFindPath_SameTable(t *testing.T) {
	f := newFinder(t, nil, edge("a", "id", "b", "a_id", 0.9))
	_, ok := f.FindPath("a", "A")
	assert.False(t, ok)
}

func TestFindPath_CustomWeights(t *testing.T) {
	// With length ignored, the more confident two-hop path wins.
	kg := &models.KnowledgeGraph{Relationships: []models.RelationshipEdge{
		edge("a", "x", "c", "x", 0.7),
		edge("a", "y", "b", "y", 0.95),
		edge("b", "z", "c", "z", 0.95),
	}}
	f := NewJoinPathFinder(NewRelationshipIndex(kg, 0), PathfindingConfig{MaxHops: 5, ConfidenceWeight: 1}, zap.NewNop())

	path, ok := f.FindPath("a", "c")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, path.Path)
}
