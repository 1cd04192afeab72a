package repositories

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/recon-engine/pkg/apperrors"
)

const reconGraphYAML = `
tables:
  - name: brz_lnd_RBP_GPU
    aliases: [RBP GPU]
    columns:
      - name: Material
        data_type: text
      - name: status
  - name: brz_lnd_OPS_EXCEL_GPU
    aliases: [OPS Excel]
    columns:
      - name: PLANNING_SKU
relationships:
  - source_table: brz_lnd_RBP_GPU
    source_column: Material
    target_table: brz_lnd_OPS_EXCEL_GPU
    target_column: PLANNING_SKU
    confidence: 0.9
    relationship_type: pattern
`

const hanaGraphJSON = `{
	"id": "hana",
	"tables": [
		{"name": "hana_material_master", "columns": [{"name": "MATERIAL"}, {"name": "planner"}]}
	],
	"relationships": []
}`

func writeGraph(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileKnowledgeGraphRepository_GetSnapshot(t *testing.T) {
	dir := t.TempDir()
	writeGraph(t, dir, "recon.yaml", reconGraphYAML)
	writeGraph(t, dir, "hana.json", hanaGraphJSON)
	repo := NewFileKnowledgeGraphRepository(dir, zap.NewNop())
	ctx := context.Background()

	kg, err := repo.GetSnapshot(ctx, "recon")
	require.NoError(t, err)
	assert.Equal(t, "recon", kg.ID, "id defaults to the file name")
	assert.Len(t, kg.Version, 16)
	require.Len(t, kg.Tables, 2)
	assert.Equal(t, []string{"RBP GPU"}, kg.Tables[0].Aliases)
	assert.Equal(t, "text", kg.Tables[0].Columns[0].DataType)
	require.Len(t, kg.Relationships, 1)
	assert.InDelta(t, 0.9, kg.Relationships[0].Confidence, 1e-9)
	assert.Equal(t, "pattern", kg.Relationships[0].RelationshipType)

	hana, err := repo.GetSnapshot(ctx, "hana")
	require.NoError(t, err)
	assert.Equal(t, "hana", hana.ID)
	assert.Equal(t, "planner", hana.Tables[0].Columns[1].Name)
}

func TestFileKnowledgeGraphRepository_VersionFollowsContent(t *testing.T) {
	dir := t.TempDir()
	path := writeGraph(t, dir, "recon.yaml", reconGraphYAML)
	repo := NewFileKnowledgeGraphRepository(dir, zap.NewNop())
	ctx := context.Background()

	first, err := repo.GetSnapshot(ctx, "recon")
	require.NoError(t, err)

	again, err := repo.GetSnapshot(ctx, "recon")
	require.NoError(t, err)
	assert.Same(t, first, again, "unchanged files are served from cache")

	require.NoError(t, os.WriteFile(path, []byte(reconGraphYAML+"\n# edited\n"), 0o644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	changed, err := repo.GetSnapshot(ctx, "recon")
	require.NoError(t, err)
	assert.NotEqual(t, first.Version, changed.Version)
}

func TestFileKnowledgeGraphRepository_Errors(t *testing.T) {
	dir := t.TempDir()
	writeGraph(t, dir, "broken.yaml", "tables: [")
	writeGraph(t, dir, "bad_edge.yaml", `
relationships:
  - source_table: a
    target_table: b
    confidence: 0.5
`)
	repo := NewFileKnowledgeGraphRepository(dir, zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		name     string
		graphID  string
		sentinel error
		contains string
	}{
		{"unknown graph", "missing", apperrors.ErrNotFound, ""},
		{"path traversal", "../etc/passwd", apperrors.ErrInvalidRequest, ""},
		{"empty id", "", apperrors.ErrInvalidRequest, ""},
		{"malformed yaml", "broken", nil, "failed to parse"},
		{"edge missing columns", "bad_edge", nil, "missing a table or column"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.GetSnapshot(ctx, tt.graphID)
			require.Error(t, err)
			if tt.sentinel != nil {
				assert.True(t, errors.Is(err, tt.sentinel), "got %v", err)
			}
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
		})
	}
}

func TestFileKnowledgeGraphRepository_ListGraphs(t *testing.T) {
	dir := t.TempDir()
	writeGraph(t, dir, "recon.yaml", reconGraphYAML)
	writeGraph(t, dir, "hana.json", hanaGraphJSON)
	writeGraph(t, dir, "notes.txt", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive.yaml"), 0o755))

	ids, err := NewFileKnowledgeGraphRepository(dir, zap.NewNop()).ListGraphs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"hana", "recon"}, ids)
}

func TestValidateKnowledgeGraph(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"duplicate table", "tables:\n  - name: a\n  - name: A\n", "declared twice"},
		{"unnamed column", "tables:\n  - name: a\n    columns:\n      - data_type: int\n", "has no name"},
		{"confidence out of range", "relationships:\n  - {source_table: a, source_column: x, target_table: b, target_column: y, confidence: 1.5}\n", "outside [0,1]"},
		{"valid", "tables:\n  - name: a\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseKnowledgeGraph([]byte(tt.doc))
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
