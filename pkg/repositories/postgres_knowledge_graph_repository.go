package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/recon-engine/pkg/apperrors"
	"github.com/ekaya-inc/recon-engine/pkg/models"
)

// KnowledgeGraphWriter replaces stored knowledge graphs.
type KnowledgeGraphWriter interface {
	// SaveSnapshot replaces graph kg.ID with kg in one transaction and
	// returns the new version.
	SaveSnapshot(ctx context.Context, kg *models.KnowledgeGraph) (string, error)

	// Delete removes a graph. Deleting an unknown graph is ErrNotFound.
	Delete(ctx context.Context, graphID string) error
}

// PostgresKnowledgeGraphRepository stores knowledge graphs in the kg_* tables.
type PostgresKnowledgeGraphRepository interface {
	KnowledgeGraphRepository
	KnowledgeGraphWriter
}

type postgresKnowledgeGraphRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresKnowledgeGraphRepository creates a repository over pool.
func NewPostgresKnowledgeGraphRepository(pool *pgxpool.Pool) PostgresKnowledgeGraphRepository {
	return &postgresKnowledgeGraphRepository{pool: pool}
}

var _ PostgresKnowledgeGraphRepository = (*postgresKnowledgeGraphRepository)(nil)

func (r *postgresKnowledgeGraphRepository) GetSnapshot(ctx context.Context, graphID string) (*models.KnowledgeGraph, error) {
	if err := ValidateGraphID(graphID); err != nil {
		return nil, err
	}

	// Read everything in one repeatable-read transaction so a concurrent
	// SaveSnapshot cannot produce a mixed snapshot.
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var version int64
	err = tx.QueryRow(ctx, `SELECT version FROM kg_graphs WHERE id = $1`, graphID).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: knowledge graph %q", apperrors.ErrNotFound, graphID)
		}
		return nil, fmt.Errorf("failed to get knowledge graph: %w", err)
	}

	kg := &models.KnowledgeGraph{ID: graphID, Version: strconv.FormatInt(version, 10)}

	if err := r.loadTables(ctx, tx, kg); err != nil {
		return nil, err
	}
	if err := r.loadRelationships(ctx, tx, kg); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return kg, nil
}

func (r *postgresKnowledgeGraphRepository) loadTables(ctx context.Context, tx pgx.Tx, kg *models.KnowledgeGraph) error {
	rows, err := tx.Query(ctx, `
		SELECT name, aliases
		FROM kg_tables
		WHERE graph_id = $1
		ORDER BY position`, kg.ID)
	if err != nil {
		return fmt.Errorf("failed to list knowledge graph tables: %w", err)
	}
	positions := make(map[string]int)
	for rows.Next() {
		var t models.KGTable
		if err := rows.Scan(&t.Name, &t.Aliases); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan knowledge graph table: %w", err)
		}
		positions[t.Name] = len(kg.Tables)
		kg.Tables = append(kg.Tables, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating knowledge graph tables: %w", err)
	}

	rows, err = tx.Query(ctx, `
		SELECT table_name, name, data_type
		FROM kg_columns
		WHERE graph_id = $1
		ORDER BY table_name, position`, kg.ID)
	if err != nil {
		return fmt.Errorf("failed to list knowledge graph columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var table string
		var c models.KGColumn
		if err := rows.Scan(&table, &c.Name, &c.DataType); err != nil {
			return fmt.Errorf("failed to scan knowledge graph column: %w", err)
		}
		if i, ok := positions[table]; ok {
			kg.Tables[i].Columns = append(kg.Tables[i].Columns, c)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating knowledge graph columns: %w", err)
	}
	return nil
}

func (r *postgresKnowledgeGraphRepository) loadRelationships(ctx context.Context, tx pgx.Tx, kg *models.KnowledgeGraph) error {
	rows, err := tx.Query(ctx, `
		SELECT source_table, source_column, target_table, target_column, confidence, relationship_type
		FROM kg_relationships
		WHERE graph_id = $1
		ORDER BY position`, kg.ID)
	if err != nil {
		return fmt.Errorf("failed to list knowledge graph relationships: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.RelationshipEdge
		var confidence *float64
		if err := rows.Scan(&e.SourceTable, &e.SourceColumn, &e.TargetTable, &e.TargetColumn, &confidence, &e.RelationshipType); err != nil {
			return fmt.Errorf("failed to scan knowledge graph relationship: %w", err)
		}
		if confidence != nil {
			e.Confidence = *confidence
		}
		kg.Relationships = append(kg.Relationships, e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating knowledge graph relationships: %w", err)
	}
	return nil
}

func (r *postgresKnowledgeGraphRepository) ListGraphs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM kg_graphs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge graphs: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan knowledge graph ids: %w", err)
	}
	return ids, nil
}

func (r *postgresKnowledgeGraphRepository) SaveSnapshot(ctx context.Context, kg *models.KnowledgeGraph) (string, error) {
	if err := ValidateGraphID(kg.ID); err != nil {
		return "", err
	}
	if err := ValidateKnowledgeGraph(kg); err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrInvalidRequest, err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var version int64
	err = tx.QueryRow(ctx, `
		INSERT INTO kg_graphs (id, version) VALUES ($1, 1)
		ON CONFLICT (id) DO UPDATE SET version = kg_graphs.version + 1, updated_at = now()
		RETURNING version`, kg.ID).Scan(&version)
	if err != nil {
		return "", fmt.Errorf("failed to upsert knowledge graph: %w", err)
	}

	// Columns cascade from tables.
	if _, err := tx.Exec(ctx, `DELETE FROM kg_tables WHERE graph_id = $1`, kg.ID); err != nil {
		return "", fmt.Errorf("failed to clear knowledge graph tables: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM kg_relationships WHERE graph_id = $1`, kg.ID); err != nil {
		return "", fmt.Errorf("failed to clear knowledge graph relationships: %w", err)
	}

	tableRows := make([][]any, 0, len(kg.Tables))
	var columnRows [][]any
	for i, t := range kg.Tables {
		aliases := t.Aliases
		if aliases == nil {
			aliases = []string{}
		}
		tableRows = append(tableRows, []any{kg.ID, t.Name, aliases, i})
		for j, c := range t.Columns {
			columnRows = append(columnRows, []any{kg.ID, t.Name, c.Name, c.DataType, j})
		}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"kg_tables"},
		[]string{"graph_id", "name", "aliases", "position"},
		pgx.CopyFromRows(tableRows)); err != nil {
		return "", fmt.Errorf("failed to insert knowledge graph tables: %w", err)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"kg_columns"},
		[]string{"graph_id", "table_name", "name", "data_type", "position"},
		pgx.CopyFromRows(columnRows)); err != nil {
		return "", fmt.Errorf("failed to insert knowledge graph columns: %w", err)
	}

	edgeRows := make([][]any, 0, len(kg.Relationships))
	for i, e := range kg.Relationships {
		var confidence *float64
		if e.Confidence > 0 {
			c := e.Confidence
			confidence = &c
		}
		edgeRows = append(edgeRows, []any{
			kg.ID, e.SourceTable, e.SourceColumn, e.TargetTable, e.TargetColumn, confidence, e.RelationshipType, i,
		})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"kg_relationships"},
		[]string{"graph_id", "source_table", "source_column", "target_table", "target_column", "confidence", "relationship_type", "position"},
		pgx.CopyFromRows(edgeRows)); err != nil {
		return "", fmt.Errorf("failed to insert knowledge graph relationships: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit knowledge graph: %w", err)
	}
	return strconv.FormatInt(version, 10), nil
}

func (r *postgresKnowledgeGraphRepository) Delete(ctx context.Context, graphID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM kg_graphs WHERE id = $1`, graphID)
	if err != nil {
		return fmt.Errorf("failed to delete knowledge graph: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: knowledge graph %q", apperrors.ErrNotFound, graphID)
	}
	return nil
}
