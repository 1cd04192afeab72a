package repositories

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/ekaya-inc/recon-engine/pkg/apperrors"
	"github.com/ekaya-inc/recon-engine/pkg/models"
)

// KnowledgeGraphRepository loads immutable knowledge graph snapshots.
type KnowledgeGraphRepository interface {
	// GetSnapshot returns the current snapshot of graphID, or an error
	// wrapping apperrors.ErrNotFound.
	GetSnapshot(ctx context.Context, graphID string) (*models.KnowledgeGraph, error)

	// ListGraphs returns the IDs of all stored graphs, sorted.
	ListGraphs(ctx context.Context) ([]string, error)
}

var graphIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidateGraphID rejects IDs that could escape a storage namespace.
func ValidateGraphID(graphID string) error {
	if !graphIDPattern.MatchString(graphID) || strings.Contains(graphID, "..") {
		return fmt.Errorf("%w: invalid knowledge graph id %q", apperrors.ErrInvalidRequest, graphID)
	}
	return nil
}

// ValidateKnowledgeGraph checks that every table and edge is well formed.
func ValidateKnowledgeGraph(kg *models.KnowledgeGraph) error {
	seen := make(map[string]bool, len(kg.Tables))
	for i, t := range kg.Tables {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("table %d has no name", i)
		}
		key := strings.ToLower(t.Name)
		if seen[key] {
			return fmt.Errorf("table %q is declared twice", t.Name)
		}
		seen[key] = true
		for j, c := range t.Columns {
			if strings.TrimSpace(c.Name) == "" {
				return fmt.Errorf("table %q: column %d has no name", t.Name, j)
			}
		}
	}
	for i, e := range kg.Relationships {
		if e.SourceTable == "" || e.TargetTable == "" || e.SourceColumn == "" || e.TargetColumn == "" {
			return fmt.Errorf("relationship %d is missing a table or column", i)
		}
		if e.Confidence < 0 || e.Confidence > 1 {
			return fmt.Errorf("relationship %d: confidence %v is outside [0,1]", i, e.Confidence)
		}
	}
	return nil
}

// contentVersion derives a snapshot version from the bytes it was loaded from.
func contentVersion(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}
