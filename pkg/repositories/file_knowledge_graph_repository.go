package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/recon-engine/pkg/apperrors"
	"github.com/ekaya-inc/recon-engine/pkg/models"
)

// graphFileExtensions are tried in order for each graph ID.
var graphFileExtensions = []string{".yaml", ".yml", ".json"}

type fileKnowledgeGraphRepository struct {
	dir    string
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]cachedGraphFile
}

type cachedGraphFile struct {
	path    string
	modTime time.Time
	size    int64
	graph   *models.KnowledgeGraph
}

// NewFileKnowledgeGraphRepository serves graphs stored as one YAML or JSON
// document per graph under dir. Files are re-read when they change on disk.
func NewFileKnowledgeGraphRepository(dir string, logger *zap.Logger) KnowledgeGraphRepository {
	return &fileKnowledgeGraphRepository{
		dir:    dir,
		logger: logger.Named("kg-file-repository"),
		cache:  make(map[string]cachedGraphFile),
	}
}

var _ KnowledgeGraphRepository = (*fileKnowledgeGraphRepository)(nil)

func (r *fileKnowledgeGraphRepository) GetSnapshot(ctx context.Context, graphID string) (*models.KnowledgeGraph, error) {
	if err := ValidateGraphID(graphID); err != nil {
		return nil, err
	}

	path, info, err := r.locate(graphID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.cache[graphID]; ok &&
		cached.path == path && cached.modTime.Equal(info.ModTime()) && cached.size == info.Size() {
		return cached.graph, nil
	}

	kg, err := LoadKnowledgeGraphFile(path)
	if err != nil {
		return nil, err
	}
	if kg.ID == "" {
		kg.ID = graphID
	}

	r.cache[graphID] = cachedGraphFile{path: path, modTime: info.ModTime(), size: info.Size(), graph: kg}
	r.logger.Info("Loaded knowledge graph",
		zap.String("graph_id", graphID),
		zap.String("version", kg.Version),
		zap.Int("tables", len(kg.Tables)),
		zap.Int("relationships", len(kg.Relationships)),
	)
	return kg, nil
}

func (r *fileKnowledgeGraphRepository) ListGraphs(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge graph directory: %w", err)
	}

	seen := make(map[string]bool)
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if !isGraphExtension(ext) {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ext)
		if ValidateGraphID(id) != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *fileKnowledgeGraphRepository) locate(graphID string) (string, fs.FileInfo, error) {
	for _, ext := range graphFileExtensions {
		path := filepath.Join(r.dir, graphID+ext)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, info, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}
	return "", nil, fmt.Errorf("%w: knowledge graph %q", apperrors.ErrNotFound, graphID)
}

func isGraphExtension(ext string) bool {
	for _, e := range graphFileExtensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// LoadKnowledgeGraphFile parses a YAML or JSON knowledge graph document.
// The returned version is derived from the file content.
func LoadKnowledgeGraphFile(path string) (*models.KnowledgeGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge graph file: %w", err)
	}
	kg, err := ParseKnowledgeGraph(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return kg, nil
}

// ParseKnowledgeGraph decodes a YAML or JSON knowledge graph document.
func ParseKnowledgeGraph(data []byte) (*models.KnowledgeGraph, error) {
	var kg models.KnowledgeGraph
	unmarshal := yaml.Unmarshal
	if json.Valid(data) {
		// YAML rejects tab indentation, which is common in JSON files.
		unmarshal = json.Unmarshal
	}
	if err := unmarshal(data, &kg); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge graph: %w", err)
	}
	if err := ValidateKnowledgeGraph(&kg); err != nil {
		return nil, fmt.Errorf("invalid knowledge graph: %w", err)
	}
	kg.Version = contentVersion(data)
	return &kg, nil
}
