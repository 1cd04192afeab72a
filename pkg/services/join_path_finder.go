package services

import (
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/recon-engine/pkg/models"
)

// PathfindingConfig tunes join path search and ranking.
type PathfindingConfig struct {
	MaxHops          int
	ConfidenceWeight float64
	LengthWeight     float64
}

// DefaultPathfindingConfig caps paths at 5 hops and ranks them by
// confidence*0.7 + (1/hops)*0.3.
func DefaultPathfindingConfig() PathfindingConfig {
	return PathfindingConfig{
		MaxHops:          5,
		ConfidenceWeight: 0.7,
		LengthWeight:     0.3,
	}
}

const scoreEpsilon = 1e-9

// JoinPathFinder finds the best chain of relationship edges between two tables.
type JoinPathFinder struct {
	index  *RelationshipIndex
	cfg    PathfindingConfig
	logger *zap.Logger
}

// NewJoinPathFinder creates a finder over index. Zero config fields take
// their defaults.
func NewJoinPathFinder(index *RelationshipIndex, cfg PathfindingConfig, logger *zap.Logger) *JoinPathFinder {
	defaults := DefaultPathfindingConfig()
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = defaults.MaxHops
	}
	if cfg.ConfidenceWeight == 0 && cfg.LengthWeight == 0 {
		cfg.ConfidenceWeight = defaults.ConfidenceWeight
		cfg.LengthWeight = defaults.LengthWeight
	}
	return &JoinPathFinder{
		index:  index,
		cfg:    cfg,
		logger: logger.Named("join-path-finder"),
	}
}

type frontierEntry struct {
	table      string
	path       []string
	lowered    []string
	hops       []models.ColumnPair
	edges      []models.RelationshipEdge
	confidence float64
}

// FindPath runs a breadth-first search over the relationship graph from
// source to target, traversing every edge in both directions. Every path of
// at most MaxHops that reaches target is a candidate; the candidate with the
// highest score wins. ok is false when no path exists.
func (f *JoinPathFinder) FindPath(source, target string) (*models.JoinPath, bool) {
	src, srcOK := f.index.CanonicalTable(source)
	dst, dstOK := f.index.CanonicalTable(target)
	if !srcOK || !dstOK || strings.EqualFold(src, dst) {
		return nil, false
	}
	targetKey := strings.ToLower(dst)

	queue := []frontierEntry{{
		table:      src,
		path:       []string{src},
		lowered:    []string{strings.ToLower(src)},
		confidence: 1.0,
	}}

	var best *models.JoinPath
	candidates := 0

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.lowered[len(cur.lowered)-1] == targetKey {
			candidates++
			candidate := f.newPath(cur)
			if best == nil || betterPath(candidate, best) {
				best = candidate
			}
			continue
		}
		if len(cur.hops) >= f.cfg.MaxHops {
			continue
		}

		for _, edge := range f.index.EdgesIncidentOn(cur.table) {
			next, cols, ok := edge.OtherEnd(cur.table)
			if !ok {
				continue
			}
			next, _ = f.index.CanonicalTable(next)
			nextKey := strings.ToLower(next)
			if containsString(cur.lowered, nextKey) {
				continue
			}

			queue = append(queue, frontierEntry{
				table:      next,
				path:       appendCopy(cur.path, next),
				lowered:    appendCopy(cur.lowered, nextKey),
				hops:       appendCopy(cur.hops, cols),
				edges:      appendCopy(cur.edges, edge),
				confidence: cur.confidence * edge.Confidence,
			})
		}
	}

	if best == nil {
		f.logger.Debug("No join path",
			zap.String("source", src),
			zap.String("target", dst),
			zap.Int("max_hops", f.cfg.MaxHops))
		return nil, false
	}

	f.logger.Debug("Join path selected",
		zap.String("source", src),
		zap.String("target", dst),
		zap.Strings("path", best.Path),
		zap.Float64("confidence", best.Confidence),
		zap.Float64("score", best.Score),
		zap.Int("candidates", candidates))

	return best, true
}

func (f *JoinPathFinder) newPath(e frontierEntry) *models.JoinPath {
	hops := len(e.hops)
	return &models.JoinPath{
		SourceTable: e.path[0],
		TargetTable: e.path[len(e.path)-1],
		Path:        e.path,
		HopColumns:  e.hops,
		Confidence:  e.confidence,
		Score:       e.confidence*f.cfg.ConfidenceWeight + (1/float64(hops))*f.cfg.LengthWeight,
		Edges:       e.edges,
	}
}

// betterPath orders candidates totally: higher score, then fewer hops, then
// the lexicographically smaller table sequence, then column sequence.
func betterPath(a, b *models.JoinPath) bool {
	if math.Abs(a.Score-b.Score) > scoreEpsilon {
		return a.Score > b.Score
	}
	if a.HopCount() != b.HopCount() {
		return a.HopCount() < b.HopCount()
	}
	if ak, bk := pathKey(a.Path), pathKey(b.Path); ak != bk {
		return ak < bk
	}
	return columnKey(a.HopColumns) < columnKey(b.HopColumns)
}

func pathKey(path []string) string {
	return strings.ToLower(strings.Join(path, "\x00"))
}

func columnKey(cols []models.ColumnPair) string {
	parts := make([]string, 0, len(cols)*2)
	for _, c := range cols {
		parts = append(parts, c.Left, c.Right)
	}
	return strings.ToLower(strings.Join(parts, "\x00"))
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func appendCopy[T any](s []T, v T) []T {
	out := make([]T, len(s), len(s)+1)
	copy(out, s)
	return append(out, v)
}
