// Package cache stores compiled natural-language queries.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/ekaya-inc/recon-engine/pkg/models"
)

// CompiledQueryCache stores compilation results. Rows are never cached.
type CompiledQueryCache interface {
	// Get returns the cached query for key; ok is false on a miss.
	Get(ctx context.Context, key string) (q *models.CompiledQuery, ok bool, err error)

	// Set stores q under key for ttl. A non-positive ttl stores nothing.
	Set(ctx context.Context, key string, q *models.CompiledQuery, ttl time.Duration) error
}

// Key hashes the parts that determine a compilation result. Parts are
// separated by NUL so ("ab","c") and ("a","bc") differ.
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}
