// Package migrations embeds the SQL migrations for the knowledge graph store.
package migrations

import "embed"

// FS holds every *.up.sql and *.down.sql migration.
//
//go:embed *.sql
var FS embed.FS
