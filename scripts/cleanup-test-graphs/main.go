// cleanup-test-graphs removes test-like knowledge graphs from the postgres
// knowledge graph store.
//
// Graph IDs matched (case-insensitive):
// - ^test (starts with "test")
// - test$ (ends with "test")
// - ^tmp (temporary imports)
// - ^scratch (scratch graphs)
// - ^example (example prefix)
//
// Usage: go run ./scripts/cleanup-test-graphs
//
// Database connection: Uses standard PG* environment variables
//
// Flags:
//
//	-dry-run   Show what would be deleted without actually deleting (default: true)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
)

// testGraphPatterns are matched with PostgreSQL's ~* operator.
var testGraphPatterns = []string{
	`^test`,    // Starts with "test"
	`test$`,    // Ends with "test"
	`^tmp`,     // Temporary imports
	`^scratch`, // Scratch graphs
	`^example`, // Example prefix
}

func main() {
	dryRun := flag.Bool("dry-run", true, "Show what would be deleted without actually deleting")
	flag.Parse()

	ctx := context.Background()

	conn, err := pgx.Connect(ctx, buildConnString())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close(ctx)

	if *dryRun {
		fmt.Println("DRY RUN - no changes will be made")
		fmt.Println("Run with -dry-run=false to actually delete graphs")
		fmt.Println()
	}

	totalDeleted := 0
	for _, pattern := range testGraphPatterns {
		count, err := cleanupTestGraphs(ctx, conn, pattern, *dryRun)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error cleaning pattern %q: %v\n", pattern, err)
			os.Exit(1)
		}
		totalDeleted += count
	}

	if *dryRun {
		fmt.Printf("\nTotal graphs that would be deleted: %d\n", totalDeleted)
	} else {
		fmt.Printf("\nTotal graphs deleted: %d\n", totalDeleted)
	}
}

// cleanupTestGraphs deletes graphs whose ID matches pattern. Tables, columns
// and relationships go with them through ON DELETE CASCADE.
func cleanupTestGraphs(ctx context.Context, conn *pgx.Conn, pattern string, dryRun bool) (int, error) {
	if dryRun {
		rows, err := conn.Query(ctx, `
			SELECT g.id, g.version,
			       (SELECT count(*) FROM kg_tables t WHERE t.graph_id = g.id),
			       (SELECT count(*) FROM kg_relationships r WHERE r.graph_id = g.id)
			FROM kg_graphs g
			WHERE g.id ~* $1
			ORDER BY g.id
		`, pattern)
		if err != nil {
			return 0, fmt.Errorf("query failed: %w", err)
		}
		defer rows.Close()

		var count int
		for rows.Next() {
			var (
				id                    string
				version               int64
				tables, relationships int64
			)
			if err := rows.Scan(&id, &version, &tables, &relationships); err != nil {
				return 0, fmt.Errorf("scan failed: %w", err)
			}
			count++
			fmt.Printf("  [%s] %q v%d (%d tables, %d relationships)\n", pattern, truncate(id, 60), version, tables, relationships)
		}
		if err := rows.Err(); err != nil {
			return 0, fmt.Errorf("rows iteration failed: %w", err)
		}

		if count == 0 {
			fmt.Printf("  [%s] No matching graphs\n", pattern)
		}
		return count, nil
	}

	result, err := conn.Exec(ctx, `DELETE FROM kg_graphs WHERE id ~* $1`, pattern)
	if err != nil {
		return 0, fmt.Errorf("delete failed: %w", err)
	}

	count := int(result.RowsAffected())
	fmt.Printf("Deleted %d graphs matching pattern: %s\n", count, pattern)
	return count, nil
}

func buildConnString() string {
	host := getEnvOrDefault("PGHOST", "localhost")
	port := getEnvOrDefault("PGPORT", "5432")
	user := getEnvOrDefault("PGUSER", "recon")
	password := os.Getenv("PGPASSWORD")
	dbname := getEnvOrDefault("PGDATABASE", "recon_engine")

	connStr := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		host, port, user, dbname)
	if password != "" {
		connStr += fmt.Sprintf(" password=%s", password)
	}
	return connStr
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// truncate shortens a string to maxLen characters, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
