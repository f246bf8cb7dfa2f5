package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/calmhaven/calmhaven-backend/database"
)

// ApplyCoreSchema executes the embedded core DDL statement by statement
// against a fresh or existing database. All statements are idempotent.
func ApplyCoreSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, raw := range strings.Split(stripSQLComments(sqlassets.CoreSchemaSQL), ";") {
		stmt := strings.TrimSpace(raw)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply core schema: %w", err)
		}
	}
	return nil
}

func stripSQLComments(sql string) string {
	lines := strings.Split(sql, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
