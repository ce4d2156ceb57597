// Package migrations holds the PostgreSQL schema. Every statement is idempotent.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed *.sql
var files embed.FS

// Apply runs every migration file in name order.
func Apply(ctx context.Context, db *pgxpool.Pool) error {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return fmt.Errorf("migrations: list: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		b, err := files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("migrations: read %s: %w", name, err)
		}

		if _, err := db.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("migrations: apply %s: %w", name, err)
		}

		slog.InfoContext(ctx, "migrations: applied", "file", name)
	}

	return nil
}
