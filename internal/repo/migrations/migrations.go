// Package migrations holds the schema of the SQL stores and applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

// Up applies every pending migration for dialect (goose.DialectSQLite3 or
// goose.DialectPostgres).
func Up(ctx context.Context, db *sql.DB, dialect goose.Dialect, log *zap.Logger) error {
	dir := "sqlite"
	if dialect == goose.DialectPostgres {
		dir = "postgres"
	}
	sub, err := fs.Sub(files, dir)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	provider, err := goose.NewProvider(dialect, db, sub)
	if err != nil {
		return fmt.Errorf("migrations: new provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrations: up: %w", err)
	}
	for _, r := range results {
		log.Info("migration_applied",
			zap.String("source", r.Source.Path),
			zap.Duration("took", r.Duration),
		)
	}
	return nil
}
