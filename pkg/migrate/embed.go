package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
)

// EmbeddedDir is the path of the migrations inside FS.
const EmbeddedDir = "migrations"

// FS carries the SQL migrations compiled into every binary.
//
//go:embed migrations/*.sql
var FS embed.FS

// RunEmbedded executes a goose command against the compiled-in migrations.
func RunEmbedded(ctx context.Context, db *sql.DB, command string, args ...string) error {
	if err := run(ctx, db, FS, EmbeddedDir, command, args...); err != nil {
		return fmt.Errorf("embedded migrations: %w", err)
	}
	return nil
}
