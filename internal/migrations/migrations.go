// Package migrations embeds the goose-managed SQL schema for the
// catalog tables (spec.md §3) and exposes a single entrypoint to bring
// a database up to date, mirroring the teacher's preference for
// startup-time schema application over a separate migration binary.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var embedded embed.FS

// Up applies every pending migration using db, a *sql.DB opened with
// the pgx stdlib driver (goose operates on database/sql, unlike the
// rest of the catalog layer which uses pgx's native interface
// directly).
func Up(db *sql.DB) error {
	goose.SetBaseFS(embedded)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migrations: set dialect: %w", err)
	}
	if err := goose.Up(db, "sql"); err != nil {
		return fmt.Errorf("migrations: up: %w", err)
	}
	return nil
}
