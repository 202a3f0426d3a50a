package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema/*.sql
var schemaFS embed.FS

func statements(name string) ([]string, error) {
	raw, err := schemaFS.ReadFile("schema/" + name)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, stmt := range strings.Split(string(raw), ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// Migrate creates the MySQL tables when they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts, err := statements("mysql.sql")
	if err != nil {
		return err
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("mysql schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

// MigratePostgres creates the Postgres tables when they do not exist yet.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	stmts, err := statements("postgres.sql")
	if err != nil {
		return err
	}
	for i, s := range stmts {
		if _, err := pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("postgres schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
