package pgstorage

import (
	"context"
	"embed"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/twofactor/pkg/pg"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate creates or upgrades the credential, backup code and attempt tables.
// table names the goose version table; empty uses goose's default.
func Migrate(ctx context.Context, pool *pgxpool.Pool, table string, log Logger) error {
	return pg.MigrateFS(ctx, pool, migrations, "migrations", table, log)
}

// Logger is satisfied by *slog.Logger.
type Logger interface {
	InfoContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}
