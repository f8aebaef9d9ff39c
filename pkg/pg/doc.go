// Package pg bootstraps PostgreSQL access on top of pgx/v5.
//
// It provides Connect (pgxpool with retry), Healthcheck, InTx for
// commit-or-rollback transactions, MigrateFS for goose migrations embedded
// next to the code that owns the tables, and classifiers for common pgx and
// SQLSTATE errors.
//
// # Usage
//
//	var cfg pg.Config
//	if err := env.Parse(&cfg); err != nil {
//		return err
//	}
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.MigrateFS(ctx, pool, migrations.FS, ".", cfg.MigrationsTable, log); err != nil {
//		return err
//	}
//
//	err = pg.InTx(ctx, pool, func(tx pgx.Tx) error {
//		_, err := tx.Exec(ctx, "UPDATE ...")
//		return err
//	})
//
// # Error Handling
//
// IsNotFoundError, IsDuplicateKeyError, IsForeignKeyViolationError and
// IsRetryableError unwrap pgx errors and *pgconn.PgError values so callers can
// translate them into domain errors.
package pg
