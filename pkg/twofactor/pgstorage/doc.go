// Package pgstorage stores two-factor credentials and backup codes in
// PostgreSQL through pgx.
//
// Migrate applies the embedded goose migrations, which also create the
// twofactor_attempts table used by ratelimit.PostgresStore:
//
//	pool, err := pg.Connect(ctx, pgCfg)
//	if err != nil {
//		return err
//	}
//	if err := pgstorage.Migrate(ctx, pool, pgCfg.MigrationsTable, log); err != nil {
//		return err
//	}
//
//	svc, err := twofactor.NewServiceFromConfig(
//		pgstorage.New(pool),
//		ratelimit.NewPostgresStore(pool, ratelimit.DefaultAttemptsTable),
//		cfg,
//		twofactor.WithLogger(log),
//	)
//
// Provisioning is an upsert guarded by enabled = FALSE, and consuming a backup
// code is an UPDATE guarded by is_used = FALSE, so concurrent requests cannot
// overwrite an enabled credential or consume a code twice.
package pgstorage
