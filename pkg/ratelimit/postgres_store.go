package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/twofactor/pkg/pg"
)

// DefaultAttemptsTable is created by the pgstorage migrations.
const DefaultAttemptsTable = "twofactor_attempts"

// PostgresDB is satisfied by *pgxpool.Pool.
type PostgresDB interface {
	pg.Querier
	pg.Beginner
}

// PostgresStore persists records in a table shaped as
// (id uuid, key text, created_at timestamptz, client_ip text, user_agent text).
// Atomic serializes per key with a transaction-scoped advisory lock, so
// concurrent steps on one key queue behind each other across processes.
type PostgresStore struct {
	db    PostgresDB
	table string
}

// NewPostgresStore creates a store over db. An empty table selects DefaultAttemptsTable.
func NewPostgresStore(db PostgresDB, table string) *PostgresStore {
	if table == "" {
		table = DefaultAttemptsTable
	}
	return &PostgresStore{
		db:    db,
		table: pgx.Identifier{table}.Sanitize(),
	}
}

func (s *PostgresStore) Atomic(ctx context.Context, key string, since time.Time, fn func(records []Record) Mutation) error {
	return pg.InTx(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return fmt.Errorf("acquire key lock: %w", err)
		}

		rows, err := tx.Query(ctx, fmt.Sprintf(
			`SELECT id, key, created_at, client_ip, user_agent FROM %s WHERE key = $1 AND created_at >= $2 ORDER BY created_at ASC`,
			s.table,
		), key, since)
		if err != nil {
			return fmt.Errorf("load attempts: %w", err)
		}
		records, err := pgx.CollectRows(rows, scanRecord)
		if err != nil {
			return fmt.Errorf("scan attempts: %w", err)
		}

		m := fn(records)

		if m.Reset {
			if err := deleteKey(ctx, tx, s.table, key); err != nil {
				return err
			}
		}
		if m.Append != nil {
			if err := insertRecord(ctx, tx, s.table, *m.Append); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) Append(ctx context.Context, rec Record) error {
	return insertRecord(ctx, s.db, s.table, rec)
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	return deleteKey(ctx, s.db, s.table, key)
}

func (s *PostgresStore) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE created_at < $1`, s.table), t)
	if err != nil {
		return 0, fmt.Errorf("delete expired attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRecord(row pgx.CollectableRow) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.Key, &rec.CreatedAt, &rec.ClientIP, &rec.UserAgent)
	return rec, err
}

func insertRecord(ctx context.Context, q pg.Querier, table string, rec Record) error {
	_, err := q.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, key, created_at, client_ip, user_agent) VALUES ($1, $2, $3, $4, $5)`,
		table,
	), rec.ID, rec.Key, rec.CreatedAt, rec.ClientIP, rec.UserAgent)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func deleteKey(ctx context.Context, q pg.Querier, table, key string) error {
	if _, err := q.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, table), key); err != nil {
		return fmt.Errorf("delete attempts: %w", err)
	}
	return nil
}
