package pgstorage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/twofactor/pkg/pg"
	"github.com/dmitrymomot/twofactor/pkg/twofactor"
)

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	pg.Querier
	pg.Beginner
}

// Storage implements twofactor.Storage on the tables created by Migrate.
type Storage struct {
	db DB
}

// New creates a Storage over db.
func New(db DB) *Storage {
	return &Storage{db: db}
}

var _ twofactor.Storage = (*Storage)(nil)

const (
	selectCredential = `
		SELECT user_id, secret, enabled, created_at, enabled_at
		FROM twofactor_credentials
		WHERE user_id = $1`

	upsertUnconfirmedCredential = `
		INSERT INTO twofactor_credentials (user_id, secret, enabled, created_at, enabled_at)
		VALUES ($1, $2, FALSE, $3, NULL)
		ON CONFLICT (user_id) DO UPDATE
		SET secret = EXCLUDED.secret, created_at = EXCLUDED.created_at, enabled_at = NULL
		WHERE twofactor_credentials.enabled = FALSE`

	enableCredential = `
		UPDATE twofactor_credentials
		SET enabled = TRUE, enabled_at = $2
		WHERE user_id = $1 AND enabled = FALSE`

	credentialExists = `SELECT EXISTS (SELECT 1 FROM twofactor_credentials WHERE user_id = $1)`

	deleteCredential = `DELETE FROM twofactor_credentials WHERE user_id = $1`

	selectUnusedCodes = `
		SELECT id, user_id, code_hash, is_used, used_at, created_at
		FROM twofactor_backup_codes
		WHERE user_id = $1 AND is_used = FALSE
		ORDER BY created_at ASC`

	markCodeUsed = `
		UPDATE twofactor_backup_codes
		SET is_used = TRUE, used_at = $2
		WHERE id = $1 AND is_used = FALSE`

	countCodes = `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_used)
		FROM twofactor_backup_codes
		WHERE user_id = $1`

	insertCode = `
		INSERT INTO twofactor_backup_codes (id, user_id, code_hash, is_used, used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	deleteAllCodes    = `DELETE FROM twofactor_backup_codes WHERE user_id = $1`
	deleteUnusedCodes = `DELETE FROM twofactor_backup_codes WHERE user_id = $1 AND is_used = FALSE`
	deleteUsedCodes   = `DELETE FROM twofactor_backup_codes WHERE user_id = $1 AND is_used = TRUE`
)

func (s *Storage) GetCredential(ctx context.Context, userID string) (*twofactor.Credential, error) {
	var c twofactor.Credential
	err := s.db.QueryRow(ctx, selectCredential, userID).
		Scan(&c.UserID, &c.Secret, &c.Enabled, &c.CreatedAt, &c.EnabledAt)
	if pg.IsNotFoundError(err) {
		return nil, twofactor.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &c, nil
}

func (s *Storage) SaveProvisioning(ctx context.Context, cred *twofactor.Credential, codes []twofactor.BackupCode) error {
	return pg.InTx(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, upsertUnconfirmedCredential, cred.UserID, cred.Secret, cred.CreatedAt)
		if err != nil {
			return fmt.Errorf("save credential: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return twofactor.ErrAlreadyEnabled
		}

		if _, err := tx.Exec(ctx, deleteAllCodes, cred.UserID); err != nil {
			return fmt.Errorf("delete backup codes: %w", err)
		}
		return insertCodes(ctx, tx, codes)
	})
}

func (s *Storage) EnableCredential(ctx context.Context, userID string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, enableCredential, userID, at)
	if err != nil {
		return false, fmt.Errorf("enable credential: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx, credentialExists, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check credential: %w", err)
	}
	if !exists {
		return false, twofactor.ErrCredentialNotFound
	}
	return false, nil
}

// DeleteCredential removes the credential. Backup codes go with it through the
// foreign key cascade.
func (s *Storage) DeleteCredential(ctx context.Context, userID string) error {
	if _, err := s.db.Exec(ctx, deleteCredential, userID); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

func (s *Storage) GetUnusedBackupCodes(ctx context.Context, userID string) ([]twofactor.BackupCode, error) {
	rows, err := s.db.Query(ctx, selectUnusedCodes, userID)
	if err != nil {
		return nil, fmt.Errorf("get backup codes: %w", err)
	}
	codes, err := pgx.CollectRows(rows, scanBackupCode)
	if err != nil {
		return nil, fmt.Errorf("scan backup codes: %w", err)
	}
	return codes, nil
}

func (s *Storage) MarkBackupCodeUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, markCodeUsed, id, usedAt)
	if err != nil {
		return false, fmt.Errorf("mark backup code used: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Storage) CountBackupCodes(ctx context.Context, userID string) (int, int, error) {
	var total, used int
	if err := s.db.QueryRow(ctx, countCodes, userID).Scan(&total, &used); err != nil {
		return 0, 0, fmt.Errorf("count backup codes: %w", err)
	}
	return total, used, nil
}

func (s *Storage) ReplaceUnusedBackupCodes(ctx context.Context, userID string, codes []twofactor.BackupCode) error {
	return pg.InTx(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, deleteUnusedCodes, userID); err != nil {
			return fmt.Errorf("delete unused backup codes: %w", err)
		}
		return insertCodes(ctx, tx, codes)
	})
}

func (s *Storage) DeleteUsedBackupCodes(ctx context.Context, userID string) (int64, error) {
	tag, err := s.db.Exec(ctx, deleteUsedCodes, userID)
	if err != nil {
		return 0, fmt.Errorf("delete used backup codes: %w", err)
	}
	return tag.RowsAffected(), nil
}

func insertCodes(ctx context.Context, tx pgx.Tx, codes []twofactor.BackupCode) error {
	if len(codes) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range codes {
		batch.Queue(insertCode, c.ID, c.UserID, c.CodeHash, c.IsUsed, c.UsedAt, c.CreatedAt)
	}

	br := tx.SendBatch(ctx, batch)
	var errs []error
	for range codes {
		if _, err := br.Exec(); err != nil {
			errs = append(errs, err)
			break
		}
	}
	if err := br.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("insert backup codes: %w", err)
	}
	return nil
}

func scanBackupCode(row pgx.CollectableRow) (twofactor.BackupCode, error) {
	var c twofactor.BackupCode
	err := row.Scan(&c.ID, &c.UserID, &c.CodeHash, &c.IsUsed, &c.UsedAt, &c.CreatedAt)
	return c, err
}
