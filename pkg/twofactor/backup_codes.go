package twofactor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmitrymomot/twofactor/pkg/clock"
	"github.com/dmitrymomot/twofactor/pkg/logger"
	"github.com/dmitrymomot/twofactor/pkg/totp"
)

// BackupCodes verifies, counts and rotates hashed single-use backup codes.
type BackupCodes struct {
	storage Storage
	secrets *SecretManager
	hasher  totp.CodeHasher
	clock   clock.Clock
	logger  *slog.Logger
}

// NewBackupCodes creates the backup code component. New batches are issued by
// secrets so provisioning and regeneration share one routine.
func NewBackupCodes(storage Storage, secrets *SecretManager, opts ...Option) *BackupCodes {
	o := applyOptions(opts)
	return &BackupCodes{
		storage: storage,
		secrets: secrets,
		hasher:  secrets.Hasher(),
		clock:   o.clock,
		logger:  o.logger.With(logger.Component("twofactor.backup_codes")),
	}
}

// VerifyAndConsume compares code against every unused hash of the user and
// consumes the first match with a conditional update. A code that another
// request consumed in the meantime fails like any wrong code.
func (b *BackupCodes) VerifyAndConsume(ctx context.Context, userID, code string) (*VerificationResult, error) {
	code = totp.NormalizeBackupCode(code)
	if code == "" {
		return nil, ErrInvalidCode
	}

	rows, err := b.storage.GetUnusedBackupCodes(ctx, userID)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	for _, row := range rows {
		if !b.hasher.Compare(row.CodeHash, code) {
			continue
		}

		consumed, err := b.storage.MarkBackupCodeUsed(ctx, row.ID, b.clock.Now())
		if err != nil {
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
		if !consumed {
			b.logger.WarnContext(ctx, "backup code consumed concurrently",
				logger.UserID(userID),
				logger.Event("2fa.backup_code.race"),
			)
			return nil, ErrInvalidCode
		}

		b.logger.InfoContext(ctx, "backup code consumed",
			logger.UserID(userID),
			logger.Event("2fa.backup_code.used"),
		)
		return &VerificationResult{
			Valid:          true,
			Method:         MethodBackupCode,
			BackupCodeUsed: true,
		}, nil
	}

	return nil, ErrInvalidCode
}

// Info reports how many codes the user has and how many are used.
func (b *BackupCodes) Info(ctx context.Context, userID string) (*BackupCodesInfo, error) {
	total, used, err := b.storage.CountBackupCodes(ctx, userID)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return &BackupCodesInfo{Total: total, Used: used}, nil
}

// Regenerate replaces every unused code of an enabled user with a new batch and
// returns the plaintext codes once. Used codes stay recorded.
func (b *BackupCodes) Regenerate(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	cred, err := b.storage.GetCredential(ctx, userID)
	switch {
	case errors.Is(err, ErrCredentialNotFound):
		return nil, ErrNotEnabled
	case err != nil:
		return nil, errors.Join(ErrStoreUnavailable, err)
	case !cred.Enabled:
		return nil, ErrNotEnabled
	}

	plain, rows, err := b.secrets.GenerateBackupCodes(userID)
	if err != nil {
		return nil, err
	}

	if err := b.storage.ReplaceUnusedBackupCodes(ctx, userID, rows); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	b.logger.InfoContext(ctx, "backup codes regenerated",
		logger.UserID(userID),
		logger.Event("2fa.backup_codes.regenerated"),
		logger.Count(int64(len(rows))),
	)
	return plain, nil
}

// PurgeUsed deletes the used codes of the user, which are otherwise kept as an
// audit trail.
func (b *BackupCodes) PurgeUsed(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ErrUserIDRequired
	}
	n, err := b.storage.DeleteUsedBackupCodes(ctx, userID)
	if err != nil {
		return 0, errors.Join(ErrStoreUnavailable, err)
	}
	return n, nil
}
