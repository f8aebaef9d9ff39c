package twofactor

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CredentialStorage persists TOTP credentials, at most one per user.
type CredentialStorage interface {
	// GetCredential returns ErrCredentialNotFound when the user has none.
	GetCredential(ctx context.Context, userID string) (*Credential, error)

	// SaveProvisioning stores cred in one atomic write: it inserts the credential
	// or overwrites an existing one only while enabled = false, and replaces every
	// backup code of the user with codes. Returns ErrAlreadyEnabled when the
	// stored credential is enabled.
	SaveProvisioning(ctx context.Context, cred *Credential, codes []BackupCode) error

	// EnableCredential flips enabled from false to true and reports whether the
	// row changed. Returns ErrCredentialNotFound when there is no credential.
	EnableCredential(ctx context.Context, userID string, at time.Time) (bool, error)

	// DeleteCredential removes the credential and all backup codes of the user.
	DeleteCredential(ctx context.Context, userID string) error
}

// BackupCodeStorage persists hashed backup codes.
type BackupCodeStorage interface {
	GetUnusedBackupCodes(ctx context.Context, userID string) ([]BackupCode, error)

	// MarkBackupCodeUsed sets is_used only if it is still false and reports
	// whether this call consumed the code.
	MarkBackupCodeUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) (bool, error)

	CountBackupCodes(ctx context.Context, userID string) (total, used int, err error)

	// ReplaceUnusedBackupCodes deletes the unused codes of the user and inserts
	// codes atomically. Used codes are kept.
	ReplaceUnusedBackupCodes(ctx context.Context, userID string, codes []BackupCode) error

	DeleteUsedBackupCodes(ctx context.Context, userID string) (int64, error)
}

// Storage is the persistence required by Service.
type Storage interface {
	CredentialStorage
	BackupCodeStorage
}
