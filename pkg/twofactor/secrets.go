package twofactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/twofactor/pkg/clock"
	"github.com/dmitrymomot/twofactor/pkg/logger"
	"github.com/dmitrymomot/twofactor/pkg/totp"
)

// SecretManager provisions TOTP credentials and issues backup code batches.
type SecretManager struct {
	storage    CredentialStorage
	issuer     string
	secretSize int
	period     time.Duration
	codeCount  int
	hasher     totp.CodeHasher
	cipher     *totp.Cipher
	clock      clock.Clock
	logger     *slog.Logger
}

// NewSecretManager builds a SecretManager from cfg. Secrets are encrypted at rest
// when cfg.TOTP.EncryptionKey is set or WithCipher is passed.
func NewSecretManager(storage CredentialStorage, cfg Config, opts ...Option) (*SecretManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts)

	cipher := o.cipher
	if cipher == nil {
		c, err := cfg.TOTP.Cipher()
		if err != nil {
			return nil, errors.Join(ErrInvalidConfig, err)
		}
		cipher = c
	}

	hasher := o.hasher
	if hasher == nil {
		hasher = totp.NewBcryptHasher(cfg.BackupCodeCost)
	}

	return &SecretManager{
		storage:    storage,
		issuer:     cfg.Issuer,
		secretSize: cfg.TOTP.SecretSize,
		period:     cfg.TOTP.Period,
		codeCount:  cfg.BackupCodeCount,
		hasher:     hasher,
		cipher:     cipher,
		clock:      o.clock,
		logger:     o.logger.With(logger.Component("twofactor.secrets")),
	}, nil
}

// Provision creates a fresh secret and backup code batch for userID in the
// provisioned-but-disabled state, replacing any unconfirmed provisioning.
// accountLabel is shown in authenticator apps, usually the user's email.
func (m *SecretManager) Provision(ctx context.Context, userID, accountLabel string) (*Provisioning, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if accountLabel == "" {
		return nil, ErrAccountLabelRequired
	}

	existing, err := m.storage.GetCredential(ctx, userID)
	switch {
	case err == nil && existing.Enabled:
		return nil, ErrAlreadyEnabled
	case err != nil && !errors.Is(err, ErrCredentialNotFound):
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	secret, err := totp.GenerateSecret(m.secretSize)
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	uri, err := totp.ProvisioningURI(totp.URIParams{
		Secret:      secret,
		AccountName: accountLabel,
		Issuer:      m.issuer,
		Period:      m.period,
	})
	if err != nil {
		return nil, fmt.Errorf("build provisioning uri: %w", err)
	}

	plain, codes, err := m.GenerateBackupCodes(userID)
	if err != nil {
		return nil, err
	}

	stored, err := m.seal(secret)
	if err != nil {
		return nil, err
	}

	cred := &Credential{
		UserID:    userID,
		Secret:    stored,
		CreatedAt: m.clock.Now(),
	}
	if err := m.storage.SaveProvisioning(ctx, cred, codes); err != nil {
		if errors.Is(err, ErrAlreadyEnabled) {
			return nil, ErrAlreadyEnabled
		}
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	m.logger.InfoContext(ctx, "two-factor provisioned",
		logger.UserID(userID),
		logger.Event("2fa.provisioned"),
		logger.Count(int64(len(codes))),
	)

	return &Provisioning{
		Secret:      secret,
		URI:         uri,
		BackupCodes: plain,
	}, nil
}

// GenerateBackupCodes creates one batch for userID and returns the plaintext
// codes alongside the hashed rows to persist. The plaintext must be shown to the
// user once and then dropped.
func (m *SecretManager) GenerateBackupCodes(userID string) ([]string, []BackupCode, error) {
	plain, err := totp.GenerateBackupCodes(m.codeCount, totp.DefaultDigits)
	if err != nil {
		return nil, nil, fmt.Errorf("generate backup codes: %w", err)
	}

	now := m.clock.Now()
	rows := make([]BackupCode, 0, len(plain))
	for _, code := range plain {
		hash, err := m.hasher.Hash(code)
		if err != nil {
			return nil, nil, fmt.Errorf("hash backup code: %w", err)
		}
		rows = append(rows, BackupCode{
			ID:        uuid.New(),
			UserID:    userID,
			CodeHash:  hash,
			CreatedAt: now,
		})
	}
	return plain, rows, nil
}

// Reveal returns the base32 secret of cred, decrypting it when needed.
func (m *SecretManager) Reveal(cred *Credential) (string, error) {
	if cred == nil || cred.Secret == "" {
		return "", ErrNotProvisioned
	}
	if m.cipher == nil {
		return cred.Secret, nil
	}
	secret, err := m.cipher.Decrypt(cred.Secret)
	if err != nil {
		return "", fmt.Errorf("decrypt secret: %w", err)
	}
	return secret, nil
}

// Hasher returns the backup code hasher shared with BackupCodes.
func (m *SecretManager) Hasher() totp.CodeHasher {
	return m.hasher
}

func (m *SecretManager) seal(secret string) (string, error) {
	if m.cipher == nil {
		return secret, nil
	}
	enc, err := m.cipher.Encrypt(secret)
	if err != nil {
		return "", fmt.Errorf("encrypt secret: %w", err)
	}
	return enc, nil
}
