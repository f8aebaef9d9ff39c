package twofactor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmitrymomot/twofactor/pkg/clock"
	"github.com/dmitrymomot/twofactor/pkg/logger"
	"github.com/dmitrymomot/twofactor/pkg/ratelimit"
)

// Service is the entry point used by the surrounding authentication service.
type Service struct {
	storage  Storage
	limiter  *ratelimit.Limiter
	secrets  *SecretManager
	codes    *BackupCodes
	verifier *Verifier
	clock    clock.Clock
	logger   *slog.Logger
}

// NewService wires every component over storage and limiter.
func NewService(storage Storage, limiter *ratelimit.Limiter, cfg Config, opts ...Option) (*Service, error) {
	if storage == nil {
		return nil, errors.Join(ErrInvalidConfig, errors.New("storage is required"))
	}
	if limiter == nil {
		return nil, errors.Join(ErrInvalidConfig, errors.New("limiter is required"))
	}

	secrets, err := NewSecretManager(storage, cfg, opts...)
	if err != nil {
		return nil, err
	}
	codes := NewBackupCodes(storage, secrets, opts...)
	verifier := NewVerifier(limiter, cfg.TOTP.Validator(), secrets, codes, opts...)

	o := applyOptions(opts)
	return &Service{
		storage:  storage,
		limiter:  limiter,
		secrets:  secrets,
		codes:    codes,
		verifier: verifier,
		clock:    o.clock,
		logger:   o.logger.With(logger.Component("twofactor")),
	}, nil
}

// NewServiceFromConfig builds the limiter from cfg.RateLimit over attempts and
// then the service. The limiter shares the clock passed with WithClock.
func NewServiceFromConfig(storage Storage, attempts ratelimit.Store, cfg Config, opts ...Option) (*Service, error) {
	o := applyOptions(opts)
	limiter, err := ratelimit.New(attempts, cfg.RateLimit, ratelimit.WithClock(o.clock))
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	return NewService(storage, limiter, cfg, opts...)
}

// Provision issues a new secret, provisioning URI and backup codes. Fails with
// ErrAlreadyEnabled when two-factor is already on.
func (s *Service) Provision(ctx context.Context, userID, accountLabel string) (*Provisioning, error) {
	return s.secrets.Provision(ctx, userID, accountLabel)
}

// ConfirmEnable verifies the first TOTP code after provisioning and enables the
// credential. Backup codes are not accepted here: enabling requires proof that
// the authenticator app produces valid codes.
func (s *Service) ConfirmEnable(ctx context.Context, userID, code string, meta AttemptMeta) (*VerificationResult, error) {
	cred, err := s.credential(ctx, userID)
	switch {
	case errors.Is(err, ErrCredentialNotFound):
		return nil, ErrNotProvisioned
	case err != nil:
		return nil, s.failClosed(ctx, userID, err)
	case cred.Enabled:
		return nil, ErrAlreadyEnabled
	}

	res, err := s.verifier.VerifyTOTP(ctx, userID, code, cred, meta)
	if err != nil {
		return nil, err
	}

	changed, err := s.storage.EnableCredential(ctx, userID, s.clock.Now())
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return nil, ErrNotProvisioned
		}
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	if !changed {
		return nil, ErrAlreadyEnabled
	}

	s.logger.InfoContext(ctx, "two-factor enabled",
		logger.UserID(userID),
		logger.Method(res.Method),
		logger.Event("2fa.enabled"),
	)
	return res, nil
}

// Verify checks a code for a user with two-factor enabled. Login and every
// privileged flow call it before acting.
func (s *Service) Verify(ctx context.Context, userID, code string, meta AttemptMeta) (*VerificationResult, error) {
	cred, err := s.enabledCredential(ctx, userID)
	if err != nil {
		return nil, s.failClosed(ctx, userID, err)
	}
	return s.verifier.Verify(ctx, userID, code, cred, meta)
}

// Status reports whether two-factor is enabled and, when it is, the backup code
// counts.
func (s *Service) Status(ctx context.Context, userID string) (*Status, error) {
	cred, err := s.credential(ctx, userID)
	if errors.Is(err, ErrCredentialNotFound) {
		return &Status{}, nil
	}
	if err != nil {
		return nil, err
	}

	st := &Status{Enabled: cred.Enabled, Provisioned: true}
	if !cred.Enabled {
		return st, nil
	}

	info, err := s.codes.Info(ctx, userID)
	if err != nil {
		return nil, err
	}
	st.BackupCodes = info
	return st, nil
}

// RegenerateBackupCodes replaces the unused backup codes. The caller must have
// passed Verify for this request.
func (s *Service) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	return s.codes.Regenerate(ctx, userID)
}

// Disable verifies code and then removes the credential, every backup code and
// the attempt counters of the user. Re-enabling requires a new Provision.
func (s *Service) Disable(ctx context.Context, userID, code string, meta AttemptMeta) error {
	if _, err := s.Verify(ctx, userID, code, meta); err != nil {
		return err
	}

	if err := s.storage.DeleteCredential(ctx, userID); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}

	for _, m := range []Method{MethodTOTP, MethodBackupCode} {
		key := ratelimit.Key(userID, m.Action())
		if err := s.limiter.Clear(ctx, key); err != nil {
			s.logger.WarnContext(ctx, "failed to clear attempts on disable",
				logger.UserID(userID),
				logger.Key(key),
				logger.Error(err),
			)
		}
	}

	s.logger.InfoContext(ctx, "two-factor disabled",
		logger.UserID(userID),
		logger.Event("2fa.disabled"),
	)
	return nil
}

// PurgeUsedBackupCodes deletes used backup codes kept as audit trail.
func (s *Service) PurgeUsedBackupCodes(ctx context.Context, userID string) (int64, error) {
	return s.codes.PurgeUsed(ctx, userID)
}

// AttemptStatus reports the limiter state of method without counting an attempt.
func (s *Service) AttemptStatus(ctx context.Context, userID string, method Method) (*AttemptStatus, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if !method.Valid() {
		return nil, ErrUnknownMethod
	}

	st, err := s.limiter.Check(ctx, ratelimit.Key(userID, method.Action()))
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	return &AttemptStatus{
		Method:      method,
		Attempts:    st.Attempts,
		Remaining:   st.Remaining,
		Locked:      st.Locked,
		LockedUntil: st.LockedUntil,
		RetryAfter:  st.RetryAfter(s.clock.Now()),
	}, nil
}

// CleanupAttempts removes attempt records that can no longer affect a decision.
func (s *Service) CleanupAttempts(ctx context.Context) (int64, error) {
	n, err := s.limiter.Cleanup(ctx)
	if err != nil {
		return 0, errors.Join(ErrStoreUnavailable, err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "expired attempts removed", logger.Count(n))
	}
	return n, nil
}

// failClosed turns store failures met on a verification path into
// ErrInvalidCode. Other errors pass through.
func (s *Service) failClosed(ctx context.Context, userID string, err error) error {
	if !errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	s.logger.ErrorContext(ctx, "credential lookup failed, failing closed",
		logger.UserID(userID),
		logger.Error(err),
	)
	return ErrInvalidCode
}

func (s *Service) credential(ctx context.Context, userID string) (*Credential, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	cred, err := s.storage.GetCredential(ctx, userID)
	if errors.Is(err, ErrCredentialNotFound) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return cred, nil
}

func (s *Service) enabledCredential(ctx context.Context, userID string) (*Credential, error) {
	cred, err := s.credential(ctx, userID)
	if errors.Is(err, ErrCredentialNotFound) {
		return nil, ErrNotEnabled
	}
	if err != nil {
		return nil, err
	}
	if !cred.Enabled {
		return nil, ErrNotEnabled
	}
	return cred, nil
}
