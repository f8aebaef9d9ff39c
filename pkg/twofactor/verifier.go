package twofactor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmitrymomot/twofactor/pkg/clock"
	"github.com/dmitrymomot/twofactor/pkg/logger"
	"github.com/dmitrymomot/twofactor/pkg/ratelimit"
	"github.com/dmitrymomot/twofactor/pkg/totp"
)

// Verifier runs the verification protocol shared by login, disable and
// regeneration flows: TOTP first, then backup codes, each behind its own
// attempt counter. Enablement uses the TOTP step alone.
type Verifier struct {
	limiter   *ratelimit.Limiter
	validator totp.Validator
	secrets   *SecretManager
	codes     *BackupCodes
	clock     clock.Clock
	logger    *slog.Logger
}

// NewVerifier wires the verification protocol.
func NewVerifier(limiter *ratelimit.Limiter, validator totp.Validator, secrets *SecretManager, codes *BackupCodes, opts ...Option) *Verifier {
	o := applyOptions(opts)
	return &Verifier{
		limiter:   limiter,
		validator: validator,
		secrets:   secrets,
		codes:     codes,
		clock:     o.clock,
		logger:    o.logger.With(logger.Component("twofactor.verifier")),
	}
}

// Verify checks code for userID against cred.
//
// A malformed code returns ErrValidation without touching any counter. Each
// method reserves an attempt before checking the code; the attempt stays counted
// unless the method succeeds, in which case its counter is cleared. A locked
// method ends verification with *RateLimitedError, so a TOTP lock is reported
// before the backup code counter is touched. Store failures are logged and
// reported as ErrInvalidCode.
func (v *Verifier) Verify(ctx context.Context, userID, code string, cred *Credential, meta AttemptMeta) (*VerificationResult, error) {
	code, err := v.precheck(userID, code, cred)
	if err != nil {
		return nil, err
	}
	ctx = logger.ContextWithAttrs(ctx, logger.UserID(userID))

	ok, lock, err := v.attempt(ctx, userID, MethodTOTP, meta, func(ctx context.Context) (bool, error) {
		return v.verifyTOTP(cred, code)
	})
	if err != nil {
		return nil, v.failClosed(ctx, MethodTOTP, err)
	}
	if lock != nil {
		return nil, v.locked(ctx, lock)
	}
	if ok {
		return &VerificationResult{Valid: true, Method: MethodTOTP}, nil
	}

	var result *VerificationResult
	ok, lock, err = v.attempt(ctx, userID, MethodBackupCode, meta, func(ctx context.Context) (bool, error) {
		res, err := v.codes.VerifyAndConsume(ctx, userID, code)
		if errors.Is(err, ErrInvalidCode) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		result = res
		return true, nil
	})
	if err != nil {
		return nil, v.failClosed(ctx, MethodBackupCode, err)
	}
	if lock != nil {
		return nil, v.locked(ctx, lock)
	}
	if ok {
		return result, nil
	}

	return nil, v.failed(ctx, meta)
}

// VerifyTOTP runs the TOTP step alone. Backup codes are never consulted, so a
// success proves the user holds the authenticator. Used to confirm enablement.
func (v *Verifier) VerifyTOTP(ctx context.Context, userID, code string, cred *Credential, meta AttemptMeta) (*VerificationResult, error) {
	code, err := v.precheck(userID, code, cred)
	if err != nil {
		return nil, err
	}
	ctx = logger.ContextWithAttrs(ctx, logger.UserID(userID))

	ok, lock, err := v.attempt(ctx, userID, MethodTOTP, meta, func(ctx context.Context) (bool, error) {
		return v.verifyTOTP(cred, code)
	})
	if err != nil {
		return nil, v.failClosed(ctx, MethodTOTP, err)
	}
	if lock != nil {
		return nil, v.locked(ctx, lock)
	}
	if !ok {
		return nil, v.failed(ctx, meta)
	}
	return &VerificationResult{Valid: true, Method: MethodTOTP}, nil
}

func (v *Verifier) precheck(userID, code string, cred *Credential) (string, error) {
	code = totp.NormalizeCode(code)
	if !totp.ValidCodeFormat(code) {
		return "", ErrValidation
	}
	if userID == "" {
		return "", ErrUserIDRequired
	}
	if cred == nil {
		return "", ErrNotProvisioned
	}
	return code, nil
}

func (v *Verifier) locked(ctx context.Context, lock *RateLimitedError) error {
	v.logger.WarnContext(ctx, "verification rejected by lockout",
		logger.Method(lock.Method),
		logger.RetryAfter(lock.RetryAfter),
		logger.Event("2fa.locked"),
	)
	return lock
}

func (v *Verifier) failed(ctx context.Context, meta AttemptMeta) error {
	v.logger.InfoContext(ctx, "verification failed",
		logger.ClientIP(meta.ClientIP),
		logger.Event("2fa.failed"),
	)
	return ErrInvalidCode
}

// attempt reserves one attempt for method and runs check unless the method is
// locked. A nil lock with ok=false means the code did not match.
func (v *Verifier) attempt(ctx context.Context, userID string, method Method, meta AttemptMeta, check func(context.Context) (bool, error)) (bool, *RateLimitedError, error) {
	key := ratelimit.Key(userID, method.Action())

	st, err := v.limiter.Reserve(ctx, key, meta.limiterMeta())
	if err != nil {
		return false, nil, err
	}
	if !st.Allowed {
		return false, &RateLimitedError{
			Method:     method,
			RetryAfter: st.RetryAfter(v.clock.Now()),
		}, nil
	}

	ok, err := check(ctx)
	if err != nil {
		return false, nil, err
	}
	if !ok {
		v.logger.DebugContext(ctx, "attempt failed",
			logger.Method(method),
			logger.Attempts(st.Attempts),
		)
		return false, nil, nil
	}

	if err := v.limiter.Clear(ctx, key); err != nil {
		v.logger.WarnContext(ctx, "failed to clear attempts after success",
			logger.Method(method),
			logger.Key(key),
			logger.Error(err),
		)
	}

	v.logger.InfoContext(ctx, "verification succeeded",
		logger.Method(method),
		logger.Event("2fa.verified"),
	)
	return true, nil, nil
}

func (v *Verifier) verifyTOTP(cred *Credential, code string) (bool, error) {
	secret, err := v.secrets.Reveal(cred)
	if err != nil {
		return false, err
	}
	return v.validator.Verify(code, secret, v.clock.Now())
}

func (v *Verifier) failClosed(ctx context.Context, method Method, err error) error {
	v.logger.ErrorContext(ctx, "verification aborted, failing closed",
		logger.Method(method),
		logger.Error(err),
	)
	return ErrInvalidCode
}
