package twofactor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/twofactor/pkg/clock"
	"github.com/dmitrymomot/twofactor/pkg/ratelimit"
	"github.com/dmitrymomot/twofactor/pkg/totp"
)

const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newInternalService(t *testing.T, storage Storage, attempts ratelimit.Store) (*Service, *clock.Mock) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Issuer = "Acme"
	cfg.BackupCodeCost = bcrypt.MinCost

	clk := clock.NewMock(testNow)
	svc, err := NewServiceFromConfig(storage, attempts, cfg, WithClock(clk))
	require.NoError(t, err)
	return svc, clk
}

func invalidCodeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	v := totp.NewValidator(totp.DefaultPeriod, totp.DefaultSkew)
	for i := range 1000 {
		code := fmt.Sprintf("%06d", i)
		ok, err := v.Verify(code, secret, at)
		require.NoError(t, err)
		if !ok {
			return code
		}
	}
	t.Fatal("no invalid code found")
	return ""
}

func enabledCredential() *Credential {
	return &Credential{UserID: "user-1", Secret: rfcSecret, Enabled: true, CreatedAt: testNow}
}

func TestVerifier_MalformedCodeTouchesNothing(t *testing.T) {
	t.Parallel()

	storage := &MockStorage{}
	attempts := &MockAttemptStore{}
	svc, _ := newInternalService(t, storage, attempts)

	for _, code := range []string{"12345", "1234567", "abcdef", "", "12 34 5"} {
		res, err := svc.verifier.Verify(context.Background(), "user-1", code, enabledCredential(), AttemptMeta{})
		assert.ErrorIs(t, err, ErrValidation, "code %q", code)
		assert.Nil(t, res)
	}

	attempts.AssertNotCalled(t, "Atomic", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	storage.AssertNotCalled(t, "GetUnusedBackupCodes", mock.Anything, mock.Anything)
}

func TestVerifier_FailsClosedOnLimiterError(t *testing.T) {
	t.Parallel()

	storage := &MockStorage{}
	attempts := &MockAttemptStore{}
	attempts.On("Atomic", mock.Anything, "user-1:2fa_totp", mock.Anything, mock.Anything).
		Return(errors.New("connection reset"))

	svc, clk := newInternalService(t, storage, attempts)

	code, err := totp.NewValidator(totp.DefaultPeriod, totp.DefaultSkew).Generate(rfcSecret, clk.Now())
	require.NoError(t, err)

	res, err := svc.verifier.Verify(context.Background(), "user-1", code, enabledCredential(), AttemptMeta{})
	assert.ErrorIs(t, err, ErrInvalidCode, "a correct code never passes without the limiter")
	assert.Nil(t, res)

	attempts.AssertExpectations(t)
	storage.AssertNotCalled(t, "GetUnusedBackupCodes", mock.Anything, mock.Anything)
}

func TestVerifier_FailsClosedOnBackupStoreError(t *testing.T) {
	t.Parallel()

	storage := &MockStorage{}
	storage.On("GetUnusedBackupCodes", mock.Anything, "user-1").Return(nil, errors.New("db down"))

	attempts := ratelimit.NewMemoryStore()
	svc, clk := newInternalService(t, storage, attempts)
	ctx := context.Background()

	res, err := svc.verifier.Verify(ctx, "user-1", invalidCodeAt(t, rfcSecret, clk.Now()), enabledCredential(), AttemptMeta{})
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Nil(t, res)

	assert.Equal(t, 1, attempts.Len("user-1:2fa_totp"))
	assert.Equal(t, 1, attempts.Len("user-1:2fa_backup"), "the reserved attempt stays counted")
	storage.AssertExpectations(t)
}

func TestVerifier_FailsClosedOnUndecryptableSecret(t *testing.T) {
	t.Parallel()

	key, err := totp.GenerateEncryptionKey()
	require.NoError(t, err)
	cipher, err := totp.NewCipher(key)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.BackupCodeCost = bcrypt.MinCost
	svc, err := NewServiceFromConfig(&MockStorage{}, ratelimit.NewMemoryStore(), cfg,
		WithClock(clock.NewMock(testNow)), WithCipher(cipher))
	require.NoError(t, err)

	// Plain base32 is not valid ciphertext.
	res, err := svc.verifier.Verify(context.Background(), "user-1", "123456", enabledCredential(), AttemptMeta{})
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Nil(t, res)
}

func TestBackupCodes_LostRace(t *testing.T) {
	t.Parallel()

	hash, err := totp.NewBcryptHasher(bcrypt.MinCost).Hash("123456")
	require.NoError(t, err)
	row := BackupCode{ID: uuid.New(), UserID: "user-1", CodeHash: hash, CreatedAt: testNow}

	storage := &MockStorage{}
	storage.On("GetUnusedBackupCodes", mock.Anything, "user-1").Return([]BackupCode{row}, nil)
	storage.On("MarkBackupCodeUsed", mock.Anything, row.ID, testNow).Return(false, nil)

	svc, _ := newInternalService(t, storage, ratelimit.NewMemoryStore())

	res, err := svc.codes.VerifyAndConsume(context.Background(), "user-1", "123 456")
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Nil(t, res)
	storage.AssertExpectations(t)
}

func TestBackupCodes_StoreErrors(t *testing.T) {
	t.Parallel()

	storage := &MockStorage{}
	storage.On("CountBackupCodes", mock.Anything, "user-1").Return(0, 0, errors.New("timeout"))
	storage.On("DeleteUsedBackupCodes", mock.Anything, "user-1").Return(int64(0), errors.New("timeout"))
	storage.On("GetCredential", mock.Anything, "user-1").Return(nil, errors.New("timeout"))

	svc, _ := newInternalService(t, storage, ratelimit.NewMemoryStore())
	ctx := context.Background()

	_, err := svc.codes.Info(ctx, "user-1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = svc.codes.PurgeUsed(ctx, "user-1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = svc.codes.Regenerate(ctx, "user-1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestService_VerifyFailsClosedOnCredentialLookup(t *testing.T) {
	t.Parallel()

	storage := &MockStorage{}
	storage.On("GetCredential", mock.Anything, "user-1").Return(nil, errors.New("timeout"))

	svc, _ := newInternalService(t, storage, ratelimit.NewMemoryStore())

	res, err := svc.Verify(context.Background(), "user-1", "123456", AttemptMeta{})
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
	assert.Nil(t, res)
}

func TestSecretManager_ProvisionGuard(t *testing.T) {
	t.Parallel()

	t.Run("enabled credential is never re-provisioned", func(t *testing.T) {
		t.Parallel()
		storage := &MockStorage{}
		storage.On("GetCredential", mock.Anything, "user-1").Return(enabledCredential(), nil)

		svc, _ := newInternalService(t, storage, ratelimit.NewMemoryStore())
		p, err := svc.Provision(context.Background(), "user-1", "alice@example.com")
		assert.ErrorIs(t, err, ErrAlreadyEnabled)
		assert.Nil(t, p)
		storage.AssertNotCalled(t, "SaveProvisioning", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("guarded write loses to a concurrent enable", func(t *testing.T) {
		t.Parallel()
		storage := &MockStorage{}
		storage.On("GetCredential", mock.Anything, "user-1").Return(nil, ErrCredentialNotFound)
		storage.On("SaveProvisioning", mock.Anything, mock.AnythingOfType("*twofactor.Credential"), mock.AnythingOfType("[]twofactor.BackupCode")).
			Return(ErrAlreadyEnabled)

		svc, _ := newInternalService(t, storage, ratelimit.NewMemoryStore())
		p, err := svc.Provision(context.Background(), "user-1", "alice@example.com")
		assert.ErrorIs(t, err, ErrAlreadyEnabled)
		assert.Nil(t, p)
		storage.AssertExpectations(t)
	})

	t.Run("stored rows carry hashes only", func(t *testing.T) {
		t.Parallel()
		storage := &MockStorage{}
		storage.On("GetCredential", mock.Anything, "user-1").Return(nil, ErrCredentialNotFound)

		var saved []BackupCode
		var cred *Credential
		storage.On("SaveProvisioning", mock.Anything, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				cred = args.Get(1).(*Credential)
				saved = args.Get(2).([]BackupCode)
			}).
			Return(nil)

		svc, _ := newInternalService(t, storage, ratelimit.NewMemoryStore())
		p, err := svc.Provision(context.Background(), "user-1", "alice@example.com")
		require.NoError(t, err)

		require.Len(t, saved, len(p.BackupCodes))
		for i, row := range saved {
			assert.NotEqual(t, p.BackupCodes[i], row.CodeHash)
			assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(row.CodeHash), []byte(p.BackupCodes[i])))
			assert.False(t, row.IsUsed)
			assert.Equal(t, "user-1", row.UserID)
		}
		assert.False(t, cred.Enabled)
		assert.Equal(t, p.Secret, cred.Secret)
		assert.Equal(t, testNow, cred.CreatedAt)
	})
}

func TestRateLimitedError(t *testing.T) {
	t.Parallel()

	err := error(&RateLimitedError{Method: MethodTOTP, RetryAfter: 90*time.Second + time.Millisecond})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.NotErrorIs(t, err, ErrInvalidCode)

	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 91, rl.RetryAfterSeconds())
	assert.Contains(t, err.Error(), "totp")

	assert.Equal(t, 0, (&RateLimitedError{}).RetryAfterSeconds())
}

func TestVerifier_VerifyTOTPIgnoresBackupCodes(t *testing.T) {
	t.Parallel()

	storage := &MockStorage{}
	attempts := ratelimit.NewMemoryStore()
	svc, clk := newInternalService(t, storage, attempts)

	res, err := svc.verifier.VerifyTOTP(context.Background(), "user-1", invalidCodeAt(t, rfcSecret, clk.Now()), enabledCredential(), AttemptMeta{})
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Nil(t, res)

	assert.Equal(t, 1, attempts.Len("user-1:2fa_totp"))
	assert.Zero(t, attempts.Len("user-1:2fa_backup"))
	storage.AssertNotCalled(t, "GetUnusedBackupCodes", mock.Anything, mock.Anything)
}

func TestVerifier_TOTPLockStopsBeforeBackupStep(t *testing.T) {
	t.Parallel()

	storage := &MockStorage{}
	attempts := ratelimit.NewMemoryStore()
	svc, clk := newInternalService(t, storage, attempts)
	ctx := context.Background()

	for range 5 {
		require.NoError(t, svc.limiter.RecordFailure(ctx, "user-1:2fa_totp", ratelimit.Meta{}))
	}

	code, err := totp.NewValidator(totp.DefaultPeriod, totp.DefaultSkew).Generate(rfcSecret, clk.Now())
	require.NoError(t, err)

	for range 6 {
		res, err := svc.verifier.Verify(ctx, "user-1", code, enabledCredential(), AttemptMeta{})
		var rl *RateLimitedError
		require.ErrorAs(t, err, &rl)
		assert.Equal(t, MethodTOTP, rl.Method)
		assert.Nil(t, res)
	}

	assert.Zero(t, attempts.Len("user-1:2fa_backup"))
	storage.AssertNotCalled(t, "GetUnusedBackupCodes", mock.Anything, mock.Anything)
}
