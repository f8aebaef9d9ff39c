package twofactor_test

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/twofactor/pkg/clock"
	"github.com/dmitrymomot/twofactor/pkg/ratelimit"
	"github.com/dmitrymomot/twofactor/pkg/totp"
	"github.com/dmitrymomot/twofactor/pkg/twofactor"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc       *twofactor.Service
	storage   *twofactor.MemoryStorage
	attempts  *ratelimit.MemoryStore
	limiter   *ratelimit.Limiter
	clock     *clock.Mock
	validator totp.Validator
}

func newFixture(t *testing.T, opts ...twofactor.Option) *fixture {
	t.Helper()

	cfg := twofactor.DefaultConfig()
	cfg.Issuer = "Acme"
	cfg.BackupCodeCost = bcrypt.MinCost

	clk := clock.NewMock(baseTime)
	storage := twofactor.NewMemoryStorage()
	attempts := ratelimit.NewMemoryStore()

	limiter, err := ratelimit.New(attempts, cfg.RateLimit, ratelimit.WithClock(clk))
	require.NoError(t, err)

	opts = append([]twofactor.Option{twofactor.WithClock(clk)}, opts...)
	svc, err := twofactor.NewService(storage, limiter, cfg, opts...)
	require.NoError(t, err)

	return &fixture{
		svc:       svc,
		storage:   storage,
		attempts:  attempts,
		limiter:   limiter,
		clock:     clk,
		validator: cfg.TOTP.Validator(),
	}
}

func (f *fixture) provision(t *testing.T, userID string) *twofactor.Provisioning {
	t.Helper()
	p, err := f.svc.Provision(context.Background(), userID, userID+"@example.com")
	require.NoError(t, err)
	return p
}

// enable provisions userID and confirms with the current TOTP code.
func (f *fixture) enable(t *testing.T, userID string) *twofactor.Provisioning {
	t.Helper()
	p := f.provision(t, userID)
	res, err := f.svc.ConfirmEnable(context.Background(), userID, f.codeAt(t, p.Secret, f.clock.Now()), twofactor.AttemptMeta{})
	require.NoError(t, err)
	require.True(t, res.Valid)
	return p
}

func (f *fixture) codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := f.validator.Generate(secret, at)
	require.NoError(t, err)
	return code
}

// wrongCode returns a well-formed code that is neither a TOTP code valid now
// nor one of the user's backup codes.
func (f *fixture) wrongCode(t *testing.T, p *twofactor.Provisioning) string {
	t.Helper()
	for i := range 1000 {
		code := fmt.Sprintf("%06d", i)
		if slices.Contains(p.BackupCodes, code) {
			continue
		}
		ok, err := f.validator.Verify(code, p.Secret, f.clock.Now())
		require.NoError(t, err)
		if !ok {
			return code
		}
	}
	t.Fatal("no wrong code found")
	return ""
}

func (f *fixture) attemptsOf(t *testing.T, userID string, method twofactor.Method) *twofactor.AttemptStatus {
	t.Helper()
	st, err := f.svc.AttemptStatus(context.Background(), userID, method)
	require.NoError(t, err)
	return st
}
