package pgstorage_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/twofactor/pkg/clock"
	"github.com/dmitrymomot/twofactor/pkg/logger"
	"github.com/dmitrymomot/twofactor/pkg/pg"
	"github.com/dmitrymomot/twofactor/pkg/ratelimit"
	"github.com/dmitrymomot/twofactor/pkg/twofactor"
	"github.com/dmitrymomot/twofactor/pkg/twofactor/pgstorage"
)

// testPool connects to TWOFA_TEST_PG_URL, applies migrations or skips the test.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("TWOFA_TEST_PG_URL")
	if url == "" {
		t.Skip("TWOFA_TEST_PG_URL not set")
	}

	ctx := context.Background()
	pool, err := pg.Connect(ctx, pg.Config{ConnectionString: url, RetryAttempts: 1})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pgstorage.Migrate(ctx, pool, "twofactor_schema_migrations", logger.Discard()))
	return pool
}

func newService(t *testing.T, pool *pgxpool.Pool) (*twofactor.Service, *clock.Mock) {
	t.Helper()

	cfg := twofactor.DefaultConfig()
	cfg.BackupCodeCost = bcrypt.MinCost

	clk := clock.NewMock(time.Now().UTC().Truncate(time.Second))
	svc, err := twofactor.NewServiceFromConfig(
		pgstorage.New(pool),
		ratelimit.NewPostgresStore(pool, ratelimit.DefaultAttemptsTable),
		cfg,
		twofactor.WithClock(clk),
	)
	require.NoError(t, err)
	return svc, clk
}

func TestStorage_Lifecycle(t *testing.T) {
	pool := testPool(t)
	svc, clk := newService(t, pool)
	ctx := context.Background()
	userID := "pg-" + uuid.NewString()
	validator := twofactor.DefaultConfig().TOTP.Validator()

	p, err := svc.Provision(ctx, userID, "alice@example.com")
	require.NoError(t, err)

	// Re-provisioning while unconfirmed replaces the secret and codes.
	p, err = svc.Provision(ctx, userID, "alice@example.com")
	require.NoError(t, err)

	code, err := validator.Generate(p.Secret, clk.Now())
	require.NoError(t, err)
	_, err = svc.ConfirmEnable(ctx, userID, code, twofactor.AttemptMeta{ClientIP: "127.0.0.1"})
	require.NoError(t, err)

	_, err = svc.Provision(ctx, userID, "alice@example.com")
	require.ErrorIs(t, err, twofactor.ErrAlreadyEnabled)

	res, err := svc.Verify(ctx, userID, p.BackupCodes[0], twofactor.AttemptMeta{})
	require.NoError(t, err)
	assert.Equal(t, twofactor.MethodBackupCode, res.Method)

	_, err = svc.Verify(ctx, userID, p.BackupCodes[0], twofactor.AttemptMeta{})
	require.ErrorIs(t, err, twofactor.ErrInvalidCode)

	fresh, err := svc.RegenerateBackupCodes(ctx, userID)
	require.NoError(t, err)
	require.Len(t, fresh, 10)

	st, err := svc.Status(ctx, userID)
	require.NoError(t, err)
	assert.True(t, st.Enabled)
	assert.Equal(t, twofactor.BackupCodesInfo{Total: 11, Used: 1}, *st.BackupCodes)

	n, err := svc.PurgeUsedBackupCodes(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	code, err = validator.Generate(p.Secret, clk.Now())
	require.NoError(t, err)
	require.NoError(t, svc.Disable(ctx, userID, code, twofactor.AttemptMeta{}))

	st, err = svc.Status(ctx, userID)
	require.NoError(t, err)
	assert.False(t, st.Enabled)
	assert.False(t, st.Provisioned)

	total, _, err := pgstorage.New(pool).CountBackupCodes(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestStorage_EnableCredential(t *testing.T) {
	pool := testPool(t)
	s := pgstorage.New(pool)
	ctx := context.Background()
	userID := "pg-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)

	_, err := s.EnableCredential(ctx, userID, now)
	require.ErrorIs(t, err, twofactor.ErrCredentialNotFound)

	require.NoError(t, s.SaveProvisioning(ctx, &twofactor.Credential{UserID: userID, Secret: "SECRET", CreatedAt: now}, nil))

	changed, err := s.EnableCredential(ctx, userID, now)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.EnableCredential(ctx, userID, now)
	require.NoError(t, err)
	assert.False(t, changed)

	cred, err := s.GetCredential(ctx, userID)
	require.NoError(t, err)
	assert.True(t, cred.Enabled)
	require.NotNil(t, cred.EnabledAt)
	assert.True(t, now.Equal(*cred.EnabledAt))

	err = s.SaveProvisioning(ctx, &twofactor.Credential{UserID: userID, Secret: "OTHER", CreatedAt: now}, nil)
	require.ErrorIs(t, err, twofactor.ErrAlreadyEnabled)

	require.NoError(t, s.DeleteCredential(ctx, userID))
}

func TestStorage_ConcurrentBackupCodeConsumedOnce(t *testing.T) {
	pool := testPool(t)
	svc, _ := newService(t, pool)
	ctx := context.Background()
	userID := "pg-" + uuid.NewString()

	p, err := svc.Provision(ctx, userID, "bob@example.com")
	require.NoError(t, err)

	s := pgstorage.New(pool)
	rows, err := s.GetUnusedBackupCodes(ctx, userID)
	require.NoError(t, err)
	require.Len(t, rows, len(p.BackupCodes))

	const workers = 20
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	start := make(chan struct{})
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := s.MarkBackupCodeUsed(ctx, rows[0].ID, time.Now())
			if assert.NoError(t, err) && ok {
				successes.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, successes.Load())
	t.Cleanup(func() { _ = s.DeleteCredential(context.Background(), userID) })
}

func TestPostgresStore_ConcurrentReserve(t *testing.T) {
	pool := testPool(t)
	clk := clock.NewMock(time.Now().UTC().Truncate(time.Microsecond))
	l, err := ratelimit.New(ratelimit.NewPostgresStore(pool, ""), ratelimit.DefaultConfig(), ratelimit.WithClock(clk))
	require.NoError(t, err)

	ctx := context.Background()
	key := ratelimit.Key("pg-"+uuid.NewString(), twofactor.ActionTOTP)
	t.Cleanup(func() { _ = l.Clear(context.Background(), key) })

	const workers = 30
	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	start := make(chan struct{})
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			st, err := l.Reserve(ctx, key, ratelimit.Meta{UserAgent: "test"})
			if assert.NoError(t, err) && st.Allowed {
				allowed.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 5, allowed.Load())

	st, err := l.Check(ctx, key)
	require.NoError(t, err)
	assert.True(t, st.Locked)
	assert.Equal(t, 5, st.Attempts)

	clk.Advance(15*time.Minute + time.Second)
	st, err = l.Reserve(ctx, key, ratelimit.Meta{})
	require.NoError(t, err)
	assert.True(t, st.Allowed)
	assert.Equal(t, 1, st.Attempts)
}
