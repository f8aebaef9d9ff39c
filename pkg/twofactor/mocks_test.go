package twofactor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/twofactor/pkg/ratelimit"
)

// MockStorage is a mock implementation of Storage.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) GetCredential(ctx context.Context, userID string) (*Credential, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Credential), args.Error(1)
}

func (m *MockStorage) SaveProvisioning(ctx context.Context, cred *Credential, codes []BackupCode) error {
	args := m.Called(ctx, cred, codes)
	return args.Error(0)
}

func (m *MockStorage) EnableCredential(ctx context.Context, userID string, at time.Time) (bool, error) {
	args := m.Called(ctx, userID, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) DeleteCredential(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockStorage) GetUnusedBackupCodes(ctx context.Context, userID string) ([]BackupCode, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]BackupCode), args.Error(1)
}

func (m *MockStorage) MarkBackupCodeUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) (bool, error) {
	args := m.Called(ctx, id, usedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) CountBackupCodes(ctx context.Context, userID string) (int, int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *MockStorage) ReplaceUnusedBackupCodes(ctx context.Context, userID string, codes []BackupCode) error {
	args := m.Called(ctx, userID, codes)
	return args.Error(0)
}

func (m *MockStorage) DeleteUsedBackupCodes(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

// MockAttemptStore is a mock implementation of ratelimit.Store.
type MockAttemptStore struct {
	mock.Mock
}

func (m *MockAttemptStore) Atomic(ctx context.Context, key string, since time.Time, fn func([]ratelimit.Record) ratelimit.Mutation) error {
	args := m.Called(ctx, key, since, fn)
	return args.Error(0)
}

func (m *MockAttemptStore) Append(ctx context.Context, rec ratelimit.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockAttemptStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockAttemptStore) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	args := m.Called(ctx, t)
	return args.Get(0).(int64), args.Error(1)
}
