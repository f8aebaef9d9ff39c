package twofactor

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage is a process-local Storage for tests and single-instance tools.
// Every method holds one mutex, so conditional updates are atomic.
type MemoryStorage struct {
	mu          sync.Mutex
	credentials map[string]Credential
	codes       map[uuid.UUID]BackupCode
}

// NewMemoryStorage creates an empty storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		credentials: make(map[string]Credential),
		codes:       make(map[uuid.UUID]BackupCode),
	}
}

var _ Storage = (*MemoryStorage)(nil)

func (s *MemoryStorage) GetCredential(ctx context.Context, userID string) (*Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.credentials[userID]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return cloneCredential(cred), nil
}

func (s *MemoryStorage) SaveProvisioning(ctx context.Context, cred *Credential, codes []BackupCode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.credentials[cred.UserID]; ok && existing.Enabled {
		return ErrAlreadyEnabled
	}

	stored := *cloneCredential(*cred)
	stored.Enabled = false
	stored.EnabledAt = nil
	s.credentials[cred.UserID] = stored

	s.deleteCodesLocked(cred.UserID, func(BackupCode) bool { return true })
	s.insertCodesLocked(codes)
	return nil
}

func (s *MemoryStorage) EnableCredential(ctx context.Context, userID string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.credentials[userID]
	if !ok {
		return false, ErrCredentialNotFound
	}
	if cred.Enabled {
		return false, nil
	}
	cred.Enabled = true
	cred.EnabledAt = &at
	s.credentials[userID] = cred
	return true, nil
}

func (s *MemoryStorage) DeleteCredential(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.credentials, userID)
	s.deleteCodesLocked(userID, func(BackupCode) bool { return true })
	return nil
}

func (s *MemoryStorage) GetUnusedBackupCodes(ctx context.Context, userID string) ([]BackupCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []BackupCode
	for _, c := range s.codes {
		if c.UserID == userID && !c.IsUsed {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b BackupCode) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (s *MemoryStorage) MarkBackupCodeUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.codes[id]
	if !ok || c.IsUsed {
		return false, nil
	}
	c.IsUsed = true
	c.UsedAt = &usedAt
	s.codes[id] = c
	return true, nil
}

func (s *MemoryStorage) CountBackupCodes(ctx context.Context, userID string) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var total, used int
	for _, c := range s.codes {
		if c.UserID != userID {
			continue
		}
		total++
		if c.IsUsed {
			used++
		}
	}
	return total, used, nil
}

func (s *MemoryStorage) ReplaceUnusedBackupCodes(ctx context.Context, userID string, codes []BackupCode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteCodesLocked(userID, func(c BackupCode) bool { return !c.IsUsed })
	s.insertCodesLocked(codes)
	return nil
}

func (s *MemoryStorage) DeleteUsedBackupCodes(ctx context.Context, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteCodesLocked(userID, func(c BackupCode) bool { return c.IsUsed }), nil
}

func (s *MemoryStorage) deleteCodesLocked(userID string, match func(BackupCode) bool) int64 {
	var n int64
	for id, c := range s.codes {
		if c.UserID == userID && match(c) {
			delete(s.codes, id)
			n++
		}
	}
	return n
}

func (s *MemoryStorage) insertCodesLocked(codes []BackupCode) {
	for _, c := range codes {
		s.codes[c.ID] = c
	}
}

func cloneCredential(c Credential) *Credential {
	if c.EnabledAt != nil {
		at := *c.EnabledAt
		c.EnabledAt = &at
	}
	return &c
}
