package ratelimit

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps attempt records in process memory. It serializes all
// operations behind one mutex, which satisfies the Atomic contract. Suitable for
// tests and single-instance deployments only: every instance has its own counters.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]Record),
	}
}

func (s *MemoryStore) Atomic(ctx context.Context, key string, since time.Time, fn func(records []Record) Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.records[key]
	inWindow := make([]Record, 0, len(all))
	for _, rec := range all {
		if !rec.CreatedAt.Before(since) {
			inWindow = append(inWindow, rec)
		}
	}

	m := fn(inWindow)

	if m.Reset {
		delete(s.records, key)
	}
	if m.Append != nil {
		s.appendLocked(*m.Append)
	}
	return nil
}

func (s *MemoryStore) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendLocked(rec)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	return nil
}

func (s *MemoryStore) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, recs := range s.records {
		kept := recs[:0]
		for _, rec := range recs {
			if rec.CreatedAt.Before(t) {
				removed++
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			delete(s.records, key)
			continue
		}
		s.records[key] = kept
	}
	return removed, nil
}

// Len returns the number of stored records for key, expired ones included.
func (s *MemoryStore) Len(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records[key])
}

// appendLocked keeps records ordered by CreatedAt. Callers must hold s.mu.
func (s *MemoryStore) appendLocked(rec Record) {
	recs := append(s.records[rec.Key], rec)
	if n := len(recs); n > 1 && recs[n-1].CreatedAt.Before(recs[n-2].CreatedAt) {
		slices.SortStableFunc(recs, func(a, b Record) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		})
	}
	s.records[rec.Key] = recs
}
