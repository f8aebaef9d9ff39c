package ratelimit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Config defines the attempt limiter policy. Tags carry no prefix so the struct
// can be nested with envPrefix.
type Config struct {
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"5"` // Failures tolerated inside Window
	Window      time.Duration `env:"WINDOW" envDefault:"15m"`     // Trailing span in which failures count
	Lockout     time.Duration `env:"LOCKOUT" envDefault:"15m"`    // Lock length, measured from the oldest counted failure
}

// DefaultConfig mirrors the envDefault values.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		Window:      15 * time.Minute,
		Lockout:     15 * time.Minute,
	}
}

// Meta is optional request context stored alongside an attempt.
type Meta struct {
	ClientIP  string
	UserAgent string
}

// Record is a single counted attempt. Records are append-only; a record older
// than the window is ignored by counting and eligible for cleanup.
type Record struct {
	ID        uuid.UUID `json:"id"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	ClientIP  string    `json:"client_ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// Status describes the limiter state of a key.
type Status struct {
	Limit       int       // MaxAttempts
	Attempts    int       // Attempts counted inside the window
	Remaining   int       // Attempts left before the key locks
	Allowed     bool      // Whether the current call may proceed
	Locked      bool      // Whether further attempts are rejected
	LockedUntil time.Time // Zero unless Locked
}

// RetryAfter returns how long until the lock lifts. Zero when not locked.
func (s *Status) RetryAfter(now time.Time) time.Duration {
	if !s.Locked || !now.Before(s.LockedUntil) {
		return 0
	}
	return s.LockedUntil.Sub(now)
}

// Mutation is the write half of an atomic step.
type Mutation struct {
	Reset  bool    // Delete every record of the key
	Append *Record // Appended after Reset is applied
}

// Store persists attempt records.
type Store interface {
	// Atomic loads the records of key created at or after since, oldest first,
	// hands them to fn and applies the returned Mutation. The whole step must not
	// interleave with another Atomic call for the same key. fn may be invoked more
	// than once by optimistic implementations.
	Atomic(ctx context.Context, key string, since time.Time, fn func(records []Record) Mutation) error

	// Append stores a record unconditionally.
	Append(ctx context.Context, rec Record) error

	// Delete removes all records of key.
	Delete(ctx context.Context, key string) error

	// DeleteBefore removes records of every key created before t and reports how many were removed.
	DeleteBefore(ctx context.Context, t time.Time) (int64, error)
}
