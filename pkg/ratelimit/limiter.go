package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/twofactor/pkg/clock"
)

// Limiter counts failed attempts per key inside a trailing window and locks the
// key once MaxAttempts is reached. Lock expiry is lazy: the first Check or Reserve
// after LockedUntil clears the key inside the same atomic step.
type Limiter struct {
	store Store
	cfg   Config
	clock clock.Clock
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) {
		if c != nil {
			l.clock = c
		}
	}
}

// New creates a Limiter over store.
func New(store Store, cfg Config, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	l := &Limiter{
		store: store,
		cfg:   cfg,
		clock: clock.System(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Config returns the active policy.
func (l *Limiter) Config() Config {
	return l.cfg
}

// Check reports the state of key without counting an attempt.
func (l *Limiter) Check(ctx context.Context, key string) (*Status, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	now := l.clock.Now()
	var status *Status

	err := l.store.Atomic(ctx, key, now.Add(-l.cfg.Window), func(records []Record) Mutation {
		attempts, lockedUntil, expired := l.evaluate(records, now)
		status = l.status(attempts, lockedUntil)
		status.Allowed = !status.Locked
		return Mutation{Reset: expired}
	})
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return status, nil
}

// Reserve atomically checks key and, unless it is locked, counts one attempt
// before the caller verifies anything. The counted attempt stands as a failure
// unless the caller follows a success with Clear. Concurrent callers therefore
// cannot jointly exceed MaxAttempts.
//
// A locked key yields a Status with Allowed=false and no record is written.
func (l *Limiter) Reserve(ctx context.Context, key string, meta Meta) (*Status, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	now := l.clock.Now()
	var status *Status

	err := l.store.Atomic(ctx, key, now.Add(-l.cfg.Window), func(records []Record) Mutation {
		attempts, lockedUntil, expired := l.evaluate(records, now)
		if !lockedUntil.IsZero() {
			status = l.status(attempts, lockedUntil)
			return Mutation{}
		}

		oldest := now
		if !expired && len(records) > 0 {
			oldest = records[0].CreatedAt
		}

		attempts++
		if attempts >= l.cfg.MaxAttempts {
			lockedUntil = oldest.Add(l.cfg.Lockout)
		}
		status = l.status(attempts, lockedUntil)
		status.Allowed = true

		return Mutation{
			Reset:  expired,
			Append: newRecord(key, meta, now),
		}
	})
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return status, nil
}

// RecordFailure appends a failed attempt without checking the lock.
func (l *Limiter) RecordFailure(ctx context.Context, key string, meta Meta) error {
	if key == "" {
		return ErrKeyRequired
	}
	if err := l.store.Append(ctx, *newRecord(key, meta, l.clock.Now())); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

// Clear forgets every attempt of key. Called after a successful verification.
func (l *Limiter) Clear(ctx context.Context, key string) error {
	if key == "" {
		return ErrKeyRequired
	}
	if err := l.store.Delete(ctx, key); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

// Cleanup removes records that can no longer influence any decision.
func (l *Limiter) Cleanup(ctx context.Context) (int64, error) {
	horizon := max(l.cfg.Window, l.cfg.Lockout)
	n, err := l.store.DeleteBefore(ctx, l.clock.Now().Add(-horizon))
	if err != nil {
		return 0, errors.Join(ErrStoreUnavailable, err)
	}
	return n, nil
}

// evaluate returns the counted attempts and, when locked, the lock end.
// expired is true when the key reached the limit but the lock already lifted.
func (l *Limiter) evaluate(records []Record, now time.Time) (int, time.Time, bool) {
	attempts := len(records)
	if attempts < l.cfg.MaxAttempts {
		return attempts, time.Time{}, false
	}

	lockedUntil := records[0].CreatedAt.Add(l.cfg.Lockout)
	if now.After(lockedUntil) {
		return 0, time.Time{}, true
	}
	return attempts, lockedUntil, false
}

func (l *Limiter) status(attempts int, lockedUntil time.Time) *Status {
	return &Status{
		Limit:       l.cfg.MaxAttempts,
		Attempts:    attempts,
		Remaining:   max(0, l.cfg.MaxAttempts-attempts),
		Locked:      !lockedUntil.IsZero(),
		LockedUntil: lockedUntil,
	}
}

func newRecord(key string, meta Meta, at time.Time) *Record {
	return &Record{
		ID:        uuid.New(),
		Key:       key,
		CreatedAt: at,
		ClientIP:  meta.ClientIP,
		UserAgent: meta.UserAgent,
	}
}

func (c Config) validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max attempts must be positive, got %d", ErrInvalidConfig, c.MaxAttempts)
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be positive, got %v", ErrInvalidConfig, c.Window)
	}
	if c.Lockout <= 0 {
		return fmt.Errorf("%w: lockout must be positive, got %v", ErrInvalidConfig, c.Lockout)
	}
	return nil
}
