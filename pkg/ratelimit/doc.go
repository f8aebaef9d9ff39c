// Package ratelimit implements a failed-attempt limiter with lockout, built for
// guarding verification endpoints such as two-factor codes.
//
// Every attempt is an append-only Record under a key (typically
// Key(userID, "2fa_totp")). A key is locked once MaxAttempts records fall inside
// the trailing Window; the lock lasts until the oldest counted record plus
// Lockout. When a Check or Reserve observes an expired lock it clears the key
// lazily inside the same atomic step.
//
// # Atomicity
//
// A naive "count, then insert" sequence lets concurrent requests all observe
// "under threshold" and jointly exceed the limit. Limiter.Reserve avoids this by
// counting and appending in one Store.Atomic call: the attempt is recorded before
// the caller verifies anything and is removed only by Clear after a success.
//
//	limiter, err := ratelimit.New(store, ratelimit.DefaultConfig())
//	if err != nil {
//		return err
//	}
//
//	st, err := limiter.Reserve(ctx, ratelimit.Key(userID, "2fa_totp"), ratelimit.Meta{ClientIP: ip})
//	if err != nil {
//		return err // fail closed
//	}
//	if !st.Allowed {
//		return fmt.Errorf("locked, retry in %s", st.RetryAfter(time.Now()))
//	}
//	if verified {
//		_ = limiter.Clear(ctx, key)
//	}
//
// # Stores
//
// MemoryStore serializes with a mutex and is meant for tests and single-process
// use. RedisStore runs each step as a WATCH/MULTI transaction over a sorted set.
// PostgresStore serializes per key with pg_advisory_xact_lock; its table is
// created by the pgstorage migrations. Custom implementations must honour the
// Store.Atomic contract.
//
// # Error Types
//
//	errors.Is(err, ratelimit.ErrInvalidConfig)    // constructor validation
//	errors.Is(err, ratelimit.ErrKeyRequired)      // empty key
//	errors.Is(err, ratelimit.ErrStoreUnavailable) // backend failure, callers must fail closed
package ratelimit
