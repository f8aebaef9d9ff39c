package ratelimit

import "errors"

var (
	ErrInvalidConfig    = errors.New("invalid rate limit configuration")
	ErrKeyRequired      = errors.New("key is required")
	ErrStoreRequired    = errors.New("store is required")
	ErrStoreUnavailable = errors.New("rate limit store unavailable")

	// ErrConflict is returned by optimistic stores that could not commit an
	// atomic step after exhausting their retries.
	ErrConflict = errors.New("concurrent update conflict")
)
