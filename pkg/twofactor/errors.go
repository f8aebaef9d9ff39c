package twofactor

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Verification errors. ErrInvalidCode is the only failure a caller sees for a
// wrong TOTP code, a wrong backup code or a store outage during verification.
var (
	ErrValidation  = errors.New("code must be 6 digits")
	ErrInvalidCode = errors.New("invalid verification code")
	ErrRateLimited = errors.New("too many verification attempts")
)

// Lifecycle errors.
var (
	ErrAlreadyEnabled     = errors.New("two-factor authentication is already enabled")
	ErrNotEnabled         = errors.New("two-factor authentication is not enabled")
	ErrNotProvisioned     = errors.New("two-factor authentication has not been provisioned")
	ErrCredentialNotFound = errors.New("two-factor credential not found")
)

// Input and infrastructure errors.
var (
	ErrUserIDRequired       = errors.New("user id is required")
	ErrAccountLabelRequired = errors.New("account label is required")
	ErrUnknownMethod        = errors.New("unknown verification method")
	ErrStoreUnavailable     = errors.New("two-factor store unavailable")
	ErrInvalidConfig        = errors.New("invalid two-factor configuration")
)

// RateLimitedError reports a lockout. It matches ErrRateLimited with errors.Is.
type RateLimitedError struct {
	Method     Method
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: %s locked, retry in %ds", ErrRateLimited, e.Method, e.RetryAfterSeconds())
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfterSeconds rounds up so a client never retries before the lock lifts.
func (e *RateLimitedError) RetryAfterSeconds() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(e.RetryAfter.Seconds()))
}
