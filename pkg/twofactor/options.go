package twofactor

import (
	"log/slog"

	"github.com/dmitrymomot/twofactor/pkg/clock"
	"github.com/dmitrymomot/twofactor/pkg/logger"
	"github.com/dmitrymomot/twofactor/pkg/totp"
)

// Option configures the components of this package. Every constructor accepts
// the same options and ignores the ones it does not need.
type Option func(*options)

type options struct {
	clock  clock.Clock
	logger *slog.Logger
	hasher totp.CodeHasher
	cipher *totp.Cipher
}

func defaultOptions() *options {
	return &options{
		clock:  clock.System(),
		logger: logger.Discard(),
	}
}

func applyOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithClock overrides the time source used for TOTP windows, timestamps and
// rate limiting.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the logger. Secrets and plaintext codes are never logged.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithHasher replaces the bcrypt backup code hasher.
func WithHasher(h totp.CodeHasher) Option {
	return func(o *options) {
		if h != nil {
			o.hasher = h
		}
	}
}

// WithCipher encrypts TOTP secrets at rest. It overrides TOTP.EncryptionKey.
func WithCipher(c *totp.Cipher) Option {
	return func(o *options) {
		if c != nil {
			o.cipher = c
		}
	}
}
