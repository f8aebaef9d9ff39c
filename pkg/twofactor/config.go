package twofactor

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/twofactor/pkg/config"
	"github.com/dmitrymomot/twofactor/pkg/ratelimit"
	"github.com/dmitrymomot/twofactor/pkg/totp"
)

// EnvPrefix namespaces every variable read by LoadConfig.
const EnvPrefix = "TWOFA_"

// Config gathers the two-factor settings. With EnvPrefix applied the variables
// are TWOFA_ISSUER, TWOFA_BACKUP_CODE_COUNT, TWOFA_TOTP_PERIOD,
// TWOFA_RATELIMIT_MAX_ATTEMPTS and so on.
type Config struct {
	Issuer          string `env:"ISSUER" envDefault:"TwoFactor"`     // Shown by authenticator apps
	BackupCodeCount int    `env:"BACKUP_CODE_COUNT" envDefault:"10"` // Codes per provisioning or regeneration batch
	BackupCodeCost  int    `env:"BACKUP_CODE_COST" envDefault:"10"`  // bcrypt cost of backup code hashes

	TOTP      totp.Config      `envPrefix:"TOTP_"`
	RateLimit ratelimit.Config `envPrefix:"RATELIMIT_"`
}

// DefaultConfig mirrors the envDefault values.
func DefaultConfig() Config {
	return Config{
		Issuer:          "TwoFactor",
		BackupCodeCount: 10,
		BackupCodeCost:  bcrypt.DefaultCost,
		TOTP:            totp.DefaultConfig(),
		RateLimit:       ratelimit.DefaultConfig(),
	}
}

// LoadConfig reads Config from the environment and an optional .env file.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg, config.WithPrefix(EnvPrefix)); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values that cannot be defaulted silently.
func (c Config) Validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("%w: issuer is required", ErrInvalidConfig)
	}
	if c.BackupCodeCount <= 0 || c.BackupCodeCount > totp.MaxBackupCodes {
		return fmt.Errorf("%w: backup code count must be within 1..%d, got %d", ErrInvalidConfig, totp.MaxBackupCodes, c.BackupCodeCount)
	}
	if p := c.TOTP.Period; p != 0 && (p < time.Second || p%time.Second != 0) {
		return fmt.Errorf("%w: totp period must be a whole number of seconds, got %v", ErrInvalidConfig, p)
	}
	if c.TOTP.SecretSize < totp.MinSecretSize {
		return fmt.Errorf("%w: secret size must be at least %d bytes, got %d", ErrInvalidConfig, totp.MinSecretSize, c.TOTP.SecretSize)
	}
	if c.RateLimit.MaxAttempts <= 0 || c.RateLimit.Window <= 0 || c.RateLimit.Lockout <= 0 {
		return fmt.Errorf("%w: rate limit values must be positive", ErrInvalidConfig)
	}
	return nil
}
