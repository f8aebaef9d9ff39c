package totp

import "time"

// Config holds TOTP tunables. Field tags carry no prefix so the struct can be
// embedded in a parent config with envPrefix (e.g. TWOFA_TOTP_).
type Config struct {
	Period        time.Duration `env:"PERIOD" envDefault:"30s"`     // Length of one time step
	Skew          uint          `env:"SKEW" envDefault:"2"`         // Steps accepted on each side of the current one
	SecretSize    int           `env:"SECRET_SIZE" envDefault:"32"` // Secret entropy in bytes
	EncryptionKey string        `env:"ENCRYPTION_KEY"`              // Optional base64 AES-256 key for secrets at rest
}

// DefaultConfig mirrors the envDefault values.
func DefaultConfig() Config {
	return Config{
		Period:     DefaultPeriod,
		Skew:       DefaultSkew,
		SecretSize: DefaultSecretSize,
	}
}

// Validator builds a Validator from the configured period and skew.
func (c Config) Validator() Validator {
	return NewValidator(c.Period, c.Skew)
}

// Cipher returns nil when no encryption key is configured.
func (c Config) Cipher() (*Cipher, error) {
	if c.EncryptionKey == "" {
		return nil, nil
	}
	key, err := DecodeEncryptionKey(c.EncryptionKey)
	if err != nil {
		return nil, err
	}
	return NewCipher(key)
}
