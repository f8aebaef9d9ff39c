package totp

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/pquerna/otp"
	otptotp "github.com/pquerna/otp/totp"
)

const (
	DefaultDigits     = 6                // Standard 6-digit TOTP codes
	DefaultPeriod     = 30 * time.Second // RFC 6238 time step
	DefaultSkew       = 2                // ±2 steps, i.e. ±60s of clock drift
	DefaultSecretSize = 32               // 256-bit secret
	MinSecretSize     = 16               // RFC 4226 requires at least 128 bits
)

var (
	// ValidateSecretKeyRegex ensures Base32 format: uppercase A-Z, digits 2-7, optional padding
	ValidateSecretKeyRegex = regexp.MustCompile("^[A-Z2-7]+=*$")

	// CodeFormatRegex is the only accepted shape of a user supplied code after normalization.
	CodeFormatRegex = regexp.MustCompile(`^\d{6}$`)

	b32NoPadding = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// URIParams contains the parameters for provisioning URI generation.
type URIParams struct {
	Secret      string        // Base32-encoded TOTP secret key (required)
	AccountName string        // User identifier like email (required)
	Issuer      string        // Service name displayed in authenticator apps (required)
	Period      time.Duration // Code validity period (optional, defaults to 30s)
}

// Validate ensures all required parameters are present and valid.
func (p URIParams) Validate() error {
	if p.Secret == "" {
		return ErrMissingSecret
	}
	if !ValidateSecretKeyRegex.MatchString(p.Secret) {
		return ErrInvalidSecret
	}
	if p.AccountName == "" {
		return ErrMissingAccountName
	}
	if p.Issuer == "" {
		return ErrMissingIssuer
	}
	return nil
}

// GenerateSecret returns a Base32-encoded (unpadded) secret carrying size bytes
// of entropy from crypto/rand.
func GenerateSecret(size int) (string, error) {
	if size < MinSecretSize {
		return "", ErrInvalidSecretSize
	}
	secret := make([]byte, size)
	if _, err := rand.Read(secret); err != nil {
		return "", errors.Join(ErrFailedToGenerateSecretKey, err)
	}
	return b32NoPadding.EncodeToString(secret), nil
}

// ProvisioningURI builds the otpauth:// URI consumed by authenticator apps.
// The format follows the Key Uri Format specification:
// https://github.com/google/google-authenticator/wiki/Key-Uri-Format
func ProvisioningURI(params URIParams) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}

	raw, err := decodeSecret(params.Secret)
	if err != nil {
		return "", err
	}

	period, err := periodSeconds(params.Period)
	if err != nil {
		return "", err
	}

	key, err := otptotp.Generate(otptotp.GenerateOpts{
		Issuer:      params.Issuer,
		AccountName: params.AccountName,
		Period:      period,
		Secret:      raw,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", errors.Join(ErrFailedToBuildURI, err)
	}

	return key.URL(), nil
}

// NormalizeCode strips every whitespace rune so codes typed as "123 456" are accepted.
func NormalizeCode(code string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, code)
}

// ValidCodeFormat reports whether an already normalized code is exactly six digits.
func ValidCodeFormat(code string) bool {
	return CodeFormatRegex.MatchString(code)
}

// Validator verifies codes against a secret at an explicit reference time.
// The zero value is not usable; construct with NewValidator.
type Validator struct {
	period uint
	skew   uint
}

// NewValidator creates a validator accepting codes from [-skew, +skew] steps around
// the reference time. A non-positive period falls back to DefaultPeriod.
func NewValidator(period time.Duration, skew uint) Validator {
	p, err := periodSeconds(period)
	if err != nil {
		p = uint(DefaultPeriod / time.Second)
	}
	return Validator{period: p, skew: skew}
}

// Period returns the configured time step.
func (v Validator) Period() time.Duration {
	return time.Duration(v.period) * time.Second
}

// Skew returns the number of steps accepted on each side of the reference step.
func (v Validator) Skew() uint {
	return v.skew
}

// Verify reports whether code is valid for secret at the given time.
// A malformed code yields ErrInvalidOTP, which callers must treat as a format
// error rather than a failed verification.
func (v Validator) Verify(code, secret string, at time.Time) (bool, error) {
	code = NormalizeCode(code)
	if !ValidCodeFormat(code) {
		return false, ErrInvalidOTP
	}

	secret = normalizeSecret(secret)
	if secret == "" {
		return false, ErrMissingSecret
	}
	if !ValidateSecretKeyRegex.MatchString(secret) {
		return false, ErrInvalidSecret
	}

	ok, err := otptotp.ValidateCustom(code, secret, at, v.opts())
	if err != nil {
		return false, errors.Join(ErrFailedToValidateTOTP, err)
	}
	return ok, nil
}

// Generate returns the code for the time step containing at.
func (v Validator) Generate(secret string, at time.Time) (string, error) {
	secret = normalizeSecret(secret)
	if !ValidateSecretKeyRegex.MatchString(secret) {
		return "", ErrInvalidSecret
	}

	code, err := otptotp.GenerateCodeCustom(secret, at, v.opts())
	if err != nil {
		return "", errors.Join(ErrFailedToGenerateTOTP, err)
	}
	return code, nil
}

func (v Validator) opts() otptotp.ValidateOpts {
	return otptotp.ValidateOpts{
		Period:    v.period,
		Skew:      v.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

func normalizeSecret(secret string) string {
	return strings.ToUpper(strings.TrimSpace(secret))
}

func decodeSecret(secret string) ([]byte, error) {
	raw, err := b32NoPadding.DecodeString(strings.TrimRight(normalizeSecret(secret), "="))
	if err != nil {
		return nil, errors.Join(ErrInvalidSecret, err)
	}
	return raw, nil
}

func periodSeconds(d time.Duration) (uint, error) {
	if d == 0 {
		return uint(DefaultPeriod / time.Second), nil
	}
	if d < time.Second || d%time.Second != 0 {
		return 0, ErrInvalidPeriod
	}
	return uint(d / time.Second), nil
}
