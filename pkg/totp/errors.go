package totp

import "errors"

var (
	ErrFailedToEncryptSecret         = errors.New("failed to encrypt TOTP secret")
	ErrFailedToDecryptSecret         = errors.New("failed to decrypt TOTP secret")
	ErrInvalidCipherTooShort         = errors.New("cipher text too short")
	ErrFailedToGenerateEncryptionKey = errors.New("failed to generate encryption key")
	ErrFailedToLoadEncryptionKey     = errors.New("failed to load encryption key")
	ErrInvalidEncryptionKeyLength    = errors.New("invalid encryption key length")
	ErrFailedToGenerateSecretKey     = errors.New("failed to generate TOTP secret key")
	ErrInvalidSecretSize             = errors.New("invalid secret size, must be at least 16 bytes")
	ErrFailedToValidateTOTP          = errors.New("failed to validate TOTP")
	ErrFailedToGenerateTOTP          = errors.New("failed to generate TOTP")
	ErrFailedToBuildURI              = errors.New("failed to build provisioning URI")
	ErrMissingSecret                 = errors.New("missing secret")
	ErrInvalidSecret                 = errors.New("invalid secret")
	ErrMissingAccountName            = errors.New("missing account name")
	ErrMissingIssuer                 = errors.New("missing issuer")
	ErrInvalidOTP                    = errors.New("invalid OTP format")
	ErrInvalidPeriod                 = errors.New("invalid TOTP period, must be a whole number of seconds")
	ErrInvalidBackupCodeCount        = errors.New("invalid backup code count, must be greater than 0")
	ErrInvalidBackupCodeDigits       = errors.New("invalid backup code length")
	ErrFailedToGenerateBackupCode    = errors.New("failed to generate backup code")
	ErrFailedToHashBackupCode        = errors.New("failed to hash backup code")
)
