// Package totp provides the primitives behind authenticator-app based two-factor
// authentication: secret generation, provisioning URIs, RFC 6238 code validation,
// numeric single-use backup codes and encryption of secrets at rest.
//
// The RFC 4226/6238 arithmetic is delegated to github.com/pquerna/otp; this package
// pins the parameters (SHA1, 6 digits), adds input normalization with a strict format
// check and exposes a time-explicit Validator so callers control the reference time.
//
// # Architecture
//
//   • otp.go      – GenerateSecret, ProvisioningURI and the Validator type.
//   • recovery.go – GenerateBackupCodes, NormalizeBackupCode and the CodeHasher
//     abstraction with a bcrypt implementation.
//   • aes256.go   – Cipher, an AES-256-GCM wrapper for persisting secrets encrypted.
//   • config.go   – env tag driven Config (period, skew, secret size, encryption key).
//
// # Usage
//
//	secret, _ := totp.GenerateSecret(totp.DefaultSecretSize)
//	uri, _ := totp.ProvisioningURI(totp.URIParams{
//	    Secret:      secret,
//	    AccountName: "alice@example.com",
//	    Issuer:      "Acme",
//	})
//
//	v := totp.NewValidator(30*time.Second, 2)
//	ok, err := v.Verify("123 456", secret, time.Now())
//	if errors.Is(err, totp.ErrInvalidOTP) {
//	    // malformed input, not a failed verification
//	}
//
// Backup codes are hashed before they are stored:
//
//	codes, _ := totp.GenerateBackupCodes(10, totp.DefaultDigits)
//	hasher := totp.NewBcryptHasher(bcrypt.DefaultCost)
//	hash, _ := hasher.Hash(codes[0])
//	hasher.Compare(hash, codes[0]) // true
//
// # Error Handling
//
// Operations return package sentinels (ErrInvalidOTP, ErrInvalidSecret,
// ErrFailedToEncryptSecret, ...) joined with the underlying cause via errors.Join.
//
// # See Also
//
//   • RFC 4226 – HMAC-Based One-Time Password (HOTP) Algorithm
//   • RFC 6238 – Time-Based One-Time Password (TOTP) Algorithm
//   • https://github.com/google/google-authenticator/wiki/Key-Uri-Format
package totp
