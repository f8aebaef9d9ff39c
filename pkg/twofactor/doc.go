// Package twofactor implements TOTP based two-factor authentication with
// single-use backup codes and per-method attempt lockout.
//
// The package is organised around four components:
//
//   - SecretManager provisions a credential: a random base32 secret, the
//     otpauth:// URI for authenticator apps and a batch of backup codes of which
//     only bcrypt hashes are stored.
//   - BackupCodes verifies and consumes codes with a conditional update, reports
//     counts and regenerates batches.
//   - Verifier runs the verification protocol: format check, then TOTP, then
//     backup codes. Each method has its own ratelimit counter keyed by
//     "<userID>:2fa_totp" or "<userID>:2fa_backup".
//   - Service exposes the entry points used by an authentication service:
//     Provision, ConfirmEnable, Verify, Status, RegenerateBackupCodes, Disable,
//     PurgeUsedBackupCodes and AttemptStatus.
//
// # Usage
//
//	cfg, err := twofactor.LoadConfig()
//	if err != nil {
//		return err
//	}
//
//	svc, err := twofactor.NewServiceFromConfig(
//		pgstorage.New(pool),
//		ratelimit.NewPostgresStore(pool, ""),
//		cfg,
//		twofactor.WithLogger(log),
//	)
//	if err != nil {
//		return err
//	}
//
//	p, err := svc.Provision(ctx, userID, email)
//	// show p.URI (or p.QRCode(256)) and p.BackupCodes once
//
//	_, err = svc.ConfirmEnable(ctx, userID, code, twofactor.AttemptMeta{ClientIP: ip})
//
//	res, err := svc.Verify(ctx, userID, code, twofactor.AttemptMeta{ClientIP: ip})
//	switch {
//	case errors.Is(err, twofactor.ErrValidation):
//		// malformed input, nothing was counted
//	case errors.Is(err, twofactor.ErrRateLimited):
//		var rl *twofactor.RateLimitedError
//		errors.As(err, &rl)
//		// ask the user to retry in rl.RetryAfterSeconds()
//	case errors.Is(err, twofactor.ErrInvalidCode):
//		// wrong code, or the store failed and the check failed closed
//	}
//
// # Failure Semantics
//
// Verification never succeeds on a store error: the error is logged and the
// caller receives ErrInvalidCode. Any 6-digit input is tried as a TOTP code
// first and as a backup code second.
package twofactor
