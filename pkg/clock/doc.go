// Package clock abstracts the wall clock so that time-window logic (TOTP steps,
// attempt windows, lockouts) can be driven deterministically in tests.
//
// Production code takes a Clock and defaults to System(). Tests use Mock:
//
//	c := clock.NewMock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
//	c.Advance(45 * time.Second)
package clock
