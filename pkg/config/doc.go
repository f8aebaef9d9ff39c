// Package config loads env-tagged structs through github.com/caarlos0/env/v11,
// reading an optional .env file with github.com/joho/godotenv first.
//
// Parsed values are cached per (type, prefix) so repeated Load calls are cheap.
// Nested structs use envPrefix tags, and a top-level prefix is passed with
// WithPrefix:
//
//	type Config struct {
//		Issuer string           `env:"ISSUER" envDefault:"TwoFactor"`
//		TOTP   totp.Config      `envPrefix:"TOTP_"`
//		Limit  ratelimit.Config `envPrefix:"RATELIMIT_"`
//	}
//
//	var cfg Config
//	config.MustLoad(&cfg, config.WithPrefix("TWOFA_"))
//
// Tests that change the environment call ResetCache or pass WithForceReload.
package config
