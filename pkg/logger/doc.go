// Package logger builds log/slog loggers with functional options and keeps
// attribute names consistent across the two-factor packages.
//
// New returns a *slog.Logger whose handler is wrapped in LogHandlerDecorator.
// The decorator runs ContextExtractor callbacks on every record, and always
// includes attributes attached to the context with ContextWithAttrs:
//
//	log := logger.New(logger.WithEnvironment("production", "twofactorctl"))
//
//	ctx = logger.ContextWithAttrs(ctx, logger.UserID(userID))
//	log.InfoContext(ctx, "two-factor enabled", logger.Method("totp"))
//
// Attribute helpers (UserID, Method, Key, Component, Event, Error, ...) return
// slog.Attr values. Helpers for optional values return an empty Attr, which
// slog drops.
//
// Services in this module accept a *slog.Logger option and fall back to
// Discard when none is given.
package logger
