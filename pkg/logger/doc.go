// Package logger provides structured logging for the middleware service.
// It wraps the standard log/slog package: JSON output in production,
// human-readable text everywhere else.
package logger
