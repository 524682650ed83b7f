// Package logger builds the structured slog loggers used across the
// interceptor: text output for development, JSON output for production.
package logger
