// Package xlog is the structured-logging adapter the CLI and materialisers
// use for non-fatal diagnostics (object-layout notices, JIT mapping
// lifecycle, relocation counts). It mirrors the shape of go-ethereum's own
// log package — package-level Info/Warn/Error calls with key-value pairs
// over a swappable handler — but built directly on log/slog rather than a
// fetched module: none of the example repos pull in a structured-logging
// library as a direct dependency (go-ethereum's go.mod only carries
// go-kit/log, go-logfmt and friends transitively, not as something its own
// code imports), so there is no grounded third-party choice to adopt here
// and the stdlib's own answer to the same package shape is used instead.
//
// Program output (stdout) must stay free of log lines, so the default
// handler writes to stderr.
package xlog

import (
	"io"
	"log/slog"
	"os"
)

var logLevel = new(slog.LevelVar) // zero value is slog.LevelInfo

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

// SetOutput redirects the package logger's handler to w, preserving the
// current level. Used by tests to capture log output.
func SetOutput(w io.Writer) {
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

// SetLevel adjusts the minimum level the package logger emits.
func SetLevel(level slog.Level) {
	logLevel.Set(level)
}

// Debug logs a diagnostic message only useful when tracing codegen internals.
func Debug(msg string, args ...any) { logger.Debug(msg, args...) }

// Info logs a routine lifecycle event (mapping created, object written).
func Info(msg string, args ...any) { logger.Info(msg, args...) }

// Warn logs a recoverable anomaly (e.g. a loader-unfriendly but valid
// object layout).
func Warn(msg string, args ...any) { logger.Warn(msg, args...) }

// Error logs a non-fatal failure the caller is about to surface itself.
func Error(msg string, args ...any) { logger.Error(msg, args...) }
