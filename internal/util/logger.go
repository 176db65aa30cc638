// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package util

import (
	"io"
	"log/slog"
	"os"
)

// DebugEnvVar enables debug logging when set to any value.
const DebugEnvVar = "QRSIGN_DEBUG"

// Logger is the process-wide logger. It is usable before InitLogger runs
// (Info level to stderr) so library code and tests never see a nil logger.
var Logger = newLogger(os.Stderr, slog.LevelInfo)

// InitLogger initializes the global logger with the appropriate log level.
// Debug output is enabled by QRSIGN_DEBUG or by the config's debug flag.
func InitLogger(debug bool) {
	level := slog.LevelInfo // Default: only show Info, Warn, Error

	if debug || os.Getenv(DebugEnvVar) != "" {
		level = slog.LevelDebug
	}

	// stderr keeps log lines out of anything written to stdout (payloads, JSON)
	Logger = newLogger(os.Stderr, level)
}

// SetLogOutput redirects the global logger, keeping the current level.
// The monitor uses it to keep log lines from tearing the TUI.
func SetLogOutput(w io.Writer, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	Logger = newLogger(w, level)
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Remove time attribute for cleaner CLI output
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	})
	return slog.New(handler)
}

// Debug logs a debug message (only shown when debug logging is enabled)
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}
