// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package util

import (
	"os"

	"golang.org/x/term"
)

// fingerprintColor is bold cyan.
const fingerprintColor = "1;36"

// supportsColor checks if the terminal supports ANSI color codes
func supportsColor() bool {
	// Check if stdout is a terminal
	if !term.IsTerminal(int(os.Stdout.Fd())) { // #nosec G115 - file descriptors are small integers
		return false
	}

	// Check TERM environment variable
	termEnv := os.Getenv("TERM")
	if termEnv == "" || termEnv == "dumb" {
		return false
	}

	return os.Getenv("NO_COLOR") == ""
}

// ColorFingerprint highlights a fingerprint for terminal output. Output that
// is not a color terminal gets the text unchanged.
func ColorFingerprint(fp string) string {
	return colorize(fp, fingerprintColor, supportsColor())
}

func colorize(s, code string, enabled bool) string {
	if !enabled || code == "" || s == "" {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}
