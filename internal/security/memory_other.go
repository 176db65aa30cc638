// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

//go:build !linux

package security

import (
	"errors"
	"fmt"
	"runtime"
)

// LockMemory is only supported on linux.
func LockMemory() error {
	return fmt.Errorf("memory locking on %s: %w", runtime.GOOS, errors.ErrUnsupported)
}

// DisableCoreDumps is a no-op outside linux.
func DisableCoreDumps() error {
	return nil
}
