// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package security hardens the qrsign process while it holds a private key.
package security

import "github.com/aplane-algo/qrsign/internal/util"

// Harden disables core dumps and, when lockMemory is set, locks the process
// memory. Failures are logged and returned; callers decide whether to go on.
func Harden(lockMemory bool) error {
	if err := DisableCoreDumps(); err != nil {
		util.Logger.Warn("could not disable core dumps", "error", err)
		return err
	}
	if !lockMemory {
		return nil
	}
	if err := LockMemory(); err != nil {
		util.Logger.Warn("could not lock memory", "error", err)
		return err
	}
	util.Debug("process memory locked")
	return nil
}
