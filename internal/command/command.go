// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package command

import "errors"

// ErrExit is returned by the quit command to end the shell loop.
var ErrExit = errors.New("exit")

// Command represents a shell command with metadata
type Command struct {
	Name        string   // Primary command name
	Aliases     []string // Alternative names (e.g., "fp" for "fingerprint")
	Usage       string   // Usage string: "sign <file> [archive]"
	Description string   // One-line description
	LongHelp    string   // Multi-line detailed help (optional)
	Category    string   // "Key Management", "Signing", etc.
	Handler     Handler  // Command execution handler
}

// Handler is the interface all command handlers must implement
type Handler interface {
	Execute(args []string, ctx *Context) error
}

// Category constants for organizing commands
const (
	CategoryKeys     = "Key Management"
	CategorySigning  = "Signing"
	CategoryScanning = "Scanning"
	CategoryInfo     = "Information"
	CategoryShell    = "Shell"
)

var categoryOrder = []string{
	CategoryKeys,
	CategorySigning,
	CategoryScanning,
	CategoryInfo,
	CategoryShell,
}
