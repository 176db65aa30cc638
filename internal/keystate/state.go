// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package keystate holds the session's key and manages its lifecycle:
// generate, import and export of the signing key pair, and adoption of
// public keys received by scanning.
//
// The held key is exactly one of None, PublicOnly or Pair. A Pair always has
// both halves; there is no representation of "private key without public key".
package keystate

import (
	"github.com/aplane-algo/qrsign/internal/cryptoengine"
	"github.com/aplane-algo/qrsign/internal/fingerprint"
)

// State is the key currently held by a session.
type State interface {
	// Public returns the public half, or nil for None.
	Public() *cryptoengine.PublicKey
	// Kind names the variant ("none", "public", "pair").
	Kind() string
	state()
}

// None means no key is loaded.
type None struct{}

// PublicOnly holds a verify-only key, typically received by scanning.
type PublicOnly struct {
	Key *cryptoengine.PublicKey
}

// Pair holds a full signing key pair.
type Pair struct {
	PublicKey  *cryptoengine.PublicKey
	PrivateKey *cryptoengine.PrivateKey
}

func (None) Public() *cryptoengine.PublicKey       { return nil }
func (s PublicOnly) Public() *cryptoengine.PublicKey { return s.Key }
func (s Pair) Public() *cryptoengine.PublicKey       { return s.PublicKey }

func (None) Kind() string       { return "none" }
func (PublicOnly) Kind() string { return "public" }
func (Pair) Kind() string       { return "pair" }

func (None) state()       {}
func (PublicOnly) state() {}
func (Pair) state()       {}

// CanSign reports whether s can produce signatures (only Pair can).
func CanSign(s State) bool {
	_, ok := s.(Pair)
	return ok
}

// Fingerprint returns the display fingerprint of the held public key, or
// fingerprint.Placeholder when nothing is loaded.
func Fingerprint(s State) string {
	if s == nil {
		return fingerprint.Placeholder
	}
	return fingerprint.Display(s.Public().Raw())
}
