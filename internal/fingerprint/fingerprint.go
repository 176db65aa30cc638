// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package fingerprint derives the human-verifiable identifier of a public key.
//
// The digest is SHA-256 over the raw public-key bytes only, never over a
// framed wire payload, so the same key yields the same fingerprint whether it
// was generated locally, restored from a backup, or scanned.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Size is the digest length in bytes.
const Size = sha256.Size

// Placeholder is displayed when no public key is held.
const Placeholder = "<no public key loaded>"

// Fingerprint is the SHA-256 digest of a raw public key.
type Fingerprint [Size]byte

// Compute hashes the raw public key.
func Compute(rawPublicKey []byte) Fingerprint {
	return Fingerprint(sha256.Sum256(rawPublicKey))
}

// String returns the canonical display form: uppercase hex octets joined by ':'.
func (f Fingerprint) String() string {
	var b strings.Builder
	b.Grow(Size*3 - 1)
	for i, octet := range f {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(strings.ToUpper(hex.EncodeToString([]byte{octet})))
	}
	return b.String()
}

// Display returns the display form for an optional key. A nil or empty key
// yields Placeholder, never an empty string.
func Display(rawPublicKey []byte) string {
	if len(rawPublicKey) == 0 {
		return Placeholder
	}
	return Compute(rawPublicKey).String()
}

// Parse reads a fingerprint in display form. Case is ignored.
func Parse(s string) (Fingerprint, bool) {
	var f Fingerprint
	parts := strings.Split(s, ":")
	if len(parts) != Size {
		return f, false
	}
	for i, p := range parts {
		if len(p) != 2 {
			return f, false
		}
		b, err := hex.DecodeString(p)
		if err != nil {
			return f, false
		}
		f[i] = b[0]
	}
	return f, true
}
