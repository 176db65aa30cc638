// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package cryptoengine defines the crypto engine capability used by the key
// lifecycle, scan and batch components, and provides a software implementation.
//
// The engine owns key generation, signing, verification and the two key
// encodings: JWK for backup files and the raw uncompressed point for QR
// transport and fingerprinting. Callers only ever hold opaque key handles.
// A public handle can only verify and a private handle can only sign; the
// usage restriction is structural rather than a runtime flag.
package cryptoengine

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/aplane-algo/qrsign/internal/wire"
)

// Signature is the fixed-width r||s encoding carried on the wire.
type Signature = [wire.SignatureSize]byte

// Engine is the crypto engine capability.
// All failures are returned as *qrerr.CryptoEngineError.
type Engine interface {
	// Name identifies the engine and curve (e.g. "software/P-256").
	Name() string

	// GenerateKeyPair creates a fresh key pair capable of signing and verifying.
	GenerateKeyPair(ctx context.Context) (*PublicKey, *PrivateKey, error)

	// Sign signs the exact message bytes.
	Sign(ctx context.Context, key *PrivateKey, message []byte) (Signature, error)

	// Verify reports whether sig is a valid signature of message under key.
	// A well-formed but wrong signature returns (false, nil).
	Verify(ctx context.Context, key *PublicKey, sig Signature, message []byte) (bool, error)

	// ExportPublicJWK and ExportPrivateJWK produce the portable backup form.
	ExportPublicJWK(ctx context.Context, key *PublicKey) (json.RawMessage, error)
	ExportPrivateJWK(ctx context.Context, key *PrivateKey) (json.RawMessage, error)

	// ExportRaw produces the raw public-key encoding used on the wire.
	ExportRaw(ctx context.Context, key *PublicKey) ([]byte, error)

	// ImportPublicJWK imports a verify-only key.
	ImportPublicJWK(ctx context.Context, jwk []byte) (*PublicKey, error)
	// ImportPrivateJWK imports a sign-only key.
	ImportPrivateJWK(ctx context.Context, jwk []byte) (*PrivateKey, error)
	// ImportRaw imports a verify-only key from its raw encoding.
	ImportRaw(ctx context.Context, raw []byte) (*PublicKey, error)
}

// PublicKey is an opaque verify-only key handle.
type PublicKey struct {
	engine string
	raw    []byte // cached raw encoding
	handle any
}

// PrivateKey is an opaque sign-only key handle.
type PrivateKey struct {
	engine string
	handle any
}

// Raw returns a copy of the raw public-key encoding.
func (k *PublicKey) Raw() []byte {
	if k == nil {
		return nil
	}
	out := make([]byte, len(k.raw))
	copy(out, k.raw)
	return out
}

// Engine returns the name of the engine that produced the handle.
func (k *PublicKey) Engine() string {
	if k == nil {
		return ""
	}
	return k.engine
}

// Engine returns the name of the engine that produced the handle.
func (k *PrivateKey) Engine() string {
	if k == nil {
		return ""
	}
	return k.engine
}

// Equal reports whether two public keys have the same raw encoding.
func (k *PublicKey) Equal(other *PublicKey) bool {
	if k == nil || other == nil {
		return k == other
	}
	return bytes.Equal(k.raw, other.raw)
}
