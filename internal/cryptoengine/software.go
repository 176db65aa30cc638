// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package cryptoengine

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"slices"

	"github.com/go-jose/go-jose/v4"

	"github.com/aplane-algo/qrsign/internal/qrerr"
	"github.com/aplane-algo/qrsign/internal/util"
	"github.com/aplane-algo/qrsign/internal/wire"
)

const (
	// CurveName is the only curve the wire format supports: a 64-byte r||s
	// signature pins the scalar size to 32 bytes.
	CurveName = "P-256"
	// JWKAlgorithm is the JOSE name of ECDSA P-256 with SHA-256.
	JWKAlgorithm = "ES256"

	softwareName = "software/" + CurveName
	scalarSize   = wire.SignatureSize / 2
)

// Key operations as written by WebCrypto-style JWK exports.
const (
	opSign   = "sign"
	opVerify = "verify"
)

var (
	errWrongCurve   = errors.New("unsupported curve (only " + CurveName + ")")
	errWrongKeyKind = errors.New("key is not an ECDSA key")
	errForeignKey   = errors.New("key handle was not produced by this engine")
)

// Software is an in-process ECDSA P-256 engine backed by crypto/ecdsa.
// JWK encoding is delegated to go-jose.
type Software struct {
	logger *slog.Logger
	rand   io.Reader
}

// NewSoftware returns a software engine. A nil logger uses util.Logger.
func NewSoftware(logger *slog.Logger) *Software {
	if logger == nil {
		logger = util.Logger
	}
	return &Software{
		logger: logger.With("engine", softwareName),
		rand:   rand.Reader,
	}
}

// Name implements Engine.
func (e *Software) Name() string { return softwareName }

// GenerateKeyPair implements Engine.
func (e *Software) GenerateKeyPair(ctx context.Context) (*PublicKey, *PrivateKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, qrerr.NewCryptoEngineError("generate", err)
	}
	e.logger.Debug("creating ECDSA key", "curve", CurveName)
	priv, err := ecdsa.GenerateKey(elliptic.P256(), e.rand)
	if err != nil {
		e.logger.Error("could not create ECDSA key", "error", err)
		return nil, nil, qrerr.NewCryptoEngineError("generate", err)
	}
	pub, err := e.wrapPublic(&priv.PublicKey)
	if err != nil {
		return nil, nil, qrerr.NewCryptoEngineError("generate", err)
	}
	return pub, e.wrapPrivate(priv), nil
}

// Sign implements Engine. The digest is SHA-256 of message.
func (e *Software) Sign(ctx context.Context, key *PrivateKey, message []byte) (Signature, error) {
	var sig Signature
	if err := ctx.Err(); err != nil {
		return sig, qrerr.NewCryptoEngineError("sign", err)
	}
	priv, err := e.private(key)
	if err != nil {
		return sig, qrerr.NewCryptoEngineError("sign", err)
	}
	digest := sha256.Sum256(message)
	r, s, err := ecdsa.Sign(e.rand, priv, digest[:])
	if err != nil {
		return sig, qrerr.NewCryptoEngineError("sign", err)
	}
	r.FillBytes(sig[:scalarSize])
	s.FillBytes(sig[scalarSize:])
	return sig, nil
}

// Verify implements Engine.
func (e *Software) Verify(ctx context.Context, key *PublicKey, sig Signature, message []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, qrerr.NewCryptoEngineError("verify", err)
	}
	pub, err := e.public(key)
	if err != nil {
		return false, qrerr.NewCryptoEngineError("verify", err)
	}
	r := new(big.Int).SetBytes(sig[:scalarSize])
	s := new(big.Int).SetBytes(sig[scalarSize:])
	digest := sha256.Sum256(message)
	return ecdsa.Verify(pub, digest[:], r, s), nil
}

// ExportPublicJWK implements Engine.
func (e *Software) ExportPublicJWK(ctx context.Context, key *PublicKey) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, qrerr.NewCryptoEngineError("export", err)
	}
	pub, err := e.public(key)
	if err != nil {
		return nil, qrerr.NewCryptoEngineError("export", err)
	}
	out, err := marshalJWK(pub, opVerify)
	if err != nil {
		return nil, qrerr.NewCryptoEngineError("export", err)
	}
	return out, nil
}

// ExportPrivateJWK implements Engine.
func (e *Software) ExportPrivateJWK(ctx context.Context, key *PrivateKey) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, qrerr.NewCryptoEngineError("export", err)
	}
	priv, err := e.private(key)
	if err != nil {
		return nil, qrerr.NewCryptoEngineError("export", err)
	}
	out, err := marshalJWK(priv, opSign)
	if err != nil {
		return nil, qrerr.NewCryptoEngineError("export", err)
	}
	return out, nil
}

// ExportRaw implements Engine.
func (e *Software) ExportRaw(ctx context.Context, key *PublicKey) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, qrerr.NewCryptoEngineError("export", err)
	}
	if _, err := e.public(key); err != nil {
		return nil, qrerr.NewCryptoEngineError("export", err)
	}
	return key.Raw(), nil
}

// ImportPublicJWK implements Engine. The key is restricted to verification.
func (e *Software) ImportPublicJWK(ctx context.Context, data []byte) (*PublicKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, qrerr.NewCryptoEngineError("import", err)
	}
	jwk, err := unmarshalJWK(data, opVerify)
	if err != nil {
		return nil, qrerr.NewCryptoEngineError("import", err)
	}
	var pub *ecdsa.PublicKey
	switch k := jwk.Key.(type) {
	case *ecdsa.PublicKey:
		pub = k
	case *ecdsa.PrivateKey:
		// A private JWK also carries the public point; only that half is used.
		pub = &k.PublicKey
	default:
		return nil, qrerr.NewCryptoEngineError("import", errWrongKeyKind)
	}
	if pub.Curve != elliptic.P256() {
		return nil, qrerr.NewCryptoEngineError("import", errWrongCurve)
	}
	out, err := e.wrapPublic(pub)
	if err != nil {
		return nil, qrerr.NewCryptoEngineError("import", err)
	}
	return out, nil
}

// ImportPrivateJWK implements Engine. The key is restricted to signing.
func (e *Software) ImportPrivateJWK(ctx context.Context, data []byte) (*PrivateKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, qrerr.NewCryptoEngineError("import", err)
	}
	jwk, err := unmarshalJWK(data, opSign)
	if err != nil {
		return nil, qrerr.NewCryptoEngineError("import", err)
	}
	priv, ok := jwk.Key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, qrerr.NewCryptoEngineError("import", errors.New("JWK has no private component"))
	}
	if priv.Curve != elliptic.P256() {
		return nil, qrerr.NewCryptoEngineError("import", errWrongCurve)
	}
	return e.wrapPrivate(priv), nil
}

// ImportRaw implements Engine.
func (e *Software) ImportRaw(ctx context.Context, raw []byte) (*PublicKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, qrerr.NewCryptoEngineError("import", err)
	}
	pub, err := ecdsa.ParseUncompressedPublicKey(elliptic.P256(), raw)
	if err != nil {
		return nil, qrerr.NewCryptoEngineError("import", fmt.Errorf("invalid raw %s public key (%d bytes): %w", CurveName, len(raw), err))
	}
	out, err := e.wrapPublic(pub)
	if err != nil {
		return nil, qrerr.NewCryptoEngineError("import", err)
	}
	return out, nil
}

func (e *Software) wrapPublic(pub *ecdsa.PublicKey) (*PublicKey, error) {
	raw, err := pub.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}
	return &PublicKey{engine: softwareName, raw: raw, handle: pub}, nil
}

func (e *Software) wrapPrivate(priv *ecdsa.PrivateKey) *PrivateKey {
	return &PrivateKey{engine: softwareName, handle: priv}
}

func (e *Software) public(key *PublicKey) (*ecdsa.PublicKey, error) {
	if key == nil {
		return nil, errors.New("public key is nil")
	}
	pub, ok := key.handle.(*ecdsa.PublicKey)
	if !ok || key.engine != softwareName {
		return nil, errForeignKey
	}
	return pub, nil
}

func (e *Software) private(key *PrivateKey) (*ecdsa.PrivateKey, error) {
	if key == nil {
		return nil, errors.New("private key is nil")
	}
	priv, ok := key.handle.(*ecdsa.PrivateKey)
	if !ok || key.engine != softwareName {
		return nil, errForeignKey
	}
	return priv, nil
}

// marshalJWK encodes key with go-jose and adds the WebCrypto "key_ops" and
// "ext" members so backups stay interchangeable with browser exports.
func marshalJWK(key any, op string) (json.RawMessage, error) {
	jwk := jose.JSONWebKey{Key: key, Algorithm: JWKAlgorithm}
	if !jwk.Valid() {
		return nil, errors.New("invalid key for JWK export")
	}
	base, err := jwk.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JWK: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, fmt.Errorf("failed to re-read JWK: %w", err)
	}
	fields["key_ops"] = []string{op}
	fields["ext"] = true
	return json.Marshal(fields)
}

// unmarshalJWK parses a JWK and checks that any declared key_ops permit op.
func unmarshalJWK(data []byte, op string) (*jose.JSONWebKey, error) {
	var ops struct {
		KeyOps []string `json:"key_ops"`
	}
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("invalid JWK: %w", err)
	}
	if len(ops.KeyOps) > 0 && !slices.Contains(ops.KeyOps, op) {
		return nil, fmt.Errorf("JWK key_ops %v do not permit %q", ops.KeyOps, op)
	}
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("invalid JWK: %w", err)
	}
	if !jwk.Valid() {
		return nil, errors.New("invalid JWK key material")
	}
	return &jwk, nil
}
