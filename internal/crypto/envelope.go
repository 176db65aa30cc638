// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package crypto seals secrets at rest with a passphrase.
//
// The envelope is self-contained JSON: Argon2id salt, AES-256-GCM nonce and
// ciphertext, plus a random envelope ID bound in as additional data so an
// envelope's ciphertext cannot be spliced into another envelope.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"
)

const (
	// Argon2id parameters (OWASP recommended)
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2KeyLen  = 32        // AES-256

	saltLen = 32

	// EnvelopeVersion is the only envelope format written and read.
	EnvelopeVersion = 2
)

// ErrWrongPassphrase is returned when authentication of the ciphertext fails.
var ErrWrongPassphrase = errors.New("incorrect passphrase or corrupted data")

// Envelope is the on-disk form of a sealed secret.
type Envelope struct {
	EnvelopeVersion int    `json:"envelope_version"`
	ID              string `json:"id"`         // random UUID, authenticated as additional data
	Salt            string `json:"salt"`       // Base64-encoded Argon2id salt
	Nonce           string `json:"nonce"`      // Base64-encoded AES-GCM nonce
	Ciphertext      string `json:"ciphertext"` // Base64-encoded ciphertext and tag
}

// IsEncrypted reports whether data looks like an Envelope.
func IsEncrypted(data []byte) bool {
	var env Envelope
	return json.Unmarshal(data, &env) == nil && env.EnvelopeVersion > 0
}

// DeriveKey derives an AES-256 key from passphrase and salt with Argon2id.
// Caller is responsible for zeroing the returned key when done.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
}

// Seal encrypts plaintext under passphrase and returns the envelope JSON.
func Seal(plaintext, passphrase []byte) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	id := uuid.NewString()

	key := DeriveKey(passphrase, salt)
	defer ZeroBytes(key)
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, []byte(id))

	return json.MarshalIndent(Envelope{
		EnvelopeVersion: EnvelopeVersion,
		ID:              id,
		Salt:            base64.StdEncoding.EncodeToString(salt),
		Nonce:           base64.StdEncoding.EncodeToString(nonce),
		Ciphertext:      base64.StdEncoding.EncodeToString(ciphertext),
	}, "", "  ")
}

// Open decrypts an envelope produced by Seal.
func Open(data, passphrase []byte) ([]byte, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse encrypted data: %w", err)
	}
	if env.EnvelopeVersion != EnvelopeVersion {
		return nil, fmt.Errorf("envelope_version %d not supported (expected %d)", env.EnvelopeVersion, EnvelopeVersion)
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	key := DeriveKey(passphrase, salt)
	defer ZeroBytes(key)
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("invalid nonce length %d", len(nonce))
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(env.ID))
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
