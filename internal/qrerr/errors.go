// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package qrerr defines the error taxonomy shared by the qrsign components.
//
// Crypto engine, backup and encoding failures are surfaced to the user.
// Payload format errors are routine while scanning and are dropped silently.
// A declined confirmation is not an error at all; ErrUserDeclined exists so
// callers can tell "nothing happened" apart from success.
package qrerr

import (
	"errors"
	"fmt"
)

// ErrUserDeclined is returned when the user rejects a confirmation prompt.
var ErrUserDeclined = errors.New("declined by user")

// CryptoEngineError wraps a failure reported by the crypto engine
// (unsupported algorithm, invalid key material, sign/verify failure).
type CryptoEngineError struct {
	Op  string // "generate", "sign", "verify", "import", "export"
	Err error
}

func (e *CryptoEngineError) Error() string {
	return fmt.Sprintf("crypto engine %s failed: %v", e.Op, e.Err)
}

func (e *CryptoEngineError) Unwrap() error { return e.Err }

// NewCryptoEngineError wraps err unless it already is a CryptoEngineError.
func NewCryptoEngineError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CryptoEngineError
	if errors.As(err, &ce) {
		return err
	}
	return &CryptoEngineError{Op: op, Err: err}
}

// PayloadFormatError describes QR content that is too short or carries an
// unknown tag.
type PayloadFormatError struct {
	Length int
	Reason string
}

func (e *PayloadFormatError) Error() string {
	return fmt.Sprintf("unrecognized payload (%d bytes): %s", e.Length, e.Reason)
}

// BackupFormatError is returned for key backup files with a bad JSON shape,
// a wrong type tag, or missing halves.
type BackupFormatError struct {
	Reason string
	Err    error
}

func (e *BackupFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("this file is not a key pair: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("this file is not a key pair: %s", e.Reason)
}

func (e *BackupFormatError) Unwrap() error { return e.Err }

// EncodingError is returned when a document to sign is not valid UTF-8.
type EncodingError struct {
	Offset int // byte offset of the first invalid sequence
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("the provided file is not UTF-8 encoded text (invalid byte at offset %d)", e.Offset)
}

// IsSilent reports whether err should be swallowed rather than shown to the user.
func IsSilent(err error) bool {
	if err == nil || errors.Is(err, ErrUserDeclined) {
		return true
	}
	var pe *PayloadFormatError
	return errors.As(err, &pe)
}
