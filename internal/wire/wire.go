// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package wire implements the byte framing carried inside a QR code.
//
// Two payload kinds exist, distinguished by a fixed ASCII prefix:
//
//	PUB:  | raw public key (fixed, curve-determined length)
//	SIGN: | signature (64 bytes, r||s) | message (remainder, UTF-8)
//
// There are no length fields. The key length is fixed by the curve and the
// signature width is fixed, so the message is everything after byte 69.
// Rendering to pixels and recovering bytes from camera frames live in
// internal/matrixcode and internal/frames.
package wire

import (
	"bytes"
	"unicode/utf8"

	"github.com/aplane-algo/qrsign/internal/qrerr"
)

const (
	// PublicKeyPrefix tags a public-key announcement.
	PublicKeyPrefix = "PUB:"
	// SignedMessagePrefix tags a signed message.
	SignedMessagePrefix = "SIGN:"
	// SignatureSize is the fixed r||s signature width (P-256).
	SignatureSize = 64
	// MinPayloadSize is the shortest input Decode will look at.
	MinPayloadSize = len(SignedMessagePrefix)

	// BinaryMessageMarker replaces a message body that is not valid UTF-8.
	BinaryMessageMarker = "<binary message>"
)

// Payload is one decoded QR payload: PublicKeyAnnouncement, SignedMessage or
// Unrecognized.
type Payload interface {
	// Kind names the variant for logs and tests.
	Kind() string
	payload()
}

// PublicKeyAnnouncement carries a raw public key.
type PublicKeyAnnouncement struct {
	RawPublicKey []byte
}

// SignedMessage carries a detached signature and the signed bytes.
type SignedMessage struct {
	Signature [SignatureSize]byte
	Message   []byte
}

// Unrecognized is any input that is too short or has an unknown tag.
type Unrecognized struct {
	Length int
	Reason string
}

// Err describes why the input was not recognized.
func (u Unrecognized) Err() error {
	return &qrerr.PayloadFormatError{Length: u.Length, Reason: u.Reason}
}

func (PublicKeyAnnouncement) Kind() string { return "public_key" }
func (SignedMessage) Kind() string         { return "signed_message" }
func (Unrecognized) Kind() string          { return "unrecognized" }

func (PublicKeyAnnouncement) payload() {}
func (SignedMessage) payload()         {}
func (Unrecognized) payload()          {}

// ValidUTF8 reports whether the message body is actionable text.
func (m SignedMessage) ValidUTF8() bool {
	return utf8.Valid(m.Message)
}

// Text returns the message for display, or BinaryMessageMarker when the body
// is not valid UTF-8.
func (m SignedMessage) Text() string {
	if !m.ValidUTF8() {
		return BinaryMessageMarker
	}
	return string(m.Message)
}

// EncodePublicKeyAnnouncement frames a raw public key.
func EncodePublicKeyAnnouncement(rawPublicKey []byte) []byte {
	out := make([]byte, 0, len(PublicKeyPrefix)+len(rawPublicKey))
	out = append(out, PublicKeyPrefix...)
	return append(out, rawPublicKey...)
}

// EncodeSignedMessage frames a signature and its message.
func EncodeSignedMessage(signature [SignatureSize]byte, message []byte) []byte {
	out := make([]byte, 0, len(SignedMessagePrefix)+SignatureSize+len(message))
	out = append(out, SignedMessagePrefix...)
	out = append(out, signature[:]...)
	return append(out, message...)
}

// Encode frames any payload. Unrecognized encodes to nil.
func Encode(p Payload) []byte {
	switch p := p.(type) {
	case PublicKeyAnnouncement:
		return EncodePublicKeyAnnouncement(p.RawPublicKey)
	case SignedMessage:
		return EncodeSignedMessage(p.Signature, p.Message)
	default:
		return nil
	}
}

// Decode classifies raw QR bytes. It never panics on truncated input and the
// returned slices alias b; callers that keep them past b's lifetime copy.
func Decode(b []byte) Payload {
	if len(b) < MinPayloadSize {
		return Unrecognized{Length: len(b), Reason: "shorter than any tag"}
	}
	switch {
	case bytes.HasPrefix(b, []byte(PublicKeyPrefix)):
		return PublicKeyAnnouncement{RawPublicKey: b[len(PublicKeyPrefix):]}
	case bytes.HasPrefix(b, []byte(SignedMessagePrefix)):
		rest := b[len(SignedMessagePrefix):]
		if len(rest) < SignatureSize {
			return Unrecognized{Length: len(b), Reason: "truncated signature"}
		}
		var m SignedMessage
		copy(m.Signature[:], rest[:SignatureSize])
		m.Message = rest[SignatureSize:]
		return m
	default:
		return Unrecognized{Length: len(b), Reason: "unknown tag"}
	}
}

// DecodeString decodes scanner text. Scanners hand over byte-mode QR content
// as a byte string; no character decoding is applied.
func DecodeString(s string) Payload {
	return Decode([]byte(s))
}
