// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package matrixcode turns wire payloads into scannable QR images and back.
//
// Encoding uses skip2/go-qrcode at the Low recovery level so the largest
// messages still fit; decoding uses gozxing, after rasterizing SVG input with
// oksvg. Byte-mode content is decoded as ISO-8859-1, which maps every byte to
// one rune, so the original payload bytes are recovered exactly.
package matrixcode

import (
	"errors"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/aplane-algo/qrsign/internal/util"
)

// MaxPayload is the byte-mode capacity of a version 40 code at Low recovery.
const MaxPayload = 2953

// ErrTooLong is returned when a payload does not fit in a single code.
var ErrTooLong = errors.New("payload too long for a single QR code")

// Codec renders payload bytes as an image file.
type Codec interface {
	// Encode renders data; the result is the complete file content.
	Encode(data []byte) ([]byte, error)
	// Extension is the file extension without the dot ("svg", "png").
	Extension() string
}

// New returns the codec for an image format from the config.
func New(format string, border, pngSize int) (Codec, error) {
	switch strings.ToLower(format) {
	case util.ImageFormatSVG:
		return &SVG{Border: border}, nil
	case util.ImageFormatPNG:
		return &PNG{Size: pngSize}, nil
	default:
		return nil, fmt.Errorf("unsupported image format %q", format)
	}
}

// build encodes data as a QR symbol without the library's built-in quiet zone.
func build(data []byte) (*qrcode.QRCode, error) {
	if len(data) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLong, len(data), MaxPayload)
	}
	q, err := qrcode.New(string(data), qrcode.Low)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	return q, nil
}

// Terminal renders data as a compact block-character QR for terminal display.
func Terminal(data []byte) (string, error) {
	q, err := build(data)
	if err != nil {
		return "", err
	}
	return q.ToSmallString(false), nil
}
