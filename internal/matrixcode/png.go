// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package matrixcode

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // frames from phone cameras
	_ "image/png"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// PNG renders codes as raster images with the standard 4-module quiet zone.
type PNG struct {
	Size int // edge length in pixels
}

// Extension implements Codec.
func (p *PNG) Extension() string { return "png" }

// Encode implements Codec.
func (p *PNG) Encode(data []byte) ([]byte, error) {
	q, err := build(data)
	if err != nil {
		return nil, err
	}
	out, err := q.PNG(p.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to render PNG: %w", err)
	}
	return out, nil
}

// DecodeImage recovers the payload bytes of the first QR code found in img.
func DecodeImage(img image.Image) ([]byte, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("failed to binarize image: %w", err)
	}
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_CHARACTER_SET: "ISO-8859-1",
		gozxing.DecodeHintType_TRY_HARDER:    true,
	}
	result, err := qrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return nil, fmt.Errorf("no QR code found: %w", err)
	}
	return latin1Bytes(result.GetText())
}

// DecodeFile decodes an SVG, PNG or JPEG file's content.
func DecodeFile(content []byte) ([]byte, error) {
	if isSVG(content) {
		img, err := rasterizeSVG(content)
		if err != nil {
			return nil, err
		}
		return DecodeImage(img)
	}
	img, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return DecodeImage(img)
}

// latin1Bytes maps each rune back to the byte it was decoded from.
func latin1Bytes(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xff {
			return nil, fmt.Errorf("decoded text contains non-Latin-1 rune %U", r)
		}
		out = append(out, byte(r))
	}
	return out, nil
}
