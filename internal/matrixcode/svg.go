// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package matrixcode

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"io"
	"strings"

	svg "github.com/ajstarks/svgo"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

const (
	// svgPixelsPerModule is the raster scale used when decoding an SVG.
	svgPixelsPerModule = 8

	// svgQuietZone is added around a rasterized SVG so codes rendered with
	// a small border still have the quiet zone readers expect.
	svgQuietZone = 4
)

// SVG renders codes as scalable vector images, one unit per module.
type SVG struct {
	Border int // quiet-zone modules on each side
}

// Extension implements Codec.
func (s *SVG) Extension() string { return "svg" }

// Encode implements Codec.
func (s *SVG) Encode(data []byte) ([]byte, error) {
	q, err := build(data)
	if err != nil {
		return nil, err
	}
	q.DisableBorder = true
	var buf bytes.Buffer
	renderSVG(&buf, q.Bitmap(), s.Border)
	return buf.Bytes(), nil
}

func renderSVG(w io.Writer, modules [][]bool, border int) {
	if border < 0 {
		border = 0
	}
	dim := len(modules) + border*2

	var d strings.Builder
	for y, row := range modules {
		for x, dark := range row {
			if !dark {
				continue
			}
			if d.Len() > 0 {
				d.WriteByte(' ')
			}
			fmt.Fprintf(&d, "M%d,%dh1v1h-1z", x+border, y+border)
		}
	}

	canvas := svg.New(w)
	canvas.Startview(dim, dim, 0, 0, dim, dim)
	canvas.Rect(0, 0, dim, dim, "fill:#FFFFFF")
	if d.Len() > 0 {
		canvas.Path(d.String(), "fill:#000000")
	}
	canvas.End()
}

// rasterizeSVG draws an SVG document onto a white image, scaled so that one
// user unit covers svgPixelsPerModule pixels.
func rasterizeSVG(content []byte) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(content), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}
	vw, vh := icon.ViewBox.W, icon.ViewBox.H
	if vw <= 0 || vh <= 0 {
		return nil, fmt.Errorf("SVG has no usable viewBox")
	}
	scale := float64(svgPixelsPerModule)
	margin := svgQuietZone * svgPixelsPerModule
	w := int(vw*scale) + 2*margin
	h := int(vh*scale) + 2*margin

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	icon.SetTarget(float64(margin), float64(margin), vw*scale, vh*scale)
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1)
	return img, nil
}

// isSVG reports whether content looks like an SVG document rather than a
// raster image.
func isSVG(content []byte) bool {
	head := content[:min(len(content), 512)]
	return bytes.Contains(head, []byte("<svg")) || bytes.HasPrefix(bytes.TrimSpace(head), []byte("<?xml"))
}
