// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package frames provides live scanner sources: producers of the text
// recovered from camera frames.
package frames

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/aplane-algo/qrsign/internal/matrixcode"
)

// Frame is the text recovered from one image.
type Frame struct {
	ID     string // unique per delivered frame
	Origin string // file the frame was read from
	Text   string // decoded QR content as a byte string
}

// Source delivers frames to onFrame until ctx is done or the source is
// exhausted. Calls to onFrame are never concurrent.
type Source interface {
	Run(ctx context.Context, onFrame func(Frame)) error
}

var imageExts = map[string]bool{".svg": true, ".png": true, ".jpg": true, ".jpeg": true}

// IsImage reports whether path has an extension a frame can be decoded from.
func IsImage(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}

// DecodeFile reads an image file and returns its frame.
func DecodeFile(path string) (Frame, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to read frame: %w", err)
	}
	data, err := matrixcode.DecodeFile(content)
	if err != nil {
		return Frame{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return Frame{ID: uuid.NewString(), Origin: path, Text: string(data)}, nil
}
