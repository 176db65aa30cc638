// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package batch signs every line of a text document into its own QR code and
// packages the codes into a zip archive.
package batch

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/aplane-algo/qrsign/internal/cryptoengine"
	"github.com/aplane-algo/qrsign/internal/keystate"
	"github.com/aplane-algo/qrsign/internal/matrixcode"
	"github.com/aplane-algo/qrsign/internal/qrerr"
	"github.com/aplane-algo/qrsign/internal/util"
	"github.com/aplane-algo/qrsign/internal/wire"
)

// DefaultArchive is the archive name used when signing without an output path.
const DefaultArchive = "signed.zip"

// DefaultParallelism bounds concurrent sign calls when none is configured.
const DefaultParallelism = 8

// Line is one input line and its 0-based position in the document.
type Line struct {
	Index int
	Text  string
}

// Entry is the signed, framed and rendered form of a Line.
type Entry struct {
	Index   int
	Payload wire.SignedMessage
	Image   []byte
}

// Name returns the archive entry name, signed_<Index+1>.<ext>.
func (e Entry) Name(ext string) string {
	return fmt.Sprintf("signed_%d.%s", e.Index+1, ext)
}

// SplitLines validates that doc is UTF-8 and splits it into lines.
// Lines end at "\n"; one trailing "\r" is removed. A final newline does not
// start another line, so an empty document has no lines.
func SplitLines(doc []byte) ([]Line, error) {
	if off := invalidUTF8Offset(doc); off >= 0 {
		return nil, &qrerr.EncodingError{Offset: off}
	}
	text := string(doc)
	if text == "" {
		return nil, nil
	}
	text = strings.TrimSuffix(text, "\n")
	parts := strings.Split(text, "\n")
	lines := make([]Line, len(parts))
	for i, p := range parts {
		lines[i] = Line{Index: i, Text: strings.TrimSuffix(p, "\r")}
	}
	return lines, nil
}

func invalidUTF8Offset(b []byte) int {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return -1
}

// Signer turns lines into signed QR images.
type Signer struct {
	engine      cryptoengine.Engine
	codec       matrixcode.Codec
	parallelism int
}

// NewSigner returns a signer. A parallelism below 1 uses DefaultParallelism.
func NewSigner(engine cryptoengine.Engine, codec matrixcode.Codec, parallelism int) *Signer {
	if parallelism < 1 {
		parallelism = DefaultParallelism
	}
	return &Signer{engine: engine, codec: codec, parallelism: parallelism}
}

// Sign signs, frames and renders every line concurrently. The result is in
// input order regardless of completion order. Any failure discards all
// results and is returned; no new work starts after the first failure.
func (s *Signer) Sign(ctx context.Context, lines []Line, pair keystate.Pair) ([]Entry, error) {
	entries := make([]Entry, len(lines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, line := range lines {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			msg := []byte(line.Text)
			sig, err := s.engine.Sign(gctx, pair.PrivateKey, msg)
			if err != nil {
				return qrerr.NewCryptoEngineError("sign", fmt.Errorf("line %d: %w", line.Index+1, err))
			}
			payload := wire.SignedMessage{Signature: sig, Message: msg}
			img, err := s.codec.Encode(wire.Encode(payload))
			if err != nil {
				return fmt.Errorf("failed to render line %d: %w", line.Index+1, err)
			}
			entries[i] = Entry{Index: line.Index, Payload: payload, Image: img}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		util.Debug("batch aborted", "lines", len(lines), "error", err)
		return nil, err
	}
	return entries, nil
}

// Package writes entries to w as a zip archive.
func (s *Signer) Package(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	for _, e := range entries {
		f, err := zw.CreateHeader(&zip.FileHeader{Name: e.Name(s.codec.Extension()), Method: zip.Deflate})
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", e.Name(s.codec.Extension()), err)
		}
		if _, err := f.Write(e.Image); err != nil {
			return fmt.Errorf("failed to write %s: %w", e.Name(s.codec.Extension()), err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}

// SignDocument validates, splits, signs and packages doc into w. Nothing is
// written to w unless every line was signed and rendered.
func (s *Signer) SignDocument(ctx context.Context, doc []byte, pair keystate.Pair, w io.Writer) (int, error) {
	lines, err := SplitLines(doc)
	if err != nil {
		return 0, err
	}
	entries, err := s.Sign(ctx, lines, pair)
	if err != nil {
		return 0, err
	}
	if err := s.Package(w, entries); err != nil {
		return 0, err
	}
	util.Logger.Info("signed document", "lines", len(entries), "fingerprint", keystate.Fingerprint(pair))
	return len(entries), nil
}
