// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package matrixcode

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/srwiley/oksvg"

	"github.com/aplane-algo/qrsign/internal/wire"
)

func TestNew(t *testing.T) {
	tests := []struct {
		format  string
		wantExt string
		wantErr bool
	}{
		{"svg", "svg", false},
		{"SVG", "svg", false},
		{"png", "png", false},
		{"gif", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			c, err := New(tt.format, 5, 256)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
			}
			if err == nil && c.Extension() != tt.wantExt {
				t.Errorf("Extension() = %q, want %q", c.Extension(), tt.wantExt)
			}
		})
	}
}

func TestSVGEncode(t *testing.T) {
	c := &SVG{Border: 5}
	out, err := c.Encode([]byte("SIGN:hello"))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !isSVG(out) {
		t.Errorf("output not recognised as SVG: %q", out[:min(len(out), 80)])
	}
	if !strings.Contains(string(out), "M5,5h1v1h-1z") {
		t.Errorf("top-left finder module not offset by border")
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("generated SVG does not parse: %v", err)
	}
	// Version 1 is 21 modules; with a 5-module border the viewBox is 31.
	if icon.ViewBox.W != 31 || icon.ViewBox.H != 31 {
		t.Errorf("viewBox = %vx%v, want 31x31", icon.ViewBox.W, icon.ViewBox.H)
	}
}

func TestRenderSVGBorder(t *testing.T) {
	modules := [][]bool{{true, false}, {false, true}}
	tests := []struct {
		name   string
		border int
		dim    float64
		path   string
	}{
		{"zero", 0, 2, "M0,0h1v1h-1z M1,1h1v1h-1z"},
		{"negative clamps", -3, 2, "M0,0h1v1h-1z M1,1h1v1h-1z"},
		{"two", 2, 6, "M2,2h1v1h-1z M3,3h1v1h-1z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			renderSVG(&buf, modules, tt.border)
			if !strings.Contains(buf.String(), tt.path) {
				t.Errorf("path data wrong: %s", buf.String())
			}
			icon, err := oksvg.ReadIconStream(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if icon.ViewBox.W != tt.dim {
				t.Errorf("viewBox width = %v, want %v", icon.ViewBox.W, tt.dim)
			}
		})
	}
}

func TestSVGRoundTrip(t *testing.T) {
	var sig [wire.SignatureSize]byte
	for i := range sig {
		sig[i] = byte(i * 7)
	}
	payload := wire.EncodeSignedMessage(sig, []byte("meet at noon"))
	for _, border := range []int{0, 1, 5} {
		t.Run(fmt.Sprintf("border %d", border), func(t *testing.T) {
			out, err := (&SVG{Border: border}).Encode(payload)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			got, err := DecodeFile(out)
			if err != nil {
				t.Fatalf("DecodeFile failed: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("round trip mismatch:\n got %x\nwant %x", got, payload)
			}
		})
	}
}

func TestEncodeTooLong(t *testing.T) {
	c := &SVG{Border: 1}
	_, err := c.Encode(bytes.Repeat([]byte{'x'}, MaxPayload+1))
	if !errors.Is(err, ErrTooLong) {
		t.Errorf("Encode(oversized) error = %v, want ErrTooLong", err)
	}
}

func TestPNGRoundTrip(t *testing.T) {
	var sig [wire.SignatureSize]byte
	for i := range sig {
		sig[i] = byte(255 - i)
	}
	payloads := map[string][]byte{
		"announcement": wire.EncodePublicKeyAnnouncement(append([]byte{0x04}, bytes.Repeat([]byte{0x9c}, 64)...)),
		"signed":       wire.EncodeSignedMessage(sig, []byte("pay 10 to bob")),
	}
	c := &PNG{Size: 600}
	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			img, err := c.Encode(payload)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			got, err := DecodeFile(img)
			if err != nil {
				t.Fatalf("DecodeFile failed: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("round trip mismatch:\n got %x\nwant %x", got, payload)
			}
		})
	}
}

func TestDecodeFileRejectsNonImage(t *testing.T) {
	tests := map[string]string{
		"garbage":       "not an image",
		"svg no code":   `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10"><rect x="0" y="0" width="10" height="10" style="fill:#FFFFFF"/></svg>`,
		"svg no bounds": `<svg xmlns="http://www.w3.org/2000/svg"></svg>`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeFile([]byte(content)); err == nil {
				t.Errorf("DecodeFile accepted %q", content)
			}
		})
	}
}

func TestLatin1Bytes(t *testing.T) {
	got, err := latin1Bytes("Aÿ\u0000")
	if err != nil || !bytes.Equal(got, []byte{'A', 0xff, 0x00}) {
		t.Errorf("latin1Bytes = %x, %v", got, err)
	}
	if _, err := latin1Bytes("€"); err == nil {
		t.Errorf("latin1Bytes accepted rune above U+00FF")
	}
}

func TestTerminal(t *testing.T) {
	s, err := Terminal([]byte("PUB:abc"))
	if err != nil {
		t.Fatalf("Terminal failed: %v", err)
	}
	if strings.Count(s, "\n") < 10 {
		t.Errorf("terminal rendering looks too small: %q", s)
	}
}
