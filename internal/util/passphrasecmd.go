// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package util

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	// passphraseCommandTimeout is the maximum time allowed for the passphrase command to complete.
	passphraseCommandTimeout = 5 * time.Second

	// maxPassphraseOutputBytes is the maximum stdout size from the passphrase command (8 KB).
	maxPassphraseOutputBytes = 8 * 1024
)

// RunPassphraseCommand runs argv and returns the session passphrase it prints.
//
// Output contract:
//   - Exactly one trailing newline (or CRLF) is stripped
//   - Empty output and NUL bytes are rejected
//   - Output prefixed with "base64:" or "hex:" is decoded
//
// The command gets no inherited environment and no stdin; stderr is discarded.
// The returned slice should be zeroed by the caller after use.
func RunPassphraseCommand(argv []string) ([]byte, error) {
	if err := ValidatePassphraseCommand(argv); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), passphraseCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // validated above
	cmd.Env = []string{}
	cmd.Stderr = io.Discard
	// Children that inherit stdout must not keep Run waiting after a kill.
	cmd.WaitDelay = time.Second

	var stdout bytes.Buffer
	defer zeroBuffer(&stdout)
	lw := &limitedWriter{w: &stdout, remaining: maxPassphraseOutputBytes}
	cmd.Stdout = lw

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("passphrase_command: timed out after %s", passphraseCommandTimeout)
		}
		return nil, fmt.Errorf("passphrase_command: command failed: %w", err)
	}
	if lw.truncated {
		return nil, fmt.Errorf("passphrase_command: stdout exceeded %d bytes", maxPassphraseOutputBytes)
	}

	output := stdout.Bytes()
	if trimmed, ok := bytes.CutSuffix(output, []byte("\n")); ok {
		output = bytes.TrimSuffix(trimmed, []byte("\r"))
	}
	if len(output) == 0 {
		return nil, fmt.Errorf("passphrase_command: command produced empty output")
	}
	if bytes.IndexByte(output, 0) >= 0 {
		return nil, fmt.Errorf("passphrase_command: output contains NUL bytes")
	}
	return decodePassphraseOutput(output)
}

// ValidatePassphraseCommand checks that argv names an absolute, executable,
// non group/world-writable binary.
func ValidatePassphraseCommand(argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("passphrase_command: must be non-empty")
	}
	path := argv[0]
	if !filepath.IsAbs(path) {
		return fmt.Errorf("passphrase_command: %q must be an absolute path or relative to the data directory", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("passphrase_command: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("passphrase_command: %s is a directory", path)
	}
	perm := info.Mode().Perm()
	if perm&0111 == 0 {
		return fmt.Errorf("passphrase_command: %s is not executable (mode %04o)", path, perm)
	}
	if perm&0022 != 0 {
		return fmt.Errorf("passphrase_command: %s is group or world writable (mode %04o)", path, perm)
	}
	return nil
}

// decodePassphraseOutput returns a fresh slice; output itself is left for the
// caller to zero.
func decodePassphraseOutput(output []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(output, []byte("base64:")):
		encoded := output[len("base64:"):]
		decoded := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
		n, err := base64.StdEncoding.Decode(decoded, encoded)
		if err != nil {
			zeroBytes(decoded)
			return nil, fmt.Errorf("passphrase_command: invalid base64 output: %w", err)
		}
		return decoded[:n], nil
	case bytes.HasPrefix(output, []byte("hex:")):
		encoded := output[len("hex:"):]
		decoded := make([]byte, hex.DecodedLen(len(encoded)))
		n, err := hex.Decode(decoded, encoded)
		if err != nil {
			zeroBytes(decoded)
			return nil, fmt.Errorf("passphrase_command: invalid hex output: %w", err)
		}
		return decoded[:n], nil
	default:
		return append([]byte(nil), output...), nil
	}
}

func zeroBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
}

func zeroBuffer(buf *bytes.Buffer) {
	zeroBytes(buf.Bytes())
	buf.Reset()
}

// limitedWriter stops writing after a byte limit and records truncation.
type limitedWriter struct {
	w         io.Writer
	remaining int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if int64(n) > lw.remaining {
		p = p[:lw.remaining]
		lw.truncated = true
	}
	if len(p) > 0 {
		written, err := lw.w.Write(p)
		lw.remaining -= int64(written)
		if err != nil {
			return written, err
		}
	}
	// Report the full length so the child does not see a short write.
	return n, nil
}
