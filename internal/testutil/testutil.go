// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package testutil provides reusable test infrastructure and utilities.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aplane-algo/qrsign/internal/cryptoengine"
	"github.com/aplane-algo/qrsign/internal/keystate"
)

// NewPair generates a software key pair, failing the test on error.
func NewPair(t *testing.T) keystate.Pair {
	t.Helper()

	pub, priv, err := cryptoengine.NewSoftware(nil).GenerateKeyPair(context.Background())
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}
	return keystate.Pair{PublicKey: pub, PrivateKey: priv}
}

// WriteBackupFile exports pair into dir/name and returns the path.
func WriteBackupFile(t *testing.T, dir, name string, pair keystate.Pair) string {
	t.Helper()

	b, err := keystate.ExportPair(context.Background(), cryptoengine.NewSoftware(nil), pair)
	if err != nil {
		t.Fatalf("Failed to export key pair: %v", err)
	}
	data, err := b.Marshal()
	if err != nil {
		t.Fatalf("Failed to marshal backup: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("Failed to write backup file: %v", err)
	}
	return path
}

// TempFile creates a temporary file with the given content, returning the path.
// The file is automatically cleaned up when the test completes.
func TempFile(t *testing.T, content []byte) string {
	t.Helper()

	tmpFile, err := os.CreateTemp(t.TempDir(), "testfile-*")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	if _, err := tmpFile.Write(content); err != nil {
		_ = tmpFile.Close()
		t.Fatalf("Failed to write temp file: %v", err)
	}

	_ = tmpFile.Close()
	return tmpFile.Name()
}

// AssertError checks that an error matches expected criteria.
func AssertError(t *testing.T, err error, shouldError bool, msgContains string) {
	t.Helper()

	if !shouldError {
		if err != nil {
			t.Errorf("Unexpected error: %v", err)
		}
		return
	}
	if err == nil {
		t.Error("Expected an error but got nil")
		return
	}
	if msgContains != "" && !strings.Contains(err.Error(), msgContains) {
		t.Errorf("Error message %q should contain %q", err.Error(), msgContains)
	}
}
