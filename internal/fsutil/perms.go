// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package fsutil provides filesystem helpers for qrsign outputs.
// Files holding private key material are owner-only (0600). Rendered codes and
// signed archives are meant to be handed out and are world-readable (0644).
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// DataDirPerm is the permission mode for the data directory and its children.
const DataDirPerm os.FileMode = 0700

// SecretFilePerm is the permission mode for key backups and the session store.
const SecretFilePerm os.FileMode = 0600

// PublicFilePerm is the permission mode for rendered codes and archives.
const PublicFilePerm os.FileMode = 0644

// MkdirAll creates a directory and all parents with DataDirPerm.
// Unlike os.MkdirAll, this explicitly sets permissions after creation to
// bypass umask restrictions.
func MkdirAll(path string) error {
	if err := os.MkdirAll(path, DataDirPerm); err != nil {
		return err
	}
	return os.Chmod(path, DataDirPerm)
}

// WriteSecret atomically writes data readable only by the owner.
func WriteSecret(path string, data []byte) error {
	return writeAtomic(path, data, SecretFilePerm)
}

// WritePublic atomically writes data readable by everyone.
func WritePublic(path string, data []byte) error {
	return writeAtomic(path, data, PublicFilePerm)
}

// writeAtomic writes to a temporary file in the same directory and renames
// it over path, so readers never see a partial file.
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
