// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestWritePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on windows")
	}
	dir := t.TempDir()
	tests := []struct {
		name  string
		write func(string, []byte) error
		want  os.FileMode
	}{
		{"secret", WriteSecret, SecretFilePerm},
		{"public", WritePublic, PublicFilePerm},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			if err := tt.write(path, []byte("v1")); err != nil {
				t.Fatalf("write failed: %v", err)
			}
			if err := tt.write(path, []byte("v2")); err != nil {
				t.Fatalf("overwrite failed: %v", err)
			}
			info, err := os.Stat(path)
			if err != nil {
				t.Fatalf("Stat failed: %v", err)
			}
			if info.Mode().Perm() != tt.want {
				t.Errorf("mode = %v, want %v", info.Mode().Perm(), tt.want)
			}
			if data, _ := os.ReadFile(path); string(data) != "v2" {
				t.Errorf("content = %q, want v2", data)
			}
		})
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestMkdirAll(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on windows")
	}
	path := filepath.Join(t.TempDir(), "a", "b")
	if err := MkdirAll(path); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		t.Fatalf("directory not created: %v", err)
	}
	if info.Mode().Perm() != DataDirPerm {
		t.Errorf("mode = %v, want %v", info.Mode().Perm(), DataDirPerm)
	}
}

func TestWriteAtomicMissingDir(t *testing.T) {
	if err := WritePublic(filepath.Join(t.TempDir(), "missing", "f"), nil); err == nil {
		t.Errorf("write into missing directory succeeded")
	}
}
