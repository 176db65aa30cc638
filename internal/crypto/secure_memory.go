// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package crypto

import (
	"crypto/subtle"
	"runtime"
	"sync"
)

// ZeroBytes overwrites b with zeros in a way the compiler will not elide.
func ZeroBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
	runtime.KeepAlive(b)
}

// Secret holds a passphrase for the duration of one operation.
type Secret struct {
	mu   sync.RWMutex
	data []byte
}

// NewSecret copies b; the caller may zero its own copy afterwards.
func NewSecret(b []byte) *Secret {
	return &Secret{data: append([]byte(nil), b...)}
}

// Use gives fn scoped access to the bytes. fn must not retain them.
func (s *Secret) Use(fn func([]byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data)
}

// Empty reports whether the secret has no bytes.
func (s *Secret) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data) == 0
}

// Destroy zeroes the secret. Destroy is idempotent.
func (s *Secret) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	ZeroBytes(s.data)
	s.data = nil
}
