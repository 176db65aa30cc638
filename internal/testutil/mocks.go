// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/aplane-algo/qrsign/internal/cryptoengine"
)

// ErrMockFailure is returned by MockEngine when a failure is injected.
var ErrMockFailure = errors.New("injected engine failure")

// MockEngine wraps the software engine and lets tests inject failures or
// block operations. Key handles are real, so keys from a MockEngine work with
// cryptoengine.Software and vice versa.
type MockEngine struct {
	*cryptoengine.Software

	// FailSignAt makes the Nth Sign call (1-based) fail. Zero disables.
	FailSignAt int64
	// FailVerify makes every Verify call fail with an engine error.
	FailVerify bool
	// FailImportRaw makes ImportRaw fail.
	FailImportRaw bool
	// GenerateGate, when set, blocks GenerateKeyPair until it is closed.
	GenerateGate chan struct{}
	// GenerateStarted, when set, receives a value as GenerateKeyPair is entered.
	GenerateStarted chan struct{}

	signCalls atomic.Int64

	mu       sync.Mutex
	verified int
}

// NewMockEngine returns a MockEngine with no failures configured.
func NewMockEngine() *MockEngine {
	return &MockEngine{Software: cryptoengine.NewSoftware(nil)}
}

// GenerateKeyPair blocks on GenerateGate when it is set.
func (m *MockEngine) GenerateKeyPair(ctx context.Context) (*cryptoengine.PublicKey, *cryptoengine.PrivateKey, error) {
	if m.GenerateStarted != nil {
		m.GenerateStarted <- struct{}{}
	}
	if m.GenerateGate != nil {
		select {
		case <-m.GenerateGate:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	return m.Software.GenerateKeyPair(ctx)
}

// Sign fails on call number FailSignAt.
func (m *MockEngine) Sign(ctx context.Context, key *cryptoengine.PrivateKey, message []byte) (cryptoengine.Signature, error) {
	n := m.signCalls.Add(1)
	if m.FailSignAt > 0 && n == m.FailSignAt {
		return cryptoengine.Signature{}, ErrMockFailure
	}
	return m.Software.Sign(ctx, key, message)
}

// Verify counts calls and optionally fails.
func (m *MockEngine) Verify(ctx context.Context, key *cryptoengine.PublicKey, sig cryptoengine.Signature, message []byte) (bool, error) {
	m.mu.Lock()
	m.verified++
	m.mu.Unlock()
	if m.FailVerify {
		return false, ErrMockFailure
	}
	return m.Software.Verify(ctx, key, sig, message)
}

// ImportRaw optionally fails.
func (m *MockEngine) ImportRaw(ctx context.Context, raw []byte) (*cryptoengine.PublicKey, error) {
	if m.FailImportRaw {
		return nil, ErrMockFailure
	}
	return m.Software.ImportRaw(ctx, raw)
}

// SignCalls returns the number of Sign calls made.
func (m *MockEngine) SignCalls() int64 { return m.signCalls.Load() }

// VerifyCalls returns the number of Verify calls made.
func (m *MockEngine) VerifyCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verified
}

// MockPrompter records alerts and answers confirmations with a fixed reply.
type MockPrompter struct {
	Reply bool

	mu       sync.Mutex
	Alerts   []string
	Confirms []string
}

// Alert records msg.
func (p *MockPrompter) Alert(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Alerts = append(p.Alerts, msg)
}

// Confirm records msg and returns Reply.
func (p *MockPrompter) Confirm(msg string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Confirms = append(p.Confirms, msg)
	return p.Reply
}

// Snapshot returns copies of the recorded alerts and confirmations.
func (p *MockPrompter) Snapshot() (alerts, confirms []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Alerts...), append([]string(nil), p.Confirms...)
}
