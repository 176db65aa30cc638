// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package keystate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aplane-algo/qrsign/internal/cryptoengine"
	"github.com/aplane-algo/qrsign/internal/qrerr"
	"github.com/aplane-algo/qrsign/internal/util"
)

var (
	// ErrNotSigningCapable is returned by operations that need a Pair.
	ErrNotSigningCapable = errors.New("no key pair loaded")

	// ErrStale is returned when an operation resolved after a more recent
	// operation had already replaced the key. The stale result is discarded.
	ErrStale = errors.New("key operation superseded by a newer one")
)

// Token orders key lifecycle operations. Tokens increase monotonically.
type Token uint64

// Observer is called after every committed state change.
type Observer func(State)

// Manager owns the session's key state.
//
// Every operation takes a token when it starts. A result is committed only if
// no operation that started later has committed first, so a slow generate can
// never overwrite a key the user imported after clicking generate.
type Manager struct {
	engine cryptoengine.Engine

	mu        sync.Mutex
	state     State
	issued    Token // last token handed out
	committed Token // token of the operation that produced state
	observers []Observer

	// notifyMu serializes observer runs so they see states in commit order.
	notifyMu sync.Mutex
}

// NewManager returns a manager holding None.
func NewManager(engine cryptoengine.Engine) *Manager {
	return &Manager{engine: engine, state: None{}}
}

// Engine returns the crypto engine used by the manager.
func (m *Manager) Engine() cryptoengine.Engine { return m.engine }

// Observe registers fn to run after each state change.
func (m *Manager) Observe(fn Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Current returns the held state.
func (m *Manager) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Begin issues a token for an operation that will commit later.
func (m *Manager) Begin() Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued++
	return m.issued
}

// commit replaces the state unless a newer operation already committed.
func (m *Manager) commit(t Token, s State) error {
	m.mu.Lock()
	if t < m.committed {
		m.mu.Unlock()
		util.Debug("dropping stale key result", "token", t, "committed", m.committed, "kind", s.Kind())
		return ErrStale
	}
	m.state = s
	m.committed = t
	m.mu.Unlock()

	util.Debug("key state changed", "kind", s.Kind(), "fingerprint", Fingerprint(s))
	m.notify(t, s)
	return nil
}

// notify runs the observers for the state committed under t. When a newer
// commit landed meanwhile, its own notify reports the newer state and this
// one is skipped.
func (m *Manager) notify(t Token, s State) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.committed != t {
		m.mu.Unlock()
		util.Debug("skipping superseded key notification", "token", t, "committed", m.committed)
		return
	}
	observers := make([]Observer, len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	for _, fn := range observers {
		fn(s)
	}
}

// Generate creates a fresh key pair and makes it the held key.
func (m *Manager) Generate(ctx context.Context) (Pair, error) {
	t := m.Begin()
	pub, priv, err := m.engine.GenerateKeyPair(ctx)
	if err != nil {
		return Pair{}, qrerr.NewCryptoEngineError("generate", err)
	}
	pair := Pair{PublicKey: pub, PrivateKey: priv}
	if err := m.commit(t, pair); err != nil {
		return Pair{}, err
	}
	util.Logger.Info("generated key pair", "fingerprint", Fingerprint(pair))
	return pair, nil
}

// Export returns the backup form of the held Pair.
func (m *Manager) Export(ctx context.Context) (*Backup, error) {
	pair, ok := m.Current().(Pair)
	if !ok {
		return nil, ErrNotSigningCapable
	}
	return ExportPair(ctx, m.engine, pair)
}

// ExportPair exports both halves of pair as JWK.
func ExportPair(ctx context.Context, engine cryptoengine.Engine, pair Pair) (*Backup, error) {
	pub, err := engine.ExportPublicJWK(ctx, pair.PublicKey)
	if err != nil {
		return nil, qrerr.NewCryptoEngineError("export", err)
	}
	priv, err := engine.ExportPrivateJWK(ctx, pair.PrivateKey)
	if err != nil {
		return nil, qrerr.NewCryptoEngineError("export", err)
	}
	return &Backup{Type: BackupType, Public: pub, Private: priv}, nil
}

// Import restores a Pair from backup file content. On any failure the held
// key is unchanged.
func (m *Manager) Import(ctx context.Context, data []byte) (Pair, error) {
	t := m.Begin()
	b, err := ParseBackup(data)
	if err != nil {
		return Pair{}, err
	}
	pair, err := ImportPair(ctx, m.engine, b)
	if err != nil {
		return Pair{}, err
	}
	if err := m.commit(t, pair); err != nil {
		return Pair{}, err
	}
	util.Logger.Info("imported key pair", "fingerprint", Fingerprint(pair))
	return pair, nil
}

// ImportPair imports both halves of a validated backup. The public half is
// verify-only and the private half sign-only.
func ImportPair(ctx context.Context, engine cryptoengine.Engine, b *Backup) (Pair, error) {
	pub, err := engine.ImportPublicJWK(ctx, b.Public)
	if err != nil {
		return Pair{}, qrerr.NewCryptoEngineError("import", fmt.Errorf("public key: %w", err))
	}
	priv, err := engine.ImportPrivateJWK(ctx, b.Private)
	if err != nil {
		return Pair{}, qrerr.NewCryptoEngineError("import", fmt.Errorf("private key: %w", err))
	}
	return Pair{PublicKey: pub, PrivateKey: priv}, nil
}

// SetPublicOnly imports a raw public key and makes it the held key.
// With keepPair, a held Pair whose public key equals raw is kept instead.
func (m *Manager) SetPublicOnly(ctx context.Context, raw []byte, keepPair bool) (State, error) {
	t := m.Begin()
	pub, err := m.engine.ImportRaw(ctx, raw)
	if err != nil {
		return nil, qrerr.NewCryptoEngineError("import", err)
	}
	return m.AdoptPublic(t, pub, keepPair)
}

// AdoptPublic commits an already imported public key under token t, obtained
// from Begin.
func (m *Manager) AdoptPublic(t Token, pub *cryptoengine.PublicKey, keepPair bool) (State, error) {
	var next State = PublicOnly{Key: pub}
	if keepPair {
		if pair, ok := m.Current().(Pair); ok && pair.PublicKey.Equal(pub) {
			next = pair
		}
	}
	if err := m.commit(t, next); err != nil {
		return nil, err
	}
	util.Logger.Info("adopted public key", "kind", next.Kind(), "fingerprint", Fingerprint(next))
	return next, nil
}

// Restore installs a previously persisted state (used when loading the
// session store at startup).
func (m *Manager) Restore(s State) error {
	if s == nil {
		s = None{}
	}
	return m.commit(m.Begin(), s)
}
