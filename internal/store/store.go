// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package store persists the session key between qrsign invocations.
//
// The record is written to <data>/session.json, either as plain JSON or, when
// encryption is enabled, sealed in a passphrase envelope. Loading detects
// which form is on disk, so turning encryption on or off takes effect at the
// next save.
package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aplane-algo/qrsign/internal/crypto"
	"github.com/aplane-algo/qrsign/internal/cryptoengine"
	"github.com/aplane-algo/qrsign/internal/fsutil"
	"github.com/aplane-algo/qrsign/internal/keystate"
	"github.com/aplane-algo/qrsign/internal/util"
)

// FileName is the session file inside the data directory.
const FileName = "session.json"

const recordVersion = 1

// ErrNoPassphrase is returned when an encrypted session is found but no
// passphrase source is configured.
var ErrNoPassphrase = errors.New("session is encrypted but no passphrase is available")

// PassphraseFunc supplies the store passphrase. confirm asks for the
// passphrase twice, used when sealing.
type PassphraseFunc func(confirm bool) (*crypto.Secret, error)

// record is the persisted form of a keystate.State.
type record struct {
	Version int              `json:"version"`
	Kind    string           `json:"kind"`
	Pair    *keystate.Backup `json:"pair,omitempty"`
	Public  string           `json:"public,omitempty"` // base64url raw public key
}

// Store reads and writes the session file.
type Store struct {
	path       string
	engine     cryptoengine.Engine
	encrypt    bool
	passphrase PassphraseFunc
}

// Options configures a Store.
type Options struct {
	Encrypt    bool
	Passphrase PassphraseFunc
}

// New returns a store for dataDir.
func New(dataDir string, engine cryptoengine.Engine, opts Options) *Store {
	return &Store{
		path:       filepath.Join(dataDir, FileName),
		engine:     engine,
		encrypt:    opts.Encrypt,
		passphrase: opts.Passphrase,
	}
}

// Path returns the session file path.
func (s *Store) Path() string { return s.path }

// Load returns the persisted state, or None when no session file exists.
func (s *Store) Load(ctx context.Context) (keystate.State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return keystate.None{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	if crypto.IsEncrypted(data) {
		data, err = s.open(data)
		if err != nil {
			return nil, err
		}
		defer crypto.ZeroBytes(data)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	if rec.Version != recordVersion {
		return nil, fmt.Errorf("unsupported session version %d", rec.Version)
	}

	switch rec.Kind {
	case keystate.None{}.Kind():
		return keystate.None{}, nil
	case keystate.PublicOnly{}.Kind():
		raw, err := base64.RawURLEncoding.DecodeString(rec.Public)
		if err != nil {
			return nil, fmt.Errorf("failed to decode session public key: %w", err)
		}
		pub, err := s.engine.ImportRaw(ctx, raw)
		if err != nil {
			return nil, err
		}
		return keystate.PublicOnly{Key: pub}, nil
	case keystate.Pair{}.Kind():
		if rec.Pair == nil {
			return nil, errors.New("session pair record has no keys")
		}
		pair, err := keystate.ImportPair(ctx, s.engine, rec.Pair)
		if err != nil {
			return nil, err
		}
		return pair, nil
	default:
		return nil, fmt.Errorf("unknown session kind %q", rec.Kind)
	}
}

// Save writes state. Saving None removes the session file.
func (s *Store) Save(ctx context.Context, state keystate.State) error {
	rec := record{Version: recordVersion, Kind: state.Kind()}
	switch st := state.(type) {
	case keystate.None:
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to clear session: %w", err)
		}
		return nil
	case keystate.PublicOnly:
		rec.Public = base64.RawURLEncoding.EncodeToString(st.Key.Raw())
	case keystate.Pair:
		b, err := keystate.ExportPair(ctx, s.engine, st)
		if err != nil {
			return err
		}
		rec.Pair = b
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	defer crypto.ZeroBytes(data)

	out := data
	if s.encrypt {
		out, err = s.seal(data)
		if err != nil {
			return err
		}
	}

	if err := fsutil.MkdirAll(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := fsutil.WriteSecret(s.path, out); err != nil {
		return err
	}
	util.Debug("session saved", "kind", rec.Kind, "encrypted", s.encrypt, "path", s.path)
	return nil
}

func (s *Store) seal(data []byte) ([]byte, error) {
	if s.passphrase == nil {
		return nil, ErrNoPassphrase
	}
	secret, err := s.passphrase(true)
	if err != nil {
		return nil, err
	}
	defer secret.Destroy()

	var out []byte
	err = secret.Use(func(p []byte) error {
		var err error
		out, err = crypto.Seal(data, p)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt session: %w", err)
	}
	return out, nil
}

func (s *Store) open(data []byte) ([]byte, error) {
	if s.passphrase == nil {
		return nil, ErrNoPassphrase
	}
	secret, err := s.passphrase(false)
	if err != nil {
		return nil, err
	}
	defer secret.Destroy()

	var out []byte
	err = secret.Use(func(p []byte) error {
		var err error
		out, err = crypto.Open(data, p)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session: %w", err)
	}
	return out, nil
}
