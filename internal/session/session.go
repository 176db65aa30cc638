// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package session wires the key lifecycle, scan dispatch, batch signing and
// session persistence into the single object a qrsign front end drives.
//
// Every key change, whether from generate, import or a confirmed scan,
// recomputes the displayed fingerprint and the public-key announcement, and
// is written to the session store when persistence is enabled.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/aplane-algo/qrsign/internal/batch"
	"github.com/aplane-algo/qrsign/internal/cryptoengine"
	"github.com/aplane-algo/qrsign/internal/fingerprint"
	"github.com/aplane-algo/qrsign/internal/frames"
	"github.com/aplane-algo/qrsign/internal/fsutil"
	"github.com/aplane-algo/qrsign/internal/keystate"
	"github.com/aplane-algo/qrsign/internal/matrixcode"
	"github.com/aplane-algo/qrsign/internal/scan"
	"github.com/aplane-algo/qrsign/internal/store"
	"github.com/aplane-algo/qrsign/internal/util"
	"github.com/aplane-algo/qrsign/internal/wire"
)

// ErrNoPublicKey is returned when an operation needs a public key and none is loaded.
var ErrNoPublicKey = errors.New("no public key loaded")

// Prompter is the alert/confirm capability of the front end.
type Prompter = scan.Prompter

// Options configures New.
type Options struct {
	Config  util.Config
	DataDir string // required when Config.PersistSession is set

	// Engine defaults to the software engine.
	Engine   cryptoengine.Engine
	Prompter Prompter

	// Passphrase unlocks an encrypted session store.
	Passphrase store.PassphraseFunc
}

// Session is one user's qrsign session.
type Session struct {
	cfg        util.Config
	manager    *keystate.Manager
	dispatcher *scan.Dispatcher
	codec      matrixcode.Codec
	signer     *batch.Signer
	store      *store.Store // nil when persistence is off

	mu           sync.RWMutex
	fp           string
	announcement []byte // PUB: payload of the held key, nil when none
}

// New builds a session and restores the persisted key, if any.
func New(ctx context.Context, opts Options) (*Session, error) {
	if opts.Prompter == nil {
		return nil, errors.New("session requires a prompter")
	}
	codec, err := matrixcode.New(opts.Config.ImageFormat, opts.Config.QRBorder, opts.Config.PNGSize)
	if err != nil {
		return nil, err
	}
	engine := opts.Engine
	if engine == nil {
		engine = cryptoengine.NewSoftware(util.Logger)
	}

	m := keystate.NewManager(engine)
	s := &Session{
		cfg:        opts.Config,
		manager:    m,
		dispatcher: scan.NewDispatcher(m, opts.Prompter, opts.Config.KeepOwnPair),
		codec:      codec,
		signer:     batch.NewSigner(engine, codec, opts.Config.BatchParallelism),
		fp:         fingerprint.Placeholder,
	}
	m.Observe(s.refresh)

	if opts.Config.PersistSession {
		if opts.DataDir == "" {
			return nil, errors.New("session persistence requires a data directory")
		}
		s.store = store.New(opts.DataDir, engine, store.Options{
			Encrypt:    opts.Config.EncryptSession,
			Passphrase: opts.Passphrase,
		})
		loaded, err := s.store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to restore session: %w", err)
		}
		if _, none := loaded.(keystate.None); !none {
			if err := m.Restore(loaded); err != nil {
				return nil, err
			}
			util.Debug("session restored", "kind", loaded.Kind(), "path", s.store.Path())
		}
		// Registered after the restore so loading never rewrites the file.
		m.Observe(s.persist)
	}
	return s, nil
}

func (s *Session) refresh(state keystate.State) {
	var payload []byte
	if raw := state.Public().Raw(); len(raw) > 0 {
		payload = wire.EncodePublicKeyAnnouncement(raw)
	}
	s.mu.Lock()
	s.fp = keystate.Fingerprint(state)
	s.announcement = payload
	s.mu.Unlock()
}

func (s *Session) persist(state keystate.State) {
	if err := s.store.Save(context.Background(), state); err != nil {
		util.Logger.Warn("failed to save session", "error", err)
	}
}

// Config returns the configuration the session was built with.
func (s *Session) Config() util.Config { return s.cfg }

// Codec returns the matrix-code codec used for rendered images.
func (s *Session) Codec() matrixcode.Codec { return s.codec }

// State returns the held key.
func (s *Session) State() keystate.State { return s.manager.Current() }

// Observe registers fn to run after every key change.
func (s *Session) Observe(fn keystate.Observer) { s.manager.Observe(fn) }

// Fingerprint returns the display fingerprint of the held public key, or the
// placeholder when none is loaded.
func (s *Session) Fingerprint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fp
}

// Announcement returns the PUB: payload of the held public key.
func (s *Session) Announcement() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.announcement == nil {
		return nil, ErrNoPublicKey
	}
	return bytes.Clone(s.announcement), nil
}

// AnnouncementTerminal renders the announcement as block characters.
func (s *Session) AnnouncementTerminal() (string, error) {
	payload, err := s.Announcement()
	if err != nil {
		return "", err
	}
	return matrixcode.Terminal(payload)
}

// GenerateKeyPair replaces the held key with a fresh pair.
func (s *Session) GenerateKeyPair(ctx context.Context) (keystate.Pair, error) {
	return s.manager.Generate(ctx)
}

// ExportKeyPair writes the held pair as a backup file and returns the path
// written. An empty path uses the default backup file name.
func (s *Session) ExportKeyPair(ctx context.Context, path string) (string, error) {
	if path == "" {
		path = keystate.DefaultBackupFile
	}
	b, err := s.manager.Export(ctx)
	if err != nil {
		return "", err
	}
	data, err := b.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to encode key backup: %w", err)
	}
	if err := fsutil.WriteSecret(path, data); err != nil {
		return "", err
	}
	util.Logger.Info("exported key pair", "path", path, "fingerprint", s.Fingerprint())
	return path, nil
}

// ImportKeyPair restores a pair from a backup file.
func (s *Session) ImportKeyPair(ctx context.Context, path string) (keystate.Pair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return keystate.Pair{}, fmt.Errorf("failed to read key backup: %w", err)
	}
	return s.manager.Import(ctx, data)
}

// Clear forgets the held key. A persisted session file is removed.
func (s *Session) Clear() error {
	return s.manager.Restore(keystate.None{})
}

// Announce renders the public-key announcement to path and returns the path
// written. An empty path uses public_key.<ext>.
func (s *Session) Announce(path string) (string, error) {
	payload, err := s.Announcement()
	if err != nil {
		return "", err
	}
	if path == "" {
		path = "public_key." + s.codec.Extension()
	}
	img, err := s.codec.Encode(payload)
	if err != nil {
		return "", err
	}
	if err := fsutil.WritePublic(path, img); err != nil {
		return "", err
	}
	return path, nil
}

// SignFile signs every line of the document at in and writes the archive to
// out (signed.zip when empty). Nothing is written unless every line signed.
// It returns the number of signed lines and the archive path.
func (s *Session) SignFile(ctx context.Context, in, out string) (int, string, error) {
	pair, ok := s.manager.Current().(keystate.Pair)
	if !ok {
		return 0, "", keystate.ErrNotSigningCapable
	}
	if out == "" {
		out = batch.DefaultArchive
	}
	doc, err := os.ReadFile(in)
	if err != nil {
		return 0, "", fmt.Errorf("failed to read document: %w", err)
	}
	var buf bytes.Buffer
	n, err := s.signer.SignDocument(ctx, doc, pair, &buf)
	if err != nil {
		return 0, "", err
	}
	if err := fsutil.WritePublic(out, buf.Bytes()); err != nil {
		return 0, "", err
	}
	return n, out, nil
}

// HandleText runs one decoded scan through the dispatcher.
func (s *Session) HandleText(ctx context.Context, text string) (scan.Outcome, error) {
	return s.dispatcher.Handle(ctx, text)
}

// FrameResult is reported for every frame a Scan delivers.
type FrameResult struct {
	Frame   frames.Frame
	Outcome scan.Outcome
	Err     error
}

// Scan feeds every frame from src to the dispatcher until src finishes or ctx
// is done. Each scan starts with an empty repeat filter. report, when set,
// sees each frame's outcome.
func (s *Session) Scan(ctx context.Context, src frames.Source, report func(FrameResult)) error {
	s.dispatcher.Reset()
	return src.Run(ctx, func(f frames.Frame) {
		out, err := s.dispatcher.Handle(ctx, f.Text)
		if report != nil {
			report(FrameResult{Frame: f, Outcome: out, Err: err})
		}
	})
}

// VerifyFile decodes a single image and handles it as a fresh scan: the
// dispatcher's repeat filter is reset first, so the same file can be checked
// twice in a row.
func (s *Session) VerifyFile(ctx context.Context, path string) (scan.Outcome, error) {
	f, err := frames.DecodeFile(path)
	if err != nil {
		return scan.Outcome{}, err
	}
	s.dispatcher.Reset()
	return s.dispatcher.Handle(ctx, f.Text)
}
