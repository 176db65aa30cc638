// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package session_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aplane-algo/qrsign/internal/crypto"
	"github.com/aplane-algo/qrsign/internal/cryptoengine"
	"github.com/aplane-algo/qrsign/internal/fingerprint"
	"github.com/aplane-algo/qrsign/internal/frames"
	"github.com/aplane-algo/qrsign/internal/keystate"
	"github.com/aplane-algo/qrsign/internal/matrixcode"
	"github.com/aplane-algo/qrsign/internal/qrerr"
	"github.com/aplane-algo/qrsign/internal/scan"
	"github.com/aplane-algo/qrsign/internal/session"
	"github.com/aplane-algo/qrsign/internal/store"
	"github.com/aplane-algo/qrsign/internal/testutil"
	"github.com/aplane-algo/qrsign/internal/util"
	"github.com/aplane-algo/qrsign/internal/wire"
)

func pngConfig() util.Config {
	cfg := util.DefaultConfig()
	cfg.ImageFormat = util.ImageFormatPNG
	cfg.PersistSession = false
	return cfg
}

func newSession(t *testing.T, cfg util.Config, dataDir string, p session.Prompter) *session.Session {
	t.Helper()
	s, err := session.New(context.Background(), session.Options{Config: cfg, DataDir: dataDir, Prompter: p})
	if err != nil {
		t.Fatalf("session.New failed: %v", err)
	}
	return s
}

func TestNewSessionHasNoKey(t *testing.T) {
	s := newSession(t, pngConfig(), "", &testutil.MockPrompter{})
	if s.Fingerprint() != fingerprint.Placeholder {
		t.Errorf("Fingerprint = %q, want placeholder", s.Fingerprint())
	}
	if _, err := s.Announcement(); !errors.Is(err, session.ErrNoPublicKey) {
		t.Errorf("Announcement error = %v, want ErrNoPublicKey", err)
	}
	if _, err := s.ExportKeyPair(context.Background(), filepath.Join(t.TempDir(), "k.json")); !errors.Is(err, keystate.ErrNotSigningCapable) {
		t.Errorf("ExportKeyPair error = %v, want ErrNotSigningCapable", err)
	}
}

func TestNewRequiresPrompterAndDataDir(t *testing.T) {
	ctx := context.Background()
	if _, err := session.New(ctx, session.Options{Config: pngConfig()}); err == nil {
		t.Error("New accepted a nil prompter")
	}
	cfg := pngConfig()
	cfg.PersistSession = true
	if _, err := session.New(ctx, session.Options{Config: cfg, Prompter: &testutil.MockPrompter{}}); err == nil {
		t.Error("New accepted persistence without a data directory")
	}
	cfg = pngConfig()
	cfg.ImageFormat = "gif"
	if _, err := session.New(ctx, session.Options{Config: cfg, Prompter: &testutil.MockPrompter{}}); err == nil {
		t.Error("New accepted an unknown image format")
	}
}

func TestGenerateRefreshesFingerprintAndAnnouncement(t *testing.T) {
	s := newSession(t, pngConfig(), "", &testutil.MockPrompter{})
	pair, err := s.GenerateKeyPair(context.Background())
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	if want := fingerprint.Display(pair.PublicKey.Raw()); s.Fingerprint() != want {
		t.Errorf("Fingerprint = %q, want %q", s.Fingerprint(), want)
	}
	payload, err := s.Announcement()
	if err != nil {
		t.Fatalf("Announcement failed: %v", err)
	}
	ann, ok := wire.Decode(payload).(wire.PublicKeyAnnouncement)
	if !ok || !bytes.Equal(ann.RawPublicKey, pair.PublicKey.Raw()) {
		t.Errorf("announcement does not carry the generated key")
	}

	path, err := s.Announce(filepath.Join(t.TempDir(), "pub.png"))
	if err != nil {
		t.Fatalf("Announce failed: %v", err)
	}
	f, err := frames.DecodeFile(path)
	if err != nil {
		t.Fatalf("announcement image unreadable: %v", err)
	}
	if f.Text != string(payload) {
		t.Errorf("announcement image does not match payload")
	}
	if _, err := s.AnnouncementTerminal(); err != nil {
		t.Errorf("AnnouncementTerminal failed: %v", err)
	}
}

func TestExportImportAcrossSessions(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a := newSession(t, pngConfig(), "", &testutil.MockPrompter{})
	if _, err := a.GenerateKeyPair(ctx); err != nil {
		t.Fatal(err)
	}
	path, err := a.ExportKeyPair(ctx, filepath.Join(dir, keystate.DefaultBackupFile))
	if err != nil {
		t.Fatalf("ExportKeyPair failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("backup mode = %04o, want 0600", info.Mode().Perm())
	}

	b := newSession(t, pngConfig(), "", &testutil.MockPrompter{})
	if _, err := b.ImportKeyPair(ctx, path); err != nil {
		t.Fatalf("ImportKeyPair failed: %v", err)
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Errorf("fingerprint changed across export/import")
	}

	bad := testutil.TempFile(t, []byte(`{"type":"something_else"}`))
	_, err = b.ImportKeyPair(ctx, bad)
	var be *qrerr.BackupFormatError
	if !errors.As(err, &be) {
		t.Errorf("ImportKeyPair(bad) error = %v, want BackupFormatError", err)
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Errorf("failed import changed the held key")
	}
}

func TestSignFileVerifiedByScanningPeer(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	signer := newSession(t, pngConfig(), "", &testutil.MockPrompter{})
	if _, err := signer.GenerateKeyPair(ctx); err != nil {
		t.Fatal(err)
	}
	doc := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(doc, []byte("pay 10 to bob\r\nthanks\n"), 0600); err != nil {
		t.Fatal(err)
	}
	n, out, err := signer.SignFile(ctx, doc, filepath.Join(dir, "out.zip"))
	if err != nil {
		t.Fatalf("SignFile failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("signed %d lines, want 2", n)
	}

	prompter := &testutil.MockPrompter{Reply: true}
	peer := newSession(t, pngConfig(), "", prompter)
	announcement, _ := signer.Announcement()
	if out, err := peer.HandleText(ctx, string(announcement)); err != nil || !out.Imported {
		t.Fatalf("peer import: outcome %+v, error %v", out, err)
	}
	if peer.Fingerprint() != signer.Fingerprint() {
		t.Fatalf("peer fingerprint differs from signer")
	}

	zr, err := zip.OpenReader(out)
	if err != nil {
		t.Fatalf("archive unreadable: %v", err)
	}
	defer zr.Close()

	want := []struct{ name, text string }{
		{"signed_1.png", "pay 10 to bob"},
		{"signed_2.png", "thanks"},
	}
	if len(zr.File) != len(want) {
		t.Fatalf("archive has %d entries, want %d", len(zr.File), len(want))
	}
	for i, f := range zr.File {
		if f.Name != want[i].name {
			t.Errorf("entry %d = %s, want %s", i, f.Name, want[i].name)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		img, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		payload, err := matrixcode.DecodeFile(img)
		if err != nil {
			t.Fatalf("%s: %v", f.Name, err)
		}
		res, err := peer.HandleText(ctx, string(payload))
		if err != nil {
			t.Fatalf("%s: HandleText error %v", f.Name, err)
		}
		if res.Action != scan.ActionVerify || !res.Verified || res.Message != want[i].text {
			t.Errorf("%s: outcome %+v", f.Name, res)
		}
	}
	alerts, _ := prompter.Snapshot()
	if len(alerts) != 2 || alerts[0] != scan.VerifiedAlert("pay 10 to bob") {
		t.Errorf("alerts = %q", alerts)
	}
}

func TestSignFileFailuresWriteNothing(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	out := filepath.Join(dir, "signed.zip")

	s := newSession(t, pngConfig(), "", &testutil.MockPrompter{})
	doc := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(doc, []byte("hello\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.SignFile(ctx, doc, out); !errors.Is(err, keystate.ErrNotSigningCapable) {
		t.Errorf("SignFile without key: error = %v", err)
	}

	if _, err := s.GenerateKeyPair(ctx); err != nil {
		t.Fatal(err)
	}
	latin1 := filepath.Join(dir, "latin1.txt")
	if err := os.WriteFile(latin1, []byte("caf\xe9\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, _, err := s.SignFile(ctx, latin1, out)
	var ee *qrerr.EncodingError
	if !errors.As(err, &ee) {
		t.Errorf("SignFile(latin1) error = %v, want EncodingError", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("archive written despite failure: %v", err)
	}
}

func TestVerifyFileIsFreshEachTime(t *testing.T) {
	ctx := context.Background()
	prompter := &testutil.MockPrompter{}
	s := newSession(t, pngConfig(), "", prompter)
	pair, err := s.GenerateKeyPair(ctx)
	if err != nil {
		t.Fatal(err)
	}
	signature, err := testutil.NewMockEngine().Sign(ctx, pair.PrivateKey, []byte("hi"))
	if err != nil {
		t.Fatal(err)
	}
	img, err := s.Codec().Encode(wire.EncodeSignedMessage(signature, []byte("hi")))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "code.png")
	if err := os.WriteFile(path, img, 0600); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		out, err := s.VerifyFile(ctx, path)
		if err != nil {
			t.Fatalf("VerifyFile #%d failed: %v", i+1, err)
		}
		if out.Action != scan.ActionVerify || !out.Verified {
			t.Errorf("VerifyFile #%d outcome %+v", i+1, out)
		}
	}
	if alerts, _ := prompter.Snapshot(); len(alerts) != 2 {
		t.Errorf("alerts = %d, want 2", len(alerts))
	}

	if _, err := s.VerifyFile(ctx, testutil.TempFile(t, []byte("not an image"))); err == nil {
		t.Error("VerifyFile accepted a non-image")
	}
}

func TestScanReportsEveryFrame(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	owner := newSession(t, pngConfig(), "", &testutil.MockPrompter{})
	if _, err := owner.GenerateKeyPair(ctx); err != nil {
		t.Fatal(err)
	}
	pub, err := owner.Announce(filepath.Join(dir, "a.png"))
	if err != nil {
		t.Fatal(err)
	}

	s := newSession(t, pngConfig(), "", &testutil.MockPrompter{Reply: true})
	var results []session.FrameResult
	src := &frames.ListSource{Paths: []string{pub, pub}}
	if err := s.Scan(ctx, src, func(r session.FrameResult) { results = append(results, r) }); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("reported %d frames, want 2", len(results))
	}
	if results[0].Outcome.Action != scan.ActionImport || !results[0].Outcome.Imported {
		t.Errorf("first frame outcome %+v", results[0].Outcome)
	}
	if results[1].Outcome.Action != scan.ActionDrop {
		t.Errorf("repeated frame outcome %+v, want drop", results[1].Outcome)
	}
	if s.Fingerprint() != owner.Fingerprint() {
		t.Errorf("scanned key not adopted")
	}
}

func TestPersistence(t *testing.T) {
	ctx := context.Background()
	pw := func(bool) (*crypto.Secret, error) { return crypto.NewSecret([]byte("pw")), nil }

	for _, encrypt := range []bool{false, true} {
		name := "plain"
		if encrypt {
			name = "encrypted"
		}
		t.Run(name, func(t *testing.T) {
			dataDir := t.TempDir()
			cfg := pngConfig()
			cfg.PersistSession = true
			cfg.EncryptSession = encrypt
			open := func() *session.Session {
				s, err := session.New(ctx, session.Options{Config: cfg, DataDir: dataDir, Prompter: &testutil.MockPrompter{}, Passphrase: pw})
				if err != nil {
					t.Fatalf("session.New failed: %v", err)
				}
				return s
			}

			first := open()
			if _, err := first.GenerateKeyPair(ctx); err != nil {
				t.Fatal(err)
			}
			sessionFile := filepath.Join(dataDir, store.FileName)
			data, err := os.ReadFile(sessionFile)
			if err != nil {
				t.Fatalf("session not saved: %v", err)
			}
			if crypto.IsEncrypted(data) != encrypt {
				t.Errorf("session encrypted = %v, want %v", !encrypt, encrypt)
			}

			second := open()
			if second.Fingerprint() != first.Fingerprint() {
				t.Errorf("restored fingerprint %q, want %q", second.Fingerprint(), first.Fingerprint())
			}
			if !keystate.CanSign(second.State()) {
				t.Errorf("restored state %s cannot sign", second.State().Kind())
			}

			if err := second.Clear(); err != nil {
				t.Fatalf("Clear failed: %v", err)
			}
			if _, err := os.Stat(sessionFile); !os.IsNotExist(err) {
				t.Errorf("session file survived Clear: %v", err)
			}
			if open().Fingerprint() != fingerprint.Placeholder {
				t.Errorf("cleared session restored a key")
			}
		})
	}
}

func TestNoPersistenceWritesNothing(t *testing.T) {
	dataDir := t.TempDir()
	s := newSession(t, pngConfig(), dataDir, &testutil.MockPrompter{})
	if _, err := s.GenerateKeyPair(context.Background()); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("data dir has %d entries, want none", len(entries))
	}
}

func TestObserveSeesScanImport(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, pngConfig(), "", &testutil.MockPrompter{Reply: true})
	var kinds []string
	s.Observe(func(st keystate.State) { kinds = append(kinds, st.Kind()) })

	pair := testutil.NewPair(t)
	if _, err := s.HandleText(ctx, string(wire.EncodePublicKeyAnnouncement(pair.PublicKey.Raw()))); err != nil {
		t.Fatal(err)
	}
	if strings.Join(kinds, ",") != "public" {
		t.Errorf("observed %v, want [public]", kinds)
	}
	if keystate.CanSign(s.State()) {
		t.Errorf("scanned key must be verify-only")
	}
}

// gatedEngine holds the first public-key export until gate is closed.
type gatedEngine struct {
	cryptoengine.Engine
	once    sync.Once
	entered chan struct{}
	gate    chan struct{}
}

func (e *gatedEngine) ExportPublicJWK(ctx context.Context, key *cryptoengine.PublicKey) (json.RawMessage, error) {
	first := false
	e.once.Do(func() { first = true })
	if first {
		close(e.entered)
		<-e.gate
	}
	return e.Engine.ExportPublicJWK(ctx, key)
}

func TestPersistKeepsNewestKeyWhenSavesOverlap(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()
	cfg := pngConfig()
	cfg.PersistSession = true

	engine := &gatedEngine{
		Engine:  cryptoengine.NewSoftware(util.Logger),
		entered: make(chan struct{}),
		gate:    make(chan struct{}),
	}
	s, err := session.New(ctx, session.Options{Config: cfg, DataDir: dataDir, Prompter: &testutil.MockPrompter{}, Engine: engine})
	if err != nil {
		t.Fatalf("session.New failed: %v", err)
	}

	errs := make(chan error, 2)
	go func() {
		_, err := s.GenerateKeyPair(ctx)
		errs <- err
	}()
	// The first key is committed and its save is stuck in the export.
	<-engine.entered
	older := keystate.Fingerprint(s.State())

	go func() {
		_, err := s.GenerateKeyPair(ctx)
		errs <- err
	}()
	deadline := time.Now().Add(5 * time.Second)
	for keystate.Fingerprint(s.State()) == older {
		if time.Now().After(deadline) {
			t.Fatal("second generate never committed")
		}
		time.Sleep(time.Millisecond)
	}
	close(engine.gate)
	for range 2 {
		if err := <-errs; err != nil {
			t.Fatalf("GenerateKeyPair failed: %v", err)
		}
	}

	held := keystate.Fingerprint(s.State())
	if s.Fingerprint() != held {
		t.Errorf("displayed fingerprint %q, held %q", s.Fingerprint(), held)
	}
	reopened := newSession(t, cfg, dataDir, &testutil.MockPrompter{})
	if reopened.Fingerprint() != held {
		t.Errorf("session file holds a superseded key: restored %q, held %q", reopened.Fingerprint(), held)
	}
}

func TestDefaultSVGOutputVerifies(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := util.DefaultConfig()
	cfg.PersistSession = false

	signer := newSession(t, cfg, "", &testutil.MockPrompter{})
	if _, err := signer.GenerateKeyPair(ctx); err != nil {
		t.Fatal(err)
	}
	announced, err := signer.Announce(filepath.Join(dir, "public_key.svg"))
	if err != nil {
		t.Fatalf("Announce failed: %v", err)
	}

	peer := newSession(t, cfg, "", &testutil.MockPrompter{Reply: true})
	out, err := peer.VerifyFile(ctx, announced)
	if err != nil || !out.Imported {
		t.Fatalf("VerifyFile(%s): outcome %+v, error %v", announced, out, err)
	}
	if peer.Fingerprint() != signer.Fingerprint() {
		t.Fatalf("peer fingerprint differs from signer")
	}

	doc := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(doc, []byte("first line\nsecond line\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, archive, err := signer.SignFile(ctx, doc, filepath.Join(dir, "signed.zip"))
	if err != nil {
		t.Fatalf("SignFile failed: %v", err)
	}
	zr, err := zip.OpenReader(archive)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()

	for i, f := range zr.File {
		if want := fmt.Sprintf("signed_%d.svg", i+1); f.Name != want {
			t.Errorf("entry %d = %s, want %s", i, f.Name, want)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		img, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		path := filepath.Join(dir, f.Name)
		if err := os.WriteFile(path, img, 0600); err != nil {
			t.Fatal(err)
		}
		res, err := peer.VerifyFile(ctx, path)
		if err != nil {
			t.Fatalf("VerifyFile(%s) failed: %v", f.Name, err)
		}
		if res.Action != scan.ActionVerify || !res.Verified {
			t.Errorf("%s: outcome %+v", f.Name, res)
		}
	}
}
