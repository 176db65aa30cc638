// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package command

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aplane-algo/qrsign/internal/fingerprint"
	"github.com/aplane-algo/qrsign/internal/scan"
	"github.com/aplane-algo/qrsign/internal/session"
	"github.com/aplane-algo/qrsign/internal/testutil"
	"github.com/aplane-algo/qrsign/internal/util"
)

type shell struct {
	registry *Registry
	ctx      *Context
	out      *bytes.Buffer
	prompter *testutil.MockPrompter
}

func newShell(t *testing.T) *shell {
	t.Helper()
	cfg := util.DefaultConfig()
	cfg.ImageFormat = util.ImageFormatPNG
	cfg.PersistSession = false
	p := &testutil.MockPrompter{Reply: true}
	s, err := session.New(context.Background(), session.Options{Config: cfg, Prompter: p})
	if err != nil {
		t.Fatalf("session.New failed: %v", err)
	}
	out := &bytes.Buffer{}
	return &shell{
		registry: NewShellRegistry(),
		ctx:      &Context{Session: s, Out: out},
		out:      out,
		prompter: p,
	}
}

func (sh *shell) run(t *testing.T, line string) (string, error) {
	t.Helper()
	sh.out.Reset()
	err := sh.registry.Execute(line, sh.ctx)
	return sh.out.String(), err
}

func TestShellKeyLifecycle(t *testing.T) {
	dir := t.TempDir()
	sh := newShell(t)

	out, err := sh.run(t, "fp")
	if err != nil || strings.TrimSpace(out) != fingerprint.Placeholder {
		t.Errorf("fp before generate = %q, %v", out, err)
	}
	if _, err := sh.run(t, "export"); err == nil {
		t.Error("export without a key pair succeeded")
	}

	out, err = sh.run(t, "generate")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	fp := sh.ctx.Session.Fingerprint()
	if !strings.Contains(out, fp) {
		t.Errorf("generate output %q lacks fingerprint", out)
	}

	backup := filepath.Join(dir, "backup.json")
	if _, err := sh.run(t, "export "+backup); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	other := newShell(t)
	if _, err := other.run(t, "import"); err == nil {
		t.Error("import without a file succeeded")
	}
	if out, err := other.run(t, "import "+backup); err != nil || !strings.Contains(out, fp) {
		t.Errorf("import = %q, %v", out, err)
	}

	out, err = sh.run(t, "status")
	if err != nil || !strings.Contains(out, "pair") || !strings.Contains(out, "Can sign:    true") {
		t.Errorf("status = %q, %v", out, err)
	}

	if _, err := sh.run(t, "clear"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if sh.ctx.Session.Fingerprint() != fingerprint.Placeholder {
		t.Error("clear kept the key")
	}
}

func TestShellSignAndVerify(t *testing.T) {
	dir := t.TempDir()
	signer := newShell(t)
	if _, err := signer.run(t, "generate"); err != nil {
		t.Fatal(err)
	}

	doc := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(doc, []byte("one\ntwo\nthree\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := signer.run(t, "sign"); err == nil {
		t.Error("sign without a document succeeded")
	}
	archive := filepath.Join(dir, "out.zip")
	out, err := signer.run(t, "sign "+doc+" "+archive)
	if err != nil || !strings.Contains(out, "Signed 3 line(s)") {
		t.Fatalf("sign = %q, %v", out, err)
	}

	pub := filepath.Join(dir, "pub.png")
	if _, err := signer.run(t, "announce "+pub); err != nil {
		t.Fatalf("announce failed: %v", err)
	}

	peer := newShell(t)
	out, err = peer.run(t, "verify "+pub)
	if err != nil || !strings.Contains(out, "public key imported") {
		t.Fatalf("verify of announcement = %q, %v", out, err)
	}
	if peer.ctx.Session.Fingerprint() != signer.ctx.Session.Fingerprint() {
		t.Fatal("peer did not adopt the announced key")
	}

	out, err = peer.run(t, "scan "+pub+" "+pub)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if !strings.Contains(out, "repeat of the previous code") {
		t.Errorf("scan output %q lacks repeat notice", out)
	}
	if _, confirms := peer.prompter.Snapshot(); len(confirms) != 2 {
		// one from verify, one from the first scanned frame
		t.Errorf("confirms = %d, want 2", len(confirms))
	}

	out, err = peer.run(t, "verify "+filepath.Join(dir, "missing.png"))
	if err == nil || !strings.Contains(out, "missing.png") {
		t.Errorf("verify of missing file = %q, %v", out, err)
	}
}

func TestShellVerifyReportsFailure(t *testing.T) {
	dir := t.TempDir()
	a := newShell(t)
	b := newShell(t)
	for _, sh := range []*shell{a, b} {
		if _, err := sh.run(t, "generate"); err != nil {
			t.Fatal(err)
		}
	}
	doc := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(doc, []byte("hello\n"), 0600); err != nil {
		t.Fatal(err)
	}
	archive := filepath.Join(dir, "a.zip")
	if _, err := a.run(t, "sign "+doc+" "+archive); err != nil {
		t.Fatal(err)
	}
	code := extractFirst(t, archive, dir)

	// b holds a different key, so a's signature must not verify.
	_, err := b.run(t, "verify "+code)
	if err == nil || !strings.Contains(err.Error(), "did not verify") {
		t.Errorf("verify under wrong key error = %v", err)
	}
	alerts, _ := b.prompter.Snapshot()
	if len(alerts) != 1 || alerts[0] != scan.FailedAlert("hello") {
		t.Errorf("alerts = %q", alerts)
	}

	if _, err := a.run(t, "verify "+code); err != nil {
		t.Errorf("verify under signing key failed: %v", err)
	}
}

func TestShellHelp(t *testing.T) {
	sh := newShell(t)
	out, err := sh.run(t, "help sign")
	if err != nil || !strings.Contains(out, "signed_<N>.<ext>") {
		t.Errorf("help sign = %q, %v", out, err)
	}
	if _, err := sh.run(t, "help nope"); err == nil {
		t.Error("help for unknown command succeeded")
	}
	out, err = sh.run(t, "?")
	if err != nil || !strings.Contains(out, "Available commands") {
		t.Errorf("? = %q, %v", out, err)
	}
}

// extractFirst writes the first archive entry into dir and returns its path.
func extractFirst(t *testing.T, archive, dir string) string {
	t.Helper()
	zr, err := zip.OpenReader(archive)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer zr.Close()
	if len(zr.File) == 0 {
		t.Fatal("archive is empty")
	}
	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, zr.File[0].Name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestShellFingerprintCheck(t *testing.T) {
	sh := newShell(t)
	if _, err := sh.run(t, "fingerprint 00"); err == nil || !strings.Contains(err.Error(), "invalid fingerprint") {
		t.Errorf("malformed fingerprint: error = %v", err)
	}
	zero := strings.TrimSuffix(strings.Repeat("00:", fingerprint.Size), ":")
	if _, err := sh.run(t, "fingerprint "+zero); !errors.Is(err, session.ErrNoPublicKey) {
		t.Errorf("check without key: error = %v", err)
	}

	if _, err := sh.run(t, "generate"); err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	fp := sh.ctx.Session.Fingerprint()
	out, err := sh.run(t, "fingerprint "+strings.ToLower(fp))
	if err != nil || !strings.Contains(out, "matches") {
		t.Errorf("matching check = %q, %v", out, err)
	}
	if _, err := sh.run(t, "fp "+zero); err == nil || !strings.Contains(err.Error(), fp) {
		t.Errorf("mismatch error = %v, want the current fingerprint", err)
	}
}
