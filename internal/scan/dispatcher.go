// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aplane-algo/qrsign/internal/fingerprint"
	"github.com/aplane-algo/qrsign/internal/keystate"
	"github.com/aplane-algo/qrsign/internal/qrerr"
	"github.com/aplane-algo/qrsign/internal/util"
	"github.com/aplane-algo/qrsign/internal/wire"
)

// Prompter is the user-facing alert/confirm capability.
type Prompter interface {
	Alert(msg string)
	Confirm(msg string) bool
}

// Outcome summarizes what Handle did with one scan event.
type Outcome struct {
	Action Action

	// Import
	Fingerprint string
	Imported    bool
	State       keystate.State

	// Verify
	Verified bool
	Message  string
}

// ImportPrompt is the confirmation shown before adopting a scanned key.
func ImportPrompt(fp string) string {
	return "Import public key with fingerprint " + fp + "?"
}

// VerifiedAlert formats a successful verification.
func VerifiedAlert(msg string) string { return "Signature verified.\n\n" + msg }

// FailedAlert formats a cryptographic verification failure.
func FailedAlert(msg string) string { return "Signature verification FAILED.\n\n" + msg }

// Dispatcher performs scan actions. Handle is safe to call from several
// goroutines but frame sources deliver events one at a time.
type Dispatcher struct {
	manager  *keystate.Manager
	prompter Prompter
	keepPair bool

	mu   sync.Mutex
	last string
}

// NewDispatcher returns a dispatcher in the Idle state.
func NewDispatcher(manager *keystate.Manager, prompter Prompter, keepPair bool) *Dispatcher {
	return &Dispatcher{manager: manager, prompter: prompter, keepPair: keepPair}
}

// Reset forgets the last seen text so the next event is never a repeat.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	d.last = ""
	d.mu.Unlock()
}

// Handle processes one decoded frame text.
//
// Surfaced failures (key import, verification engine errors) are alerted and
// also returned. Repeats, unrecognized content, a declined import and a
// signed message with no key held return a nil error.
func (d *Dispatcher) Handle(ctx context.Context, text string) (Outcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state := d.manager.Current()
	tr := Step(d.last, text, state.Public() != nil)
	d.last = tr.Last
	out := Outcome{Action: tr.Action}

	switch tr.Action {
	case ActionDrop:
		return out, nil
	case ActionIgnore:
		if u, ok := tr.Payload.(wire.Unrecognized); ok {
			util.Debug("ignoring scan", "error", u.Err())
		} else {
			util.Debug("ignoring signed message, no public key loaded")
		}
		return out, nil
	case ActionImport:
		return d.importKey(ctx, tr.Payload.(wire.PublicKeyAnnouncement), out)
	case ActionVerify:
		return d.verify(ctx, state, tr.Payload.(wire.SignedMessage), out)
	}
	return out, nil
}

func (d *Dispatcher) importKey(ctx context.Context, p wire.PublicKeyAnnouncement, out Outcome) (Outcome, error) {
	raw := append([]byte(nil), p.RawPublicKey...)
	out.Fingerprint = fingerprint.Display(raw)
	util.Debug("scanned public key", "fingerprint", out.Fingerprint)

	pub, err := d.manager.Engine().ImportRaw(ctx, raw)
	if err != nil {
		err = qrerr.NewCryptoEngineError("import", err)
		d.prompter.Alert(fmt.Sprintf("Failed to import public key: %v", err))
		return out, err
	}
	if !d.prompter.Confirm(ImportPrompt(out.Fingerprint)) {
		util.Debug("public key import declined", "fingerprint", out.Fingerprint)
		return out, nil
	}

	// The confirmation is the most recent user action, so the token is taken now.
	s, err := d.manager.AdoptPublic(d.manager.Begin(), pub, d.keepPair)
	if err != nil {
		if errors.Is(err, keystate.ErrStale) {
			return out, nil
		}
		d.prompter.Alert(err.Error())
		return out, err
	}
	out.Imported = true
	out.State = s
	return out, nil
}

func (d *Dispatcher) verify(ctx context.Context, state keystate.State, p wire.SignedMessage, out Outcome) (Outcome, error) {
	out.Message = p.Text()
	ok, err := d.manager.Engine().Verify(ctx, state.Public(), p.Signature, p.Message)
	if err != nil {
		err = qrerr.NewCryptoEngineError("verify", err)
		d.prompter.Alert(fmt.Sprintf("Failed to verify message: %v", err))
		return out, err
	}
	out.Verified = ok
	util.Debug("verified scanned message", "ok", ok, "fingerprint", keystate.Fingerprint(state))
	if ok {
		d.prompter.Alert(VerifiedAlert(out.Message))
	} else {
		d.prompter.Alert(FailedAlert(out.Message))
	}
	return out, nil
}
