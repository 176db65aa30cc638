// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package scan turns a stream of decoded frame texts into protocol actions.
//
// A scanner reports the same text for every frame in which a code stays in
// view. Step collapses those repeats and classifies each new text; the
// Dispatcher then performs the resulting action against the key manager,
// the crypto engine and the user prompter.
package scan

import "github.com/aplane-algo/qrsign/internal/wire"

// Action is what a scan event asks the dispatcher to do.
type Action int

const (
	// ActionDrop: the text repeats the previous frame.
	ActionDrop Action = iota
	// ActionImport: a public key announcement to offer for import.
	ActionImport
	// ActionVerify: a signed message and a key to check it against.
	ActionVerify
	// ActionIgnore: unrecognized content, or a signed message with no key held.
	ActionIgnore
)

func (a Action) String() string {
	switch a {
	case ActionDrop:
		return "drop"
	case ActionImport:
		return "import"
	case ActionVerify:
		return "verify"
	case ActionIgnore:
		return "ignore"
	default:
		return "unknown"
	}
}

// Transition is the result of Step.
type Transition struct {
	Last    string       // new "last seen" text
	Action  Action
	Payload wire.Payload // nil for ActionDrop
}

// Step is the dispatcher's transition function. It depends only on its
// arguments: the previously seen text, the new text, and whether a public
// key is currently held.
func Step(last, text string, haveKey bool) Transition {
	if text == last {
		return Transition{Last: last, Action: ActionDrop}
	}
	p := wire.DecodeString(text)
	tr := Transition{Last: text, Payload: p}
	switch p.(type) {
	case wire.PublicKeyAnnouncement:
		tr.Action = ActionImport
	case wire.SignedMessage:
		if haveKey {
			tr.Action = ActionVerify
		} else {
			tr.Action = ActionIgnore
		}
	default:
		tr.Action = ActionIgnore
	}
	return tr
}
