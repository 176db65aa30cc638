// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package monitor

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Prompter forwards scan alerts and confirmations to a running monitor.
// Before Attach and after Close, alerts are dropped and confirmations
// answer no.
type Prompter struct {
	mu   sync.Mutex
	send func(tea.Msg)

	done      chan struct{}
	closeOnce sync.Once
}

// NewPrompter returns a detached prompter.
func NewPrompter() *Prompter {
	return &Prompter{done: make(chan struct{})}
}

// Attach routes messages to send, usually (*tea.Program).Send.
func (p *Prompter) Attach(send func(tea.Msg)) {
	p.mu.Lock()
	p.send = send
	p.mu.Unlock()
}

// Close releases any Confirm still waiting for an answer.
func (p *Prompter) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

func (p *Prompter) sender() func(tea.Msg) {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.done:
		return nil
	default:
		return p.send
	}
}

// Alert implements scan.Prompter.
func (p *Prompter) Alert(msg string) {
	if send := p.sender(); send != nil {
		send(AlertMsg{Text: msg})
	}
}

// Confirm implements scan.Prompter. It blocks until the user answers.
func (p *Prompter) Confirm(msg string) bool {
	send := p.sender()
	if send == nil {
		return false
	}
	reply := make(chan bool, 1)
	send(ConfirmMsg{Text: msg, Reply: reply})
	select {
	case ok := <-reply:
		return ok
	case <-p.done:
		return false
	}
}
