// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package monitor

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aplane-algo/qrsign/internal/scan"
	"github.com/aplane-algo/qrsign/internal/session"
)

// headerLines is the height of the title, key line and status bar.
const headerLines = 8

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.log.Width = msg.Width
		m.log.Height = max(msg.Height-headerLines, 3)
		return m, nil

	case FrameMsg:
		m.recordFrame(session.FrameResult(msg))
		return m, nil

	case KeyChangedMsg:
		m.refreshKey()
		return m, nil

	case AlertMsg:
		m.alerts = append(m.alerts, msg.Text)
		return m, nil

	case ConfirmMsg:
		if m.pendingConfirm != nil {
			// Frames are handled one at a time; a second question is refused.
			msg.Reply <- false
			return m, nil
		}
		m.pendingConfirm = &msg
		m.confirmFocus = 0
		return m, nil

	case keyOpMsg:
		m.busy = false
		m.refreshKey()
		if msg.Err != nil {
			m.lastError = fmt.Sprintf("%s: %v", msg.Op, msg.Err)
			m.addEvent(LevelBad, m.lastError)
			return m, nil
		}
		m.lastError = ""
		m.addEvent(LevelInfo, fmt.Sprintf("%s: %s", msg.Op, m.fingerprint))
		return m, nil

	case ScanDoneMsg:
		m.scanning = false
		if msg.Err != nil {
			m.lastError = "scanner stopped: " + msg.Err.Error()
			m.addEvent(LevelBad, m.lastError)
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m.quit()
	}

	switch m.currentView() {
	case ViewConfirm:
		return m.handleConfirmKeys(msg)
	case ViewAlert:
		switch msg.String() {
		case "enter", "esc", " ":
			m.alerts = m.alerts[1:]
		}
		return m, nil
	case ViewCode:
		m.code = ""
		return m, nil
	}

	switch msg.String() {
	case "q":
		return m.quit()

	case "g":
		if m.busy {
			return m, nil
		}
		m.busy = true
		return m, keyOpCmd("generated", func(ctx context.Context) error {
			_, err := m.sess.GenerateKeyPair(ctx)
			return err
		})

	case "c":
		if m.busy {
			return m, nil
		}
		m.busy = true
		return m, keyOpCmd("cleared", func(context.Context) error {
			return m.sess.Clear()
		})

	case "s":
		code, err := m.sess.AnnouncementTerminal()
		if err != nil {
			m.lastError = err.Error()
			return m, nil
		}
		m.code = code
		return m, nil
	}

	var cmd tea.Cmd
	m.log, cmd = m.log.Update(msg)
	return m, cmd
}

// handleConfirmKeys handles keyboard input on the import popup
func (m Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "left":
		m.confirmFocus = 0
	case "right":
		m.confirmFocus = 1
	case "tab":
		m.confirmFocus = (m.confirmFocus + 1) % 2
	case "enter", " ":
		return m.answer(m.confirmFocus == 0), nil
	case "y", "a":
		return m.answer(true), nil
	case "n", "r", "esc":
		return m.answer(false), nil
	}
	return m, nil
}

func (m Model) answer(ok bool) Model {
	if m.pendingConfirm != nil {
		m.pendingConfirm.Reply <- ok
		m.pendingConfirm = nil
	}
	return m
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	// A scan blocked on the popup must not outlive the program.
	m = m.answer(false)
	m.quitting = true
	return m, tea.Quit
}

func keyOpCmd(op string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return keyOpMsg{Op: op, Err: fn(context.Background())}
	}
}

func (m *Model) recordFrame(r session.FrameResult) {
	origin := r.Frame.Origin
	if r.Err != nil {
		m.addEvent(LevelBad, fmt.Sprintf("%s: %v", origin, r.Err))
		return
	}
	out := r.Outcome
	switch out.Action {
	case scan.ActionDrop:
		m.dropped++
	case scan.ActionIgnore:
		m.addEvent(LevelInfo, origin+": not a qrsign code (or no public key loaded)")
	case scan.ActionImport:
		if out.Imported {
			m.refreshKey()
			m.addEvent(LevelGood, fmt.Sprintf("%s: imported public key %s", origin, out.Fingerprint))
		} else {
			m.addEvent(LevelInfo, fmt.Sprintf("%s: declined public key %s", origin, out.Fingerprint))
		}
	case scan.ActionVerify:
		if out.Verified {
			m.addEvent(LevelGood, fmt.Sprintf("%s: verified %q", origin, firstLine(out.Message)))
		} else {
			m.addEvent(LevelBad, fmt.Sprintf("%s: signature FAILED %q", origin, firstLine(out.Message)))
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + "..."
	}
	return s
}
