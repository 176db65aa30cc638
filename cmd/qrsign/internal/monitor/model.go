// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package monitor is the full-screen scan monitor: it shows frames as they
// arrive from the watched folder and asks for import confirmations in a popup.
package monitor

import (
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/aplane-algo/qrsign/internal/session"
)

// ViewState represents what the monitor is showing
type ViewState int

const (
	ViewLog     ViewState = iota
	ViewConfirm           // Import confirmation popup
	ViewAlert             // Verification or error alert
	ViewCode              // Public key code in block characters
)

// maxEvents bounds the event log.
const maxEvents = 500

// EventLevel colours an event line.
type EventLevel int

const (
	LevelInfo EventLevel = iota
	LevelGood
	LevelBad
)

// Event is one line of the event log.
type Event struct {
	At    time.Time
	Level EventLevel
	Text  string
}

// Model is the bubbletea model of the monitor.
type Model struct {
	sess     *session.Session
	watchDir string

	kind        string
	fingerprint string
	events      []Event
	dropped     int
	log         viewport.Model

	pendingConfirm *ConfirmMsg
	confirmFocus   int // 0 = import, 1 = decline
	alerts         []string
	code           string // non-empty while the key code is shown

	busy      bool
	scanning  bool
	lastError string

	width    int
	height   int
	quitting bool

	now func() time.Time
}

// NewModel returns a monitor for sess watching watchDir.
func NewModel(sess *session.Session, watchDir string) Model {
	m := Model{
		sess:     sess,
		watchDir: watchDir,
		log:      viewport.New(80, 15),
		scanning: true,
		now:      time.Now,
	}
	m.refreshKey()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

func (m *Model) refreshKey() {
	m.kind = m.sess.State().Kind()
	m.fingerprint = m.sess.Fingerprint()
}

func (m *Model) addEvent(level EventLevel, text string) {
	m.events = append(m.events, Event{At: m.now(), Level: level, Text: text})
	if over := len(m.events) - maxEvents; over > 0 {
		m.events = append(m.events[:0], m.events[over:]...)
	}
	m.log.SetContent(m.renderEvents())
	m.log.GotoBottom()
}

// currentView resolves which screen is in front. A pending confirmation
// wins over alerts, which win over the key code.
func (m Model) currentView() ViewState {
	switch {
	case m.pendingConfirm != nil:
		return ViewConfirm
	case len(m.alerts) > 0:
		return ViewAlert
	case m.code != "":
		return ViewCode
	default:
		return ViewLog
	}
}

// Events returns a copy of the event log.
func (m Model) Events() []Event {
	return append([]Event(nil), m.events...)
}
