// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	fingerprintStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true)

	goodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	buttonStyle = lipgloss.NewStyle().
			Padding(0, 2).
			Border(lipgloss.RoundedBorder())

	buttonActiveStyle = buttonStyle.
				BorderForeground(lipgloss.Color("42")).
				Foreground(lipgloss.Color("42"))

	buttonInactiveStyle = buttonStyle.
				BorderForeground(lipgloss.Color("241")).
				Foreground(lipgloss.Color("241"))

	popupStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("214")).
			Padding(1, 2).
			Width(80)
)

// View renders the monitor
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	var content string
	switch m.currentView() {
	case ViewConfirm:
		content = m.renderConfirmPopup()
	case ViewAlert:
		content = m.renderAlertPopup()
	case ViewCode:
		content = m.renderCode()
	default:
		content = m.renderLog()
	}
	return content + "\n" + m.renderStatusBar()
}

func (m Model) renderHeader() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("qrsign monitor"))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Key: %s  Fingerprint: %s\n", m.kind, fingerprintStyle.Render(m.fingerprint)))
	sb.WriteString(subtitleStyle.Render("Watching " + m.watchDir))
	sb.WriteString("\n\n")
	return sb.String()
}

func (m Model) renderLog() string {
	if len(m.events) == 0 {
		return m.renderHeader() + subtitleStyle.Render("Waiting for frames...") + "\n"
	}
	return m.renderHeader() + m.log.View() + "\n"
}

func (m Model) renderEvents() string {
	lines := make([]string, 0, len(m.events))
	for _, e := range m.events {
		text := e.Text
		switch e.Level {
		case LevelGood:
			text = goodStyle.Render(text)
		case LevelBad:
			text = errorStyle.Render(text)
		}
		lines = append(lines, fmt.Sprintf("%s  %s", e.At.Format("15:04:05"), text))
	}
	return strings.Join(lines, "\n")
}

// renderConfirmPopup renders the import approval popup
func (m Model) renderConfirmPopup() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Scanned Public Key"))
	sb.WriteString("\n\n")
	sb.WriteString(m.pendingConfirm.Text)
	sb.WriteString("\n\n")
	if m.kind == "pair" {
		sb.WriteString(warningStyle.Render("Importing replaces your key pair."))
		sb.WriteString("\n\n")
	}

	var importBtn, declineBtn string
	if m.confirmFocus == 0 {
		importBtn = buttonActiveStyle.Render("> IMPORT")
		declineBtn = buttonInactiveStyle.Render("  DECLINE")
	} else {
		importBtn = buttonInactiveStyle.Render("  IMPORT")
		declineBtn = buttonActiveStyle.Render("> DECLINE")
	}
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, importBtn, "  ", declineBtn))
	sb.WriteString("\n\n")
	sb.WriteString(helpStyle.Render("y/a: Import | n/r: Decline | Tab/←→: Switch | Enter: Confirm"))

	return "\n" + popupStyle.Render(sb.String())
}

func (m Model) renderAlertPopup() string {
	var sb strings.Builder
	text := m.alerts[0]
	title := titleStyle.Render("Scan Result")
	if strings.Contains(text, "FAILED") || strings.HasPrefix(text, "Failed") {
		// errorStyle has no bottom margin.
		title = errorStyle.Render("Scan Result") + "\n"
	}
	sb.WriteString(title + "\n")
	sb.WriteString(text)
	sb.WriteString("\n\n")
	if more := len(m.alerts) - 1; more > 0 {
		sb.WriteString(subtitleStyle.Render(fmt.Sprintf("%d more waiting", more)))
		sb.WriteString("\n")
	}
	sb.WriteString(helpStyle.Render("Enter/Esc: Dismiss"))
	return "\n" + popupStyle.Render(sb.String())
}

func (m Model) renderCode() string {
	return m.renderHeader() + m.code + "\n" + helpStyle.Render("Press any key to return")
}

// renderStatusBar renders the bottom status bar
func (m Model) renderStatusBar() string {
	var parts []string
	if m.scanning {
		parts = append(parts, goodStyle.Render("Scanning"))
	} else {
		parts = append(parts, errorStyle.Render("Stopped"))
	}
	parts = append(parts, subtitleStyle.Render(fmt.Sprintf("%d event(s), %d repeat(s) skipped", len(m.events), m.dropped)))
	if m.busy {
		parts = append(parts, warningStyle.Render("Working..."))
	}
	if m.lastError != "" {
		parts = append(parts, errorStyle.Render("Error: "+m.lastError))
	}
	status := strings.Join(parts, " | ")
	return status + "\n" + helpStyle.Render("g: Generate | c: Clear | s: Show key | ↑↓: Scroll | q: Quit")
}
