// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package monitor

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aplane-algo/qrsign/internal/frames"
	"github.com/aplane-algo/qrsign/internal/keystate"
	"github.com/aplane-algo/qrsign/internal/session"
)

// Run shows the monitor until the user quits. Frames from src are scanned in
// the background; prompter must be the one sess was built with.
func Run(ctx context.Context, sess *session.Session, prompter *Prompter, src frames.Source, watchDir string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(sess, watchDir), tea.WithAltScreen())
	prompter.Attach(p.Send)
	defer prompter.Close()

	sess.Observe(func(keystate.State) { p.Send(KeyChangedMsg{}) })

	go func() {
		err := sess.Scan(ctx, src, func(r session.FrameResult) {
			p.Send(FrameMsg(r))
		})
		p.Send(ScanDoneMsg{Err: err})
	}()

	_, err := p.Run()
	return err
}
