// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package monitor

import (
	"github.com/aplane-algo/qrsign/internal/session"
)

// Tea messages

// FrameMsg is sent for every frame the scanner handled.
type FrameMsg session.FrameResult

// KeyChangedMsg is sent after the session key changed.
type KeyChangedMsg struct{}

// AlertMsg carries a scan alert to show until dismissed.
type AlertMsg struct {
	Text string
}

// ConfirmMsg asks the user a yes/no question. The answer is sent on Reply,
// which must be buffered.
type ConfirmMsg struct {
	Text  string
	Reply chan<- bool
}

// ScanDoneMsg is sent when the frame source stops.
type ScanDoneMsg struct {
	Err error
}

// keyOpMsg reports the result of a key operation started from the monitor.
type keyOpMsg struct {
	Op  string
	Err error
}
