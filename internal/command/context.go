// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package command

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aplane-algo/qrsign/internal/session"
)

// Context provides command handlers with access to shell state
type Context struct {
	Session *session.Session
	DataDir string

	// Out receives command output; nil means stdout.
	Out io.Writer

	// Ctx bounds blocking operations; nil means context.Background().
	Ctx context.Context

	// Registry is the registry the command was dispatched from (used by help).
	Registry *Registry
}

// Context returns the operation context for a handler.
func (c *Context) Context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

// Printf writes formatted output for the user.
func (c *Context) Printf(format string, args ...any) {
	w := c.Out
	if w == nil {
		w = os.Stdout
	}
	_, _ = fmt.Fprintf(w, format, args...)
}
