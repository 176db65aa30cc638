// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

// lineReader reads one line of user input after showing prompt.
type lineReader func(prompt string) (string, error)

// bufferedLineReader returns a lineReader over br that writes prompts to w.
func bufferedLineReader(br *bufio.Reader, w io.Writer) lineReader {
	return func(prompt string) (string, error) {
		_, _ = fmt.Fprint(w, prompt)
		line, err := br.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
}

// terminalPrompter shows scan alerts and asks y/N questions on a terminal.
type terminalPrompter struct {
	out      io.Writer
	readLine lineReader

	// assumeYes answers every confirmation without asking.
	assumeYes bool

	mu sync.Mutex
}

func newTerminalPrompter(out io.Writer, readLine lineReader, assumeYes bool) *terminalPrompter {
	return &terminalPrompter{out: out, readLine: readLine, assumeYes: assumeYes}
}

func (p *terminalPrompter) Alert(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.out, "\n*** %s ***\n", msg)
}

// Confirm returns true only for an explicit yes. Read errors count as no.
func (p *terminalPrompter) Confirm(msg string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.assumeYes {
		_, _ = fmt.Fprintf(p.out, "%s [y/N]: y (auto)\n", msg)
		return true
	}
	answer, err := p.readLine(msg + " [y/N]: ")
	if err != nil {
		_, _ = fmt.Fprintln(p.out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
