// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/aplane-algo/qrsign/internal/crypto"
	"github.com/aplane-algo/qrsign/internal/util"
)

// passwordReader reads a passphrase without echo.
type passwordReader func(prompt string) ([]byte, error)

// passphraseCache supplies the session passphrase, asking at most once per
// process. The passphrase comes from passphrase_command when configured,
// otherwise from the terminal.
type passphraseCache struct {
	command []string
	read    passwordReader
	run     func(argv []string) ([]byte, error)

	mu     sync.Mutex
	cached *crypto.Secret
}

func newPassphraseCache(command []string, read passwordReader) *passphraseCache {
	return &passphraseCache{command: command, read: read, run: util.RunPassphraseCommand}
}

// Get implements store.PassphraseFunc. Each call returns a fresh Secret the
// caller may destroy.
func (c *passphraseCache) Get(confirm bool) (*crypto.Secret, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached == nil {
		pass, err := c.obtain(confirm)
		if err != nil {
			return nil, err
		}
		c.cached = crypto.NewSecret(pass)
		crypto.ZeroBytes(pass)
	}

	var out *crypto.Secret
	_ = c.cached.Use(func(p []byte) error {
		out = crypto.NewSecret(p)
		return nil
	})
	return out, nil
}

// Destroy zeroes the cached passphrase.
func (c *passphraseCache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached != nil {
		c.cached.Destroy()
		c.cached = nil
	}
}

func (c *passphraseCache) obtain(confirm bool) ([]byte, error) {
	if len(c.command) > 0 {
		util.Debug("reading session passphrase from passphrase_command")
		return c.run(c.command)
	}
	if c.read == nil {
		return nil, errors.New("no terminal available for the session passphrase")
	}

	pass, err := c.read("Session passphrase: ")
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	if len(pass) == 0 {
		return nil, errors.New("passphrase must not be empty")
	}
	if !confirm {
		return pass, nil
	}

	again, err := c.read("Confirm passphrase: ")
	if err != nil {
		crypto.ZeroBytes(pass)
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	defer crypto.ZeroBytes(again)
	if string(pass) != string(again) {
		crypto.ZeroBytes(pass)
		return nil, errors.New("passphrases do not match")
	}
	return pass, nil
}

// stdinPassword reads from the terminal without echo, or a plain line when
// stdin is not a terminal.
func stdinPassword(stdin *bufio.Reader) passwordReader {
	return func(prompt string) ([]byte, error) {
		fmt.Fprint(os.Stderr, prompt)
		fd := int(os.Stdin.Fd()) // #nosec G115 - file descriptors are small integers
		if term.IsTerminal(fd) {
			b, err := term.ReadPassword(fd)
			fmt.Fprintln(os.Stderr)
			return b, err
		}
		line, err := stdin.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return nil, err
		}
		return []byte(strings.TrimRight(line, "\r\n")), nil
	}
}
