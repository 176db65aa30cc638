// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/aplane-algo/qrsign/internal/command"
	"github.com/aplane-algo/qrsign/internal/util"
)

const (
	shellPrompt = "\033[32mqrsign>\033[0m "
	historyFile = ".qrsign_history"
)

// fileArgCommands complete their arguments from the working directory.
var fileArgCommands = map[string]bool{
	"export": true, "import": true, "sign": true, "announce": true, "verify": true, "scan": true,
}

// newCompleter completes command names, and file names for commands that take paths.
func newCompleter(registry *command.Registry) readline.AutoCompleter {
	var items []readline.PrefixCompleterInterface
	for _, name := range registry.Names() {
		if fileArgCommands[name] {
			items = append(items, readline.PcItem(name, readline.PcItemDynamic(listFiles)))
			continue
		}
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

// listFiles returns the entries of the directory the last argument points into.
func listFiles(line string) []string {
	dir := "."
	if fields := strings.Fields(line); len(fields) > 1 && !strings.HasSuffix(line, " ") {
		if d := filepath.Dir(fields[len(fields)-1]); d != "" {
			dir = d
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if dir != "." {
			name = filepath.Join(dir, name)
		}
		if e.IsDir() {
			name += string(filepath.Separator)
		}
		names = append(names, name)
	}
	return names
}

// runShell starts the interactive shell. It falls back to plain line input
// when readline cannot take over the terminal.
func runShell(ctx context.Context, dataDir string, cfg util.Config, assumeYes bool) error {
	registry := command.NewShellRegistry()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            shellPrompt,
		HistoryFile:       filepath.Join(dataDir, historyFile),
		HistoryLimit:      1000,
		AutoComplete:      newCompleter(registry),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		fmt.Printf("Failed to create readline instance, falling back to basic input: %v\n", err)
		return runBasicShell(ctx, dataDir, cfg, assumeYes, registry)
	}
	defer func() {
		_ = rl.Close()
	}()

	// Confirmations and passphrases are asked on the shell's own line editor.
	readLine := func(prompt string) (string, error) {
		rl.SetPrompt(prompt)
		defer rl.SetPrompt(shellPrompt)
		return rl.Readline()
	}
	prompter := newTerminalPrompter(rl.Stdout(), readLine, assumeYes)
	pass := newPassphraseCache(cfg.PassphraseCommand, rl.ReadPassword)
	defer pass.Destroy()

	sess, err := openSession(ctx, dataDir, cfg, prompter, pass)
	if err != nil {
		return err
	}
	cmdCtx := &command.Context{Session: sess, DataDir: dataDir, Out: rl.Stdout(), Ctx: ctx}
	printBanner(cmdCtx)

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if len(line) == 0 {
					fmt.Println("Use 'quit' or 'exit' to exit")
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return nil
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		if done := runLine(registry, line, cmdCtx); done {
			return nil
		}
	}
}

// runBasicShell is the shell without line editing.
func runBasicShell(ctx context.Context, dataDir string, cfg util.Config, assumeYes bool, registry *command.Registry) error {
	stdin := bufio.NewReader(os.Stdin)
	prompter := newTerminalPrompter(os.Stdout, bufferedLineReader(stdin, os.Stdout), assumeYes)
	pass := newPassphraseCache(cfg.PassphraseCommand, stdinPassword(stdin))
	defer pass.Destroy()

	sess, err := openSession(ctx, dataDir, cfg, prompter, pass)
	if err != nil {
		return err
	}
	cmdCtx := &command.Context{Session: sess, DataDir: dataDir, Ctx: ctx}
	printBanner(cmdCtx)

	for {
		fmt.Print("qrsign> ")
		line, err := stdin.ReadString('\n')
		if err != nil && line == "" {
			if errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}
		if done := runLine(registry, line, cmdCtx); done {
			return nil
		}
	}
}

// runLine executes one shell line and reports whether the shell should exit.
func runLine(registry *command.Registry, line string, cmdCtx *command.Context) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}
	err := registry.Execute(line, cmdCtx)
	if errors.Is(err, command.ErrExit) {
		return true
	}
	if err != nil {
		cmdCtx.Printf("Error: %v\n", err)
	}
	return false
}

func printBanner(ctx *command.Context) {
	ctx.Printf("qrsign shell. Type 'help' for commands.\n")
	ctx.Printf("Key: %s  Fingerprint: %s\n", ctx.Session.State().Kind(), util.ColorFingerprint(ctx.Session.Fingerprint()))
}
