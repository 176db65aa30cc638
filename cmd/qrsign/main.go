// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/aplane-algo/qrsign/cmd/qrsign/internal/monitor"
	"github.com/aplane-algo/qrsign/internal/command"
	"github.com/aplane-algo/qrsign/internal/frames"
	"github.com/aplane-algo/qrsign/internal/fsutil"
	"github.com/aplane-algo/qrsign/internal/security"
	"github.com/aplane-algo/qrsign/internal/session"
	"github.com/aplane-algo/qrsign/internal/util"
	"github.com/aplane-algo/qrsign/internal/version"
)

// monitorLog receives log output while the full-screen monitor owns the terminal.
const monitorLog = "monitor.log"

func main() {
	// Handle early-exit flags before any other processing
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" {
			fmt.Printf("qrsign %s\n", version.String())
			os.Exit(0)
		}
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "qrsign - Sign and verify messages carried in QR codes\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  qrsign [-d path] [-y] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Key commands:\n")
		fmt.Fprintf(os.Stderr, "  generate                    Generate a new key pair\n")
		fmt.Fprintf(os.Stderr, "  export [file]               Write the key pair backup (default qr_key.json)\n")
		fmt.Fprintf(os.Stderr, "  import <file>               Load a key pair backup\n")
		fmt.Fprintf(os.Stderr, "  clear                       Forget the current key\n")
		fmt.Fprintf(os.Stderr, "  fingerprint [expected]      Show the fingerprint, or check it against one\n")
		fmt.Fprintf(os.Stderr, "\nSigning commands:\n")
		fmt.Fprintf(os.Stderr, "  sign <document> [archive]   Sign each line into a zip of QR codes\n")
		fmt.Fprintf(os.Stderr, "  announce [file]             Render the public key as a QR image\n")
		fmt.Fprintf(os.Stderr, "  show                        Print the public key QR in the terminal\n")
		fmt.Fprintf(os.Stderr, "\nScanning commands:\n")
		fmt.Fprintf(os.Stderr, "  verify <image>...           Verify signed codes or import a public key\n")
		fmt.Fprintf(os.Stderr, "  scan <image>...             Feed images in order as camera frames\n")
		fmt.Fprintf(os.Stderr, "  watch [dir]                 Scan frames written to a folder until interrupted\n")
		fmt.Fprintf(os.Stderr, "  monitor [dir]               Full-screen scan monitor\n")
		fmt.Fprintf(os.Stderr, "\nOther commands:\n")
		fmt.Fprintf(os.Stderr, "  shell                       Interactive shell\n")
		fmt.Fprintf(os.Stderr, "  status                      Show the current key and settings\n")
		fmt.Fprintf(os.Stderr, "  config [init]               Show the configuration, or write the defaults\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		fmt.Fprintf(os.Stderr, "  -d path                     Data directory (or set %s env var)\n", util.DataDirEnvVar)
		fmt.Fprintf(os.Stderr, "  -y                          Answer yes to import confirmations\n")
		fmt.Fprintf(os.Stderr, "  -consume                    Delete frame files after reading (watch, monitor)\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  qrsign generate\n")
		fmt.Fprintf(os.Stderr, "  qrsign sign notes.txt notes.zip\n")
		fmt.Fprintf(os.Stderr, "  qrsign verify signed_1.svg signed_2.svg\n")
		fmt.Fprintf(os.Stderr, "  qrsign -y scan public_key.png\n")
		fmt.Fprintf(os.Stderr, "  qrsign monitor ~/captures\n")
	}

	dataDir := flag.String("d", "", "Data directory (or set "+util.DataDirEnvVar+")")
	assumeYes := flag.Bool("y", false, "Answer yes to import confirmations")
	consume := flag.Bool("consume", false, "Delete frame files after reading")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	resolvedDataDir := util.RequireDataDir(*dataDir)
	cfg, err := util.LoadConfig(resolvedDataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	util.InitLogger(cfg.Debug)

	if err := security.Harden(cfg.LockMemory); err != nil && cfg.LockMemory {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := runOptions{dataDir: resolvedDataDir, cfg: cfg, assumeYes: *assumeYes, consume: *consume}
	if err := run(ctx, args, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

type runOptions struct {
	dataDir   string
	cfg       util.Config
	assumeYes bool
	consume   bool
}

func run(ctx context.Context, args []string, opts runOptions) error {
	switch args[0] {
	case "shell":
		return runShell(ctx, opts.dataDir, opts.cfg, opts.assumeYes)

	case "monitor":
		return runMonitor(ctx, args[1:], opts)

	case "watch":
		return runWatch(ctx, args[1:], opts)

	case "config":
		if len(args) > 1 && args[1] == "init" {
			return initConfig(opts.dataDir)
		}
		util.DisplayConfig(opts.dataDir)
		return nil
	}

	registry := command.NewShellRegistry()
	cmd, ok := registry.Lookup(args[0])
	if !ok || cmd.Category == command.CategoryShell {
		flag.Usage()
		return fmt.Errorf("unknown command %q", args[0])
	}

	stdin := bufio.NewReader(os.Stdin)
	prompter := newTerminalPrompter(os.Stdout, bufferedLineReader(stdin, os.Stdout), opts.assumeYes)
	pass := newPassphraseCache(opts.cfg.PassphraseCommand, stdinPassword(stdin))
	defer pass.Destroy()

	sess, err := openSession(ctx, opts.dataDir, opts.cfg, prompter, pass)
	if err != nil {
		return err
	}
	cmdCtx := &command.Context{Session: sess, DataDir: opts.dataDir, Ctx: ctx, Registry: registry}
	return cmd.Handler.Execute(args[1:], cmdCtx)
}

// openSession builds the session for one invocation.
func openSession(ctx context.Context, dataDir string, cfg util.Config, prompter session.Prompter, pass *passphraseCache) (*session.Session, error) {
	return session.New(ctx, session.Options{
		Config:     cfg,
		DataDir:    dataDir,
		Prompter:   prompter,
		Passphrase: pass.Get,
	})
}

// watchDir returns the folder named on the command line, or the configured one.
func watchDir(args []string, cfg util.Config) string {
	if len(args) > 0 {
		return util.ResolvePath(args[0], "")
	}
	return cfg.WatchDir
}

// runWatch scans frames written to a folder until interrupted.
func runWatch(ctx context.Context, args []string, opts runOptions) error {
	stdin := bufio.NewReader(os.Stdin)
	prompter := newTerminalPrompter(os.Stdout, bufferedLineReader(stdin, os.Stdout), opts.assumeYes)
	pass := newPassphraseCache(opts.cfg.PassphraseCommand, stdinPassword(stdin))
	defer pass.Destroy()

	sess, err := openSession(ctx, opts.dataDir, opts.cfg, prompter, pass)
	if err != nil {
		return err
	}

	src := frames.NewDirSource(watchDir(args, opts.cfg))
	src.Consume = opts.consume
	fmt.Printf("Watching %s for frames (Ctrl+C to stop)\n", src.Dir)
	fmt.Printf("Key: %s  Fingerprint: %s\n", sess.State().Kind(), util.ColorFingerprint(sess.Fingerprint()))

	cmdCtx := &command.Context{Session: sess, DataDir: opts.dataDir, Ctx: ctx}
	err = sess.Scan(ctx, src, func(r session.FrameResult) {
		if r.Err == nil {
			command.DescribeOutcome(cmdCtx, filepath.Base(r.Frame.Origin), r.Outcome)
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Println("\nStopped.")
	return nil
}

// runMonitor starts the full-screen monitor. Logging moves to a file in the
// data directory while it runs.
func runMonitor(ctx context.Context, args []string, opts runOptions) error {
	if err := fsutil.MkdirAll(opts.dataDir); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(opts.dataDir, monitorLog), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open monitor log: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	// The session passphrase is asked before the monitor takes the screen.
	stdin := bufio.NewReader(os.Stdin)
	pass := newPassphraseCache(opts.cfg.PassphraseCommand, stdinPassword(stdin))
	defer pass.Destroy()

	// The engine keeps the logger it is built with.
	util.SetLogOutput(logFile, opts.cfg.Debug)
	defer util.InitLogger(opts.cfg.Debug)

	prompter := monitor.NewPrompter()
	sess, err := openSession(ctx, opts.dataDir, opts.cfg, prompter, pass)
	if err != nil {
		return err
	}
	if opts.cfg.EncryptSession {
		// Saves made from the monitor cannot prompt on the terminal.
		secret, err := pass.Get(true)
		if err != nil {
			return err
		}
		secret.Destroy()
	}

	src := frames.NewDirSource(watchDir(args, opts.cfg))
	src.Consume = opts.consume
	return monitor.Run(ctx, sess, prompter, src, src.Dir)
}

func initConfig(dataDir string) error {
	path := util.GetConfigPath(dataDir)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := util.SaveConfig(dataDir, util.DefaultConfig()); err != nil {
		return err
	}
	fmt.Printf("Wrote default configuration to %s\n", path)
	return nil
}
