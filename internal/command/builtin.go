// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package command

// Shell command definitions

import (
	"errors"
	"fmt"

	"github.com/aplane-algo/qrsign/internal/fingerprint"
	"github.com/aplane-algo/qrsign/internal/frames"
	"github.com/aplane-algo/qrsign/internal/keystate"
	"github.com/aplane-algo/qrsign/internal/scan"
	"github.com/aplane-algo/qrsign/internal/session"
	"github.com/aplane-algo/qrsign/internal/util"
)

// mustRegister registers a command and panics if there's an error.
// Used during initialization where registration errors are programming bugs.
func mustRegister(registry *Registry, cmd *Command) {
	if err := registry.Register(cmd); err != nil {
		panic(fmt.Sprintf("failed to register command %q: %v", cmd.Name, err))
	}
}

// NewShellRegistry returns a registry holding every qrsign shell command.
func NewShellRegistry() *Registry {
	registry := NewRegistry()

	// Key Management
	mustRegister(registry, &Command{
		Name:        "generate",
		Aliases:     []string{"gen"},
		Usage:       "generate",
		Description: "Generate a new key pair, replacing the current key",
		Category:    CategoryKeys,
		Handler:     NewInternalHandler(cmdGenerate),
	})
	mustRegister(registry, &Command{
		Name:        "export",
		Usage:       "export [file]",
		Description: "Write the key pair to a backup file (default " + keystate.DefaultBackupFile + ")",
		LongHelp:    "The backup holds the private key in clear JWK form and is written with owner-only permissions.",
		Category:    CategoryKeys,
		Handler:     NewInternalHandler(cmdExport),
	})
	mustRegister(registry, &Command{
		Name:        "import",
		Usage:       "import <file>",
		Description: "Load a key pair from a backup file",
		Category:    CategoryKeys,
		Handler:     NewInternalHandler(cmdImport),
	})
	mustRegister(registry, &Command{
		Name:        "clear",
		Usage:       "clear",
		Description: "Forget the current key",
		Category:    CategoryKeys,
		Handler:     NewInternalHandler(cmdClear),
	})

	// Signing
	mustRegister(registry, &Command{
		Name:        "sign",
		Usage:       "sign <document> [archive]",
		Description: "Sign every line of a text file into a zip of QR codes",
		LongHelp: "Each line becomes signed_<N>.<ext> in the archive (default signed.zip).\n" +
			"The document must be UTF-8. Nothing is written unless every line is signed.",
		Category: CategorySigning,
		Handler:  NewInternalHandler(cmdSign),
	})
	mustRegister(registry, &Command{
		Name:        "announce",
		Usage:       "announce [file]",
		Description: "Render the public key as a QR image (default public_key.<ext>)",
		Category:    CategorySigning,
		Handler:     NewInternalHandler(cmdAnnounce),
	})
	mustRegister(registry, &Command{
		Name:        "show",
		Usage:       "show",
		Description: "Display the public key QR code in the terminal",
		Category:    CategorySigning,
		Handler:     NewInternalHandler(cmdShow),
	})

	// Scanning
	mustRegister(registry, &Command{
		Name:        "verify",
		Usage:       "verify <image>...",
		Description: "Check each QR image on its own: verify a signed message or import a public key",
		Category:    CategoryScanning,
		Handler:     NewInternalHandler(cmdVerify),
	})
	mustRegister(registry, &Command{
		Name:        "scan",
		Usage:       "scan <image>...",
		Description: "Feed images to the scanner in order, as camera frames",
		LongHelp:    "Consecutive frames with the same content are handled once, as with a live camera.",
		Category:    CategoryScanning,
		Handler:     NewInternalHandler(cmdScan),
	})

	// Information
	mustRegister(registry, &Command{
		Name:        "fingerprint",
		Aliases:     []string{"fp"},
		Usage:       "fingerprint [expected]",
		Description: "Show the SHA-256 fingerprint of the current public key",
		LongHelp:    "With an argument, compares it with the current fingerprint, for checking a key read out by its owner.",
		Category:    CategoryInfo,
		Handler:     NewInternalHandler(cmdFingerprint),
	})
	mustRegister(registry, &Command{
		Name:        "status",
		Usage:       "status",
		Description: "Show the current key and session settings",
		Category:    CategoryInfo,
		Handler:     NewInternalHandler(cmdStatus),
	})
	mustRegister(registry, &Command{
		Name:        "config",
		Usage:       "config",
		Description: "Show the configuration",
		Category:    CategoryInfo,
		Handler:     NewInternalHandler(cmdConfig),
	})

	// Shell
	mustRegister(registry, &Command{
		Name:        "help",
		Aliases:     []string{"h", "?"},
		Usage:       "help [command]",
		Description: "Show help",
		Category:    CategoryShell,
		Handler:     NewInternalHandler(cmdHelp),
	})
	mustRegister(registry, &Command{
		Name:        "quit",
		Aliases:     []string{"exit", "q"},
		Usage:       "quit",
		Description: "Leave the shell",
		Category:    CategoryShell,
		Handler:     NewInternalHandler(func([]string, *Context) error { return ErrExit }),
	})

	return registry
}

func cmdGenerate(_ []string, ctx *Context) error {
	if _, err := ctx.Session.GenerateKeyPair(ctx.Context()); err != nil {
		return err
	}
	ctx.Printf("Generated new key pair\nFingerprint: %s\n", util.ColorFingerprint(ctx.Session.Fingerprint()))
	return nil
}

func cmdExport(args []string, ctx *Context) error {
	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	written, err := ctx.Session.ExportKeyPair(ctx.Context(), path)
	if err != nil {
		return err
	}
	ctx.Printf("Key pair written to %s\n", written)
	return nil
}

func cmdImport(args []string, ctx *Context) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: import <file>")
	}
	if _, err := ctx.Session.ImportKeyPair(ctx.Context(), args[0]); err != nil {
		return err
	}
	ctx.Printf("Imported key pair\nFingerprint: %s\n", util.ColorFingerprint(ctx.Session.Fingerprint()))
	return nil
}

func cmdClear(_ []string, ctx *Context) error {
	if err := ctx.Session.Clear(); err != nil {
		return err
	}
	ctx.Printf("Key cleared\n")
	return nil
}

func cmdSign(args []string, ctx *Context) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: sign <document> [archive]")
	}
	out := ""
	if len(args) == 2 {
		out = args[1]
	}
	n, written, err := ctx.Session.SignFile(ctx.Context(), args[0], out)
	if err != nil {
		return err
	}
	ctx.Printf("Signed %d line(s) into %s\n", n, written)
	return nil
}

func cmdAnnounce(args []string, ctx *Context) error {
	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	written, err := ctx.Session.Announce(path)
	if err != nil {
		return err
	}
	ctx.Printf("Public key code written to %s\n", written)
	return nil
}

func cmdShow(_ []string, ctx *Context) error {
	code, err := ctx.Session.AnnouncementTerminal()
	if err != nil {
		return err
	}
	ctx.Printf("%s\nFingerprint: %s\n", code, util.ColorFingerprint(ctx.Session.Fingerprint()))
	return nil
}

func cmdVerify(args []string, ctx *Context) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: verify <image>...")
	}
	var failed int
	for _, path := range args {
		out, err := ctx.Session.VerifyFile(ctx.Context(), path)
		if err != nil {
			// Dispatcher errors were already alerted.
			if !isDispatchError(out) {
				ctx.Printf("%s: %v\n", path, err)
			}
			failed++
			continue
		}
		DescribeOutcome(ctx, path, out)
		if out.Action == scan.ActionVerify && !out.Verified {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d code(s) did not verify", failed, len(args))
	}
	return nil
}

func cmdScan(args []string, ctx *Context) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: scan <image>...")
	}
	src := &frames.ListSource{
		Paths: args,
		Errors: func(path string, err error) {
			ctx.Printf("%s: %v\n", path, err)
		},
	}
	return ctx.Session.Scan(ctx.Context(), src, func(r session.FrameResult) {
		if r.Err == nil {
			DescribeOutcome(ctx, r.Frame.Origin, r.Outcome)
		}
	})
}

// isDispatchError reports whether an outcome carries an action, meaning the
// failure came from the dispatcher rather than from reading the image.
func isDispatchError(out scan.Outcome) bool {
	return out.Action == scan.ActionImport || out.Action == scan.ActionVerify
}

// DescribeOutcome prints one line for outcomes the prompter did not already report.
func DescribeOutcome(ctx *Context, path string, out scan.Outcome) {
	switch out.Action {
	case scan.ActionDrop:
		ctx.Printf("%s: repeat of the previous code, skipped\n", path)
	case scan.ActionIgnore:
		ctx.Printf("%s: not a qrsign code (or no public key loaded)\n", path)
	case scan.ActionImport:
		if out.Imported {
			ctx.Printf("%s: public key imported\n", path)
		}
	}
}

func cmdFingerprint(args []string, ctx *Context) error {
	if len(args) == 0 {
		ctx.Printf("%s\n", util.ColorFingerprint(ctx.Session.Fingerprint()))
		return nil
	}
	want, ok := fingerprint.Parse(args[0])
	if !ok {
		return fmt.Errorf("invalid fingerprint %q", args[0])
	}
	raw := ctx.Session.State().Public().Raw()
	if len(raw) == 0 {
		return session.ErrNoPublicKey
	}
	if got := fingerprint.Compute(raw); got != want {
		return fmt.Errorf("fingerprint mismatch: current key is %s", got)
	}
	ctx.Printf("Fingerprint matches.\n")
	return nil
}

func cmdStatus(_ []string, ctx *Context) error {
	st := ctx.Session.State()
	cfg := ctx.Session.Config()
	ctx.Printf("Key:         %s\n", st.Kind())
	ctx.Printf("Can sign:    %v\n", keystate.CanSign(st))
	ctx.Printf("Fingerprint: %s\n", util.ColorFingerprint(ctx.Session.Fingerprint()))
	ctx.Printf("Images:      %s\n", ctx.Session.Codec().Extension())
	ctx.Printf("Session:     persist=%v encrypt=%v\n", cfg.PersistSession, cfg.EncryptSession)
	return nil
}

func cmdConfig(_ []string, ctx *Context) error {
	if ctx.DataDir == "" {
		return errors.New("no data directory")
	}
	util.DisplayConfig(ctx.DataDir)
	return nil
}

func cmdHelp(args []string, ctx *Context) error {
	if ctx.Registry == nil {
		return errors.New("help is not available")
	}
	if len(args) == 0 {
		ShowHelp(ctx, ctx.Registry)
		return nil
	}
	cmd, ok := ctx.Registry.Lookup(args[0])
	if !ok {
		return fmt.Errorf("unknown command %q", args[0])
	}
	ShowCommandHelp(ctx, cmd)
	return nil
}
