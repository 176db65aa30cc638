// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// pass-file supplies the qrsign session passphrase from a plaintext file,
// for headless use with encrypt_session.
//
//	pass-file <passphrase-file>        prints the passphrase to stdout
//	pass-file -init <passphrase-file>  reads a passphrase from stdin and
//	                                   stores it with owner-only permissions
//
// INSECURE / DEV ONLY: The passphrase is stored in plaintext.
// In production, point passphrase_command at a secrets manager.
//
// Usage in config.yaml:
//
//	passphrase_command: ["/path/to/pass-file", "/path/to/passphrase-file"]
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/aplane-algo/qrsign/internal/fsutil"
)

func main() {
	initMode := flag.Bool("init", false, "Store a passphrase read from stdin")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pass-file [-init] <passphrase-file>\n")
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	var err error
	if *initMode {
		err = storePassphrase(path, os.Stdin)
	} else {
		err = printPassphrase(path, os.Stdout)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pass-file: %v\n", err)
		os.Exit(1)
	}
}

// printPassphrase writes the stored passphrase to w unchanged; qrsign strips
// one trailing newline.
func printPassphrase(path string, w io.Writer) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm()&0077 != 0 {
		return fmt.Errorf("%s is accessible by other users (mode %04o)", path, info.Mode().Perm())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// storePassphrase saves the first line of r to path.
func storePassphrase(path string, r io.Reader) error {
	data, err := io.ReadAll(io.LimitReader(r, 8*1024))
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[:i]
	}
	data = bytes.TrimSuffix(data, []byte("\r"))
	if len(data) == 0 {
		return errors.New("empty passphrase")
	}
	return fsutil.WriteSecret(path, data)
}
