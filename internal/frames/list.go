// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package frames

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// ListSource decodes a fixed sequence of image files in order. Paths can be
// given directly or read one per line from a reader ("-" on the command line).
type ListSource struct {
	Paths  []string
	Reader io.Reader

	// Errors, when set, receives files that could not be decoded.
	Errors func(path string, err error)
}

// Run implements Source. Undecodable files are skipped.
func (s *ListSource) Run(ctx context.Context, onFrame func(Frame)) error {
	paths := s.Paths
	if s.Reader != nil {
		more, err := readPaths(s.Reader)
		if err != nil {
			return err
		}
		paths = append(append([]string(nil), paths...), more...)
	}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := DecodeFile(p)
		if err != nil {
			if s.Errors != nil {
				s.Errors(p, err)
			}
			continue
		}
		onFrame(f)
	}
	return nil
}

func readPaths(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read frame list: %w", err)
	}
	return out, nil
}
