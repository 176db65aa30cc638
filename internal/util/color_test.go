// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package util

import "testing"

func TestColorize(t *testing.T) {
	tests := []struct {
		name    string
		s, code string
		enabled bool
		want    string
	}{
		{"disabled", "AB:CD", "1;36", false, "AB:CD"},
		{"enabled", "AB:CD", "1;36", true, "\033[1;36mAB:CD\033[0m"},
		{"no code", "AB:CD", "", true, "AB:CD"},
		{"empty text", "", "1;36", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := colorize(tt.s, tt.code, tt.enabled); got != tt.want {
				t.Errorf("colorize() = %q, want %q", got, tt.want)
			}
		})
	}
}
