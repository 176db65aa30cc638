// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package command

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// MockHandler implements Handler interface for testing
type MockHandler struct {
	executeFunc func(args []string, ctx *Context) error
}

func (h *MockHandler) Execute(args []string, ctx *Context) error {
	if h.executeFunc != nil {
		return h.executeFunc(args, ctx)
	}
	return nil
}

func TestHandler_Execute(t *testing.T) {
	executed := false
	handler := NewInternalHandler(func(args []string, ctx *Context) error {
		executed = true
		if len(args) != 2 {
			t.Errorf("Execute() args count = %v, want 2", len(args))
		}
		if args[0] != "arg1" {
			t.Errorf("Execute() args[0] = %v, want arg1", args[0])
		}
		return nil
	})

	if err := handler.Execute([]string{"arg1", "arg2"}, &Context{}); err != nil {
		t.Errorf("Execute() error = %v", err)
	}
	if !executed {
		t.Error("Execute() should have been called")
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantName string
		wantArgs []string
	}{
		{"empty", "", "", nil},
		{"blank", "   \t ", "", nil},
		{"no args", "generate", "generate", []string{}},
		{"args", "sign doc.txt out.zip", "sign", []string{"doc.txt", "out.zip"}},
		{"extra spaces", "  sign   doc.txt  ", "sign", []string{"doc.txt"}},
		{"quoted path", `import "my keys/qr_key.json"`, "import", []string{"my keys/qr_key.json"}},
		{"empty quoted arg", `export ""`, "export", []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, args := ParseLine(tt.input)
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			if strings.Join(args, "|") != strings.Join(tt.wantArgs, "|") || len(args) != len(tt.wantArgs) {
				t.Errorf("args = %q, want %q", args, tt.wantArgs)
			}
		})
	}
}

func TestShowHelpListsCategories(t *testing.T) {
	var buf bytes.Buffer
	r := NewShellRegistry()
	ShowHelp(&Context{Out: &buf}, r)
	out := buf.String()
	for _, want := range []string{CategoryKeys, CategorySigning, CategoryScanning, "sign <document> [archive]", "aliases: fp"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q", want)
		}
	}
}

func TestQuitReturnsErrExit(t *testing.T) {
	r := NewShellRegistry()
	for _, name := range []string{"quit", "exit", "q"} {
		if err := r.Execute(name, &Context{}); !errors.Is(err, ErrExit) {
			t.Errorf("%s: error = %v, want ErrExit", name, err)
		}
	}
}
