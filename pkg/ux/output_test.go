// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
)

func captureStdout(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

func captureStderr(f func()) string {
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	f()

	w.Close()
	os.Stderr = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

func withMode(t *testing.T, m Mode) {
	t.Helper()
	old := CurrentMode()
	SetMode(m)
	t.Cleanup(func() { SetMode(old) })
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"rich", ModeRich},
		{"full", ModeRich},
		{"plain", ModePlain},
		{"minimal", ModePlain},
		{"machine", ModeMachine},
		{"quiet", ModeMachine},
		{"Q", ModeMachine},
		{"nonsense", ModeRich},
	}

	for _, tt := range tests {
		if got := ParseMode(tt.in); got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitModeFromEnv(t *testing.T) {
	old := CurrentMode()
	t.Cleanup(func() { SetMode(old) })

	t.Setenv("HALYARD_OUTPUT", "machine")
	InitMode()

	if CurrentMode() != ModeMachine {
		t.Errorf("mode = %v, want machine", CurrentMode())
	}
}

func TestSuccessMachineMode(t *testing.T) {
	withMode(t, ModeMachine)

	out := captureStdout(func() { Success("file added") })
	if out != "OK: file added\n" {
		t.Errorf("Success output = %q", out)
	}
}

func TestErrorMachineModeUsesStderr(t *testing.T) {
	withMode(t, ModeMachine)

	errOut := captureStderr(func() { Error("group not found") })
	if errOut != "ERROR: group not found\n" {
		t.Errorf("Error output = %q", errOut)
	}
}

func TestTitleSilentInMachineMode(t *testing.T) {
	withMode(t, ModeMachine)

	out := captureStdout(func() { Title("Project Report") })
	if out != "" {
		t.Errorf("Title produced output in machine mode: %q", out)
	}
}

func TestItemIndents(t *testing.T) {
	withMode(t, ModeMachine)

	out := captureStdout(func() {
		Item(0, "App")
		Item(1, "App/Views")
	})
	if out != "App\n  App/Views\n" {
		t.Errorf("Item output = %q", out)
	}
}

func TestStatusMachineFormat(t *testing.T) {
	withMode(t, ModeMachine)

	out := captureStdout(func() { Status(IconError, "Sources/gone.swift", "orphaned") })
	if out != "✗\tSources/gone.swift\torphaned\n" {
		t.Errorf("Status output = %q", out)
	}
}

func TestTallyMachineFormat(t *testing.T) {
	withMode(t, ModeMachine)

	out := captureStdout(func() {
		Tally(Stat{"files removed", 3}, Stat{"memberships removed", 2})
	})
	if out != "SUMMARY: files_removed=3 memberships_removed=2\n" {
		t.Errorf("Tally output = %q", out)
	}
}

func TestProgressBar(t *testing.T) {
	withMode(t, ModeMachine)
	if got := ProgressBar(3, 10, 20); got != "3/10" {
		t.Errorf("machine ProgressBar = %q", got)
	}

	SetMode(ModeRich)
	if got := ProgressBar(3, 10, 20); !strings.Contains(got, "30%") {
		t.Errorf("rich ProgressBar = %q, want 30%%", got)
	}
}

func TestIconRenderPlain(t *testing.T) {
	withMode(t, ModePlain)

	if got := IconSuccess.Render(); got != "✓" {
		t.Errorf("plain IconSuccess = %q", got)
	}
}

func TestSpinnerMachineMode(t *testing.T) {
	withMode(t, ModeMachine)

	out := captureStdout(func() {
		s := NewSpinner("scanning project")
		s.Start()
		s.Stop()
	})
	if out != "PROGRESS: scanning project\n" {
		t.Errorf("spinner output = %q", out)
	}
}

func TestWithSpinner(t *testing.T) {
	withMode(t, ModeMachine)

	out := captureStdout(func() {
		if err := WithSpinner("saving", func() error { return nil }); err != nil {
			t.Errorf("WithSpinner returned %v", err)
		}
	})
	if !strings.Contains(out, "OK: saving") {
		t.Errorf("success output = %q", out)
	}

	boom := errors.New("boom")
	errOut := captureStderr(func() {
		captureStdout(func() {
			if err := WithSpinner("saving", func() error { return boom }); !errors.Is(err, boom) {
				t.Errorf("WithSpinner returned %v, want boom", err)
			}
		})
	})
	if !strings.Contains(errOut, "saving: boom") {
		t.Errorf("error output = %q", errOut)
	}
}
