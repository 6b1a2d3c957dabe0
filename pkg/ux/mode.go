// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"
	"sync"
)

// Mode controls how much styling the CLI output carries.
type Mode string

const (
	// ModeRich enables colors, icons, and boxes.
	ModeRich Mode = "rich"

	// ModePlain keeps icons and layout but drops color styling.
	ModePlain Mode = "plain"

	// ModeMachine outputs prefixed plain text suitable for scripting.
	ModeMachine Mode = "machine"
)

var (
	currentMode = ModeRich
	modeMu      sync.RWMutex
)

// CurrentMode returns the active output mode.
func CurrentMode() Mode {
	modeMu.RLock()
	defer modeMu.RUnlock()
	return currentMode
}

// SetMode updates the active output mode.
func SetMode(m Mode) {
	modeMu.Lock()
	defer modeMu.Unlock()
	currentMode = m
}

// ParseMode converts a flag or environment value to a Mode. Unknown
// values fall back to ModeRich.
func ParseMode(s string) Mode {
	switch strings.ToLower(s) {
	case "rich", "r", "full":
		return ModeRich
	case "plain", "p", "min", "minimal":
		return ModePlain
	case "machine", "m", "quiet", "q":
		return ModeMachine
	default:
		return ModeRich
	}
}

// InitMode picks the output mode from the environment: HALYARD_OUTPUT
// wins, and piped output falls back to machine mode.
func InitMode() {
	if env := os.Getenv("HALYARD_OUTPUT"); env != "" {
		SetMode(ParseMode(env))
		return
	}

	if !isTerminal() {
		SetMode(ModeMachine)
		return
	}

	SetMode(ModeRich)
}

// isTerminal reports whether stdout is a character device.
func isTerminal() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// IsInteractive reports whether prompts may be shown.
func IsInteractive() bool {
	return CurrentMode() != ModeMachine && isTerminal()
}
