// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides styled terminal output for the halyard CLI.
package ux

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Halyard color palette - rigging brass over open-water blues
var (
	ColorSkyBright  = lipgloss.Color("#4FC3E8") // Bright sky blue - highlights
	ColorSeaPrimary = lipgloss.Color("#2E86C1") // Primary sea blue - brand color
	ColorSeaDeep    = lipgloss.Color("#1B4F72") // Deep sea blue - borders
	ColorBrass      = lipgloss.Color("#D4A017") // Rigging brass - accents
	ColorSlate      = lipgloss.Color("#5D6D7E") // Slate - muted text

	// Semantic colors
	ColorSuccess = lipgloss.Color("#2ECC71")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = ColorSlate
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
	ErrorBox   lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorSkyBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorSeaPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorBrass).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorSeaDeep).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon provides themed status glyphs
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
	IconFlag    Icon = "⚑"
)

// Render returns the icon with its semantic styling.
func (i Icon) Render() string {
	if CurrentMode() == ModePlain {
		return string(i)
	}
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Title prints a styled heading. Silent in machine mode.
func Title(text string) {
	if CurrentMode() == ModeMachine {
		return
	}
	fmt.Println(Styles.Title.Render(text))
}

// Success prints a success line with a checkmark.
func Success(text string) {
	switch CurrentMode() {
	case ModeMachine:
		fmt.Fprintf(os.Stdout, "OK: %s\n", text)
	case ModePlain:
		fmt.Printf("%s %s\n", IconSuccess, text)
	default:
		fmt.Printf("%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning line.
func Warning(text string) {
	switch CurrentMode() {
	case ModeMachine:
		fmt.Fprintf(os.Stderr, "WARN: %s\n", text)
	case ModePlain:
		fmt.Printf("%s %s\n", IconWarning, text)
	default:
		fmt.Printf("%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error line.
func Error(text string) {
	switch CurrentMode() {
	case ModeMachine:
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", text)
	case ModePlain:
		fmt.Printf("%s %s\n", IconError, text)
	default:
		fmt.Printf("%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational line.
func Info(text string) {
	if CurrentMode() == ModeMachine {
		fmt.Println(text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints secondary text. Silent in machine mode.
func Muted(text string) {
	if CurrentMode() == ModeMachine {
		return
	}
	fmt.Println(Styles.Muted.Render(text))
}

// Item prints one bulleted list entry, indented by depth.
func Item(depth int, text string) {
	indent := strings.Repeat("  ", depth)
	if CurrentMode() == ModeMachine {
		fmt.Printf("%s%s\n", indent, text)
		return
	}
	fmt.Printf("%s%s %s\n", indent, Styles.Subtitle.Render(string(IconBullet)), text)
}

// Status prints a subject with its status icon and an optional note,
// as used by validate and doctor output.
func Status(icon Icon, subject, note string) {
	switch CurrentMode() {
	case ModeMachine:
		fmt.Printf("%s\t%s\t%s\n", string(icon), subject, note)
	case ModePlain:
		fmt.Printf("%s %s\n", icon, subject)
	default:
		if note != "" {
			fmt.Printf("%s %s %s\n", icon.Render(), subject, Styles.Muted.Render("("+note+")"))
		} else {
			fmt.Printf("%s %s\n", icon.Render(), subject)
		}
	}
}

// Box prints content under a titled rounded border.
func Box(title, content string) {
	if CurrentMode() == ModeMachine {
		fmt.Printf("%s: %s\n", title, content)
		return
	}
	boxStyle := Styles.Box.Width(60)
	fmt.Println(boxStyle.Render(Styles.Title.Render(title) + "\n" + content))
}

// WarningBox prints content under a warning-colored border.
func WarningBox(title, content string) {
	if CurrentMode() == ModeMachine {
		fmt.Fprintf(os.Stderr, "WARN %s: %s\n", title, content)
		return
	}
	boxStyle := Styles.WarningBox.Width(60)
	fmt.Println(boxStyle.Render(Styles.Warning.Bold(true).Render(title) + "\n" + content))
}

// Stat is one count in a Tally line.
type Stat struct {
	Label string
	N     int
}

// Tally prints count/label pairs on a single line, for example after a
// doctor run.
func Tally(stats ...Stat) {
	if CurrentMode() == ModeMachine {
		parts := make([]string, len(stats))
		for i, s := range stats {
			label := strings.ReplaceAll(strings.ToLower(s.Label), " ", "_")
			parts[i] = fmt.Sprintf("%s=%d", label, s.N)
		}
		fmt.Printf("SUMMARY: %s\n", strings.Join(parts, " "))
		return
	}

	parts := make([]string, len(stats))
	for i, s := range stats {
		style := Styles.Bold
		if s.N > 0 {
			style = Styles.Highlight
		}
		parts[i] = fmt.Sprintf("%s %s", style.Render(fmt.Sprintf("%d", s.N)), Styles.Muted.Render(s.Label))
	}
	fmt.Printf("\n%s\n", strings.Join(parts, "  "))
}

// ProgressBar renders a fixed-width progress bar.
func ProgressBar(current, total, width int) string {
	if CurrentMode() == ModeMachine {
		return fmt.Sprintf("%d/%d", current, total)
	}
	if total <= 0 {
		total = 1
	}
	pct := float64(current) / float64(total)
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}

	bar := Styles.Success.Render(strings.Repeat("█", filled)) +
		Styles.Muted.Render(strings.Repeat("░", width-filled))

	return fmt.Sprintf("%s %3.0f%%", bar, pct*100)
}
