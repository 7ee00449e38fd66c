// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux styles the status lines the lawpath CLI prints for people.
//
// Documents and JSON summaries never go through this package. It only
// renders the short human-facing lines around them (validation results,
// discovery counts), and degrades to tab-separated text when the output is
// not a terminal.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette - deep ocean teals
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // titles
	ColorTealDeep    = lipgloss.Color("#16858E") // borders
	ColorSlate       = lipgloss.Color("#2C4A54") // muted text

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon is a status marker.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
)

// machineLabel is the plain-text word for an icon in machine mode.
func (i Icon) machineLabel() string {
	switch i {
	case IconSuccess:
		return "OK"
	case IconWarning:
		return "WARN"
	case IconError:
		return "FAIL"
	default:
		return string(i)
	}
}

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return string(i)
	}
}

// =============================================================================
// Mode
// =============================================================================

// Mode controls how much styling a Printer applies.
type Mode string

const (
	// ModeRich uses colors, icons and boxes.
	ModeRich Mode = "rich"

	// ModePlain uses icons without colors.
	ModePlain Mode = "plain"

	// ModeMachine prints tab-separated text for scripts.
	ModeMachine Mode = "machine"
)

// ParseMode converts a flag value to a Mode. Empty and "auto" return "".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return "", nil
	case "rich", "full":
		return ModeRich, nil
	case "plain", "minimal":
		return ModePlain, nil
	case "machine", "quiet":
		return ModeMachine, nil
	default:
		return "", fmt.Errorf("unknown output mode %q", s)
	}
}

// DetectMode returns ModeRich when w is a terminal and ModeMachine
// otherwise.
func DetectMode(w io.Writer) Mode {
	f, ok := w.(*os.File)
	if !ok {
		return ModeMachine
	}
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return ModeRich
	}
	return ModeMachine
}

// =============================================================================
// Printer
// =============================================================================

// Printer writes styled status lines to one writer.
type Printer struct {
	w    io.Writer
	mode Mode
}

// NewPrinter returns a printer for w. An empty mode is detected from w.
func NewPrinter(w io.Writer, mode Mode) *Printer {
	if mode == "" {
		mode = DetectMode(w)
	}
	return &Printer{w: w, mode: mode}
}

// Mode returns the printer's mode.
func (p *Printer) Mode() Mode { return p.mode }

// Title prints a styled title. Machine mode prints nothing.
func (p *Printer) Title(text string) {
	switch p.mode {
	case ModeMachine:
	case ModePlain:
		fmt.Fprintln(p.w, text)
	default:
		fmt.Fprintln(p.w, Styles.Title.Render(text))
	}
}

// Status prints one line with an icon, a subject and an optional reason.
func (p *Printer) Status(icon Icon, subject, reason string) {
	switch p.mode {
	case ModeMachine:
		if reason != "" {
			fmt.Fprintf(p.w, "%s\t%s\t%s\n", icon.machineLabel(), subject, reason)
		} else {
			fmt.Fprintf(p.w, "%s\t%s\n", icon.machineLabel(), subject)
		}
	case ModePlain:
		if reason != "" {
			fmt.Fprintf(p.w, "%s %s (%s)\n", icon, subject, reason)
		} else {
			fmt.Fprintf(p.w, "%s %s\n", icon, subject)
		}
	default:
		if reason != "" {
			fmt.Fprintf(p.w, "%s %s %s\n", icon.Render(), subject, Styles.Muted.Render("("+reason+")"))
		} else {
			fmt.Fprintf(p.w, "%s %s\n", icon.Render(), subject)
		}
	}
}

// Count is one labelled number in a Counts line.
type Count struct {
	Label string
	Value int
}

// Counts prints a titled row of counters.
func (p *Printer) Counts(title string, counts ...Count) {
	if p.mode == ModeMachine {
		parts := make([]string, len(counts))
		for i, c := range counts {
			parts[i] = fmt.Sprintf("%s=%d", c.Label, c.Value)
		}
		fmt.Fprintf(p.w, "%s\t%s\n", strings.ToUpper(title), strings.Join(parts, " "))
		return
	}

	parts := make([]string, len(counts))
	for i, c := range counts {
		if p.mode == ModePlain {
			parts[i] = fmt.Sprintf("%d %s", c.Value, c.Label)
			continue
		}
		parts[i] = Styles.Bold.Render(fmt.Sprintf("%d", c.Value)) + " " + Styles.Muted.Render(c.Label)
	}
	line := strings.Join(parts, "  ")
	if p.mode == ModePlain {
		fmt.Fprintf(p.w, "%s: %s\n", title, line)
		return
	}
	fmt.Fprintln(p.w, Styles.Box.Render(Styles.Title.Render(title)+"\n"+line))
}
