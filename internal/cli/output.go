// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/jeranaias/cardiochat/internal/ui/styles"
)

const (
	fallbackWidth = 80
	minWidth      = 40
)

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// IsTTY reports whether stdin and stdout are both terminals. The chat view
// needs both.
func IsTTY() bool {
	return isTerminal(os.Stdin) && isTerminal(os.Stdout)
}

// TerminalWidth is the width of stdout, never below minWidth. Pipes get
// fallbackWidth.
func TerminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return max(w, minWidth)
	}
	return fallbackWidth
}

// colorProfile picks how much color to emit. NO_COLOR beats FORCE_COLOR,
// and both beat terminal detection.
func colorProfile(getenv func(string) string, tty bool) termenv.Profile {
	switch {
	case getenv("NO_COLOR") != "":
		return termenv.Ascii
	case getenv("FORCE_COLOR") != "":
		if p := termenv.EnvColorProfile(); p != termenv.Ascii {
			return p
		}
		return termenv.ANSI256
	case !tty:
		return termenv.Ascii
	default:
		return termenv.EnvColorProfile()
	}
}

func init() {
	lipgloss.SetColorProfile(colorProfile(os.Getenv, isTerminal(os.Stdout)))
}

// Styles for plain command output. They share the chat view palette.
var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(styles.Cardio.Accent).MarginBottom(1)
	LabelStyle   = lipgloss.NewStyle().Foreground(styles.Cardio.Subtle).Width(14)
	ValueStyle   = lipgloss.NewStyle().Foreground(styles.Cardio.BotText)
	SuccessStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.Cardio.Link)
	ErrorStyle   = lipgloss.NewStyle().Bold(true).Foreground(styles.Cardio.Danger)
	DimStyle     = lipgloss.NewStyle().Foreground(styles.Cardio.Faint)
	RelatedStyle = lipgloss.NewStyle().Italic(true).Foreground(styles.Cardio.Link)
)
