// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import "github.com/charmbracelet/lipgloss"

// Theme is the set of styles the chat view and the render units draw with.
type Theme struct {
	IsDark bool
	Width  int
	Height int

	// chrome
	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	StatusBar   lipgloss.Style
	ShortcutKey lipgloss.Style
	GuestBadge  lipgloss.Style

	// transcript
	UserBubble      lipgloss.Style
	AssistantBubble lipgloss.Style
	Card            lipgloss.Style
	RelatedHeading  lipgloss.Style
	RelatedQuestion lipgloss.Style
	RelatedIndex    lipgloss.Style
	Skeleton        lipgloss.Style

	// feedback
	Spinner      lipgloss.Style
	ThinkingText lipgloss.Style
	ErrorStyle   lipgloss.Style
	Muted        lipgloss.Style

	InputContainer lipgloss.Style
}

// NewTheme builds the Cardio theme for the current terminal background.
func NewTheme() *Theme {
	return NewThemeFrom(Cardio)
}

// NewThemeFrom builds a theme from p.
func NewThemeFrom(p Palette) *Theme {
	plain := lipgloss.NewStyle
	bubble := func(text, rule lipgloss.AdaptiveColor) lipgloss.Style {
		return plain().
			Foreground(text).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(rule).
			Padding(0, 2)
	}

	return &Theme{
		IsDark: lipgloss.HasDarkBackground(),

		Header:      plain().Bold(true).Foreground(p.Link).Background(p.Surface).Padding(0, 2),
		HeaderTitle: plain().Bold(true).Foreground(p.Accent),
		StatusBar:   plain().Foreground(p.Subtle).Background(p.Surface).Padding(0, 1),
		ShortcutKey: plain().Bold(true).Foreground(p.Link),
		GuestBadge:  plain().Bold(true).Foreground(p.Caution),

		// User turns sit to the right, answers to the left.
		UserBubble:      bubble(p.UserText, p.UserRule).MarginLeft(4),
		AssistantBubble: bubble(p.BotText, p.BotRule).MarginRight(4),
		Card:            bubble(p.BotText, p.CardRule).MarginRight(4),
		RelatedHeading:  plain().Italic(true).Foreground(p.Subtle),
		RelatedQuestion: plain().Underline(true).Foreground(p.Link),
		RelatedIndex:    plain().Bold(true).Foreground(p.Link),
		Skeleton:        plain().Foreground(p.Rule),

		Spinner:      plain().Foreground(p.Accent),
		ThinkingText: plain().Italic(true).Foreground(p.Subtle),
		ErrorStyle:   plain().Bold(true).Foreground(p.Danger),
		Muted:        plain().Foreground(p.Faint),

		InputContainer: plain().
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(p.Rule).
			Padding(0, 1),
	}
}

// SetSize records the terminal size.
func (t *Theme) SetSize(width, height int) {
	t.Width, t.Height = width, height
}

// ContentWidth is the width left for a message after bubble margins.
func (t *Theme) ContentWidth() int {
	return max(t.Width-8, 20)
}
