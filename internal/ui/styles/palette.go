// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles holds the lipgloss palette and styles of the chat view.
package styles

import "github.com/charmbracelet/lipgloss"

// Palette names every color the chat view uses by role. Each entry adapts
// to light and dark terminals.
type Palette struct {
	Accent  lipgloss.AdaptiveColor // spinner, header title
	Link    lipgloss.AdaptiveColor // related questions, shortcut keys
	Danger  lipgloss.AdaptiveColor
	Caution lipgloss.AdaptiveColor // guest badge

	Surface lipgloss.AdaptiveColor
	Rule    lipgloss.AdaptiveColor // borders and skeleton bars
	Subtle  lipgloss.AdaptiveColor
	Faint   lipgloss.AdaptiveColor

	UserText lipgloss.AdaptiveColor
	UserRule lipgloss.AdaptiveColor
	BotText  lipgloss.AdaptiveColor
	BotRule  lipgloss.AdaptiveColor
	CardRule lipgloss.AdaptiveColor
}

func adaptive(light, dark string) lipgloss.AdaptiveColor {
	return lipgloss.AdaptiveColor{Light: light, Dark: dark}
}

// Cardio is the default palette: reds for the answer card, a cool blue for
// the user.
var Cardio = Palette{
	Accent:  adaptive("#B91C1C", "#F87171"),
	Link:    adaptive("#0E7490", "#67E8F9"),
	Danger:  adaptive("#BE123C", "#FDA4AF"),
	Caution: adaptive("#B45309", "#FCD34D"),

	Surface: adaptive("#F4F4F5", "#1C1917"),
	Rule:    adaptive("#D4D4D8", "#3F3F46"),
	Subtle:  adaptive("#52525B", "#A1A1AA"),
	Faint:   adaptive("#A1A1AA", "#71717A"),

	UserText: adaptive("#1E3A8A", "#DBEAFE"),
	UserRule: adaptive("#60A5FA", "#2563EB"),
	BotText:  adaptive("#27272A", "#F4F4F5"),
	BotRule:  adaptive("#FCA5A5", "#7F1D1D"),
	CardRule: adaptive("#EF4444", "#DC2626"),
}
