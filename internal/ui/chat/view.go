// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/cardiochat/internal/client"
)

// View renders the chat view.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	sections := []string{
		m.renderHeader(),
		m.viewport.View(),
		m.renderInput(),
		m.renderStatusBar(),
	}
	if m.showHelp {
		sections = append(sections, m.help.FullHelpView(m.keyMap.FullHelp()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderUnits() string {
	units := m.conv.UIState().Units()
	if len(units) == 0 {
		return m.theme.Muted.Render("Ask anything about the heart, blood pressure or cardiac care.")
	}

	width := m.theme.ContentWidth()
	parts := make([]string, 0, len(units))
	for _, u := range units {
		if view := u.View(width); view != "" {
			parts = append(parts, view)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("cardiochat")
	info := m.modelName
	if m.userID == "" {
		info += "  " + m.theme.GuestBadge.Render("guest: not saved")
	} else {
		info += "  " + m.userID + "  #" + m.conv.ID()
	}
	return m.theme.Header.Width(m.width).Render(title + "  " + info)
}

func (m Model) renderInput() string {
	return m.theme.InputContainer.Width(max(m.width-2, 10)).Render(m.input.View())
}

func (m Model) renderStatusBar() string {
	var left string
	switch {
	case m.lastError != nil:
		left = m.theme.ErrorStyle.Render(m.lastError.Error())
	case m.conv.InFlight():
		left = m.spinner.View() + " " + m.theme.ThinkingText.Render("Answering...")
	case m.statusMsg != "":
		left = m.statusMsg
	default:
		left = m.relatedHint()
	}

	right := m.help.ShortHelpView(m.keyMap.ShortHelp())
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		return m.theme.StatusBar.Width(m.width).Render(left)
	}
	return m.theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

// relatedHint lists the related questions the digit keys ask.
func (m Model) relatedHint() string {
	related := client.LatestRelated(m.conv.UIState().Units())
	if len(related) == 0 {
		return ""
	}

	room := max((m.width/2)/len(related)-6, 10)
	hints := make([]string, 0, len(related))
	for i, q := range related {
		hints = append(hints, m.theme.ShortcutKey.Render(fmt.Sprintf("%d", i+1))+" "+runewidth.Truncate(q, room, "..."))
	}
	return strings.Join(hints, "  ")
}
