// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/cardiochat/internal/client"
)

const statusDuration = 4 * time.Second

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.theme.SetSize(msg.Width, msg.Height)
		m.layout()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case stateChangedMsg:
		// Re-arm before rendering.
		cmd := m.watch()
		m.refresh()
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.conv.InFlight() {
			// Spinner and skeleton displays animate by time.
			m.refresh()
		}
		return m, cmd

	case loadedMsg:
		if msg.err != nil {
			m.lastError = msg.err
			return m, nil
		}
		if msg.units == 0 {
			return m.setStatus(fmt.Sprintf("Conversation %s not found, starting fresh", m.resume))
		}
		return m.setStatus(fmt.Sprintf("Resumed conversation %s", m.resume))

	case submittedMsg:
		m.lastError = msg.err
		return m, nil

	case statusTimeoutMsg:
		if m.statusMsg == msg.text {
			m.statusMsg = ""
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keyMap.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keyMap.Help):
		m.showHelp = !m.showHelp
		m.layout()
		return m, nil

	case key.Matches(msg, m.keyMap.Submit):
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		if m.conv.InFlight() {
			return m.setStatus("Wait for the current answer to finish")
		}
		m.input.Reset()
		m.lastError = nil
		return m, m.submit(text, false)

	case key.Matches(msg, m.keyMap.Related) && m.input.Value() == "":
		related := client.LatestRelated(m.conv.UIState().Units())
		n := int(msg.String()[0] - '1')
		if n < len(related) {
			if m.conv.InFlight() {
				return m.setStatus("Wait for the current answer to finish")
			}
			m.lastError = nil
			return m, m.submit(related[n], true)
		}

	case key.Matches(msg, m.keyMap.Up):
		m.viewport.ScrollUp(1)
		return m, nil
	case key.Matches(msg, m.keyMap.Down):
		m.viewport.ScrollDown(1)
		return m, nil
	case key.Matches(msg, m.keyMap.PageUp):
		m.viewport.PageUp()
		return m, nil
	case key.Matches(msg, m.keyMap.PageDown):
		m.viewport.PageDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) setStatus(text string) (tea.Model, tea.Cmd) {
	m.statusMsg = text
	return m, clearStatusAfter(text, statusDuration)
}

// layout sizes the viewport to the space between header and input.
func (m *Model) layout() {
	const (
		headerHeight    = 2
		inputAreaHeight = 3
		statusBarHeight = 2
	)
	reserved := headerHeight + inputAreaHeight + statusBarHeight
	if m.showHelp {
		reserved += len(m.keyMap.FullHelp()[0]) + 1
	}

	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-reserved, 3)
	m.input.Width = max(m.width-4, 10)
}

// refresh re-renders the Render State into the viewport, following the
// bottom if the user had not scrolled away.
func (m *Model) refresh() {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderUnits())
	if atBottom {
		m.viewport.GotoBottom()
	}
}
