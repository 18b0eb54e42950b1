// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the chat view's bindings. It satisfies help.KeyMap.
type KeyMap struct {
	Up, Down         key.Binding
	PageUp, PageDown key.Binding
	Submit           key.Binding
	// Related asks the matching related question of the last answer card.
	// It fires only while the input is empty, so digits can still be typed.
	Related key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func bind(label, desc string, keys ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keys...), key.WithHelp(label, desc))
}

// DefaultKeyMap returns the standard bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:       bind("up", "scroll up", "up"),
		Down:     bind("down", "scroll down", "down"),
		PageUp:   bind("PgUp/C-u", "page up", "pgup", "ctrl+u"),
		PageDown: bind("PgDn/C-d", "page down", "pgdown", "ctrl+d"),
		Submit:   bind("Enter", "ask", "enter"),
		Related:  bind("1/2", "ask related question", "1", "2"),
		Help:     bind("C-h", "toggle help", "ctrl+h", "f1"),
		Quit:     bind("Esc/C-c", "quit", "esc", "ctrl+c"),
	}
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Related, k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown},
		{k.Submit, k.Related},
		{k.Help, k.Quit},
	}
}
