// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the terminal chat view for cardiochat.

The view is a Bubble Tea model over a single conversation. It never reads
the Message Log: everything on screen comes from the conversation's Render
State, which the optimistic submit controller appends to.

# Rendering

Each unit of the Render State renders through render.Unit.View. Units that
are still streaming are re-rendered whenever their live value changes. The
model waits on the change channels in a command and re-arms the wait before
it redraws, so no update is dropped.

# Keys

  - Enter asks the typed question. It is ignored while a turn is in flight.
  - 1 and 2 ask the related questions of the latest answer card while the
    input is empty.
  - Up, Down, PgUp and PgDn scroll. Esc or Ctrl+C quits.

# Usage

	m := chat.New(ctx, chat.Options{
	    Conversation: container,
	    ModelName:    "llama3.1:8b",
	    UserID:       "alice",
	})
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
*/
package chat
