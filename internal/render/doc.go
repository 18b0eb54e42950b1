// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render holds the Render State of a conversation: the list of
// displayable units shown to the user.
//
// Render State is derived. Project rebuilds it from a Message Log at any
// time; the only unit that does not come from the log is the provisional
// user echo appended by the submit controller.
//
// # Key Types
//
//   - Display: opaque renderable (UserMessage, BotMessage, Spinner, BotCard,
//     Empty, Failure)
//   - StreamableText: single-writer, append-only text handle
//   - Live: display of the in-flight turn, swapped by the generator
//   - Unit, State, Timeline: ordered units of one conversation
package render
