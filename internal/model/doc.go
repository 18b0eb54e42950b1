// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the Message Log, the authoritative record of a
// conversation that is sent to the language model and persisted.
//
// # Key Types
//
//   - Message: single entry with id, role and tagged content
//   - Content: plain text, tool calls or tool results
//   - Log: immutable, append-only message sequence for one chat id
//   - Chat: persisted snapshot (title, owner, creation time, messages, path)
//
// # Usage
//
//	log := model.NewLog()
//	log = log.Append(model.NewUserMessage("What causes atrial fibrillation?"))
//	title := model.DeriveTitle(log)
package model
