// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package generator implements the Streaming Response Generator: it drives
// one assistant turn against an llm.Provider, streams partial output into a
// render.Live handle and finalizes the Message Log exactly once.
//
// # Turn lifecycle
//
//	idle -> streaming -> settled
//	          \-> failed
//
// On failure nothing is appended and the log stays as it was when the turn
// began.
package generator
