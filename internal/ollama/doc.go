// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama streams chat completions from a local Ollama daemon.
//
// Client owns the HTTP side: POST /api/chat with stream enabled, read back
// newline-delimited JSON. Provider turns that into llm events, so the
// generator never sees the wire format.
//
//	client := ollama.New(ollama.Config{BaseURL: url})
//	provider := ollama.NewProvider(client, "llama3.1:8b", logger)
package ollama
