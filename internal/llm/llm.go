// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm defines the boundary between the conversation core and a
// language model provider.
//
// A Provider streams one assistant turn as a sequence of Events: zero or
// more text deltas, or a single structured tool call. The core never sees
// provider wire formats.
package llm

import "encoding/json"

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Message is one role/content pair sent to the provider.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	ToolName  string     `json:"tool_name,omitempty"`
}

// ToolCall is a tool invocation carried on an assistant message.
type ToolCall struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Schema is the JSON-schema subset used to describe tool parameters.
type Schema struct {
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Properties  map[string]Schema `json:"properties,omitempty"`
	Required    []string          `json:"required,omitempty"`
	Items       *Schema           `json:"items,omitempty"`
	MinItems    *int              `json:"minItems,omitempty"`
	MaxItems    *int              `json:"maxItems,omitempty"`
}

// Tool is a registered tool the model may invoke.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  Schema `json:"parameters"`
}

// Request is everything a provider needs to produce one assistant turn.
type Request struct {
	SystemInstruction string
	Messages          []Message
	Tools             []Tool
	MaxOutputTokens   int
}

// =============================================================================
// STREAM EVENTS
// =============================================================================

// Event is one item of a provider stream: EventText or EventToolCall.
type Event interface {
	isEvent()
}

// EventText carries an incremental text fragment.
type EventText struct {
	Delta string
}

// EventToolCall carries a complete structured tool invocation.
type EventToolCall struct {
	Name      string
	Arguments json.RawMessage
}

func (EventText) isEvent()     {}
func (EventToolCall) isEvent() {}

// IntPtr returns a pointer to n, for Schema bounds.
func IntPtr(n int) *int {
	return &n
}
