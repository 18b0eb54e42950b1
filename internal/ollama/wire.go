// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import "encoding/json"

// Request and stream shapes of POST /api/chat.

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Tools    []wireTool    `json:"tools,omitempty"`
	Options  *modelOptions `json:"options,omitempty"`
}

type modelOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type wireMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []wireCall `json:"tool_calls,omitempty"`
	ToolName  string     `json:"tool_name,omitempty"`
}

type wireCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string     `json:"name"`
		Description string     `json:"description"`
		Parameters  wireSchema `json:"parameters"`
	} `json:"function"`
}

// wireSchema is the JSON Schema subset the daemon forwards to the model.
type wireSchema struct {
	Type        string                `json:"type"`
	Description string                `json:"description,omitempty"`
	Properties  map[string]wireSchema `json:"properties,omitempty"`
	Required    []string              `json:"required,omitempty"`
	Items       *wireSchema           `json:"items,omitempty"`
	MinItems    *int                  `json:"minItems,omitempty"`
	MaxItems    *int                  `json:"maxItems,omitempty"`
}

// chatLine is one NDJSON line of a streamed reply. Error lines carry only
// Error.
type chatLine struct {
	Model      string      `json:"model"`
	Message    wireMessage `json:"message"`
	Done       bool        `json:"done"`
	DoneReason string      `json:"done_reason,omitempty"`
	EvalCount  int         `json:"eval_count,omitempty"`
	Duration   int64       `json:"total_duration,omitempty"`
	Error      string      `json:"error,omitempty"`
}
