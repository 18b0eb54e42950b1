// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ContentKind tags the variant held by a Content value.
type ContentKind string

const (
	KindText       ContentKind = "text"
	KindToolCall   ContentKind = "tool-call"
	KindToolResult ContentKind = "tool-result"
)

// ToolCall is a structured tool invocation made by the assistant.
type ToolCall struct {
	ToolName string          `json:"toolName"`
	CallID   string          `json:"toolCallId"`
	Args     json.RawMessage `json:"args"`
}

// ToolResult is the outcome of a tool invocation, matched to its call by CallID.
type ToolResult struct {
	ToolName string          `json:"toolName"`
	CallID   string          `json:"toolCallId"`
	Result   json.RawMessage `json:"result"`
}

// RelatedQuestion is a suggested follow-up question.
type RelatedQuestion struct {
	Question string `json:"question" validate:"required"`
}

// Content is the tagged payload of a message: plain text, a sequence of
// tool calls, or a sequence of tool results. The zero value is empty text.
type Content struct {
	kind    ContentKind
	text    string
	calls   []ToolCall
	results []ToolResult
}

// TextContent wraps plain text.
func TextContent(text string) Content {
	return Content{kind: KindText, text: text}
}

// ToolCallContent wraps a sequence of tool calls.
func ToolCallContent(calls ...ToolCall) Content {
	return Content{kind: KindToolCall, calls: append([]ToolCall(nil), calls...)}
}

// ToolResultContent wraps a sequence of tool results.
func ToolResultContent(results ...ToolResult) Content {
	return Content{kind: KindToolResult, results: append([]ToolResult(nil), results...)}
}

// Kind returns the variant tag.
func (c Content) Kind() ContentKind {
	if c.kind == "" {
		return KindText
	}
	return c.kind
}

// Text returns the text payload and whether the content is text.
func (c Content) Text() (string, bool) {
	if c.Kind() != KindText {
		return "", false
	}
	return c.text, true
}

// ToolCalls returns a copy of the tool calls and whether the content holds them.
func (c Content) ToolCalls() ([]ToolCall, bool) {
	if c.Kind() != KindToolCall {
		return nil, false
	}
	return append([]ToolCall(nil), c.calls...), true
}

// ToolResults returns a copy of the tool results and whether the content holds them.
func (c Content) ToolResults() ([]ToolResult, bool) {
	if c.Kind() != KindToolResult {
		return nil, false
	}
	return append([]ToolResult(nil), c.results...), true
}

// =============================================================================
// JSON
// =============================================================================

// contentPart is the wire form of one tool-call or tool-result entry.
type contentPart struct {
	Type     ContentKind     `json:"type"`
	ToolName string          `json:"toolName"`
	CallID   string          `json:"toolCallId"`
	Args     json.RawMessage `json:"args,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
}

// MarshalJSON encodes text as a JSON string and tool entries as an array of
// typed parts.
func (c Content) MarshalJSON() ([]byte, error) {
	switch c.Kind() {
	case KindText:
		return json.Marshal(c.text)
	case KindToolCall:
		parts := make([]contentPart, 0, len(c.calls))
		for _, call := range c.calls {
			parts = append(parts, contentPart{Type: KindToolCall, ToolName: call.ToolName, CallID: call.CallID, Args: call.Args})
		}
		return json.Marshal(parts)
	case KindToolResult:
		parts := make([]contentPart, 0, len(c.results))
		for _, res := range c.results {
			parts = append(parts, contentPart{Type: KindToolResult, ToolName: res.ToolName, CallID: res.CallID, Result: res.Result})
		}
		return json.Marshal(parts)
	default:
		return nil, fmt.Errorf("unknown content kind %q", c.kind)
	}
}

// UnmarshalJSON decodes either form written by MarshalJSON. A part array
// must be homogeneous.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = TextContent("")
		return nil
	}

	if data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*c = TextContent(text)
		return nil
	}

	var parts []contentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("content must be a string or an array of parts: %w", err)
	}
	if len(parts) == 0 {
		return fmt.Errorf("content part array is empty")
	}

	switch parts[0].Type {
	case KindToolCall:
		calls := make([]ToolCall, 0, len(parts))
		for i, p := range parts {
			if p.Type != KindToolCall {
				return fmt.Errorf("content part %d: mixed part types %q and %q", i, KindToolCall, p.Type)
			}
			calls = append(calls, ToolCall{ToolName: p.ToolName, CallID: p.CallID, Args: p.Args})
		}
		*c = ToolCallContent(calls...)
	case KindToolResult:
		results := make([]ToolResult, 0, len(parts))
		for i, p := range parts {
			if p.Type != KindToolResult {
				return fmt.Errorf("content part %d: mixed part types %q and %q", i, KindToolResult, p.Type)
			}
			results = append(results, ToolResult{ToolName: p.ToolName, CallID: p.CallID, Result: p.Result})
		}
		*c = ToolResultContent(results...)
	default:
		return fmt.Errorf("unknown content part type %q", parts[0].Type)
	}
	return nil
}
