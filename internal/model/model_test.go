// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CONTENT TESTS
// =============================================================================

func TestContent_ZeroValueIsText(t *testing.T) {
	var c Content
	assert.Equal(t, KindText, c.Kind())
	text, ok := c.Text()
	assert.True(t, ok)
	assert.Equal(t, "", text)
}

func TestContent_AccessorsReturnCopies(t *testing.T) {
	c := ToolCallContent(ToolCall{ToolName: "t", CallID: "1"})
	calls, ok := c.ToolCalls()
	require.True(t, ok)
	calls[0].CallID = "mutated"

	again, _ := c.ToolCalls()
	assert.Equal(t, "1", again[0].CallID)

	_, ok = c.ToolResults()
	assert.False(t, ok)
}

func TestContent_JSON(t *testing.T) {
	tests := []struct {
		name    string
		content Content
		wire    string
	}{
		{
			name:    "text",
			content: TextContent("hello"),
			wire:    `"hello"`,
		},
		{
			name:    "tool call",
			content: ToolCallContent(ToolCall{ToolName: "answer", CallID: "c1", Args: json.RawMessage(`{"a":1}`)}),
			wire:    `[{"type":"tool-call","toolName":"answer","toolCallId":"c1","args":{"a":1}}]`,
		},
		{
			name:    "tool result",
			content: ToolResultContent(ToolResult{ToolName: "answer", CallID: "c1", Result: json.RawMessage(`{"b":2}`)}),
			wire:    `[{"type":"tool-result","toolName":"answer","toolCallId":"c1","result":{"b":2}}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.content)
			require.NoError(t, err)
			assert.JSONEq(t, tt.wire, string(data))

			var decoded Content
			require.NoError(t, json.Unmarshal([]byte(tt.wire), &decoded))
			assert.Equal(t, tt.content.Kind(), decoded.Kind())
		})
	}
}

func TestContent_UnmarshalRejectsMixedParts(t *testing.T) {
	var c Content
	err := json.Unmarshal([]byte(`[{"type":"tool-call","toolCallId":"1"},{"type":"tool-result","toolCallId":"1"}]`), &c)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`[]`), &c)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`42`), &c)
	assert.Error(t, err)
}

func TestContent_UnmarshalNull(t *testing.T) {
	var c Content
	require.NoError(t, json.Unmarshal([]byte(`null`), &c))
	assert.Equal(t, KindText, c.Kind())
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessage_Validate(t *testing.T) {
	call := ToolCall{ToolName: "t", CallID: "1"}
	res := ToolResult{ToolName: "t", CallID: "1"}

	tests := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{"user text", NewUserMessage("hi"), false},
		{"assistant text", NewAssistantMessage("hi"), false},
		{"system text", NewSystemMessage("be brief"), false},
		{"assistant tool call", NewToolCallMessage(call), false},
		{"tool result", NewToolResultMessage(res), false},
		{"user tool call", NewMessage(RoleUser, ToolCallContent(call)), true},
		{"assistant tool result", NewMessage(RoleAssistant, ToolResultContent(res)), true},
		{"tool text", NewMessage(RoleTool, TextContent("x")), true},
		{"unknown role", NewMessage(Role("bot"), TextContent("x")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrContentRole)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMessage_JSONRoundTrip(t *testing.T) {
	msg := NewToolCallMessage(ToolCall{ToolName: "answer", CallID: "c1", Args: json.RawMessage(`{}`)})

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, msg.ID, decoded.ID)
	assert.Equal(t, RoleAssistant, decoded.Role)
	calls, ok := decoded.Content.ToolCalls()
	require.True(t, ok)
	assert.Equal(t, "c1", calls[0].CallID)
}

func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{RoleUser, RoleAssistant, RoleSystem, RoleTool} {
		assert.True(t, r.Valid(), r)
	}
	assert.False(t, Role("other").Valid())
	assert.False(t, Role("").Valid())
}

// =============================================================================
// LOG TESTS
// =============================================================================

func TestLog_AppendDoesNotAlias(t *testing.T) {
	base := NewLog().Append(NewUserMessage("a"))
	left := base.Append(NewAssistantMessage("left"))
	right := base.Append(NewAssistantMessage("right"))

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, "left", left.Messages[1].Text())
	assert.Equal(t, "right", right.Messages[1].Text())
	assert.Equal(t, base.ChatID, left.ChatID)
}

func TestLog_Last(t *testing.T) {
	_, ok := NewLog().Last()
	assert.False(t, ok)

	log := NewLog().Append(NewUserMessage("a"), NewAssistantMessage("b"))
	last, ok := log.Last()
	require.True(t, ok)
	assert.Equal(t, "b", last.Text())
}

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "", DeriveTitle(NewLog()))

	log := NewLog().Append(NewSystemMessage("sys"), NewUserMessage("What is a stent?"))
	assert.Equal(t, "What is a stent?", DeriveTitle(log))

	long := strings.Repeat("\u00e9", 150)
	title := DeriveTitle(NewLog().Append(NewUserMessage(long)))
	assert.Equal(t, TitleLength, len([]rune(title)))

	// "e" followed by a combining acute accent composes to one character.
	decomposed := strings.Repeat("e\u0301", 120)
	title = DeriveTitle(NewLog().Append(NewUserMessage(decomposed)))
	assert.Equal(t, strings.Repeat("\u00e9", TitleLength), title)
}

func TestChatPath(t *testing.T) {
	assert.Equal(t, "/chat/abc", ChatPath("abc"))
}

func TestChat_LogCopiesMessages(t *testing.T) {
	chat := &Chat{ID: "c", Messages: []Message{NewUserMessage("a")}}
	log := chat.Log()
	log.Messages[0] = NewUserMessage("b")
	assert.Equal(t, "a", chat.Messages[0].Text())
	assert.Equal(t, "c", log.ChatID)
}

func TestLog_Extends(t *testing.T) {
	base := Log{ChatID: "c"}.Append(NewUserMessage("q"), NewAssistantMessage("a"))
	longer := base.Append(NewUserMessage("again"))

	assert.True(t, base.Extends(base))
	assert.True(t, longer.Extends(base))
	assert.True(t, base.Extends(Log{ChatID: "c"}))
	assert.False(t, base.Extends(longer))
	assert.False(t, Log{ChatID: "c"}.Append(NewUserMessage("q")).Extends(base))
	assert.False(t, Log{ChatID: "d", Messages: longer.Messages}.Extends(base))
}

// =============================================================================
// TOOL PAIRING TESTS
// =============================================================================

func TestValidateToolPairing(t *testing.T) {
	call := func(id string) Message { return NewToolCallMessage(ToolCall{ToolName: "t", CallID: id}) }
	result := func(id string) Message { return NewToolResultMessage(ToolResult{ToolName: "t", CallID: id}) }

	tests := []struct {
		name    string
		msgs    []Message
		wantErr error
	}{
		{"empty", nil, nil},
		{"paired", []Message{NewUserMessage("q"), call("1"), result("1")}, nil},
		{"result before call", []Message{result("1"), call("1")}, ErrUnpairedToolResult},
		{"orphan result", []Message{call("1"), result("2")}, ErrUnpairedToolResult},
		{"duplicate call", []Message{call("1"), call("1")}, ErrDuplicateToolCall},
		{"tool name mismatch", []Message{call("1"), NewToolResultMessage(ToolResult{ToolName: "other", CallID: "1"})}, ErrToolNameMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateToolPairing(tt.msgs)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

// pairedLog is a generated log plus the positions of its tool-call messages.
type pairedLog struct {
	msgs  []Message
	calls []int
}

func generateLog(rng *rand.Rand, round int) pairedLog {
	var out pairedLog
	turns := rng.Intn(6)
	for turn := 0; turn < turns; turn++ {
		out.msgs = append(out.msgs, NewUserMessage("q"))
		if rng.Intn(2) == 0 {
			out.msgs = append(out.msgs, NewAssistantMessage("a"))
			continue
		}
		id := fmt.Sprintf("call-%d-%d", round, turn)
		out.calls = append(out.calls, len(out.msgs))
		out.msgs = append(out.msgs,
			NewToolCallMessage(ToolCall{ToolName: "answer", CallID: id}),
			NewToolResultMessage(ToolResult{ToolName: "answer", CallID: id}),
		)
	}
	return out
}

// corruptions each break the pairing of the call at msgs[at] and the
// result right after it.
var corruptions = []struct {
	name    string
	wantErr error
	apply   func(msgs []Message, at int) []Message
}{
	{"drop call", ErrUnpairedToolResult, func(msgs []Message, at int) []Message {
		return slices.Delete(msgs, at, at+1)
	}},
	{"result before call", ErrUnpairedToolResult, func(msgs []Message, at int) []Message {
		msgs[at], msgs[at+1] = msgs[at+1], msgs[at]
		return msgs
	}},
	{"foreign call id", ErrUnpairedToolResult, func(msgs []Message, at int) []Message {
		res, _ := msgs[at+1].Content.ToolResults()
		res[0].CallID = "ghost"
		msgs[at+1] = NewToolResultMessage(res...)
		return msgs
	}},
	{"duplicate call id", ErrDuplicateToolCall, func(msgs []Message, at int) []Message {
		calls, _ := msgs[at].Content.ToolCalls()
		return slices.Insert(msgs, at+2, NewToolCallMessage(calls...))
	}},
	{"renamed tool", ErrToolNameMismatch, func(msgs []Message, at int) []Message {
		res, _ := msgs[at+1].Content.ToolResults()
		res[0].ToolName = "other"
		msgs[at+1] = NewToolResultMessage(res...)
		return msgs
	}},
}

// Random logs, some corrupted, are flagged exactly when corrupted.
func TestValidateToolPairing_GeneratedLogs(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var valid, invalid int

	for round := 0; round < 500; round++ {
		gen := generateLog(rng, round)
		msgs := slices.Clone(gen.msgs)

		var wantErr error
		name := "intact"
		if len(gen.calls) > 0 && rng.Intn(2) == 0 {
			c := corruptions[rng.Intn(len(corruptions))]
			msgs = c.apply(msgs, gen.calls[rng.Intn(len(gen.calls))])
			wantErr, name = c.wantErr, c.name
		}

		err := ValidateToolPairing(msgs)
		if wantErr == nil {
			valid++
			require.NoError(t, err, "round %d", round)
			require.NoError(t, Log{Messages: msgs}.Validate(), "round %d", round)
			continue
		}
		invalid++
		require.ErrorIs(t, err, wantErr, "round %d: %s", round, name)
	}

	require.Positive(t, valid)
	require.Positive(t, invalid)
}
