// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// TitleLength is the number of characters of the first user message used as
// a conversation title.
const TitleLength = 100

// =============================================================================
// MESSAGE LOG
// =============================================================================

// Log is the Message Log of one conversation. A Log value is immutable:
// Append returns a new Log sharing no backing array with the receiver.
type Log struct {
	ChatID   string    `json:"chatId"`
	Messages []Message `json:"messages"`
}

// NewLog creates an empty log with a fresh conversation id.
func NewLog() Log {
	return Log{ChatID: NewID(), Messages: []Message{}}
}

// Append returns a copy of the log extended with msgs.
func (l Log) Append(msgs ...Message) Log {
	out := make([]Message, 0, len(l.Messages)+len(msgs))
	out = append(out, l.Messages...)
	out = append(out, msgs...)
	return Log{ChatID: l.ChatID, Messages: out}
}

// Len returns the number of messages.
func (l Log) Len() int {
	return len(l.Messages)
}

// IsEmpty returns true if there are no messages.
func (l Log) IsEmpty() bool {
	return len(l.Messages) == 0
}

// Last returns the most recent message and false if the log is empty.
func (l Log) Last() (Message, bool) {
	if len(l.Messages) == 0 {
		return Message{}, false
	}
	return l.Messages[len(l.Messages)-1], true
}

// Extends reports whether l is base followed by zero or more further
// messages. Messages are compared by id.
func (l Log) Extends(base Log) bool {
	if l.ChatID != base.ChatID || len(l.Messages) < len(base.Messages) {
		return false
	}
	for i, msg := range base.Messages {
		if l.Messages[i].ID != msg.ID {
			return false
		}
	}
	return true
}

// FirstUserText returns the text of the first user message.
func (l Log) FirstUserText() (string, bool) {
	for _, msg := range l.Messages {
		if msg.Role != RoleUser {
			continue
		}
		if text, ok := msg.Content.Text(); ok {
			return text, true
		}
	}
	return "", false
}

// Validate checks every message and the tool pairing invariant.
func (l Log) Validate() error {
	for _, msg := range l.Messages {
		if err := msg.Validate(); err != nil {
			return err
		}
	}
	return ValidateToolPairing(l.Messages)
}

// =============================================================================
// PERSISTED CHAT
// =============================================================================

// Chat is the persisted snapshot of a conversation.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	Messages  []Message `json:"messages"`
	Path      string    `json:"path"`
}

// Log returns the Message Log stored in the chat.
func (c *Chat) Log() Log {
	return Log{ChatID: c.ID, Messages: append([]Message(nil), c.Messages...)}
}

// ChatPath returns the route of a conversation.
func ChatPath(chatID string) string {
	return "/chat/" + chatID
}

// DeriveTitle returns the first TitleLength characters of the first user
// message, or "" if there is none.
func DeriveTitle(l Log) string {
	text, ok := l.FirstUserText()
	if !ok {
		return ""
	}
	runes := []rune(norm.NFC.String(strings.TrimSpace(text)))
	if len(runes) > TitleLength {
		runes = runes[:TitleLength]
	}
	return string(runes)
}

// =============================================================================
// TOOL PAIRING INVARIANT
// =============================================================================

var (
	// ErrUnpairedToolResult is returned when a tool result has no earlier call.
	ErrUnpairedToolResult = errors.New("tool result without a preceding tool call")

	// ErrDuplicateToolCall is returned when two tool calls share a call id.
	ErrDuplicateToolCall = errors.New("duplicate tool call id")

	// ErrToolNameMismatch is returned when a tool result names a different
	// tool than the call it answers.
	ErrToolNameMismatch = errors.New("tool result names a different tool than its call")

	// ErrContentRole is returned when a content variant is used on the wrong role.
	ErrContentRole = errors.New("content kind not allowed for role")
)

// ValidateToolPairing checks that every tool-result entry matches exactly
// one tool-call entry in an earlier message, by call id and tool name.
func ValidateToolPairing(messages []Message) error {
	type callSite struct {
		at   int
		tool string
	}
	calls := make(map[string]callSite)

	for i, msg := range messages {
		switch msg.Content.Kind() {
		case KindToolCall:
			entries, _ := msg.Content.ToolCalls()
			for _, call := range entries {
				if _, seen := calls[call.CallID]; seen {
					return fmt.Errorf("message %d: call id %q: %w", i, call.CallID, ErrDuplicateToolCall)
				}
				calls[call.CallID] = callSite{at: i, tool: call.ToolName}
			}
		case KindToolResult:
			entries, _ := msg.Content.ToolResults()
			for _, res := range entries {
				site, ok := calls[res.CallID]
				if !ok || site.at >= i {
					return fmt.Errorf("message %d: call id %q: %w", i, res.CallID, ErrUnpairedToolResult)
				}
				if site.tool != res.ToolName {
					return fmt.Errorf("message %d: call id %q: result for %q, call to %q: %w",
						i, res.CallID, res.ToolName, site.tool, ErrToolNameMismatch)
				}
			}
		case KindText:
		}
	}
	return nil
}
