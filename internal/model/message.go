// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Role is who sent a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

func (r Role) String() string { return string(r) }

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem || r == RoleTool
}

// contentRoles lists which roles may carry each content kind.
var contentRoles = map[ContentKind][]Role{
	KindText:       {RoleUser, RoleAssistant, RoleSystem},
	KindToolCall:   {RoleAssistant},
	KindToolResult: {RoleTool},
}

// Message is one entry of a Log. A message is never changed after it has
// been appended.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   Content   `json:"content"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// NewMessage stamps content with a fresh id and the current time.
func NewMessage(role Role, content Content) Message {
	return Message{ID: NewID(), Role: role, Content: content, CreatedAt: time.Now().UTC()}
}

func NewUserMessage(text string) Message      { return NewMessage(RoleUser, TextContent(text)) }
func NewAssistantMessage(text string) Message { return NewMessage(RoleAssistant, TextContent(text)) }
func NewSystemMessage(text string) Message    { return NewMessage(RoleSystem, TextContent(text)) }

// NewToolCallMessage is the assistant turn that requests calls.
func NewToolCallMessage(calls ...ToolCall) Message {
	return NewMessage(RoleAssistant, ToolCallContent(calls...))
}

// NewToolResultMessage answers earlier tool calls.
func NewToolResultMessage(results ...ToolResult) Message {
	return NewMessage(RoleTool, ToolResultContent(results...))
}

// Validate rejects unknown roles and content placed on the wrong role.
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("message %s: unknown role %q: %w", m.ID, m.Role, ErrContentRole)
	}
	kind := m.Content.Kind()
	roles, known := contentRoles[kind]
	if !known {
		return fmt.Errorf("message %s: unknown content kind %q: %w", m.ID, kind, ErrContentRole)
	}
	if !slices.Contains(roles, m.Role) {
		return fmt.Errorf("message %s: %s content on %s message: %w", m.ID, kind, m.Role, ErrContentRole)
	}
	return nil
}

// Text is the message's plain text, or "" for tool content.
func (m Message) Text() string {
	text, _ := m.Content.Text()
	return text
}

// NewID returns a random UUID string.
func NewID() string {
	return uuid.NewString()
}
