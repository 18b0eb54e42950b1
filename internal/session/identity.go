// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import "context"

// =============================================================================
// IDENTITY
// =============================================================================

// Identity is the authenticated user behind a request.
type Identity struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId,omitempty"`
}

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the identity stored in ctx.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	if !ok || id.UserID == "" {
		return Identity{}, false
	}
	return id, true
}

// =============================================================================
// AUTHENTICATORS
// =============================================================================

// ContextAuthenticator reports the identity placed in the context by
// request middleware.
type ContextAuthenticator struct{}

// CurrentSession implements the conversation authenticator.
func (ContextAuthenticator) CurrentSession(ctx context.Context) (Identity, bool) {
	return FromContext(ctx)
}

// Static always reports the same user. The terminal client uses it for the
// local account.
type Static struct {
	UserID string
}

// CurrentSession implements the conversation authenticator.
func (s Static) CurrentSession(context.Context) (Identity, bool) {
	if s.UserID == "" {
		return Identity{}, false
	}
	return Identity{UserID: s.UserID, SessionID: "local"}, true
}

// Guest never has a session. Conversations run in guest mode are neither
// loaded nor saved.
type Guest struct{}

// CurrentSession implements the conversation authenticator.
func (Guest) CurrentSession(context.Context) (Identity, bool) {
	return Identity{}, false
}
