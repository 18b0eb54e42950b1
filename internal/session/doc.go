// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session answers "who is asking" for conversation reads and writes.
//
// # Key Types
//
//   - Manager: issues and verifies HS256 session tokens with an idle timeout
//   - Identity: the authenticated user, carried in a context.Context
//   - ContextAuthenticator: reads the identity placed by HTTP middleware
//   - Static: a fixed local user for the terminal client
//   - Guest: never authorized; nothing is loaded or saved
//
// # Usage
//
//	mgr, err := session.NewManager(session.Config{Secret: secret})
//	token, err := mgr.Issue("alice")
//	id, err := mgr.Authenticate(token)
//	ctx = session.WithIdentity(ctx, id)
package session
