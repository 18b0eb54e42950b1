// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server hosts conversation containers over HTTP.
//
// # Endpoints
//
//   - POST   /api/chats            - Start a conversation
//   - GET    /api/chats            - List the caller's saved conversations
//   - GET    /api/chats/{id}       - Load a conversation's Render State
//   - DELETE /api/chats/{id}       - Delete a saved conversation
//   - POST   /api/chats/{id}/turns - Ask a question; the reply streams as
//     server-sent events
//   - GET    /api/session          - Status of the caller's token session
//   - DELETE /api/session          - Revoke the caller's token
//   - GET    /health               - Health check
//   - GET    /stats                - Turn counters
//
// Requests carry an optional bearer token issued by session.Manager.
// Without one the caller is a guest: conversations work but are never
// saved, and loading returns an empty state.
//
// # Usage
//
//	srv := server.New(server.Options{
//		Addr:     cfg.ServerAddr(),
//		Registry: registry,
//		Store:    store,
//		Sessions: sessions,
//	})
//	if err := srv.Start(); err != nil {
//		log.Fatal(err)
//	}
package server
