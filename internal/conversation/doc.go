// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation holds the per-conversation session container.
//
// A Container owns one conversation's Message Log and Render State and
// exposes a single action, SubmitTurn. Hosts call OnLoad when a
// conversation is opened; OnSettle runs after every finished turn and
// persists the log for authorized sessions.
//
// Only one turn runs at a time; a concurrent SubmitTurn returns
// ErrTurnInFlight. Registry maps ids to containers for multi-user hosts.
package conversation
