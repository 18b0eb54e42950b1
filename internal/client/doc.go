// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client provides the optimistic submit controller shared by the
// terminal client and the HTTP host.
package client
