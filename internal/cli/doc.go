// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the cardiochat command line.
//
// Commands:
//
//   - chat: the full screen chat view (default)
//   - ask: one question, streamed to stdout
//   - serve: the HTTP API
//   - history: list, show or delete saved conversations of the local user
//   - token: issue a bearer token for the HTTP API
//   - version
//
// Every command loads the config file, applies CARDIOCHAT_* environment
// overrides and then the command line flags. Errors map to exit codes with
// GetExitCode, and most commands accept --json for an envelope of the form
// {"success", "data", "error", "timestamp", "command"}.
//
// # Usage
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	os.Exit(cli.Run(ctx, os.Args[1:], os.Stdout, os.Stderr))
package cli
