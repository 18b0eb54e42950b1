// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools defines the structured tool the assistant may invoke once
// per turn: answer-with-related-questions.
//
// Definition describes the tool to the model provider. ParseAnswer validates
// the arguments the model produced; a failure is fatal to the turn.
package tools
