// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generator

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// Stage identifies where a turn failed.
type Stage string

const (
	StageStart    Stage = "start"
	StageStream   Stage = "stream"
	StageValidate Stage = "validate"
	StageDelay    Stage = "delay"
	StageSettle   Stage = "settle"
)

// TurnError reports a turn that ended without appending assistant output.
type TurnError struct {
	ChatID string
	Stage  Stage
	Cause  error
}

func (e *TurnError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("turn for chat %s failed at %s", e.ChatID, e.Stage)
	}
	return fmt.Sprintf("turn for chat %s failed at %s: %v", e.ChatID, e.Stage, e.Cause)
}

func (e *TurnError) Unwrap() error {
	return e.Cause
}

// Sentinel errors for easy checking.
var (
	// ErrMalformedToolOutput means the model's tool arguments failed validation.
	ErrMalformedToolOutput = errors.New("malformed tool output")

	// ErrEmptyResponse means the stream completed with neither text nor a tool call.
	ErrEmptyResponse = errors.New("model returned an empty response")

	// ErrStreamTimeout means the configured stream timeout elapsed.
	ErrStreamTimeout = errors.New("model stream timed out")

	// ErrAlreadySettled is returned when a turn is finalized twice.
	ErrAlreadySettled = errors.New("turn already settled")

	// ErrNotStreaming is returned when a turn is settled or started out of order.
	ErrNotStreaming = errors.New("turn is not streaming")
)

// userMessage is the text shown in place of a failed turn.
func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrMalformedToolOutput):
		return "The assistant produced an invalid answer. Please ask again."
	case errors.Is(err, ErrStreamTimeout):
		return "The assistant took too long to answer. Please ask again."
	case errors.Is(err, ErrEmptyResponse):
		return "The assistant returned no answer. Please ask again."
	default:
		return "The assistant could not answer. Please ask again."
	}
}
