// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/cardiochat/internal/config"
	"github.com/jeranaias/cardiochat/internal/ollama"
	"github.com/jeranaias/cardiochat/internal/session"
	"github.com/jeranaias/cardiochat/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitAuthError     = 4
	ExitNetworkError  = 5
	ExitNotFoundError = 7
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError reports invalid arguments for a command.
type UsageError struct {
	Command string
	Reason  string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("%s: %s (see 'cardiochat help')", e.Command, e.Reason)
}

// NewUsageError creates a UsageError.
func NewUsageError(command, reason string) error {
	return &UsageError{Command: command, Reason: reason}
}

// NotFoundError reports a missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// GetExitCode maps an error to a process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	var notFoundErr *NotFoundError
	var validateErrs config.ValidateErrors

	switch {
	case errors.As(err, &usageErr):
		return ExitUsageError
	case errors.As(err, &validateErrs):
		return ExitConfigError
	case errors.As(err, &notFoundErr),
		errors.Is(err, storage.ErrConversationNotFound):
		return ExitNotFoundError
	case errors.Is(err, session.ErrMissingSecret),
		errors.Is(err, session.ErrInvalidToken),
		errors.Is(err, session.ErrEmptyUserID):
		return ExitAuthError
	case ollama.IsNotRunning(err), ollama.IsTimeout(err):
		return ExitNetworkError
	}
	return ExitGeneralError
}

// DisplayError writes err to w, as JSON if jsonMode is set.
func DisplayError(w io.Writer, command string, err error, jsonMode bool) {
	if jsonMode {
		_ = NewJSONErrorResponse(command, err).Print(w)
		return
	}

	fmt.Fprintln(w, ErrorStyle.Render("Error:")+" "+err.Error())
	switch {
	case ollama.IsNotRunning(err):
		fmt.Fprintln(w, DimStyle.Render("Start Ollama with 'ollama serve' or set CARDIOCHAT_OLLAMA_URL."))
	case ollama.IsModelNotFound(err):
		fmt.Fprintln(w, DimStyle.Render("Pull the model with 'ollama pull <model>' or pass --model."))
	case errors.Is(err, session.ErrMissingSecret):
		fmt.Fprintln(w, DimStyle.Render("Set CARDIOCHAT_JWT_SECRET to at least 32 bytes."))
	}
}
