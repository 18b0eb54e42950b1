// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"errors"
)

// Kind classifies a failure talking to the Ollama daemon.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnreachable
	KindTimeout
	KindModelMissing
	KindProtocol
)

// Error is returned by every Client call. Two Errors match under errors.Is
// when their kinds match, so callers can compare against the sentinels.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && other.Kind == e.Kind
}

var (
	ErrNotRunning    = &Error{Kind: KindUnreachable, Msg: "ollama is not running"}
	ErrTimeout       = &Error{Kind: KindTimeout, Msg: "ollama request timed out"}
	ErrModelNotFound = &Error{Kind: KindModelMissing, Msg: "model not found"}
	ErrProtocol      = &Error{Kind: KindProtocol, Msg: "unexpected response from ollama"}
)

// IsNotRunning reports whether err means the daemon could not be reached.
func IsNotRunning(err error) bool { return errors.Is(err, ErrNotRunning) }

// IsTimeout reports whether err is a deadline or cancellation.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// IsModelNotFound reports whether the requested model is not pulled.
func IsModelNotFound(err error) bool { return errors.Is(err, ErrModelNotFound) }

func protocolError(msg string, cause error) error {
	return &Error{Kind: KindProtocol, Msg: msg, Err: cause}
}

// dialError classifies an http.Client failure. The context error stays
// reachable through Unwrap.
func dialError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Msg: "ollama request canceled", Err: err}
	}
	return &Error{Kind: KindUnreachable, Msg: "ollama is not running", Err: err}
}
