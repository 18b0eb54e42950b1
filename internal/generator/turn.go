// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generator

import (
	"context"
	"fmt"
	"sync"

	"github.com/jeranaias/cardiochat/internal/model"
)

// =============================================================================
// TURN STATE MACHINE
// =============================================================================

// Phase is the lifecycle state of a Turn.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStreaming
	PhaseSettled
	PhaseFailed
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStreaming:
		return "streaming"
	case PhaseSettled:
		return "settled"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SettleFunc receives the full log once a turn is finalized.
type SettleFunc func(ctx context.Context, log model.Log)

// Turn is the Message Log handle for one assistant turn. It moves
// idle -> streaming -> settled, or to failed from idle or streaming.
// The log mutation is finalized exactly once.
type Turn struct {
	mu       sync.Mutex
	log      model.Log
	phase    Phase
	err      error
	onSettle SettleFunc
	// hookFired guards Finish.
	hookFired bool
	finished  chan struct{}
}

// NewTurn creates a turn over log, which already holds the user message.
// onSettle may be nil.
func NewTurn(log model.Log, onSettle SettleFunc) *Turn {
	return &Turn{
		log:      log,
		onSettle: onSettle,
		finished: make(chan struct{}),
	}
}

// ChatID returns the conversation id.
func (t *Turn) ChatID() string {
	return t.log.ChatID
}

// Snapshot returns the log as of now: the input log until settled, the
// extended log afterwards.
func (t *Turn) Snapshot() model.Log {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.log
}

// Phase returns the current phase.
func (t *Turn) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// Begin moves the turn from idle to streaming.
func (t *Turn) Begin() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase != PhaseIdle {
		return fmt.Errorf("begin from %s: %w", t.phase, ErrNotStreaming)
	}
	t.phase = PhaseStreaming
	return nil
}

// Settle commits msgs and then finishes the turn. It is Commit followed by
// Finish.
func (t *Turn) Settle(ctx context.Context, msgs ...model.Message) (model.Log, error) {
	log, err := t.Commit(msgs...)
	if err != nil {
		return model.Log{}, err
	}
	t.Finish(ctx)
	return log, nil
}

// Commit appends msgs as one unit and marks the turn settled. The appended
// messages must keep every tool result paired with an earlier call.
// A turn is committed at most once.
func (t *Turn) Commit(msgs ...model.Message) (model.Log, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.phase {
	case PhaseSettled:
		return model.Log{}, ErrAlreadySettled
	case PhaseStreaming:
	default:
		return model.Log{}, fmt.Errorf("settle from %s: %w", t.phase, ErrNotStreaming)
	}

	next := t.log.Append(msgs...)
	if err := model.ValidateToolPairing(next.Messages); err != nil {
		return model.Log{}, err
	}

	t.log = next
	t.phase = PhaseSettled
	return next, nil
}

// Finish fires the settle hook with the committed log and then marks the
// turn done. It does nothing before Commit or after the first call.
func (t *Turn) Finish(ctx context.Context) {
	t.mu.Lock()
	if t.phase != PhaseSettled || t.hookFired {
		t.mu.Unlock()
		return
	}
	t.hookFired = true
	log, hook := t.log, t.onSettle
	t.mu.Unlock()

	if hook != nil {
		hook(ctx, log)
	}
	close(t.finished)
}

// Fail marks the turn failed. The log is left untouched. Failing a settled
// or already failed turn does nothing.
func (t *Turn) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase == PhaseSettled || t.phase == PhaseFailed {
		return
	}
	t.phase = PhaseFailed
	t.err = err
	close(t.finished)
}

// Done returns a channel closed when the turn fails, or settles and its
// settle hook has returned.
func (t *Turn) Done() <-chan struct{} {
	return t.finished
}

// Result returns the final log and failure. It is meaningful after Done.
func (t *Turn) Result() (model.Log, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.log, t.err
}
