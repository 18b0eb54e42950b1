// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"context"
	"encoding/json"
	"sync"
)

// =============================================================================
// LIVE DISPLAY HANDLE
// =============================================================================

// Live is the display of the in-flight turn. The generator swaps its
// content (spinner, streaming text, working card, final card); renderers
// read Snapshot and wait on Changed. Live is itself a Display, so a Unit
// can hold it directly.
type Live struct {
	mu       sync.Mutex
	display  Display
	changed  chan struct{}
	finished chan struct{}
	done     bool
	err      error
}

// NewLive creates a live handle showing initial.
func NewLive(initial Display) *Live {
	l := &Live{
		changed:  make(chan struct{}),
		finished: make(chan struct{}),
	}
	l.display = initial
	l.watch(initial)
	return l
}

// Update swaps the current display. Updates after Done or Fail are ignored.
func (l *Live) Update(d Display) {
	l.mu.Lock()
	if l.done {
		l.mu.Unlock()
		return
	}
	l.display = d
	l.broadcastLocked()
	l.mu.Unlock()

	l.watch(d)
}

// Done installs the final display and marks the handle finished.
func (l *Live) Done(final Display) {
	l.finish(final, nil)
}

// Fail installs a terminal display and records err.
func (l *Live) Fail(err error, final Display) {
	l.finish(final, err)
}

func (l *Live) finish(final Display, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return
	}
	if final != nil {
		l.display = final
	}
	l.done = true
	l.err = err
	l.broadcastLocked()
	close(l.finished)
}

// Snapshot returns the current display.
func (l *Live) Snapshot() Display {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.display
}

// Changed returns a channel closed at the next change. Call it again after
// it fires to wait for the following change.
func (l *Live) Changed() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.changed
}

// Finished returns a channel closed once Done or Fail has been called.
func (l *Live) Finished() <-chan struct{} {
	return l.finished
}

// IsDone reports whether the handle is finished.
func (l *Live) IsDone() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Err returns the failure recorded by Fail, if any.
func (l *Live) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Wait blocks until the handle is finished or ctx is done, and returns the
// final display and failure.
func (l *Live) Wait(ctx context.Context) (Display, error) {
	select {
	case <-l.finished:
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.display, l.err
	case <-ctx.Done():
		return l.Snapshot(), ctx.Err()
	}
}

// Kind returns the kind of the current display.
func (l *Live) Kind() Kind {
	return kindOf(l.Snapshot())
}

// View renders the current display.
func (l *Live) View(width int) string {
	d := l.Snapshot()
	if d == nil {
		return ""
	}
	return d.View(width)
}

// MarshalJSON encodes the current display.
func (l *Live) MarshalJSON() ([]byte, error) {
	d := l.Snapshot()
	if d == nil {
		return json.Marshal(Empty{})
	}
	return json.Marshal(d)
}

// touch signals a change inside the current display.
func (l *Live) touch() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.broadcastLocked()
}

func (l *Live) broadcastLocked() {
	close(l.changed)
	l.changed = make(chan struct{})
}

// watch forwards text appends of a streaming bot message as changes.
func (l *Live) watch(d Display) {
	if msg, ok := d.(BotMessage); ok && msg.Text != nil {
		msg.Text.setOnChange(l.touch)
	}
}

func kindOf(d Display) Kind {
	if d == nil {
		return KindEmpty
	}
	return d.Kind()
}
