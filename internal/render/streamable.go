// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"errors"
	"strings"
	"sync"
)

// ErrStreamClosed is returned when writing to a finalized text handle.
var ErrStreamClosed = errors.New("streamable text already done")

// StreamableText is a live, append-only text value. It has a single writer
// (the generator); any number of readers may call Value concurrently.
type StreamableText struct {
	mu       sync.RWMutex
	b        strings.Builder
	done     bool
	onChange func()
}

// NewStreamableText creates an open, empty text handle.
func NewStreamableText() *StreamableText {
	return &StreamableText{}
}

// StaticText creates a handle that is already done.
func StaticText(text string) *StreamableText {
	s := &StreamableText{done: true}
	s.b.WriteString(text)
	return s
}

// Append adds delta to the end of the text.
func (s *StreamableText) Append(delta string) error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	s.b.WriteString(delta)
	notify := s.onChange
	s.mu.Unlock()

	if notify != nil {
		notify()
	}
	return nil
}

// Done finalizes the text. Calling Done twice returns ErrStreamClosed.
func (s *StreamableText) Done() error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	s.done = true
	notify := s.onChange
	s.mu.Unlock()

	if notify != nil {
		notify()
	}
	return nil
}

// Value returns the text accumulated so far.
func (s *StreamableText) Value() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.b.String()
}

// IsDone reports whether the text is finalized.
func (s *StreamableText) IsDone() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done
}

func (s *StreamableText) setOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}
