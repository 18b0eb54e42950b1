// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/samber/lo"
)

// =============================================================================
// RENDER UNITS
// =============================================================================

// Unit is one entry of the Render State. Display is either a finalized
// display or a *Live handle for the in-flight turn.
type Unit struct {
	ID      string
	Display Display
}

// Live returns the unit's live handle, if it has one.
func (u Unit) Live() (*Live, bool) {
	l, ok := u.Display.(*Live)
	return l, ok
}

// Kind returns the kind of the unit's current display.
func (u Unit) Kind() Kind {
	return kindOf(u.Display)
}

// View renders the unit.
func (u Unit) View(width int) string {
	if u.Display == nil {
		return ""
	}
	return u.Display.View(width)
}

type unitJSON struct {
	ID      string          `json:"id"`
	Display json.RawMessage `json:"display"`
}

// MarshalJSON encodes the unit with a snapshot of its display.
func (u Unit) MarshalJSON() ([]byte, error) {
	var d Display = u.Display
	if d == nil {
		d = Empty{}
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal unit %s: %w", u.ID, err)
	}
	return json.Marshal(unitJSON{ID: u.ID, Display: raw})
}

// UnmarshalJSON decodes a unit written by MarshalJSON.
func (u *Unit) UnmarshalJSON(data []byte) error {
	var raw unitJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d, err := DecodeDisplay(raw.Display)
	if err != nil {
		return fmt.Errorf("unit %s: %w", raw.ID, err)
	}
	*u = Unit{ID: raw.ID, Display: d}
	return nil
}

// State is an ordered list of render units.
type State []Unit

// IDs returns the unit ids in order.
func (s State) IDs() []string {
	return lo.Map(s, func(u Unit, _ int) string { return u.ID })
}

// Visible returns the units that render something.
func (s State) Visible() State {
	return lo.Filter(s, func(u Unit, _ int) bool { return u.Kind() != KindEmpty })
}

// =============================================================================
// TIMELINE
// =============================================================================

// Timeline is the Render State of one conversation. Units are only ever
// appended; Reset replaces the whole state during rehydration.
type Timeline struct {
	mu      sync.RWMutex
	units   State
	changed chan struct{}
}

// NewTimeline creates a timeline holding initial.
func NewTimeline(initial State) *Timeline {
	return &Timeline{
		units:   append(State(nil), initial...),
		changed: make(chan struct{}),
	}
}

// Append adds a unit at the end.
func (t *Timeline) Append(u Unit) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.units = append(t.units, u)
	t.broadcastLocked()
}

// Reset replaces all units with s.
func (t *Timeline) Reset(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.units = append(State(nil), s...)
	t.broadcastLocked()
}

// Units returns a copy of the current units.
func (t *Timeline) Units() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append(State(nil), t.units...)
}

// Len returns the number of units.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.units)
}

// Changed returns a channel closed at the next Append or Reset.
func (t *Timeline) Changed() <-chan struct{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.changed
}

func (t *Timeline) broadcastLocked() {
	close(t.changed)
	t.changed = make(chan struct{})
}
