// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import "time"

// SpinnerConfig is a frame loop played at FPS.
type SpinnerConfig struct {
	Frames []string
	FPS    int
}

// Duration is how long one frame stays on screen.
func (s SpinnerConfig) Duration() time.Duration {
	return time.Second / time.Duration(s.FPS)
}

// Frame returns the frame showing after elapsed.
func (s SpinnerConfig) Frame(elapsed time.Duration) string {
	if len(s.Frames) == 0 {
		return ""
	}
	return s.Frames[int(elapsed/s.Duration())%len(s.Frames)]
}

var (
	// LineSpinner runs while an answer streams.
	LineSpinner = SpinnerConfig{Frames: []string{"|", "/", "-", "\\"}, FPS: 10}
	// DotsSpinner trails the answer card placeholder.
	DotsSpinner = SpinnerConfig{Frames: []string{".  ", ".. ", "...", " ..", "  .", "   "}, FPS: 6}
)
