// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/cardiochat/internal/ui/styles"
)

// =============================================================================
// DISPLAY TYPES
// =============================================================================

// Kind names the variant of a Display.
type Kind string

const (
	KindUser    Kind = "user"
	KindBot     Kind = "bot"
	KindSpinner Kind = "spinner"
	KindCard    Kind = "card"
	KindEmpty   Kind = "empty"
	KindFailure Kind = "failure"
)

// Display is an opaque renderable. Every Display marshals to JSON with a
// "kind" field so hosts can forward it to remote clients.
type Display interface {
	Kind() Kind
	View(width int) string
}

// UserMessage echoes text typed by the user.
type UserMessage struct {
	Text string
}

// BotMessage shows assistant text, possibly still streaming.
type BotMessage struct {
	Text *StreamableText
}

// Spinner is shown before the first model event of a turn.
type Spinner struct{}

// BotCard shows an answer with its related questions. Loading renders a
// skeleton while the tool result is being prepared.
type BotCard struct {
	Answer           string
	RelatedQuestions []string
	Loading          bool
}

// Empty renders nothing. It stands in for results of unrecognized tools.
type Empty struct{}

// Failure tells the user a turn did not complete.
type Failure struct {
	Message string
}

func (UserMessage) Kind() Kind { return KindUser }
func (BotMessage) Kind() Kind  { return KindBot }
func (Spinner) Kind() Kind     { return KindSpinner }
func (BotCard) Kind() Kind     { return KindCard }
func (Empty) Kind() Kind       { return KindEmpty }
func (Failure) Kind() Kind     { return KindFailure }

// Value returns the current text, or "" for a nil handle.
func (m BotMessage) Value() string {
	if m.Text == nil {
		return ""
	}
	return m.Text.Value()
}

// Streaming reports whether the text is still open.
func (m BotMessage) Streaming() bool {
	return m.Text != nil && !m.Text.IsDone()
}

// =============================================================================
// JSON
// =============================================================================

type displayJSON struct {
	Kind             Kind     `json:"kind"`
	Text             string   `json:"text,omitempty"`
	Streaming        bool     `json:"streaming,omitempty"`
	Answer           string   `json:"answer,omitempty"`
	RelatedQuestions []string `json:"relatedQuestions,omitempty"`
	Loading          bool     `json:"loading,omitempty"`
	Message          string   `json:"message,omitempty"`
}

func (m UserMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(displayJSON{Kind: KindUser, Text: m.Text})
}

func (m BotMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(displayJSON{Kind: KindBot, Text: m.Value(), Streaming: m.Streaming()})
}

func (Spinner) MarshalJSON() ([]byte, error) {
	return json.Marshal(displayJSON{Kind: KindSpinner})
}

func (c BotCard) MarshalJSON() ([]byte, error) {
	return json.Marshal(displayJSON{Kind: KindCard, Answer: c.Answer, RelatedQuestions: c.RelatedQuestions, Loading: c.Loading})
}

func (Empty) MarshalJSON() ([]byte, error) {
	return json.Marshal(displayJSON{Kind: KindEmpty})
}

func (f Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(displayJSON{Kind: KindFailure, Message: f.Message})
}

// DecodeDisplay reverses the JSON form of a display. Streaming text decodes
// as an open handle holding the text received so far.
func DecodeDisplay(data []byte) (Display, error) {
	var d displayJSON
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode display: %w", err)
	}
	switch d.Kind {
	case KindUser:
		return UserMessage{Text: d.Text}, nil
	case KindBot:
		if !d.Streaming {
			return BotMessage{Text: StaticText(d.Text)}, nil
		}
		text := NewStreamableText()
		_ = text.Append(d.Text)
		return BotMessage{Text: text}, nil
	case KindSpinner:
		return Spinner{}, nil
	case KindCard:
		return BotCard{Answer: d.Answer, RelatedQuestions: d.RelatedQuestions, Loading: d.Loading}, nil
	case KindEmpty:
		return Empty{}, nil
	case KindFailure:
		return Failure{Message: d.Message}, nil
	default:
		return nil, fmt.Errorf("decode display: unknown kind %q", d.Kind)
	}
}

// =============================================================================
// VIEWS
// =============================================================================

var (
	themeOnce sync.Once
	theme     *styles.Theme
	started   = time.Now()
)

func currentTheme() *styles.Theme {
	themeOnce.Do(func() { theme = styles.NewTheme() })
	return theme
}

// SetTheme overrides the theme used by View.
func SetTheme(t *styles.Theme) {
	themeOnce.Do(func() {})
	theme = t
}

func (m UserMessage) View(width int) string {
	t := currentTheme()
	return t.UserBubble.Width(bubbleWidth(width)).Render(m.Text)
}

func (m BotMessage) View(width int) string {
	t := currentTheme()
	body := renderMarkdown(m.Value(), bubbleWidth(width))
	if m.Streaming() {
		body += t.Spinner.Render("_")
	}
	return t.AssistantBubble.Width(bubbleWidth(width)).Render(body)
}

func (Spinner) View(int) string {
	t := currentTheme()
	frame := styles.LineSpinner.Frame(time.Since(started))
	return t.Spinner.Render(frame) + " " + t.ThinkingText.Render("Thinking...")
}

func (c BotCard) View(width int) string {
	t := currentTheme()
	inner := bubbleWidth(width)

	if c.Loading {
		bar := strings.Repeat("=", max(inner-4, 4))
		lines := []string{
			t.ThinkingText.Render("Preparing answer" + styles.DotsSpinner.Frame(time.Since(started))),
			t.Skeleton.Render(bar),
			t.Skeleton.Render(bar[:len(bar)*2/3]),
		}
		return t.Card.Width(inner).Render(strings.Join(lines, "\n"))
	}

	var b strings.Builder
	b.WriteString(renderMarkdown(c.Answer, inner))
	if len(c.RelatedQuestions) > 0 {
		b.WriteString("\n")
		b.WriteString(t.RelatedHeading.Render("Related questions"))
		for i, q := range c.RelatedQuestions {
			b.WriteString("\n")
			b.WriteString(t.RelatedIndex.Render(fmt.Sprintf("[%d] ", i+1)))
			b.WriteString(t.RelatedQuestion.Render(runewidth.Truncate(q, max(inner-8, 8), "...")))
		}
	}
	return t.Card.Width(inner).Render(b.String())
}

func (Empty) View(int) string { return "" }

func (f Failure) View(int) string {
	return currentTheme().ErrorStyle.Render("! " + f.Message)
}

func bubbleWidth(width int) int {
	if width <= 0 {
		return 72
	}
	return max(width-6, 20)
}
