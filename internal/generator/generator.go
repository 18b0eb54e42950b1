// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jeranaias/cardiochat/internal/llm"
	"github.com/jeranaias/cardiochat/internal/model"
	"github.com/jeranaias/cardiochat/internal/render"
	"github.com/jeranaias/cardiochat/internal/tools"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// DefaultMaxOutputTokens bounds the length of one assistant turn.
const DefaultMaxOutputTokens = 256

// DefaultToolDelay is how long the working card stays up before a tool
// turn is finalized.
const DefaultToolDelay = time.Second

// Config holds generator settings.
type Config struct {
	SystemInstruction string
	MaxOutputTokens   int
	ToolDelay         time.Duration
	// StreamTimeout bounds the model stream. Zero means no timeout.
	StreamTimeout time.Duration
}

// DefaultConfig returns the default generator configuration.
func DefaultConfig() Config {
	return Config{
		SystemInstruction: tools.SystemInstruction,
		MaxOutputTokens:   DefaultMaxOutputTokens,
		ToolDelay:         DefaultToolDelay,
	}
}

// =============================================================================
// GENERATOR
// =============================================================================

// Generator drives one assistant turn against a model provider.
//
// A turn is either a text turn or a tool turn, decided by the first
// non-blank event. Text deltas stream into a BotMessage; a tool call shows
// a loading card, waits ToolDelay, then appends the tool-call and
// tool-result messages as a pair.
type Generator struct {
	provider llm.Provider
	config   Config
	logger   *slog.Logger
}

// New creates a generator. Zero config fields take their defaults, except
// ToolDelay and StreamTimeout which may be zero.
func New(provider llm.Provider, config Config, logger *slog.Logger) *Generator {
	if config.SystemInstruction == "" {
		config.SystemInstruction = tools.SystemInstruction
	}
	if config.MaxOutputTokens <= 0 {
		config.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if config.ToolDelay < 0 {
		config.ToolDelay = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{provider: provider, config: config, logger: logger}
}

// Config returns the effective configuration.
func (g *Generator) Config() Config {
	return g.config
}

// Start begins streaming turn in the background and returns its live
// display, which starts as a spinner. The turn moves to streaming before
// Start returns.
func (g *Generator) Start(ctx context.Context, turn *Turn) *render.Live {
	live := render.NewLive(render.Spinner{})

	if err := turn.Begin(); err != nil {
		terr := &TurnError{ChatID: turn.ChatID(), Stage: StageStart, Cause: err}
		live.Fail(terr, render.Failure{Message: userMessage(terr)})
		return live
	}

	go g.run(ctx, turn, live)
	return live
}

// Run streams turn and blocks until it settles or fails.
func (g *Generator) Run(ctx context.Context, turn *Turn) (render.Display, error) {
	return g.Start(ctx, turn).Wait(context.WithoutCancel(ctx))
}

func (g *Generator) run(ctx context.Context, turn *Turn, live *render.Live) {
	chatID := turn.ChatID()
	started := time.Now()

	req := llm.Request{
		SystemInstruction: g.config.SystemInstruction,
		Messages:          ToProviderMessages(turn.Snapshot()),
		Tools:             []llm.Tool{tools.Definition()},
		MaxOutputTokens:   g.config.MaxOutputTokens,
	}

	streamCtx, cancel := ctx, context.CancelFunc(func() {})
	if g.config.StreamTimeout > 0 {
		streamCtx, cancel = context.WithTimeout(ctx, g.config.StreamTimeout)
	}

	st := &streamState{chatID: chatID, live: live, logger: g.logger}
	err := g.provider.Stream(streamCtx, req, st.handle)
	timedOut := errors.Is(streamCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	cancel()

	if err != nil {
		var terr *TurnError
		switch {
		case errors.As(err, &terr):
		case timedOut:
			terr = &TurnError{ChatID: chatID, Stage: StageStream, Cause: fmt.Errorf("%w after %s: %v", ErrStreamTimeout, g.config.StreamTimeout, err)}
		default:
			terr = &TurnError{ChatID: chatID, Stage: StageStream, Cause: err}
		}
		g.fail(turn, live, terr)
		return
	}

	switch st.mode {
	case modeText:
		g.finishText(ctx, turn, live, st.text, started)
	case modeTool:
		g.finishTool(ctx, turn, live, st.answer, started)
	default:
		g.fail(turn, live, &TurnError{ChatID: chatID, Stage: StageStream, Cause: ErrEmptyResponse})
	}
}

func (g *Generator) finishText(ctx context.Context, turn *Turn, live *render.Live, text *render.StreamableText, started time.Time) {
	if err := text.Done(); err != nil {
		g.fail(turn, live, &TurnError{ChatID: turn.ChatID(), Stage: StageSettle, Cause: err})
		return
	}

	log, err := turn.Commit(model.NewAssistantMessage(text.Value()))
	if err != nil {
		g.fail(turn, live, &TurnError{ChatID: turn.ChatID(), Stage: StageSettle, Cause: err})
		return
	}
	live.Done(render.BotMessage{Text: text})
	turn.Finish(ctx)

	g.logger.Info("turn settled",
		slog.String("chat_id", turn.ChatID()),
		slog.String("mode", "text"),
		slog.Int("messages", log.Len()),
		slog.Duration("elapsed", time.Since(started)))
}

func (g *Generator) finishTool(ctx context.Context, turn *Turn, live *render.Live, args tools.AnswerArgs, started time.Time) {
	if err := sleepContext(ctx, g.config.ToolDelay); err != nil {
		g.fail(turn, live, &TurnError{ChatID: turn.ChatID(), Stage: StageDelay, Cause: err})
		return
	}

	payload, err := json.Marshal(args)
	if err != nil {
		g.fail(turn, live, &TurnError{ChatID: turn.ChatID(), Stage: StageSettle, Cause: err})
		return
	}

	callID := model.NewID()
	log, err := turn.Commit(
		model.NewToolCallMessage(model.ToolCall{ToolName: tools.AnswerToolName, CallID: callID, Args: payload}),
		model.NewToolResultMessage(model.ToolResult{ToolName: tools.AnswerToolName, CallID: callID, Result: payload}),
	)
	if err != nil {
		g.fail(turn, live, &TurnError{ChatID: turn.ChatID(), Stage: StageSettle, Cause: err})
		return
	}
	live.Done(render.AnswerCard(args))
	turn.Finish(ctx)

	g.logger.Info("turn settled",
		slog.String("chat_id", turn.ChatID()),
		slog.String("mode", "tool"),
		slog.String("call_id", callID),
		slog.Int("messages", log.Len()),
		slog.Duration("elapsed", time.Since(started)))
}

func (g *Generator) fail(turn *Turn, live *render.Live, err *TurnError) {
	g.logger.Warn("turn failed",
		slog.String("chat_id", err.ChatID),
		slog.String("stage", string(err.Stage)),
		slog.Any("error", err.Cause))
	live.Fail(err, render.Failure{Message: userMessage(err)})
	turn.Fail(err)
}

// =============================================================================
// STREAM PROTOCOL
// =============================================================================

type streamMode int

const (
	modeNone streamMode = iota
	modeText
	modeTool
)

// streamState consumes provider events for one turn. The first decisive
// event fixes the mode; events of the other kind are dropped afterwards.
type streamState struct {
	chatID  string
	live    *render.Live
	logger  *slog.Logger
	mode    streamMode
	pending strings.Builder
	text    *render.StreamableText
	answer  tools.AnswerArgs
}

func (s *streamState) handle(ev llm.Event) error {
	switch e := ev.(type) {
	case llm.EventText:
		return s.onText(e.Delta)
	case llm.EventToolCall:
		return s.onToolCall(e)
	default:
		s.logger.Warn("unknown stream event dropped", slog.String("chat_id", s.chatID), slog.String("type", fmt.Sprintf("%T", ev)))
		return nil
	}
}

func (s *streamState) onText(delta string) error {
	switch s.mode {
	case modeTool:
		if strings.TrimSpace(delta) != "" {
			s.logger.Warn("text after tool call dropped", slog.String("chat_id", s.chatID))
		}
		return nil
	case modeNone:
		// Leading whitespace does not decide the mode.
		if strings.TrimSpace(delta) == "" {
			s.pending.WriteString(delta)
			return nil
		}
		s.mode = modeText
		s.text = render.NewStreamableText()
		s.live.Update(render.BotMessage{Text: s.text})
		delta = s.pending.String() + delta
		s.pending.Reset()
	}
	return s.text.Append(delta)
}

func (s *streamState) onToolCall(call llm.EventToolCall) error {
	switch s.mode {
	case modeText:
		s.logger.Warn("tool call after text dropped", slog.String("chat_id", s.chatID), slog.String("tool", call.Name))
		return nil
	case modeTool:
		s.logger.Warn("second tool call dropped", slog.String("chat_id", s.chatID), slog.String("tool", call.Name))
		return nil
	}

	if call.Name != tools.AnswerToolName {
		return &TurnError{ChatID: s.chatID, Stage: StageValidate, Cause: fmt.Errorf("%w: unknown tool %q", ErrMalformedToolOutput, call.Name)}
	}

	args, err := tools.ParseAnswer(call.Arguments)
	if err != nil {
		return &TurnError{ChatID: s.chatID, Stage: StageValidate, Cause: fmt.Errorf("%w: %w", ErrMalformedToolOutput, err)}
	}

	s.mode = modeTool
	s.answer = args
	s.live.Update(render.BotCard{Loading: true})
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// ToProviderMessages converts a Message Log to provider messages. Each tool
// result becomes its own tool message carrying the raw result JSON.
func ToProviderMessages(log model.Log) []llm.Message {
	out := make([]llm.Message, 0, len(log.Messages))
	for _, msg := range log.Messages {
		switch msg.Content.Kind() {
		case model.KindText:
			text, _ := msg.Content.Text()
			out = append(out, llm.Message{Role: msg.Role.String(), Content: text})
		case model.KindToolCall:
			calls, _ := msg.Content.ToolCalls()
			m := llm.Message{Role: msg.Role.String()}
			for _, c := range calls {
				m.ToolCalls = append(m.ToolCalls, llm.ToolCall{ID: c.CallID, Name: c.ToolName, Arguments: c.Args})
			}
			out = append(out, m)
		case model.KindToolResult:
			results, _ := msg.Content.ToolResults()
			for _, r := range results {
				out = append(out, llm.Message{Role: msg.Role.String(), Content: string(r.Result), ToolName: r.ToolName})
			}
		}
	}
	return out
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
