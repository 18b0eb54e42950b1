// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/cardiochat/internal/client"
	"github.com/jeranaias/cardiochat/internal/conversation"
	"github.com/jeranaias/cardiochat/internal/render"
)

// =============================================================================
// ASK COMMAND
// =============================================================================

// AskResult is the --json body of the ask command.
type AskResult struct {
	ChatID           string   `json:"chat_id"`
	Question         string   `json:"question"`
	Answer           string   `json:"answer"`
	RelatedQuestions []string `json:"related_questions,omitempty"`
	Saved            bool     `json:"saved"`
}

// HandleAsk answers one question, optionally continuing a saved
// conversation, and streams the answer to out.
func HandleAsk(ctx context.Context, app *App, args Args, out io.Writer) error {
	conv, err := app.NewConversation(args.ChatID, app.LocalAuth(args.Guest))
	if err != nil {
		return err
	}
	if args.ChatID != "" {
		state, err := conv.OnLoad(ctx, args.ChatID)
		if err != nil {
			return err
		}
		if len(state) == 0 && !args.Guest {
			return &NotFoundError{Resource: "conversation", ID: args.ChatID}
		}
	}

	controller := client.NewController(conv, conv.UIState(), app.Logger)
	unit, err := controller.Submit(ctx, args.Query)
	if err != nil {
		return err
	}

	var p answerPrinter
	if !args.JSON {
		p.out = out
	}
	final, err := p.follow(ctx, unit)
	if err != nil {
		return err
	}
	// Saving happens after the turn settles.
	if err := conv.Wait(ctx); err != nil {
		return err
	}

	result := AskResult{
		ChatID:   conv.ID(),
		Question: args.Query,
		Saved:    !args.Guest && conv.LastSaveError() == nil,
	}
	switch d := final.(type) {
	case render.BotMessage:
		result.Answer = d.Value()
	case render.BotCard:
		result.Answer = d.Answer
		result.RelatedQuestions = d.RelatedQuestions
	}

	if args.JSON {
		return NewJSONResponse(CmdAsk.String(), result).Print(out)
	}
	printAskFooter(out, result, conv)
	return nil
}

// answerPrinter writes a live unit as it changes. Text is written as it
// streams; cards are written once complete. A nil out only waits.
type answerPrinter struct {
	out     io.Writer
	written int
}

func (p *answerPrinter) follow(ctx context.Context, unit render.Unit) (render.Display, error) {
	live, ok := unit.Live()
	if !ok {
		p.write(unit.Display, true)
		return unit.Display, nil
	}

	for {
		changed := live.Changed()
		snapshot := live.Snapshot()
		done := live.IsDone()
		p.write(snapshot, done)
		if done {
			return snapshot, live.Err()
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return snapshot, ctx.Err()
		}
	}
}

func (p *answerPrinter) write(d render.Display, done bool) {
	if p.out == nil {
		return
	}
	switch v := d.(type) {
	case render.BotMessage:
		text := v.Value()
		if len(text) > p.written {
			fmt.Fprint(p.out, text[p.written:])
			p.written = len(text)
		}
		if done {
			fmt.Fprintln(p.out)
		}
	case render.BotCard:
		if !done || v.Loading {
			return
		}
		fmt.Fprintln(p.out, v.Answer)
		if len(v.RelatedQuestions) > 0 {
			fmt.Fprintln(p.out)
			fmt.Fprintln(p.out, DimStyle.Render("Related questions:"))
			for i, q := range v.RelatedQuestions {
				fmt.Fprintf(p.out, "  %d. %s\n", i+1, RelatedStyle.Render(q))
			}
		}
	}
}

func printAskFooter(out io.Writer, result AskResult, conv *conversation.Container) {
	var b strings.Builder
	if result.Saved {
		b.WriteString(fmt.Sprintf("Saved as %s. Continue with: cardiochat chat --resume %s", result.ChatID, result.ChatID))
	} else if err := conv.LastSaveError(); err != nil {
		b.WriteString("Not saved: " + err.Error())
	}
	if b.Len() > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, DimStyle.Render(b.String()))
	}
}
