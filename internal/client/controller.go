// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:generate go run go.uber.org/mock/mockgen -source=controller.go -destination=../mocks/mock_actions.go -package=mocks

package client

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jeranaias/cardiochat/internal/model"
	"github.com/jeranaias/cardiochat/internal/render"
)

// Actions is the conversation surface the controller drives.
type Actions interface {
	SubmitTurn(ctx context.Context, text string) (render.Unit, error)
}

// ErrEmptyInput is returned for blank submissions. Nothing is appended.
var ErrEmptyInput = errors.New("message text is empty")

// =============================================================================
// OPTIMISTIC SUBMIT CONTROLLER
// =============================================================================

// Controller applies user actions to a Render State. The user's own
// message is appended before the turn is submitted, so it always precedes
// the assistant unit regardless of model latency. The controller never
// touches the Message Log.
type Controller struct {
	actions Actions
	ui      *render.Timeline
	logger  *slog.Logger
}

// NewController creates a controller appending to ui.
func NewController(actions Actions, ui *render.Timeline, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{actions: actions, ui: ui, logger: logger}
}

// UI returns the Render State the controller appends to.
func (c *Controller) UI() *render.Timeline {
	return c.ui
}

// Submit appends a provisional user unit, submits the turn and appends the
// unit it produces. If the submission is rejected, a failure unit is
// appended instead and the error returned.
func (c *Controller) Submit(ctx context.Context, text string) (render.Unit, error) {
	if strings.TrimSpace(text) == "" {
		return render.Unit{}, ErrEmptyInput
	}

	c.ui.Append(render.Unit{ID: model.NewID(), Display: render.UserMessage{Text: text}})

	unit, err := c.actions.SubmitTurn(ctx, text)
	if err != nil {
		c.logger.Warn("submit rejected", slog.Any("error", err))
		failed := render.Unit{ID: model.NewID(), Display: render.Failure{Message: "Message not sent: " + err.Error()}}
		c.ui.Append(failed)
		return failed, err
	}

	c.ui.Append(unit)
	return unit, nil
}

// ClickRelated submits a related question exactly as if it had been typed.
func (c *Controller) ClickRelated(ctx context.Context, question string) (render.Unit, error) {
	return c.Submit(ctx, question)
}

// LatestRelated returns the related questions of the last finished answer
// card in state, or nil.
func LatestRelated(state render.State) []string {
	for i := len(state) - 1; i >= 0; i-- {
		d := state[i].Display
		if live, ok := state[i].Live(); ok {
			d = live.Snapshot()
		}
		switch v := d.(type) {
		case render.BotCard:
			if v.Loading {
				return nil
			}
			return v.RelatedQuestions
		case render.BotMessage, render.Spinner:
			return nil
		}
	}
	return nil
}
