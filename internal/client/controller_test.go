// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jeranaias/cardiochat/internal/client"
	"github.com/jeranaias/cardiochat/internal/conversation"
	"github.com/jeranaias/cardiochat/internal/generator"
	"github.com/jeranaias/cardiochat/internal/llm"
	"github.com/jeranaias/cardiochat/internal/mocks"
	"github.com/jeranaias/cardiochat/internal/render"
	"github.com/jeranaias/cardiochat/internal/tools"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestController_ProvisionalUnitComesFirst(t *testing.T) {
	ctrl := gomock.NewController(t)
	actions := mocks.NewMockActions(ctrl)
	ui := render.NewTimeline(nil)
	c := client.NewController(actions, ui, quietLogger())

	release := make(chan struct{})
	reply := render.Unit{ID: "chat-1", Display: render.BotMessage{Text: render.StaticText("answer")}}
	actions.EXPECT().SubmitTurn(gomock.Any(), "What causes chest pain?").DoAndReturn(
		func(context.Context, string) (render.Unit, error) {
			<-release
			return reply, nil
		})

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), "What causes chest pain?")
		done <- err
	}()

	require.Eventually(t, func() bool { return ui.Len() == 1 }, time.Second, time.Millisecond)
	first := ui.Units()[0]
	assert.Equal(t, render.UserMessage{Text: "What causes chest pain?"}, first.Display)

	close(release)
	require.NoError(t, <-done)

	units := ui.Units()
	require.Len(t, units, 2)
	assert.Equal(t, render.KindUser, units[0].Kind())
	assert.Equal(t, reply.ID, units[1].ID)
}

func TestController_RejectedSubmitAppendsFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	actions := mocks.NewMockActions(ctrl)
	ui := render.NewTimeline(nil)
	c := client.NewController(actions, ui, quietLogger())

	busy := errors.New("busy")
	actions.EXPECT().SubmitTurn(gomock.Any(), "q").Return(render.Unit{}, busy)

	_, err := c.Submit(context.Background(), "q")
	require.ErrorIs(t, err, busy)

	units := ui.Units()
	require.Len(t, units, 2)
	assert.Equal(t, render.KindUser, units[0].Kind())
	assert.Equal(t, render.KindFailure, units[1].Kind())

	_, err = c.Submit(context.Background(), "   ")
	assert.ErrorIs(t, err, client.ErrEmptyInput)
	assert.Equal(t, 2, ui.Len())
}

func TestController_ClickRelatedReentersSubmit(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)

	args := `{"answer":"Common causes include...","relatedQuestions":[{"question":"Is it an emergency?"},{"question":"What tests are used?"}]}`
	gomock.InOrder(
		provider.EXPECT().Stream(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, _ llm.Request, emit func(llm.Event) error) error {
				return emit(llm.EventToolCall{Name: tools.AnswerToolName, Arguments: json.RawMessage(args)})
			}),
		provider.EXPECT().Stream(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req llm.Request, emit func(llm.Event) error) error {
				last := req.Messages[len(req.Messages)-1]
				assert.Equal(t, "Is it an emergency?", last.Content)
				return emit(llm.EventText{Delta: "Seek care if..."})
			}),
	)

	gen := generator.New(provider, generator.Config{ToolDelay: time.Millisecond}, quietLogger())
	conv, err := conversation.New(conversation.Options{Generator: gen, Logger: quietLogger()})
	require.NoError(t, err)
	c := client.NewController(conv, conv.UIState(), quietLogger())

	_, err = c.Submit(context.Background(), "What causes chest pain?")
	require.NoError(t, err)
	require.NoError(t, conv.Wait(context.Background()))

	related := client.LatestRelated(c.UI().Units())
	require.Equal(t, []string{"Is it an emergency?", "What tests are used?"}, related)

	_, err = c.ClickRelated(context.Background(), related[0])
	require.NoError(t, err)
	require.NoError(t, conv.Wait(context.Background()))

	assert.Equal(t, 5, conv.Log().Len())
	kinds := make([]render.Kind, 0, 4)
	for _, u := range c.UI().Units() {
		kinds = append(kinds, u.Kind())
	}
	assert.Equal(t, []render.Kind{render.KindUser, render.KindCard, render.KindUser, render.KindBot}, kinds)
	assert.Nil(t, client.LatestRelated(c.UI().Units()))
}

func TestLatestRelated(t *testing.T) {
	card := render.BotCard{Answer: "a", RelatedQuestions: []string{"x", "y"}}

	assert.Nil(t, client.LatestRelated(nil))
	assert.Equal(t, []string{"x", "y"}, client.LatestRelated(render.State{
		{ID: "1", Display: render.UserMessage{Text: "q"}},
		{ID: "2", Display: card},
		{ID: "3", Display: render.UserMessage{Text: "follow-up"}},
	}))
	assert.Nil(t, client.LatestRelated(render.State{
		{ID: "1", Display: card},
		{ID: "2", Display: render.NewLive(render.BotCard{Loading: true})},
	}))
}
