// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/cardiochat/internal/config"
	"github.com/jeranaias/cardiochat/internal/generator"
	"github.com/jeranaias/cardiochat/internal/llm"
	"github.com/jeranaias/cardiochat/internal/ollama"
	"github.com/jeranaias/cardiochat/internal/render"
	"github.com/jeranaias/cardiochat/internal/session"
	"github.com/jeranaias/cardiochat/internal/storage"
	"github.com/jeranaias/cardiochat/internal/tools"
)

// =============================================================================
// ARG PARSER TESTS
// =============================================================================

func TestArgParser(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantSub    string
		wantFlags  map[string]string
		wantBools  []string
		wantPosCnt int
	}{
		{
			name:       "subcommand with value flag",
			args:       []string{"show", "--limit", "5"},
			wantSub:    "show",
			wantFlags:  map[string]string{"limit": "5"},
			wantPosCnt: 1,
		},
		{
			name:       "equals form",
			args:       []string{"serve", "--addr=:9090"},
			wantSub:    "serve",
			wantFlags:  map[string]string{"addr": ":9090"},
			wantPosCnt: 1,
		},
		{
			name:       "bool flag keeps next positional",
			args:       []string{"ask", "--json", "what", "is", "angina"},
			wantSub:    "ask",
			wantBools:  []string{"json"},
			wantPosCnt: 4,
		},
		{
			name:       "explicit bool value",
			args:       []string{"ask", "--guest=true", "hi"},
			wantSub:    "ask",
			wantBools:  []string{"guest"},
			wantPosCnt: 2,
		},
		{
			name:       "double dash ends flags",
			args:       []string{"ask", "--", "--is", "this", "a", "flag"},
			wantSub:    "ask",
			wantPosCnt: 5,
		},
		{
			name:       "trailing unknown flag is boolean",
			args:       []string{"history", "--all"},
			wantSub:    "history",
			wantBools:  []string{"all"},
			wantPosCnt: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			p := NewArgParser(tt.args, boolFlags...)

			req.Equal(tt.wantSub, p.Subcommand())
			req.Equal(tt.wantPosCnt, p.PositionalCount())
			for k, v := range tt.wantFlags {
				req.Equal(v, p.Flag(k))
			}
			for _, b := range tt.wantBools {
				req.True(p.BoolFlag(b), b)
			}
		})
	}
}

func TestArgParser_Defaults(t *testing.T) {
	p := NewArgParser([]string{"--limit", "x"})
	assert.Equal(t, 7, p.FlagIntOrDefault("limit", 7))
	assert.Equal(t, "fallback", p.FlagOrDefault("missing", "fallback"))
	assert.True(t, p.HasFlag("--limit"))
	assert.Empty(t, p.Positional(3))
	assert.Nil(t, p.PositionalFrom(0))
}

// =============================================================================
// PARSE TESTS
// =============================================================================

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		argv    []string
		wantCmd Command
		check   func(*require.Assertions, Args)
		wantErr bool
	}{
		{name: "no args starts chat", argv: nil, wantCmd: CmdChat},
		{
			name:    "chat resume",
			argv:    []string{"chat", "--resume", "abc-1", "--model", "llama3.2"},
			wantCmd: CmdChat,
			check: func(r *require.Assertions, a Args) {
				r.Equal("abc-1", a.ChatID)
				r.Equal("llama3.2", a.Model)
			},
		},
		{
			name:    "ask joins words",
			argv:    []string{"ask", "--json", "What", "is", "AFib?"},
			wantCmd: CmdAsk,
			check: func(r *require.Assertions, a Args) {
				r.Equal("What is AFib?", a.Query)
				r.True(a.JSON)
			},
		},
		{name: "ask without question", argv: []string{"ask"}, wantCmd: CmdAsk, wantErr: true},
		{
			name:    "serve addr",
			argv:    []string{"serve", "--addr", ":9000", "--config", "/tmp/c.toml"},
			wantCmd: CmdServe,
			check: func(r *require.Assertions, a Args) {
				r.Equal(":9000", a.Addr)
				r.Equal("/tmp/c.toml", a.ConfigPath)
			},
		},
		{
			name:    "history defaults to list",
			argv:    []string{"history", "--limit", "3"},
			wantCmd: CmdHistory,
			check: func(r *require.Assertions, a Args) {
				r.Equal("list", a.Subcommand)
				r.Equal(3, a.Limit)
			},
		},
		{
			name:    "history rm alias",
			argv:    []string{"history", "rm", "chat-9"},
			wantCmd: CmdHistory,
			check: func(r *require.Assertions, a Args) {
				r.Equal("delete", a.Subcommand)
				r.Equal("chat-9", a.ChatID)
			},
		},
		{name: "history show without id", argv: []string{"history", "show"}, wantCmd: CmdHistory, wantErr: true},
		{name: "history unknown", argv: []string{"history", "export"}, wantCmd: CmdHistory, wantErr: true},
		{
			name:    "token",
			argv:    []string{"token", "alice"},
			wantCmd: CmdToken,
			check:   func(r *require.Assertions, a Args) { r.Equal("alice", a.User) },
		},
		{name: "token without user", argv: []string{"token"}, wantCmd: CmdToken, wantErr: true},
		{
			name:    "config defaults to show",
			argv:    []string{"config"},
			wantCmd: CmdConfig,
			check:   func(r *require.Assertions, a Args) { r.Equal("show", a.Subcommand) },
		},
		{
			name:    "config init force",
			argv:    []string{"config", "init", "--force"},
			wantCmd: CmdConfig,
			check: func(r *require.Assertions, a Args) {
				r.Equal("init", a.Subcommand)
				r.True(a.Force)
			},
		},
		{name: "config unknown", argv: []string{"config", "edit"}, wantCmd: CmdConfig, wantErr: true},
		{name: "version flag", argv: []string{"--version"}, wantCmd: CmdVersion},
		{name: "help flag", argv: []string{"ask", "-h"}, wantCmd: CmdHelp},
		{name: "unknown command", argv: []string{"frobnicate"}, wantCmd: CmdHelp, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			cmd, args, err := Parse(tt.argv)
			req.Equal(tt.wantCmd, cmd)
			if tt.wantErr {
				var usage *UsageError
				req.ErrorAs(err, &usage)
				return
			}
			req.NoError(err)
			if tt.check != nil {
				tt.check(req, args)
			}
		})
	}
}

// =============================================================================
// EXIT CODE TESTS
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", NewUsageError("ask", "bad"), ExitUsageError},
		{"config", config.ValidateErrors{{Field: "server.port", Message: "out of range"}}, ExitConfigError},
		{"not found", &NotFoundError{Resource: "conversation", ID: "x"}, ExitNotFoundError},
		{"store not found", storage.ErrConversationNotFound, ExitNotFoundError},
		{"missing secret", session.ErrMissingSecret, ExitAuthError},
		{"ollama down", ollama.ErrNotRunning, ExitNetworkError},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestDisplayError_JSON(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, "ask", errors.New("boom"), true)

	var resp JSONResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "boom", *resp.Error)
	assert.Equal(t, "ask", resp.Command)
}

// =============================================================================
// COMMAND TESTS
// =============================================================================

const cardArgs = `{"answer":"A stent keeps the artery open.","relatedQuestions":[{"question":"How long does a stent last?"},{"question":"Is the procedure painful?"}]}`

type providerFunc func(ctx context.Context, req llm.Request, emit func(llm.Event) error) error

func (f providerFunc) Stream(ctx context.Context, req llm.Request, emit func(llm.Event) error) error {
	return f(ctx, req, emit)
}

func cardiologist() providerFunc {
	return func(_ context.Context, req llm.Request, emit func(llm.Event) error) error {
		last := req.Messages[len(req.Messages)-1]
		if strings.Contains(last.Content, "stent") {
			return emit(llm.EventToolCall{Name: tools.AnswerToolName, Arguments: json.RawMessage(cardArgs)})
		}
		for _, part := range []string{"Palpitations ", "are usually ", "harmless."} {
			if err := emit(llm.EventText{Delta: part}); err != nil {
				return err
			}
		}
		return nil
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.NewInMemoryBadgerStore(logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.Default()
	cfg.Auth.LocalUser = "alice"
	return &App{
		Config:    cfg,
		Logger:    logger,
		Generator: generator.New(cardiologist(), generator.Config{ToolDelay: time.Millisecond}, logger),
		Store:     store,
	}
}

func TestHandleAsk_TextAnswerIsSavedAndListed(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t)

	var out bytes.Buffer
	err := HandleAsk(ctx, app, Args{Query: "Are palpitations dangerous?"}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Palpitations are usually harmless.\n")
	assert.Contains(t, out.String(), "Continue with: cardiochat chat --resume")

	metas, err := app.Store.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "Are palpitations dangerous?", metas[0].Title)
	assert.Equal(t, 2, metas[0].MessageCount)

	out.Reset()
	require.NoError(t, HandleHistory(ctx, app, Args{Subcommand: "list"}, &out))
	assert.Contains(t, out.String(), "Conversations (1)")
	assert.Contains(t, out.String(), "Are palpitations dangerous?")
}

func TestHandleAsk_CardJSONAndResume(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t)

	var out bytes.Buffer
	require.NoError(t, HandleAsk(ctx, app, Args{Query: "Do I need a stent?", JSON: true}, &out))

	var resp struct {
		Success bool      `json:"success"`
		Data    AskResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.True(t, resp.Success)
	assert.Equal(t, "A stent keeps the artery open.", resp.Data.Answer)
	assert.Equal(t, []string{"How long does a stent last?", "Is the procedure painful?"}, resp.Data.RelatedQuestions)
	assert.True(t, resp.Data.Saved)

	// A related question continues the same conversation.
	out.Reset()
	id := resp.Data.ChatID
	require.NoError(t, HandleAsk(ctx, app, Args{Query: resp.Data.RelatedQuestions[1], ChatID: id}, &out))

	chat, err := app.Store.Load(ctx, id)
	require.NoError(t, err)
	// user, tool call, tool result, user, assistant
	assert.Len(t, chat.Messages, 5)

	out.Reset()
	require.NoError(t, HandleHistory(ctx, app, Args{Subcommand: "show", ChatID: id, JSON: true}, &out))
	var shown struct {
		Data struct {
			ID    string            `json:"id"`
			Units []json.RawMessage `json:"units"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &shown))
	assert.Equal(t, id, shown.Data.ID)
	assert.Len(t, shown.Data.Units, 4)
}

func TestHandleAsk_UnknownResume(t *testing.T) {
	app := newTestApp(t)
	err := HandleAsk(context.Background(), app, Args{Query: "hi", ChatID: "nope"}, io.Discard)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, ExitNotFoundError, GetExitCode(err))
}

func TestHandleAsk_GuestSavesNothing(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t)

	var out bytes.Buffer
	require.NoError(t, HandleAsk(ctx, app, Args{Query: "Are palpitations dangerous?", Guest: true}, &out))
	assert.NotContains(t, out.String(), "--resume")

	metas, err := app.Store.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, metas)
}

func TestHandleHistory_OtherUsersChatsAreHidden(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t)
	require.NoError(t, HandleAsk(ctx, app, Args{Query: "Do I need a stent?", JSON: true}, io.Discard))
	metas, err := app.Store.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, metas, 1)
	id := metas[0].ID

	app.Config.Auth.LocalUser = "bob"
	err = HandleHistory(ctx, app, Args{Subcommand: "show", ChatID: id}, io.Discard)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)

	err = HandleHistory(ctx, app, Args{Subcommand: "delete", ChatID: id}, io.Discard)
	require.ErrorAs(t, err, &notFound)

	app.Config.Auth.LocalUser = "alice"
	var out bytes.Buffer
	require.NoError(t, HandleHistory(ctx, app, Args{Subcommand: "delete", ChatID: id}, &out))
	assert.Contains(t, out.String(), "Deleted")

	_, err = app.Store.Load(ctx, id)
	assert.ErrorIs(t, err, storage.ErrConversationNotFound)
}

func TestHandleToken(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.JWTSecret = strings.Repeat("s", 32)

	var out bytes.Buffer
	require.NoError(t, HandleToken(cfg, Args{User: "carol", JSON: true}, &out))

	var resp struct {
		Data TokenResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "carol", resp.Data.User)

	// A server with the same secret accepts it.
	m, err := session.NewManager(cfg.SessionSettings())
	require.NoError(t, err)
	ident, err := m.Authenticate(resp.Data.Token)
	require.NoError(t, err)
	assert.Equal(t, "carol", ident.UserID)

	cfg.Auth.JWTSecret = ""
	err = HandleToken(cfg, Args{User: "carol"}, io.Discard)
	assert.ErrorIs(t, err, session.ErrMissingSecret)
}

func TestHandleConfigInit(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	var out bytes.Buffer
	req.NoError(HandleConfigInit(Args{ConfigPath: path}, &out))
	req.Contains(out.String(), path)

	err := HandleConfigInit(Args{ConfigPath: path}, io.Discard)
	var usage *UsageError
	req.ErrorAs(err, &usage, "existing file is kept")
	req.NoError(HandleConfigInit(Args{ConfigPath: path, Force: true}, io.Discard))

	cfg, err := config.LoadFromPath(path)
	req.NoError(err)
	req.Equal(config.Default().Model.Name, cfg.Model.Name)
}

func TestHandleConfig_MasksSecret(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.JWTSecret = strings.Repeat("s", 32)

	var out bytes.Buffer
	require.NoError(t, HandleConfig(cfg, Args{Subcommand: "show"}, &out))
	assert.NotContains(t, out.String(), cfg.Auth.JWTSecret)
	assert.Contains(t, out.String(), maskedSecret)
	assert.Equal(t, strings.Repeat("s", 32), cfg.Auth.JWTSecret, "caller's config is untouched")

	out.Reset()
	require.NoError(t, HandleConfig(cfg, Args{Subcommand: "path", ConfigPath: "/tmp/x.toml"}, &out))
	assert.Equal(t, "/tmp/x.toml\n", out.String())
}

func TestRun_HelpAndVersion(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, ExitSuccess, Run(context.Background(), []string{"help"}, &out, &errOut))
	assert.Contains(t, out.String(), "cardiochat ask")

	out.Reset()
	assert.Equal(t, ExitSuccess, Run(context.Background(), []string{"version", "--json"}, &out, &errOut))
	assert.Contains(t, out.String(), `"version"`)

	assert.Equal(t, ExitUsageError, Run(context.Background(), []string{"ask"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "a question is required")
}

// =============================================================================
// PRINTER TESTS
// =============================================================================

func TestAnswerPrinter_StreamsDeltasOnce(t *testing.T) {
	text := render.NewStreamableText()
	live := render.NewLive(render.BotMessage{Text: text})

	var out bytes.Buffer
	p := answerPrinter{out: &out}
	done := make(chan error, 1)
	go func() {
		_, err := p.follow(context.Background(), render.Unit{ID: "u", Display: live})
		done <- err
	}()

	require.NoError(t, text.Append("Blood pressure "))
	require.NoError(t, text.Append("is 120/80."))
	require.NoError(t, text.Done())
	live.Done(render.BotMessage{Text: text})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("printer did not finish")
	}
	assert.Equal(t, "Blood pressure is 120/80.\n", out.String())
}

func TestAnswerPrinter_ReturnsTurnError(t *testing.T) {
	live := render.NewLive(render.Spinner{})
	live.Fail(errors.New("model unavailable"), render.Failure{Message: "model unavailable"})

	p := answerPrinter{}
	final, err := p.follow(context.Background(), render.Unit{ID: "u", Display: live})
	assert.EqualError(t, err, "model unavailable")
	assert.IsType(t, render.Failure{}, final)
}

func TestPrintHistory_TruncatesTitles(t *testing.T) {
	var out bytes.Buffer
	printHistory(&out, []storage.ChatMeta{{
		ID:           "chat-1",
		Title:        strings.Repeat("very long question about the heart ", 10),
		CreatedAt:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		MessageCount: 4,
	}}, 80)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	last := lines[len(lines)-1]
	assert.Contains(t, last, "...")
	assert.LessOrEqual(t, len([]rune(last)), 80)

	out.Reset()
	printHistory(&out, nil, 80)
	assert.Contains(t, out.String(), "No saved conversations.")
}

func TestColorProfile(t *testing.T) {
	env := func(kv ...string) func(string) string {
		return func(key string) string {
			for i := 0; i+1 < len(kv); i += 2 {
				if kv[i] == key {
					return kv[i+1]
				}
			}
			return ""
		}
	}

	assert.Equal(t, termenv.Ascii, colorProfile(env("NO_COLOR", "1"), true))
	assert.Equal(t, termenv.Ascii, colorProfile(env("NO_COLOR", "1", "FORCE_COLOR", "1"), true))
	assert.Equal(t, termenv.Ascii, colorProfile(env(), false))
	assert.NotEqual(t, termenv.Ascii, colorProfile(env("FORCE_COLOR", "1"), false))
}
