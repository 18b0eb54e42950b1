// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/cardiochat/internal/conversation"
	"github.com/jeranaias/cardiochat/internal/generator"
	"github.com/jeranaias/cardiochat/internal/llm"
	"github.com/jeranaias/cardiochat/internal/render"
	"github.com/jeranaias/cardiochat/internal/server"
	"github.com/jeranaias/cardiochat/internal/session"
	"github.com/jeranaias/cardiochat/internal/storage"
	"github.com/jeranaias/cardiochat/internal/tools"
)

// =============================================================================
// HELPERS
// =============================================================================

const answerArgs = `{"answer":"A stent keeps the artery open.","relatedQuestions":[{"question":"How long does a stent last?"},{"question":"Is the procedure painful?"}]}`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// modelFunc adapts a function to llm.Provider.
type modelFunc func(ctx context.Context, req llm.Request, emit func(llm.Event) error) error

func (f modelFunc) Stream(ctx context.Context, req llm.Request, emit func(llm.Event) error) error {
	return f(ctx, req, emit)
}

// cardiologist answers with the tool when the question mentions a stent
// and with plain text otherwise.
func cardiologist() modelFunc {
	return func(_ context.Context, req llm.Request, emit func(llm.Event) error) error {
		last := req.Messages[len(req.Messages)-1]
		if strings.Contains(last.Content, "stent") {
			return emit(llm.EventToolCall{Name: tools.AnswerToolName, Arguments: json.RawMessage(answerArgs)})
		}
		if err := emit(llm.EventText{Delta: "Angina is chest pain "}); err != nil {
			return err
		}
		return emit(llm.EventText{Delta: "caused by reduced blood flow."})
	}
}

type fixture struct {
	srv      *server.Server
	http     *httptest.Server
	registry *conversation.Registry
	store    storage.Store
	sessions *session.Manager
}

func newFixture(t *testing.T, provider llm.Provider, store storage.Store, sessions *session.Manager) *fixture {
	t.Helper()
	gen := generator.New(provider, generator.Config{ToolDelay: time.Millisecond}, quietLogger())
	registry := conversation.NewRegistry(func(id string) (*conversation.Container, error) {
		return conversation.New(conversation.Options{
			ChatID:    id,
			Generator: gen,
			Auth:      session.ContextAuthenticator{},
			Store:     store,
			Logger:    quietLogger(),
		})
	})

	srv := server.New(server.Options{
		Registry:  registry,
		Store:     store,
		Sessions:  sessions,
		RateLimit: 1000,
		RateBurst: 1000,
		Logger:    quietLogger(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{srv: srv, http: ts, registry: registry, store: store, sessions: sessions}
}

func newStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewInMemoryBadgerStore(quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newSessions(t *testing.T) *session.Manager {
	t.Helper()
	m, err := session.NewManager(session.Config{Secret: []byte(strings.Repeat("k", 32))})
	require.NoError(t, err)
	return m
}

func (f *fixture) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.http.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) createChat(t *testing.T, token string) string {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/api/chats", token, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var chat server.ChatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&chat))
	require.Equal(t, "/chat/"+chat.ID, chat.Path)
	return chat.ID
}

func (f *fixture) loadChat(t *testing.T, id, token string) render.State {
	t.Helper()
	resp := f.do(t, http.MethodGet, "/api/chats/"+id, token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var chat server.ChatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&chat))
	return chat.Units
}

type sseEvent struct {
	name string
	data string
}

func readEvents(t *testing.T, body io.Reader) []sseEvent {
	t.Helper()
	events, err := parseEvents(body)
	require.NoError(t, err)
	return events
}

func parseEvents(body io.Reader) ([]sseEvent, error) {
	var events []sseEvent
	var current sseEvent
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		case line == "" && current.name != "":
			events = append(events, current)
			current = sseEvent{}
		}
	}
	return events, scanner.Err()
}

// ask runs a turn and returns the events and the last unit snapshot.
func (f *fixture) ask(t *testing.T, id, token, text string) ([]sseEvent, render.Unit) {
	t.Helper()
	body, err := json.Marshal(server.TurnRequest{Text: text})
	require.NoError(t, err)

	resp := f.do(t, http.MethodPost, "/api/chats/"+id+"/turns", token, string(body))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readEvents(t, resp.Body)
	require.NotEmpty(t, events)

	var last render.Unit
	for _, ev := range events {
		if ev.name == "unit" {
			require.NoError(t, json.Unmarshal([]byte(ev.data), &last))
		}
	}
	return events, last
}

// =============================================================================
// TURN TESTS
// =============================================================================

func TestServer_GuestTextTurn(t *testing.T) {
	f := newFixture(t, cardiologist(), newStore(t), newSessions(t))
	id := f.createChat(t, "")

	events, last := f.ask(t, id, "", "What is angina?")
	assert.Equal(t, "done", events[len(events)-1].name)
	assert.Equal(t, id+"-1", last.ID)
	assert.Equal(t, render.KindBot, last.Kind())

	bot := last.Display.(render.BotMessage)
	assert.Equal(t, "Angina is chest pain caused by reduced blood flow.", bot.Value())
	assert.False(t, bot.Streaming())

	// Guests see their in-memory conversation but nothing is saved.
	units := f.loadChat(t, id, "")
	require.Len(t, units, 2)
	assert.Equal(t, render.KindUser, units[0].Kind())
	assert.Equal(t, render.KindBot, units[1].Kind())

	_, err := f.store.Load(context.Background(), id)
	assert.ErrorIs(t, err, storage.ErrConversationNotFound)
}

func TestServer_ToolTurnPersistsAndRehydrates(t *testing.T) {
	store := newStore(t)
	sessions := newSessions(t)
	f := newFixture(t, cardiologist(), store, sessions)

	alice, err := sessions.Issue("alice")
	require.NoError(t, err)
	bob, err := sessions.Issue("bob")
	require.NoError(t, err)

	id := f.createChat(t, alice)
	events, last := f.ask(t, id, alice, "Why would I need a stent?")
	assert.Equal(t, "done", events[len(events)-1].name)

	card, ok := last.Display.(render.BotCard)
	require.True(t, ok, "got %T", last.Display)
	assert.False(t, card.Loading)
	assert.Equal(t, "A stent keeps the artery open.", card.Answer)
	assert.Len(t, card.RelatedQuestions, tools.RelatedQuestionCount)

	require.Eventually(t, func() bool {
		chat, err := store.Load(context.Background(), id)
		return err == nil && len(chat.Messages) == 3
	}, 2*time.Second, 10*time.Millisecond)

	chat, err := store.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "alice", chat.UserID)
	assert.Equal(t, "Why would I need a stent?", chat.Title)

	// Listing is per owner.
	var metas []storage.ChatMeta
	require.NoError(t, json.NewDecoder(f.do(t, http.MethodGet, "/api/chats", alice, "").Body).Decode(&metas))
	require.Len(t, metas, 1)
	assert.Equal(t, id, metas[0].ID)
	require.NoError(t, json.NewDecoder(f.do(t, http.MethodGet, "/api/chats", bob, "").Body).Decode(&metas))
	assert.Empty(t, metas)

	// Someone else's conversation is indistinguishable from an unknown one.
	assert.Empty(t, f.loadChat(t, id, bob))
	resp := f.do(t, http.MethodPost, "/api/chats/"+id+"/turns", bob, `{"text":"hi"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// A fresh process rehydrates from the store.
	fresh := newFixture(t, cardiologist(), store, sessions)
	units := fresh.loadChat(t, id, alice)
	require.Len(t, units, 2)
	assert.Equal(t, render.KindUser, units[0].Kind())
	assert.Equal(t, render.KindCard, units[1].Kind())
	// The card takes the position of the tool result, after the call.
	assert.Equal(t, []string{id + "-0", id + "-2"}, units.IDs())
}

func TestServer_FailedTurnEmitsError(t *testing.T) {
	broken := modelFunc(func(context.Context, llm.Request, func(llm.Event) error) error {
		return errors.New("connection reset")
	})
	f := newFixture(t, broken, newStore(t), nil)
	id := f.createChat(t, "")

	events, last := f.ask(t, id, "", "What is angina?")
	final := events[len(events)-1]
	assert.Equal(t, "error", final.name)
	assert.Contains(t, final.data, "connection reset")
	assert.Equal(t, render.KindFailure, last.Kind())

	// The pending question is discarded with the failed turn.
	c, ok := f.registry.Get(id)
	require.True(t, ok)
	assert.True(t, c.Log().IsEmpty())
}

func TestServer_RejectsConcurrentTurn(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	slow := modelFunc(func(ctx context.Context, _ llm.Request, emit func(llm.Event) error) error {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		return emit(llm.EventText{Delta: "done"})
	})
	f := newFixture(t, slow, newStore(t), nil)
	t.Cleanup(func() { once.Do(func() { close(release) }) })
	id := f.createChat(t, "")

	first := make(chan []sseEvent, 1)
	go func() {
		resp, err := http.Post(f.http.URL+"/api/chats/"+id+"/turns", "application/json", strings.NewReader(`{"text":"first"}`))
		if err != nil {
			first <- nil
			return
		}
		defer resp.Body.Close()
		events, _ := parseEvents(resp.Body)
		first <- events
	}()

	require.Eventually(t, func() bool {
		c, ok := f.registry.Get(id)
		return ok && c.InFlight()
	}, 2*time.Second, 5*time.Millisecond)

	resp := f.do(t, http.MethodPost, "/api/chats/"+id+"/turns", "", `{"text":"second"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	once.Do(func() { close(release) })
	events := <-first
	require.NotEmpty(t, events)
	assert.Equal(t, "done", events[len(events)-1].name)
}

// =============================================================================
// REQUEST VALIDATION TESTS
// =============================================================================

func TestServer_BadRequests(t *testing.T) {
	f := newFixture(t, cardiologist(), newStore(t), newSessions(t))
	id := f.createChat(t, "")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		want   int
	}{
		{"invalid token", http.MethodGet, "/api/chats", "not-a-jwt", "", http.StatusUnauthorized},
		{"invalid id", http.MethodPost, "/api/chats/bad.id/turns", "", `{"text":"hi"}`, http.StatusBadRequest},
		{"empty text", http.MethodPost, "/api/chats/" + id + "/turns", "", `{"text":"  "}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/chats/" + id + "/turns", "", `{"text":`, http.StatusBadRequest},
		{"too long", http.MethodPost, "/api/chats/" + id + "/turns", "", `{"text":"` + strings.Repeat("a", server.MaxQuestionLength+1) + `"}`, http.StatusBadRequest},
		{"guest delete", http.MethodDelete, "/api/chats/" + id, "", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestServer_DeleteChat(t *testing.T) {
	store := newStore(t)
	sessions := newSessions(t)
	f := newFixture(t, cardiologist(), store, sessions)
	alice, err := sessions.Issue("alice")
	require.NoError(t, err)

	id := f.createChat(t, alice)
	f.ask(t, id, alice, "What is angina?")
	require.Eventually(t, func() bool {
		_, err := store.Load(context.Background(), id)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	resp := f.do(t, http.MethodDelete, "/api/chats/"+id, alice, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err = store.Load(context.Background(), id)
	assert.ErrorIs(t, err, storage.ErrConversationNotFound)
	_, live := f.registry.Get(id)
	assert.False(t, live)
}

func TestServer_SessionStatusAndSignOut(t *testing.T) {
	sessions := newSessions(t)
	f := newFixture(t, cardiologist(), newStore(t), sessions)
	alice, err := sessions.Issue("alice")
	require.NoError(t, err)

	resp := f.do(t, http.MethodGet, "/api/session", alice, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status session.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "alice", status.UserID)
	assert.False(t, status.IsExpired)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/session", "", "").StatusCode)

	resp = f.do(t, http.MethodDelete, "/api/session", alice, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = f.do(t, http.MethodGet, "/api/chats", alice, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "revoked token is rejected")
}

// =============================================================================
// HEALTH AND STATS TESTS
// =============================================================================

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestServer_Health(t *testing.T) {
	tests := []struct {
		name    string
		checker server.HealthChecker
		status  string
		ollama  string
	}{
		{"not configured", nil, "ok", "not_configured"},
		{"up", checkerFunc(func(context.Context) error { return nil }), "ok", "ok"},
		{"down", checkerFunc(func(context.Context) error { return errors.New("refused") }), "degraded", "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := server.New(server.Options{
				Registry: conversation.NewRegistry(nil),
				Health:   tt.checker,
				Logger:   quietLogger(),
			})
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, http.StatusOK, rec.Code)

			var health server.HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
			assert.Equal(t, tt.status, health.Status)
			assert.Equal(t, tt.ollama, health.OllamaStatus)
		})
	}
}

func TestServer_Stats(t *testing.T) {
	f := newFixture(t, cardiologist(), newStore(t), nil)
	id := f.createChat(t, "")
	f.ask(t, id, "", "What is angina?")

	var stats server.StatsResponse
	require.NoError(t, json.NewDecoder(f.do(t, http.MethodGet, "/stats", "", "").Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.TurnsStarted)
	assert.Equal(t, int64(0), stats.TurnsFailed)
	assert.Equal(t, 1, stats.Conversations)
}
