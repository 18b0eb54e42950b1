// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeranaias/cardiochat/internal/client"
	"github.com/jeranaias/cardiochat/internal/conversation"
	"github.com/jeranaias/cardiochat/internal/model"
	"github.com/jeranaias/cardiochat/internal/render"
	"github.com/jeranaias/cardiochat/internal/session"
	"github.com/jeranaias/cardiochat/internal/storage"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// MaxRequestBodySize bounds request bodies (64KB).
	MaxRequestBodySize = 64 * 1024

	// MaxQuestionLength is the longest accepted question, in bytes.
	MaxQuestionLength = 8000

	// DefaultIdleConversation is how long an unused conversation stays in
	// memory.
	DefaultIdleConversation = 30 * time.Minute

	// janitorInterval is how often idle conversations, rate limiter
	// entries and sessions are pruned.
	janitorInterval = time.Minute

	// Version is the server version.
	Version = "0.1.0"
)

// ============================================================================
// SERVER STATS
// ============================================================================

// ServerStats counts turns served by this process.
type ServerStats struct {
	StartTime     time.Time
	TurnsStarted  atomic.Int64
	TurnsFailed   atomic.Int64
	ActiveStreams atomic.Int64
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Uptime        string `json:"uptime"`
	TurnsStarted  int64  `json:"turns_started"`
	TurnsFailed   int64  `json:"turns_failed"`
	ActiveStreams int64  `json:"active_streams"`
	Conversations int    `json:"conversations"`
	Sessions      int    `json:"sessions"`
}

// ============================================================================
// SERVER
// ============================================================================

// HealthChecker reports whether the model backend is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	Addr string

	// Registry holds the live conversations. Its factory must build
	// containers that read the identity from the request context.
	Registry *conversation.Registry
	Store    storage.Store

	// Sessions verifies bearer tokens. Nil serves every request as a guest.
	Sessions *session.Manager

	// Health is optional.
	Health HealthChecker

	RateLimit     float64
	RateBurst     int
	AllowedOrigin string
	IdleTimeout   time.Duration
	Logger        *slog.Logger
}

// Server is the HTTP host of the conversation containers.
type Server struct {
	addr    string
	router  *http.ServeMux
	handler http.Handler
	server  *http.Server

	registry *conversation.Registry
	store    storage.Store
	sessions *session.Manager
	health   HealthChecker
	limiter  *clientLimiter
	idle     time.Duration
	stats    *ServerStats
	logger   *slog.Logger

	// owners maps live conversation ids to the user that opened them.
	// Guests own their conversations under "".
	mu     sync.Mutex
	owners map[string]string

	stop chan struct{}
	once sync.Once
}

// New creates a Server. It does not listen until Start.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleConversation
	}

	s := &Server{
		addr:     opts.Addr,
		router:   http.NewServeMux(),
		registry: opts.Registry,
		store:    opts.Store,
		sessions: opts.Sessions,
		health:   opts.Health,
		limiter:  newClientLimiter(opts.RateLimit, opts.RateBurst),
		idle:     opts.IdleTimeout,
		stats:    &ServerStats{StartTime: time.Now()},
		logger:   opts.Logger,
		owners:   make(map[string]string),
		stop:     make(chan struct{}),
	}
	s.setupRoutes()

	var verifier TokenVerifier
	if opts.Sessions != nil {
		verifier = opts.Sessions
	}
	s.handler = chain(
		recoverPanics(s.logger),
		noStore,
		accessLog(s.logger),
		allowOrigin(opts.AllowedOrigin),
		s.limiter.middleware(s.logger),
		identify(verifier, s.logger),
	)(s.router)

	return s
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /api/chats", s.handleCreateChat)
	s.router.HandleFunc("GET /api/chats", s.handleListChats)
	s.router.HandleFunc("GET /api/chats/{id}", s.handleLoadChat)
	s.router.HandleFunc("DELETE /api/chats/{id}", s.handleDeleteChat)
	s.router.HandleFunc("POST /api/chats/{id}/turns", s.handleTurn)

	s.router.HandleFunc("GET /api/session", s.handleSessionStatus)
	s.router.HandleFunc("DELETE /api/session", s.handleSignOut)

	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /stats", s.handleStats)
}

// ============================================================================
// REQUEST/RESPONSE TYPES
// ============================================================================

// ChatResponse describes a conversation and its Render State.
type ChatResponse struct {
	ID    string       `json:"id"`
	Path  string       `json:"path"`
	Units render.State `json:"units"`
}

// TurnRequest is the body of POST /api/chats/{id}/turns.
type TurnRequest struct {
	Text string `json:"text"`
}

// ============================================================================
// CONVERSATION HANDLERS
// ============================================================================

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	c, err := s.registry.Create()
	if err != nil {
		s.logger.Error("create chat failed", slog.Any("error", err))
		s.writeError(w, http.StatusInternalServerError, "could not create conversation")
		return
	}

	s.mu.Lock()
	s.owners[c.ID()] = userOf(r.Context())
	s.mu.Unlock()

	s.writeJSON(w, http.StatusCreated, ChatResponse{ID: c.ID(), Path: model.ChatPath(c.ID()), Units: render.State{}})
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	ident, ok := session.FromContext(r.Context())
	if !ok || s.store == nil {
		s.writeJSON(w, http.StatusOK, []storage.ChatMeta{})
		return
	}

	metas, err := s.store.List(r.Context(), ident.UserID)
	if err != nil {
		s.logger.Error("list chats failed", slog.String("user_id", ident.UserID), slog.Any("error", err))
		s.writeError(w, http.StatusInternalServerError, "could not list conversations")
		return
	}
	if metas == nil {
		metas = []storage.ChatMeta{}
	}
	s.writeJSON(w, http.StatusOK, metas)
}

func (s *Server) handleLoadChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, status, err := s.open(r.Context(), id)
	if err != nil {
		if status == http.StatusNotFound {
			// Someone else's conversation looks exactly like an unknown one.
			s.writeJSON(w, http.StatusOK, ChatResponse{ID: id, Path: model.ChatPath(id), Units: render.State{}})
			return
		}
		s.writeError(w, status, err.Error())
		return
	}

	state, err := c.OnLoad(r.Context(), id)
	switch {
	case errors.Is(err, conversation.ErrTurnInFlight):
		state = c.UIState().Units()
	case err != nil:
		s.logger.Error("load chat failed", slog.String("chat_id", id), slog.Any("error", err))
		s.writeError(w, http.StatusInternalServerError, "could not load conversation")
		return
	case state == nil && !c.Log().IsEmpty():
		// Guest conversations live only in memory.
		state = c.UIState().Units()
	}
	if state == nil {
		state = render.State{}
	}

	s.writeJSON(w, http.StatusOK, ChatResponse{ID: id, Path: model.ChatPath(id), Units: state})
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ident, ok := session.FromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "sign in to delete conversations")
		return
	}
	if _, status, err := s.open(r.Context(), id); err != nil {
		s.writeError(w, status, err.Error())
		return
	}

	if s.store != nil {
		if err := s.store.Delete(r.Context(), id); err != nil && !errors.Is(err, storage.ErrConversationNotFound) {
			s.logger.Error("delete chat failed", slog.String("chat_id", id), slog.Any("error", err))
			s.writeError(w, http.StatusInternalServerError, "could not delete conversation")
			return
		}
	}
	s.forget(id)

	s.logger.Info("chat deleted", slog.String("chat_id", id), slog.String("user_id", ident.UserID))
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// SESSION HANDLERS
// ============================================================================

// sessionOf returns the token session behind r, or writes 401.
func (s *Server) sessionOf(w http.ResponseWriter, r *http.Request) (session.Identity, bool) {
	ident, ok := session.FromContext(r.Context())
	if !ok || s.sessions == nil || ident.SessionID == "" {
		s.writeError(w, http.StatusUnauthorized, "no session")
		return session.Identity{}, false
	}
	return ident, true
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.sessionOf(w, r)
	if !ok {
		return
	}
	status, ok := s.sessions.GetStatus(ident.SessionID)
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "no session")
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.sessionOf(w, r)
	if !ok {
		return
	}
	s.sessions.Revoke(ident.SessionID)
	s.logger.Info("session revoked", slog.String("user_id", ident.UserID))
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// TURN HANDLER
// ============================================================================

// handleTurn submits a question and streams snapshots of the produced unit
// as server-sent events until the turn finishes:
//
//	event: unit   data: {"id":"...","display":{...}}   (repeated)
//	event: done   data: {"id":"..."}
//	event: error  data: {"message":"..."}
//
// A client that disconnects stops the stream, not the turn.
func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Text) > MaxQuestionLength {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("question exceeds %d bytes", MaxQuestionLength))
		return
	}

	id := r.PathValue("id")
	c, status, err := s.open(r.Context(), id)
	if err != nil {
		s.writeError(w, status, err.Error())
		return
	}
	if c.Log().IsEmpty() && !c.InFlight() {
		if _, err := c.OnLoad(r.Context(), id); err != nil && !errors.Is(err, conversation.ErrTurnInFlight) {
			s.logger.Error("load chat failed", slog.String("chat_id", id), slog.Any("error", err))
			s.writeError(w, http.StatusInternalServerError, "could not load conversation")
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// The turn and its save outlive this request.
	ctx := context.WithoutCancel(r.Context())
	controller := client.NewController(c, c.UIState(), s.logger)
	unit, err := controller.Submit(ctx, req.Text)
	switch {
	case errors.Is(err, conversation.ErrEmptyInput), errors.Is(err, client.ErrEmptyInput):
		s.writeError(w, http.StatusBadRequest, "question is empty")
		return
	case errors.Is(err, conversation.ErrTurnInFlight):
		s.writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, conversation.ErrClosed):
		s.writeError(w, http.StatusGone, err.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.stats.TurnsStarted.Add(1)
	s.stats.ActiveStreams.Add(1)
	defer s.stats.ActiveStreams.Add(-1)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	live, ok := unit.Live()
	if !ok {
		s.sendEvent(w, flusher, "unit", unit)
		s.sendEvent(w, flusher, "done", map[string]string{"id": unit.ID})
		return
	}

	for {
		changed := live.Changed()
		s.sendEvent(w, flusher, "unit", unit)
		if live.IsDone() {
			break
		}
		select {
		case <-changed:
		case <-r.Context().Done():
			s.logger.Debug("turn stream detached", slog.String("chat_id", id))
			return
		}
	}

	if err := live.Err(); err != nil {
		s.stats.TurnsFailed.Add(1)
		s.sendEvent(w, flusher, "error", map[string]string{"id": unit.ID, "message": err.Error()})
		return
	}
	s.sendEvent(w, flusher, "done", map[string]string{"id": unit.ID})
}

// sendEvent writes one server-sent event.
func (s *Server) sendEvent(w http.ResponseWriter, flusher http.Flusher, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encode event failed", slog.String("event", event), slog.Any("error", err))
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

// ============================================================================
// OWNERSHIP
// ============================================================================

var (
	errInvalidChatID = errors.New("invalid conversation id")
	errChatNotFound  = errors.New("conversation not found")
)

// open returns the container for id if the caller may use it. A persisted
// conversation belongs to its saved owner; an unsaved one to whoever
// opened it first in this process.
func (s *Server) open(ctx context.Context, id string) (*conversation.Container, int, error) {
	if err := storage.ValidateID(id); err != nil {
		return nil, http.StatusBadRequest, errInvalidChatID
	}
	caller := userOf(ctx)

	s.mu.Lock()
	owner, known := s.owners[id]
	s.mu.Unlock()

	if !known {
		owner = caller
		if s.store != nil {
			chat, err := s.store.Load(ctx, id)
			switch {
			case err == nil:
				owner = chat.UserID
			case errors.Is(err, storage.ErrConversationNotFound):
			default:
				s.logger.Error("owner lookup failed", slog.String("chat_id", id), slog.Any("error", err))
				return nil, http.StatusInternalServerError, errors.New("could not load conversation")
			}
		}
		s.mu.Lock()
		if existing, raced := s.owners[id]; raced {
			owner = existing
		} else {
			s.owners[id] = owner
		}
		s.mu.Unlock()
	}

	if owner != caller {
		return nil, http.StatusNotFound, errChatNotFound
	}

	c, err := s.registry.Acquire(id)
	if err != nil {
		s.logger.Error("acquire chat failed", slog.String("chat_id", id), slog.Any("error", err))
		return nil, http.StatusInternalServerError, errors.New("could not open conversation")
	}
	return c, http.StatusOK, nil
}

func (s *Server) forget(id string) {
	s.registry.Remove(id)
	s.mu.Lock()
	delete(s.owners, id)
	s.mu.Unlock()
}

func userOf(ctx context.Context) string {
	ident, _ := session.FromContext(ctx)
	return ident.UserID
}

// ============================================================================
// HEALTH AND STATS
// ============================================================================

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	OllamaStatus string `json:"ollama_status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{Status: "ok", Version: Version, OllamaStatus: "not_configured"}

	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.health.Ping(ctx); err == nil {
			health.OllamaStatus = "ok"
		} else {
			health.OllamaStatus = "unavailable"
			health.Status = "degraded"
		}
	}

	s.writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Uptime:        time.Since(s.stats.StartTime).Round(time.Second).String(),
		TurnsStarted:  s.stats.TurnsStarted.Load(),
		TurnsFailed:   s.stats.TurnsFailed.Load(),
		ActiveStreams: s.stats.ActiveStreams.Load(),
		Conversations: s.registry.Len(),
	}
	if s.sessions != nil {
		resp.Sessions = s.sessions.ActiveCount()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the configured address and blocks until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: turn streams last as long as the model.
	}

	go s.janitor()

	s.logger.Info("server started", slog.String("addr", s.addr), slog.String("version", Version))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for open ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.once.Do(func() { close(s.stop) })
	if s.server == nil {
		return nil
	}
	s.logger.Info("server shutting down")
	return s.server.Shutdown(ctx)
}

// janitor prunes idle state until Shutdown.
func (s *Server) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.prune()
		}
	}
}

func (s *Server) prune() {
	chats := s.registry.Prune(s.idle)

	s.mu.Lock()
	for id := range s.owners {
		if _, live := s.registry.Get(id); !live {
			delete(s.owners, id)
		}
	}
	s.mu.Unlock()

	clients := s.limiter.forget(s.idle)
	sessions := 0
	if s.sessions != nil {
		sessions = s.sessions.Prune()
	}
	if chats+clients+sessions > 0 {
		s.logger.Debug("pruned idle state",
			slog.Int("conversations", chats),
			slog.Int("clients", clients),
			slog.Int("sessions", sessions))
	}
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write response failed", slog.Any("error", err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}
