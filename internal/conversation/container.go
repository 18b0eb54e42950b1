// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:generate go run go.uber.org/mock/mockgen -source=container.go -destination=../mocks/mock_conversation.go -package=mocks

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/cardiochat/internal/generator"
	"github.com/jeranaias/cardiochat/internal/model"
	"github.com/jeranaias/cardiochat/internal/render"
	"github.com/jeranaias/cardiochat/internal/session"
	"github.com/jeranaias/cardiochat/internal/storage"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Authenticator reports the session behind a request, if any.
type Authenticator interface {
	CurrentSession(ctx context.Context) (session.Identity, bool)
}

// Store persists conversations.
type Store interface {
	Save(ctx context.Context, chat *model.Chat) error
	Load(ctx context.Context, id string) (*model.Chat, error)
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrTurnInFlight is returned when a turn is submitted while another
	// turn of the same conversation is still running.
	ErrTurnInFlight = errors.New("a turn is already in progress for this conversation")

	// ErrClosed is returned after the container has been closed.
	ErrClosed = errors.New("conversation closed")

	// ErrEmptyInput is returned for blank submissions.
	ErrEmptyInput = errors.New("message text is empty")

	// ErrChatMismatch is returned when a container is asked to load a
	// conversation other than the one it was created for.
	ErrChatMismatch = errors.New("container is bound to another conversation")

	// ErrNotOwner is recorded when a save is skipped because the
	// conversation belongs to another user.
	ErrNotOwner = errors.New("conversation belongs to another user")
)

// =============================================================================
// CONTAINER
// =============================================================================

// Options configures a Container.
type Options struct {
	// ChatID is the conversation id. Empty means a fresh id.
	ChatID string

	Generator *generator.Generator

	// Auth defaults to session.Guest, which never loads or saves.
	Auth Authenticator

	// Store may be nil, in which case nothing is persisted.
	Store Store

	Logger *slog.Logger
}

// Container binds one conversation: its committed Message Log, its Render
// State and the one turn that may be in flight.
//
// A submitted turn holds the user message as pending. The log only grows
// when the turn settles, by the user message plus the assistant output in
// one step. A failed turn leaves the log exactly as it was.
type Container struct {
	mu sync.Mutex

	log       model.Log
	ui        *render.Timeline
	createdAt time.Time
	inFlight  *generator.Turn
	lastUsed  time.Time
	saveErr   error
	closed    bool

	gen    *generator.Generator
	auth   Authenticator
	store  Store
	logger *slog.Logger
}

// New creates a container with an empty log and an empty Render State.
func New(opts Options) (*Container, error) {
	if opts.Generator == nil {
		return nil, errors.New("conversation: generator is required")
	}
	if opts.ChatID == "" {
		opts.ChatID = model.NewID()
	} else if err := storage.ValidateID(opts.ChatID); err != nil {
		return nil, err
	}
	if opts.Auth == nil {
		opts.Auth = session.Guest{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	now := time.Now().UTC()
	return &Container{
		log:       model.Log{ChatID: opts.ChatID, Messages: []model.Message{}},
		ui:        render.NewTimeline(nil),
		createdAt: now,
		lastUsed:  now,
		gen:       opts.Generator,
		auth:      opts.Auth,
		store:     opts.Store,
		logger:    opts.Logger,
	}, nil
}

// ID returns the conversation id.
func (c *Container) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log.ChatID
}

// Log returns the committed Message Log.
func (c *Container) Log() model.Log {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log
}

// UIState returns the conversation's Render State.
func (c *Container) UIState() *render.Timeline {
	return c.ui
}

// LastSaveError returns the error of the most recent save, or nil.
func (c *Container) LastSaveError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveErr
}

// InFlight reports whether a turn is running.
func (c *Container) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busyLocked()
}

func (c *Container) busyLocked() bool {
	if c.inFlight == nil {
		return false
	}
	select {
	case <-c.inFlight.Done():
		return false
	default:
		return true
	}
}

// SubmitTurn starts an assistant turn for text and returns its render unit
// right away. The unit's display is live until the turn settles or fails.
// A second submission while a turn is running returns ErrTurnInFlight.
func (c *Container) SubmitTurn(ctx context.Context, text string) (render.Unit, error) {
	if strings.TrimSpace(text) == "" {
		return render.Unit{}, ErrEmptyInput
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return render.Unit{}, ErrClosed
	}
	if c.busyLocked() {
		c.mu.Unlock()
		return render.Unit{}, ErrTurnInFlight
	}

	pending := c.log.Append(model.NewUserMessage(text))
	turn := generator.NewTurn(pending, c.settled)
	c.inFlight = turn
	c.lastUsed = time.Now()
	id := render.UnitID(pending.ChatID, visibleCount(pending))
	c.mu.Unlock()

	live := c.gen.Start(ctx, turn)
	return render.Unit{ID: id, Display: live}, nil
}

// settled commits a finished turn's log and persists it.
func (c *Container) settled(ctx context.Context, log model.Log) {
	c.mu.Lock()
	c.log = log
	c.lastUsed = time.Now()
	c.mu.Unlock()

	c.OnSettle(ctx, log)
}

// Wait blocks until the in-flight turn, if any, is finished and returns
// its failure.
func (c *Container) Wait(ctx context.Context) error {
	c.mu.Lock()
	turn := c.inFlight
	c.mu.Unlock()
	if turn == nil {
		return nil
	}

	select {
	case <-turn.Done():
		_, err := turn.Result()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects further submissions. A running turn is left to finish.
func (c *Container) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// IdleSince returns when the container last accepted or finished a turn.
func (c *Container) IdleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

// =============================================================================
// LIFECYCLE HOOKS
// =============================================================================

// OnLoad rehydrates the container from the persisted conversation id and
// returns its Render State. Unauthorized callers, unknown ids and
// conversations owned by someone else all yield an empty state and no
// error.
//
// The persisted log is adopted only when it extends the log in memory. A
// container that is ahead of the store, for example after a failed save,
// keeps its log and returns its current Render State.
func (c *Container) OnLoad(ctx context.Context, id string) (render.State, error) {
	if bound := c.ID(); id != bound {
		return nil, fmt.Errorf("load chat %s into %s: %w", id, bound, ErrChatMismatch)
	}

	ident, ok := c.auth.CurrentSession(ctx)
	if !ok {
		c.logger.Debug("load skipped: no session", slog.String("chat_id", id))
		return nil, nil
	}
	if c.store == nil {
		return nil, nil
	}

	chat, err := c.store.Load(ctx, id)
	switch {
	case errors.Is(err, storage.ErrConversationNotFound), errors.Is(err, storage.ErrInvalidID):
		c.logger.Debug("load skipped: not found", slog.String("chat_id", id))
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("load chat %s: %w", id, err)
	}
	if chat.UserID != ident.UserID {
		c.logger.Debug("load skipped: not owner", slog.String("chat_id", id))
		return nil, nil
	}

	persisted := chat.Log()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busyLocked() {
		return nil, ErrTurnInFlight
	}
	if !c.log.IsEmpty() {
		switch {
		case !persisted.Extends(c.log):
			c.logger.Warn("stored chat is behind memory, keeping memory",
				slog.String("chat_id", id),
				slog.Int("stored", persisted.Len()),
				slog.Int("memory", c.log.Len()))
			return c.ui.Units(), nil
		case persisted.Len() == c.log.Len():
			return c.ui.Units(), nil
		}
	}

	state := render.Project(persisted)
	c.log = persisted
	c.createdAt = chat.CreatedAt
	c.ui.Reset(state)

	return state, nil
}

// OnSettle persists log for the current session. It does nothing for
// guests. Failures are logged and kept for LastSaveError; the in-memory
// log stays authoritative.
func (c *Container) OnSettle(ctx context.Context, log model.Log) {
	ident, ok := c.auth.CurrentSession(ctx)
	if !ok {
		c.logger.Debug("save skipped: no session", slog.String("chat_id", log.ChatID))
		return
	}
	if c.store == nil {
		return
	}

	// The save must outlive the request that triggered the turn.
	ctx = context.WithoutCancel(ctx)

	c.mu.Lock()
	createdAt := c.createdAt
	c.mu.Unlock()

	err := c.checkOwner(ctx, log.ChatID, ident.UserID)
	if err == nil {
		err = c.store.Save(ctx, &model.Chat{
			ID:        log.ChatID,
			Title:     model.DeriveTitle(log),
			UserID:    ident.UserID,
			CreatedAt: createdAt,
			Messages:  log.Messages,
			Path:      model.ChatPath(log.ChatID),
		})
	}

	c.mu.Lock()
	c.saveErr = err
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("chat save failed",
			slog.String("chat_id", log.ChatID),
			slog.String("user_id", ident.UserID),
			slog.Int("messages", log.Len()),
			slog.Any("error", err))
		return
	}
	c.logger.Info("chat saved",
		slog.String("chat_id", log.ChatID),
		slog.String("user_id", ident.UserID),
		slog.Int("messages", log.Len()))
}

// checkOwner refuses to overwrite a conversation saved by another user.
func (c *Container) checkOwner(ctx context.Context, id, userID string) error {
	existing, err := c.store.Load(ctx, id)
	switch {
	case errors.Is(err, storage.ErrConversationNotFound):
		return nil
	case err != nil:
		return err
	case existing.UserID != userID:
		return ErrNotOwner
	default:
		return nil
	}
}

// visibleCount counts the messages the projector turns into positions.
func visibleCount(log model.Log) int {
	n := 0
	for _, msg := range log.Messages {
		if msg.Role != model.RoleSystem {
			n++
		}
	}
	return n
}
