// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/jeranaias/cardiochat/internal/model"
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store persists conversations. Save is an upsert by id, so repeating an
// identical save leaves the store unchanged.
type Store interface {
	Save(ctx context.Context, chat *model.Chat) error
	Load(ctx context.Context, id string) (*model.Chat, error)
	List(ctx context.Context, userID string) ([]ChatMeta, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// ChatMeta contains metadata for listing conversations.
type ChatMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	UserID       string    `json:"userId"`
	CreatedAt    time.Time `json:"createdAt"`
	Path         string    `json:"path"`
	MessageCount int       `json:"messageCount"`
}

// MetaOf returns the listing metadata of chat.
func MetaOf(chat *model.Chat) ChatMeta {
	return ChatMeta{
		ID:           chat.ID,
		Title:        chat.Title,
		UserID:       chat.UserID,
		CreatedAt:    chat.CreatedAt,
		Path:         chat.Path,
		MessageCount: len(chat.Messages),
	}
}

// sortMetas orders metas most recent first, breaking ties by id.
func sortMetas(metas []ChatMeta) []ChatMeta {
	sort.SliceStable(metas, func(i, j int) bool {
		if !metas[i].CreatedAt.Equal(metas[j].CreatedAt) {
			return metas[i].CreatedAt.After(metas[j].CreatedAt)
		}
		return metas[i].ID < metas[j].ID
	})
	return metas
}

// ownedBy keeps the metas belonging to userID.
func ownedBy(metas []ChatMeta, userID string) []ChatMeta {
	return lo.Filter(metas, func(m ChatMeta, _ int) bool { return m.UserID == userID })
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateID rejects ids that are empty or unsafe as file names.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func validateChat(chat *model.Chat) error {
	if chat == nil {
		return fmt.Errorf("%w: nil chat", ErrInvalidChat)
	}
	if err := ValidateID(chat.ID); err != nil {
		return err
	}
	if chat.UserID == "" {
		return fmt.Errorf("%w: chat %s has no owner", ErrInvalidChat, chat.ID)
	}
	return nil
}

// =============================================================================
// ERRORS
// =============================================================================

// Sentinel errors. Use errors.Is to check for them.
var (
	ErrConversationNotFound = &ConversationError{Message: "conversation not found"}
	ErrInvalidID            = &ConversationError{Message: "invalid conversation id"}
	ErrInvalidChat          = &ConversationError{Message: "invalid conversation"}
	ErrUnknownBackend       = &ConversationError{Message: "unknown storage backend"}
)

// ConversationError represents a conversation-related error.
type ConversationError struct {
	Message string
}

// Error implements the error interface.
func (e *ConversationError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing conversation errors.
func (e *ConversationError) Is(target error) bool {
	t, ok := target.(*ConversationError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// BACKEND SELECTION
// =============================================================================

// Backend names.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Config selects and locates a storage backend.
type Config struct {
	Backend string
	Dir     string
}

// Open creates the store named by cfg.Backend under cfg.Dir.
func Open(cfg Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	switch cfg.Backend {
	case BackendFile, "":
		return NewFileStore(filepath.Join(cfg.Dir, "conversations"), logger)
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(cfg.Dir, "cardiochat.db"), logger)
	case BackendBadger:
		return NewBadgerStore(filepath.Join(cfg.Dir, "badger"), logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
