// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/cardiochat/internal/model"
	"github.com/jeranaias/cardiochat/internal/util"
)

// =============================================================================
// FILE STORE
// =============================================================================

// FileStore keeps one JSON file per conversation in BaseDir.
type FileStore struct {
	BaseDir string
	logger  *slog.Logger
}

// NewFileStore creates a file store rooted at baseDir.
func NewFileStore(baseDir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{BaseDir: baseDir, logger: logger}, nil
}

// Save writes the conversation atomically, replacing any earlier version.
func (s *FileStore) Save(ctx context.Context, chat *model.Chat) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateChat(chat); err != nil {
		return err
	}

	return util.WriteJSONAtomic(s.filePath(chat.ID), 0o600, chat)
}

// Load retrieves a conversation by id.
func (s *FileStore) Load(ctx context.Context, id string) (*model.Chat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.filePath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	var chat model.Chat
	if err := json.Unmarshal(data, &chat); err != nil {
		return nil, fmt.Errorf("decode chat %s: %w", id, err)
	}
	return &chat, nil
}

// List returns the conversations owned by userID, most recent first.
// Corrupted files are skipped.
func (s *FileStore) List(ctx context.Context, userID string) ([]ChatMeta, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []ChatMeta{}, nil
		}
		return nil, err
	}

	metas := []ChatMeta{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")

		chat, err := s.Load(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("skipping unreadable chat", slog.String("chat_id", id), slog.Any("error", err))
			continue
		}
		metas = append(metas, MetaOf(chat))
	}

	return sortMetas(ownedBy(metas, userID)), nil
}

// Delete removes a conversation by id.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := os.Remove(s.filePath(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrConversationNotFound
		}
		return err
	}
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) filePath(id string) string {
	return filepath.Join(s.BaseDir, id+".json")
}
