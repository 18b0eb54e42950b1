// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/cardiochat/internal/model"
)

// =============================================================================
// SQLITE STORE
// =============================================================================

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chats (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	title         TEXT NOT NULL,
	path          TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	message_count INTEGER NOT NULL,
	messages      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chats_user ON chats(user_id, created_at DESC);
`

const sqliteUpsert = `
INSERT INTO chats (id, user_id, title, path, created_at, message_count, messages)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	user_id = excluded.user_id,
	title = excluded.title,
	path = excluded.path,
	created_at = excluded.created_at,
	message_count = excluded.message_count,
	messages = excluded.messages`

// SQLiteStore keeps conversations in a single SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Save upserts the conversation.
func (s *SQLiteStore) Save(ctx context.Context, chat *model.Chat) error {
	if err := validateChat(chat); err != nil {
		return err
	}

	messages, err := json.Marshal(chat.Messages)
	if err != nil {
		return fmt.Errorf("encode chat %s: %w", chat.ID, err)
	}

	_, err = s.db.ExecContext(ctx, sqliteUpsert,
		chat.ID, chat.UserID, chat.Title, chat.Path,
		chat.CreatedAt.UTC().Format(time.RFC3339Nano),
		len(chat.Messages), string(messages))
	if err != nil {
		return fmt.Errorf("save chat %s: %w", chat.ID, err)
	}
	return nil
}

// Load retrieves a conversation by id.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*model.Chat, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	var (
		chat      model.Chat
		createdAt string
		messages  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, path, created_at, messages FROM chats WHERE id = ?`, id,
	).Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.Path, &createdAt, &messages)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("load chat %s: %w", id, err)
	}

	if chat.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("chat %s: bad created_at: %w", id, err)
	}
	if err := json.Unmarshal([]byte(messages), &chat.Messages); err != nil {
		return nil, fmt.Errorf("decode chat %s: %w", id, err)
	}
	return &chat, nil
}

// List returns the conversations owned by userID, most recent first.
func (s *SQLiteStore) List(ctx context.Context, userID string) ([]ChatMeta, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, path, created_at, message_count FROM chats WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	metas := []ChatMeta{}
	for rows.Next() {
		var (
			meta      ChatMeta
			createdAt string
		)
		if err := rows.Scan(&meta.ID, &meta.UserID, &meta.Title, &meta.Path, &createdAt, &meta.MessageCount); err != nil {
			return nil, fmt.Errorf("list chats: %w", err)
		}
		if meta.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			s.logger.Warn("skipping chat with bad timestamp", slog.String("chat_id", meta.ID), slog.Any("error", err))
			continue
		}
		metas = append(metas, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return sortMetas(metas), nil
}

// Delete removes a conversation by id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete chat %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
