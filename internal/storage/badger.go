// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/jeranaias/cardiochat/internal/model"
)

// =============================================================================
// BADGER STORE
// =============================================================================

// Key layout:
//
//	chat:{id}             JSON-encoded model.Chat
//	owner:{userID}:{id}   empty marker used for listing
const (
	chatPrefix  = "chat:"
	ownerPrefix = "owner:"
)

func chatKey(id string) []byte { return []byte(chatPrefix + id) }

func ownerKey(userID, id string) []byte { return []byte(ownerPrefix + userID + ":" + id) }

// BadgerStore keeps conversations in an embedded Badger database.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewBadgerStore opens (creating if needed) a Badger database in dir.
func NewBadgerStore(dir string, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{logger})
	return openBadger(opts, logger)
}

// NewInMemoryBadgerStore opens a Badger database that lives only in memory.
func NewInMemoryBadgerStore(logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(badgerLogger{logger})
	return openBadger(opts, logger)
}

func openBadger(opts badger.Options, logger *slog.Logger) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

// Save upserts the conversation and its owner index entry.
func (s *BadgerStore) Save(ctx context.Context, chat *model.Chat) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateChat(chat); err != nil {
		return err
	}

	data, err := json.Marshal(chat)
	if err != nil {
		return fmt.Errorf("encode chat %s: %w", chat.ID, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		prev, err := getChat(txn, chat.ID)
		switch {
		case err == nil && prev.UserID != chat.UserID:
			if err := txn.Delete(ownerKey(prev.UserID, prev.ID)); err != nil {
				return err
			}
		case err != nil && !errors.Is(err, ErrConversationNotFound):
			return err
		}
		if err := txn.Set(chatKey(chat.ID), data); err != nil {
			return err
		}
		return txn.Set(ownerKey(chat.UserID, chat.ID), nil)
	})
}

// Load retrieves a conversation by id.
func (s *BadgerStore) Load(ctx context.Context, id string) (*model.Chat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	var chat *model.Chat
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		chat, err = getChat(txn, id)
		return err
	})
	return chat, err
}

// List returns the conversations owned by userID, most recent first.
func (s *BadgerStore) List(ctx context.Context, userID string) ([]ChatMeta, error) {
	metas := []ChatMeta{}
	prefix := []byte(ownerPrefix + userID + ":")

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			id := string(it.Item().Key()[len(prefix):])
			chat, err := getChat(txn, id)
			if err != nil {
				s.logger.Warn("skipping unreadable chat", slog.String("chat_id", id), slog.Any("error", err))
				continue
			}
			if chat.UserID != userID {
				continue
			}
			metas = append(metas, MetaOf(chat))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sortMetas(metas), nil
}

// Delete removes a conversation by id.
func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateID(id); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		chat, err := getChat(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(ownerKey(chat.UserID, id)); err != nil {
			return err
		}
		return txn.Delete(chatKey(id))
	})
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func getChat(txn *badger.Txn, id string) (*model.Chat, error) {
	item, err := txn.Get(chatKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	var chat model.Chat
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &chat)
	})
	if err != nil {
		return nil, fmt.Errorf("decode chat %s: %w", id, err)
	}
	return &chat, nil
}

// badgerLogger routes Badger's internal logging to slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error("badger: " + fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn("badger: " + fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug("badger: " + fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug("badger: " + fmt.Sprintf(format, args...))
}
