// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation persistence.
//
// Three backends implement Store: FileStore (one JSON file per
// conversation, written atomically), SQLiteStore and BadgerStore. All of
// them upsert by conversation id and list by owner.
//
// # Usage
//
//	store, err := storage.Open(storage.Config{Backend: "sqlite", Dir: dir}, logger)
//	err = store.Save(ctx, chat)
//	metas, err := store.List(ctx, userID)
//
// # Storage Location
//
// The default directory is ~/.cardiochat/data.
package storage
