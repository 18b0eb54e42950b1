// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mama165/sdk-go/logs"

	"github.com/jeranaias/cardiochat/internal/config"
	"github.com/jeranaias/cardiochat/internal/conversation"
	"github.com/jeranaias/cardiochat/internal/generator"
	"github.com/jeranaias/cardiochat/internal/llm"
	"github.com/jeranaias/cardiochat/internal/ollama"
	"github.com/jeranaias/cardiochat/internal/session"
	"github.com/jeranaias/cardiochat/internal/storage"
)

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// App holds the components every command shares.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Ollama    *ollama.Client
	Generator *generator.Generator
	Store     storage.Store

	logFile *os.File
}

// LoadConfig loads the config file named by args, or the default one, and
// applies the command line overrides.
func LoadConfig(args Args) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if args.Model != "" {
		cfg.Model.Name = args.Model
	}
	switch {
	case args.Verbose:
		cfg.Log.Level = "DEBUG"
	case args.Quiet:
		cfg.Log.Level = "ERROR"
	}
	return cfg, nil
}

// LogTarget selects where an App logs.
type LogTarget int

const (
	// LogStdout logs through the shared service logger.
	LogStdout LogTarget = iota
	// LogStderr keeps stdout clean for command output.
	LogStderr
	// LogFile writes to cardiochat.log in the storage directory, for the
	// full screen chat view.
	LogFile
)

// NewApp wires the model backend, generator and store from cfg.
func NewApp(cfg *config.Config, target LogTarget) (*App, error) {
	app := &App{Config: cfg}

	switch target {
	case LogStdout:
		app.Logger = logs.GetLoggerFromString(cfg.Log.Level)
	case LogStderr:
		app.Logger = newLogger(os.Stderr, cfg.Log.Level)
	case LogFile:
		if err := os.MkdirAll(cfg.Storage.Dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(cfg.Storage.Dir, "cardiochat.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		app.logFile = f
		app.Logger = newLogger(f, cfg.Log.Level)
	}

	app.Ollama = ollama.New(ollama.Config{BaseURL: cfg.Model.OllamaURL})
	var provider llm.Provider = ollama.NewProvider(app.Ollama, cfg.Model.Name, app.Logger)
	app.Generator = generator.New(provider, cfg.GeneratorSettings(), app.Logger)

	store, err := storage.Open(cfg.StorageSettings(), app.Logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Backend, err)
	}
	app.Store = store

	return app, nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// LocalAuth returns the identity local commands run under: the configured
// local user, or no one in guest mode.
func (a *App) LocalAuth(guest bool) conversation.Authenticator {
	if guest {
		return session.Guest{}
	}
	return session.Static{UserID: a.Config.Auth.LocalUser}
}

// NewConversation creates a container for id, or a fresh id when empty.
func (a *App) NewConversation(id string, auth conversation.Authenticator) (*conversation.Container, error) {
	return conversation.New(conversation.Options{
		ChatID:    id,
		Generator: a.Generator,
		Auth:      auth,
		Store:     a.Store,
		Logger:    a.Logger,
	})
}

// Close releases the store and the log file.
func (a *App) Close() error {
	var err error
	if a.Store != nil {
		err = a.Store.Close()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
	return err
}
