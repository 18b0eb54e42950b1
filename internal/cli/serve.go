// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jeranaias/cardiochat/internal/conversation"
	"github.com/jeranaias/cardiochat/internal/server"
	"github.com/jeranaias/cardiochat/internal/session"
)

const shutdownTimeout = 15 * time.Second

// HandleServe runs the HTTP API until ctx is cancelled.
func HandleServe(ctx context.Context, app *App, args Args) error {
	cfg := app.Config

	var sessions *session.Manager
	if cfg.Auth.JWTSecret != "" {
		m, err := session.NewManager(cfg.SessionSettings())
		if err != nil {
			return err
		}
		sessions = m
	} else {
		app.Logger.Warn("no jwt secret configured, every request is served as a guest")
	}

	registry := conversation.NewRegistry(func(id string) (*conversation.Container, error) {
		return app.NewConversation(id, session.ContextAuthenticator{})
	})

	addr := cfg.ServerAddr()
	if args.Addr != "" {
		addr = args.Addr
	}

	srv := server.New(server.Options{
		Addr:          addr,
		Registry:      registry,
		Store:         app.Store,
		Sessions:      sessions,
		Health:        app.Ollama,
		RateLimit:     cfg.Server.RateLimit,
		RateBurst:     cfg.Server.RateBurst,
		AllowedOrigin: cfg.Server.AllowedOrigin,
		Logger:        app.Logger,
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		app.Logger.Info("shutting down gracefully")
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errChan; err != nil {
		return err
	}
	app.Logger.Info("server stopped cleanly", slog.Int("conversations", registry.Len()))
	return nil
}
