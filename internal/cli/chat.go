// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/cardiochat/internal/ui/chat"
	"github.com/jeranaias/cardiochat/internal/ui/styles"
)

// settleTimeout bounds how long quitting waits for a running turn to save.
const settleTimeout = 10 * time.Second

// HandleChat runs the interactive chat view until the user quits.
func HandleChat(ctx context.Context, app *App, args Args) error {
	if !IsTTY() {
		return NewUsageError(CmdChat.String(), "an interactive terminal is required; use 'cardiochat ask' instead")
	}

	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := app.Ollama.Ping(checkCtx); err != nil {
		return err
	}

	conv, err := app.NewConversation(args.ChatID, app.LocalAuth(args.Guest))
	if err != nil {
		return err
	}

	userID := ""
	if !args.Guest {
		userID = app.Config.Auth.LocalUser
	}
	m := chat.New(ctx, chat.Options{
		Conversation: conv,
		Resume:       args.ChatID,
		ModelName:    app.Config.Model.Name,
		UserID:       userID,
		Theme:        styles.NewTheme(),
		Logger:       app.Logger,
	})

	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("chat view: %w", err)
	}

	// Let a running answer settle so it is saved.
	waitCtx, cancelWait := context.WithTimeout(context.Background(), settleTimeout)
	defer cancelWait()
	if err := conv.Wait(waitCtx); err != nil {
		app.Logger.Warn("turn did not finish before exit", slog.Any("error", err))
	}

	if userID != "" && conv.Log().Len() > 0 {
		fmt.Println(DimStyle.Render("Conversation " + conv.ID() + " saved. Resume with: cardiochat chat --resume " + conv.ID()))
	}
	return nil
}
