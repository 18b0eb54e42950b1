// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/cardiochat/internal/model"
	"github.com/jeranaias/cardiochat/internal/render"
	"github.com/jeranaias/cardiochat/internal/storage"
)

// =============================================================================
// HISTORY COMMAND
// =============================================================================

// HistoryChat is the --json body of history show.
type HistoryChat struct {
	storage.ChatMeta
	Units render.State `json:"units"`
}

// HandleHistory lists, shows or deletes the local user's conversations.
func HandleHistory(ctx context.Context, app *App, args Args, out io.Writer) error {
	user := app.Config.Auth.LocalUser

	switch args.Subcommand {
	case "show":
		chat, err := loadOwned(ctx, app.Store, args.ChatID, user)
		if err != nil {
			return err
		}
		units := render.Project(chat.Log())
		if args.JSON {
			return NewJSONResponse("history show", HistoryChat{ChatMeta: storage.MetaOf(chat), Units: units}).Print(out)
		}
		printChat(out, chat, units, TerminalWidth())
		return nil

	case "delete":
		if _, err := loadOwned(ctx, app.Store, args.ChatID, user); err != nil {
			return err
		}
		if err := app.Store.Delete(ctx, args.ChatID); err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse("history delete", map[string]string{"id": args.ChatID}).Print(out)
		}
		fmt.Fprintln(out, SuccessStyle.Render("Deleted")+" "+args.ChatID)
		return nil

	default:
		metas, err := app.Store.List(ctx, user)
		if err != nil {
			return err
		}
		if args.Limit > 0 && len(metas) > args.Limit {
			metas = metas[:args.Limit]
		}
		if args.JSON {
			return NewJSONResponse("history list", metas).Print(out)
		}
		printHistory(out, metas, TerminalWidth())
		return nil
	}
}

// loadOwned loads id and hides conversations of other users as not found.
func loadOwned(ctx context.Context, store storage.Store, id, user string) (*model.Chat, error) {
	chat, err := store.Load(ctx, id)
	if errors.Is(err, storage.ErrConversationNotFound) || errors.Is(err, storage.ErrInvalidID) {
		return nil, &NotFoundError{Resource: "conversation", ID: id}
	}
	if err != nil {
		return nil, err
	}
	if chat.UserID != user {
		return nil, &NotFoundError{Resource: "conversation", ID: id}
	}
	return chat, nil
}

const (
	idColumn    = 12
	dateColumn  = 16
	countColumn = 5
)

func printHistory(out io.Writer, metas []storage.ChatMeta, width int) {
	if len(metas) == 0 {
		fmt.Fprintln(out, DimStyle.Render("No saved conversations."))
		return
	}

	titleWidth := max(width-idColumn-dateColumn-countColumn-6, 10)
	fmt.Fprintln(out, TitleStyle.Render(fmt.Sprintf("Conversations (%d)", len(metas))))
	for _, m := range metas {
		id := runewidth.Truncate(m.ID, idColumn, "")
		title := runewidth.FillRight(runewidth.Truncate(m.Title, titleWidth, "..."), titleWidth)
		fmt.Fprintf(out, "%s  %s  %s  %s\n",
			DimStyle.Render(runewidth.FillRight(id, idColumn)),
			ValueStyle.Render(title),
			DimStyle.Render(m.CreatedAt.Local().Format("2006-01-02 15:04")),
			DimStyle.Render(fmt.Sprintf("%*d", countColumn, m.MessageCount)),
		)
	}
}

func printChat(out io.Writer, chat *model.Chat, units render.State, width int) {
	fmt.Fprintln(out, TitleStyle.Render(chat.Title))
	fmt.Fprintln(out, LabelStyle.Render("Id")+ValueStyle.Render(chat.ID))
	fmt.Fprintln(out, LabelStyle.Render("Created")+ValueStyle.Render(chat.CreatedAt.Local().Format("2006-01-02 15:04")))
	fmt.Fprintln(out)

	views := make([]string, 0, len(units))
	for _, u := range units.Visible() {
		if v := u.View(width); v != "" {
			views = append(views, v)
		}
	}
	fmt.Fprintln(out, strings.Join(views, "\n\n"))
}
