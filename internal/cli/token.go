// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/jeranaias/cardiochat/internal/config"
	"github.com/jeranaias/cardiochat/internal/session"
)

// TokenResult is the --json body of the token command.
type TokenResult struct {
	User      string    `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HandleToken issues a bearer token for the API server. The server must
// run with the same jwt secret.
func HandleToken(cfg *config.Config, args Args, out io.Writer) error {
	manager, err := session.NewManager(cfg.SessionSettings())
	if err != nil {
		return err
	}
	token, err := manager.Issue(args.User)
	if err != nil {
		return err
	}

	result := TokenResult{
		User:      args.User,
		Token:     token,
		ExpiresAt: time.Now().Add(cfg.Auth.TokenTTL).UTC().Truncate(time.Second),
	}
	if args.JSON {
		return NewJSONResponse(CmdToken.String(), result).Print(out)
	}
	fmt.Fprintln(out, token)
	return nil
}
