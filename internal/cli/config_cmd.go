// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/cardiochat/internal/config"
)

// =============================================================================
// CONFIG COMMAND
// =============================================================================

const maskedSecret = "********"

// configFile is the path config init writes and config path prints.
func configFile(args Args) (string, error) {
	if args.ConfigPath != "" {
		return args.ConfigPath, nil
	}
	return config.ConfigPath()
}

// HandleConfigInit writes the default configuration. An existing file is
// kept unless --force is given.
func HandleConfigInit(args Args, out io.Writer) error {
	path, err := configFile(args)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !args.Force {
		return NewUsageError("config init", path+" already exists; pass --force to overwrite")
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err := config.SaveTOML(config.Default(), path); err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("config init", map[string]string{"path": path}).Print(out)
	}
	fmt.Fprintln(out, SuccessStyle.Render("Wrote")+" "+path)
	return nil
}

// HandleConfig prints the effective configuration or its path. The jwt
// secret is masked.
func HandleConfig(cfg *config.Config, args Args, out io.Writer) error {
	if args.Subcommand == "path" {
		path, err := configFile(args)
		if err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse("config path", map[string]string{"path": path}).Print(out)
		}
		fmt.Fprintln(out, path)
		return nil
	}

	shown := *cfg
	if shown.Auth.JWTSecret != "" {
		shown.Auth.JWTSecret = maskedSecret
	}
	if args.JSON {
		return NewJSONResponse("config show", shown).Print(out)
	}
	return toml.NewEncoder(out).Encode(shown)
}
