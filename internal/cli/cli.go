// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
)

// Version information, overridden at build time.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command is the command to execute.
type Command int

const (
	CmdChat Command = iota
	CmdServe
	CmdAsk
	CmdHistory
	CmdToken
	CmdConfig
	CmdVersion
	CmdHelp
)

func (c Command) String() string {
	switch c {
	case CmdChat:
		return "chat"
	case CmdServe:
		return "serve"
	case CmdAsk:
		return "ask"
	case CmdHistory:
		return "history"
	case CmdToken:
		return "token"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	default:
		return "help"
	}
}

// Args holds parsed arguments.
type Args struct {
	// Global flags
	ConfigPath string
	Model      string
	Verbose    bool
	Quiet      bool
	JSON       bool
	Guest      bool
	Force      bool

	// Command-specific
	Query      string
	ChatID     string
	User       string
	Subcommand string
	Addr       string
	Limit      int
}

// boolFlags never take a value.
var boolFlags = []string{"json", "verbose", "v", "quiet", "q", "guest", "force", "help", "h", "version"}

const usageText = `cardiochat - a cardiology question and answer assistant

Usage:
  cardiochat [chat]                Interactive chat (default)
  cardiochat ask "question"        Ask a single question
  cardiochat serve                 Run the HTTP API
  cardiochat history [list]        List saved conversations
  cardiochat history show <id>     Print a saved conversation
  cardiochat history delete <id>   Delete a saved conversation
  cardiochat token <user>          Issue an API bearer token
  cardiochat config [show]         Print the effective configuration
  cardiochat config init           Write a default config file
  cardiochat config path           Print the config file path
  cardiochat version               Show version information

Chat and ask:
  --resume, -r ID     Continue a saved conversation
  --guest             Do not load or save anything

Serve:
  --addr HOST:PORT    Listen address (default from config)

History:
  --limit N           Show at most N conversations

Config:
  --force             Overwrite an existing file on init

Global flags:
  --config PATH       Config file (default ~/.cardiochat/config.toml)
  --model NAME        Override the Ollama model
  --json              JSON output (ask, history, token, config, version)
  -v, --verbose       Debug logging
  -q, --quiet         Errors only

Environment:
  CARDIOCHAT_*        Overrides any config value, e.g. CARDIOCHAT_MODEL.
                      A .env file in the working directory is read too.

Examples:
  cardiochat ask "What is a normal resting heart rate?"
  cardiochat chat --resume 0f8c2b5e
  CARDIOCHAT_JWT_SECRET=... cardiochat serve --addr :8080

Version: %s
`

// PrintUsage writes the help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// VersionInfo is the --json body of the version command.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer, jsonMode bool) error {
	info := VersionInfo{Version: Version, GitCommit: GitCommit, BuildDate: BuildDate}
	if jsonMode {
		return NewJSONResponse(CmdVersion.String(), info).Print(w)
	}
	fmt.Fprintf(w, "cardiochat version %s\n", info.Version)
	fmt.Fprintf(w, "  Git commit: %s\n", info.GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", info.BuildDate)
	return nil
}

// Parse parses argv, without the program name.
func Parse(argv []string) (Command, Args, error) {
	p := NewArgParser(argv, boolFlags...)

	args := Args{
		ConfigPath: p.Flag("config", "c"),
		Model:      p.Flag("model", "m"),
		Verbose:    p.BoolFlag("verbose", "v"),
		Quiet:      p.BoolFlag("quiet", "q"),
		JSON:       p.BoolFlag("json"),
		Guest:      p.BoolFlag("guest"),
		Force:      p.BoolFlag("force"),
		ChatID:     p.Flag("resume", "r"),
	}

	if p.BoolFlag("help", "h") {
		return CmdHelp, args, nil
	}
	if p.BoolFlag("version") {
		return CmdVersion, args, nil
	}
	if p.PositionalCount() == 0 {
		return CmdChat, args, nil
	}

	rest := p.PositionalFrom(1)
	switch cmd := strings.ToLower(p.Subcommand()); cmd {
	case "chat", "tui":
		return CmdChat, args, nil

	case "ask", "a":
		args.Query = strings.TrimSpace(strings.Join(rest, " "))
		if args.Query == "" {
			return CmdAsk, args, NewUsageError(cmd, "a question is required")
		}
		return CmdAsk, args, nil

	case "serve", "server":
		args.Addr = p.Flag("addr")
		return CmdServe, args, nil

	case "history", "h":
		args.Subcommand = "list"
		if len(rest) > 0 {
			args.Subcommand = strings.ToLower(rest[0])
		}
		args.Limit = p.FlagIntOrDefault("limit", 0)
		switch args.Subcommand {
		case "list", "ls":
			args.Subcommand = "list"
		case "show", "delete", "rm":
			if args.Subcommand == "rm" {
				args.Subcommand = "delete"
			}
			if len(rest) < 2 {
				return CmdHistory, args, NewUsageError("history "+args.Subcommand, "a conversation id is required")
			}
			args.ChatID = rest[1]
		default:
			return CmdHistory, args, NewUsageError("history", fmt.Sprintf("unknown subcommand %q", args.Subcommand))
		}
		return CmdHistory, args, nil

	case "token":
		if len(rest) == 0 {
			return CmdToken, args, NewUsageError(cmd, "a user id is required")
		}
		args.User = rest[0]
		return CmdToken, args, nil

	case "config":
		args.Subcommand = "show"
		if len(rest) > 0 {
			args.Subcommand = strings.ToLower(rest[0])
		}
		switch args.Subcommand {
		case "show", "init", "path":
			return CmdConfig, args, nil
		default:
			return CmdConfig, args, NewUsageError("config", fmt.Sprintf("unknown subcommand %q", args.Subcommand))
		}

	case "version":
		return CmdVersion, args, nil

	case "help":
		return CmdHelp, args, nil

	default:
		return CmdHelp, args, NewUsageError(cmd, "unknown command")
	}
}
