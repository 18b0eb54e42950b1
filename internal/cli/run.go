// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"io"
	"os"
)

// Run executes the command named by argv and returns the exit code.
func Run(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	cmd, args, err := Parse(argv)
	if err != nil {
		DisplayError(stderr, cmd.String(), err, args.JSON)
		return GetExitCode(err)
	}

	if err := dispatch(ctx, cmd, args, stdout, stderr); err != nil {
		DisplayError(stderr, cmd.String(), err, args.JSON)
		return GetExitCode(err)
	}
	return ExitSuccess
}

func dispatch(ctx context.Context, cmd Command, args Args, stdout, stderr io.Writer) error {
	switch cmd {
	case CmdHelp:
		PrintUsage(stdout)
		return nil
	case CmdVersion:
		return PrintVersion(stdout, args.JSON)
	case CmdConfig:
		if args.Subcommand == "init" {
			return HandleConfigInit(args, stdout)
		}
	}

	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	switch cmd {
	case CmdToken:
		return HandleToken(cfg, args, stdout)
	case CmdConfig:
		return HandleConfig(cfg, args, stdout)
	}

	target := LogStderr
	switch cmd {
	case CmdServe:
		target = LogStdout
	case CmdChat:
		target = LogFile
	}

	app, err := NewApp(cfg, target)
	if err != nil {
		return err
	}
	defer app.Close()

	switch cmd {
	case CmdServe:
		return HandleServe(ctx, app, args)
	case CmdAsk:
		return HandleAsk(ctx, app, args, stdout)
	case CmdHistory:
		return HandleHistory(ctx, app, args, stdout)
	default:
		return HandleChat(ctx, app, args)
	}
}

// Main runs the command line of the current process.
func Main(ctx context.Context) int {
	return Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}
