// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads cardiochat settings.
//
// Sources, strongest first: CARDIOCHAT_* environment variables (a .env file
// in the working directory is read into the environment first), the TOML
// file named by --config or ~/.cardiochat/config.toml, then Default().
// Load validates the merged result and reports every bad field at once.
//
//	cfg, err := config.Load()
//	gen := generator.New(provider, cfg.GeneratorSettings(), logger)
package config
