// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for omnichat.
//
// Configuration is TOML with sensible defaults, environment variable
// overrides, and validation. A file watcher reloads edits live.
//
// Configuration file location:
//   - ~/.omnichat/config.toml
//
// Environment overrides include OMNICHAT_PROVIDER and the standard
// per-provider key variables (GEMINI_API_KEY, OPENAI_API_KEY, ...).
package config
