// Package config handles configuration loading for familiar.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package provides validation and sensible defaults; a
// missing config file is not an error (LoadOrDefault falls back to
// Default), but a present-and-broken one is.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from FAMILIAR_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/familiar/familiar.yaml
//  3. ~/.config/familiar/familiar.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	completion:
//	  api_key: ${GEMINI_API_KEY}
//
// Unset variables expand to the empty string. An empty api_key is valid:
// the server runs without a completion session and silently ignores chat
// submissions.
//
// # Sections
//
//   - server: the HTTP listen address.
//   - widget: user-facing texts (title, greeting, error text, input
//     placeholder) and the mount path. Fixed for the process lifetime.
//   - completion: provider (gemini or openai), model, API key, system
//     instruction, and an optional base URL for OpenAI-compatible
//     endpoints.
//   - logging: level and format (colorized text or JSON).
package config
