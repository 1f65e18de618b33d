// Package config loads, normalizes, and validates the TOML configuration that
// drives the script structuring pipeline: data directories, LLM connection
// settings, stage tuning, chunker budgets, and cache tier sizing.
package config
