package config

import (
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateChunker(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLLM() error {
	if !strings.HasPrefix(c.LLM.BaseURL, "http://") && !strings.HasPrefix(c.LLM.BaseURL, "https://") {
		return fmt.Errorf("llm.base_url must be an http(s) URL, got %q", c.LLM.BaseURL)
	}
	if c.LLM.TimeoutSeconds > 600 {
		return fmt.Errorf("llm.timeout_seconds must be at most 600, got %d", c.LLM.TimeoutSeconds)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.MaxConcurrentCalls > 32 {
		return fmt.Errorf("pipeline.max_concurrent_calls must be at most 32, got %d", c.Pipeline.MaxConcurrentCalls)
	}
	if c.Pipeline.MaxRetries > 10 {
		return fmt.Errorf("pipeline.max_retries must be at most 10, got %d", c.Pipeline.MaxRetries)
	}
	return nil
}

func (c *Config) validateChunker() error {
	if c.Chunker.MinChunkChars >= c.Chunker.MaxChunkChars {
		return fmt.Errorf(
			"chunker.min_chunk_chars (%d) must be smaller than chunker.max_chunk_chars (%d)",
			c.Chunker.MinChunkChars, c.Chunker.MaxChunkChars,
		)
	}
	if c.Chunker.ContextTailChars > c.Chunker.MaxChunkChars {
		return fmt.Errorf(
			"chunker.context_tail_chars (%d) must not exceed chunker.max_chunk_chars (%d)",
			c.Chunker.ContextTailChars, c.Chunker.MaxChunkChars,
		)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

// RequireAPIKey fails when no API key is configured; commands that reach the
// completion endpoint call this before doing any work.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.LLM.APIKey) != "" {
		return nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = "~/.config/scriptforge/config.toml"
	}
	return fmt.Errorf("llm.api_key is required. Set SCRIPTFORGE_API_KEY or edit %s (create with 'scriptforge config init')", defaultPath)
}
