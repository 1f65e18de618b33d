package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// LLM contains connection settings for the text completion endpoint.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Pipeline contains tuning for the staged orchestrator.
type Pipeline struct {
	// MaxConcurrentCalls bounds in-flight completion requests. Defaults to 1
	// to respect provider rate limits.
	MaxConcurrentCalls int `toml:"max_concurrent_calls"`
	// MaxRetries is the per-sub-task retry ceiling before a task is flagged
	// for human intervention.
	MaxRetries int `toml:"max_retries"`
	// RetryDelaySeconds is the fixed delay between shot generation attempts.
	RetryDelaySeconds int `toml:"retry_delay_seconds"`
	// BatchThreshold is the largest remaining entity count still extracted in
	// a single batched call; above it extraction goes entity by entity.
	BatchThreshold int `toml:"batch_threshold"`
	// MetadataPrefixChars bounds how much of the script the metadata stage
	// sends to the model.
	MetadataPrefixChars int `toml:"metadata_prefix_chars"`
}

// Chunker contains text segmentation budgets.
type Chunker struct {
	MaxChunkChars      int `toml:"max_chunk_chars"`
	MinChunkChars      int `toml:"min_chunk_chars"`
	ContextTailChars   int `toml:"context_tail_chars"`
	MinBoundarySpacing int `toml:"min_boundary_spacing"`
}

// Cache contains multi-level cache tier sizing.
type Cache struct {
	MemoryTTLSeconds int `toml:"memory_ttl_seconds"`
	MemoryCapacity   int `toml:"memory_capacity"`
	StoreTTLSeconds  int `toml:"store_ttl_seconds"`
	StoreCapacity    int `toml:"store_capacity"`
	RemoteTTLSeconds int `toml:"remote_ttl_seconds"`
}

// Pricing contains per-1k-token rates used for running cost estimates.
type Pricing struct {
	PromptPer1K     float64 `toml:"prompt_per_1k"`
	CompletionPer1K float64 `toml:"completion_per_1k"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for scriptforge.
type Config struct {
	Paths    Paths    `toml:"paths"`
	LLM      LLM      `toml:"llm"`
	Pipeline Pipeline `toml:"pipeline"`
	Chunker  Chunker  `toml:"chunker"`
	Cache    Cache    `toml:"cache"`
	Pricing  Pricing  `toml:"pricing"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/scriptforge/config.toml")
}

// Load locates, parses, normalizes, and validates a configuration file. When
// no file exists the defaults are used. The second return is the resolved
// path, the third reports whether a file was found.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if _, err := os.Stat(defaultPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return defaultPath, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	return defaultPath, true, nil
}

// WriteSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("ensure config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// EnsureDirectories creates the configured data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		trimmed = filepath.Join(home, trimmed[2:])
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", trimmed, err)
	}
	return abs, nil
}
