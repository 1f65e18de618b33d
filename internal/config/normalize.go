package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizePipeline()
	c.normalizeChunker()
	c.normalizeCache()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = strings.TrimSpace(os.Getenv("SCRIPTFORGE_API_KEY"))
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.MaxConcurrentCalls <= 0 {
		c.Pipeline.MaxConcurrentCalls = defaultMaxConcurrentCalls
	}
	if c.Pipeline.MaxRetries <= 0 {
		c.Pipeline.MaxRetries = defaultMaxRetries
	}
	if c.Pipeline.RetryDelaySeconds <= 0 {
		c.Pipeline.RetryDelaySeconds = defaultRetryDelaySeconds
	}
	if c.Pipeline.BatchThreshold <= 0 {
		c.Pipeline.BatchThreshold = defaultBatchThreshold
	}
	if c.Pipeline.MetadataPrefixChars <= 0 {
		c.Pipeline.MetadataPrefixChars = defaultMetadataPrefix
	}
}

func (c *Config) normalizeChunker() {
	if c.Chunker.MaxChunkChars <= 0 {
		c.Chunker.MaxChunkChars = defaultMaxChunkChars
	}
	if c.Chunker.MinChunkChars <= 0 {
		c.Chunker.MinChunkChars = defaultMinChunkChars
	}
	if c.Chunker.ContextTailChars < 0 {
		c.Chunker.ContextTailChars = defaultContextTailChars
	}
	if c.Chunker.MinBoundarySpacing <= 0 {
		c.Chunker.MinBoundarySpacing = defaultBoundarySpacing
	}
}

func (c *Config) normalizeCache() {
	if c.Cache.MemoryTTLSeconds <= 0 {
		c.Cache.MemoryTTLSeconds = defaultMemoryTTLSeconds
	}
	if c.Cache.MemoryCapacity <= 0 {
		c.Cache.MemoryCapacity = defaultMemoryCapacity
	}
	if c.Cache.StoreTTLSeconds <= 0 {
		c.Cache.StoreTTLSeconds = defaultStoreTTLSeconds
	}
	if c.Cache.StoreCapacity <= 0 {
		c.Cache.StoreCapacity = defaultStoreCapacity
	}
	if c.Cache.RemoteTTLSeconds <= 0 {
		c.Cache.RemoteTTLSeconds = defaultRemoteTTLSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
