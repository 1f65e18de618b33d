package config

const (
	defaultDataDir            = "~/.local/share/scriptforge"
	defaultLogDir             = "~/.local/share/scriptforge/logs"
	defaultLLMBaseURL         = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel           = "deepseek/deepseek-chat"
	defaultLLMTimeoutSeconds  = 60
	defaultMaxConcurrentCalls = 1
	defaultMaxRetries         = 3
	defaultRetryDelaySeconds  = 2
	defaultBatchThreshold     = 8
	defaultMetadataPrefix     = 6000
	defaultMaxChunkChars      = 4500
	defaultMinChunkChars      = 600
	defaultContextTailChars   = 500
	defaultBoundarySpacing    = 80
	defaultMemoryTTLSeconds   = 300
	defaultMemoryCapacity     = 128
	defaultStoreTTLSeconds    = 86400
	defaultStoreCapacity      = 4096
	defaultRemoteTTLSeconds   = 604800
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Pipeline: Pipeline{
			MaxConcurrentCalls:  defaultMaxConcurrentCalls,
			MaxRetries:          defaultMaxRetries,
			RetryDelaySeconds:   defaultRetryDelaySeconds,
			BatchThreshold:      defaultBatchThreshold,
			MetadataPrefixChars: defaultMetadataPrefix,
		},
		Chunker: Chunker{
			MaxChunkChars:      defaultMaxChunkChars,
			MinChunkChars:      defaultMinChunkChars,
			ContextTailChars:   defaultContextTailChars,
			MinBoundarySpacing: defaultBoundarySpacing,
		},
		Cache: Cache{
			MemoryTTLSeconds: defaultMemoryTTLSeconds,
			MemoryCapacity:   defaultMemoryCapacity,
			StoreTTLSeconds:  defaultStoreTTLSeconds,
			StoreCapacity:    defaultStoreCapacity,
			RemoteTTLSeconds: defaultRemoteTTLSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
