// Package llm provides the OpenRouter-compatible chat client the pipeline
// uses for text extraction.
//
// # Usage
//
// The client sends a prompt (optionally with a system prompt) to the
// configured model and returns the generated text plus token usage. Callers
// that expect structured output set Request.JSONOnly and run the response
// through the jsonrepair cascade.
//
// # Configuration
//
// Requires api_key and model, and optionally base_url, referer, title, and a
// per-request timeout. The base URL defaults to the OpenRouter chat
// completions endpoint.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.GenerateText: send a prompt, receive text and usage.
// Client.HealthCheck: verify API key and model availability.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors and network timeouts with
// exponential backoff (base 1s, max 10s, up to 5 attempts by default),
// honoring Retry-After when the provider sends one. Context cancellation
// aborts retries immediately.
package llm
