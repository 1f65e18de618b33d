// Package services defines shared utilities consumed by the pipeline stages
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp script/project IDs, stage names, sub-task
//     identifiers, and correlation IDs for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     into recoverable sub-task failures vs fatal pipeline aborts.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
