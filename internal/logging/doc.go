// Package logging wraps log/slog with the handlers and field conventions the
// rest of the tool shares: a compact console handler for interactive runs, a
// JSON handler for machine consumption, and standardized attribute keys for
// script, stage, and sub-task identifiers.
package logging
