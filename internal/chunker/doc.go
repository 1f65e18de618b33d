// Package chunker splits long narrative text into bounded segments along
// natural boundaries. Chapter headers outrank paragraph breaks, which outrank
// sentence terminators; segments are never split mid-boundary, and each chunk
// carries a trailing slice of its predecessor for continuity.
package chunker
