// Package jsonrepair extracts a syntactically valid JSON value from
// arbitrary, possibly malformed model output.
//
// Repair applies a strictly ordered cascade and stops at the first candidate
// that parses: code-fence extraction, balanced-bracket-span extraction, a
// direct parse, quote/comma/key normalization, aggressive prose trimming, and
// finally a longest-parsable-prefix scan. Every strategy that changes the
// candidate is recorded in the attempt log whether or not it enabled the
// parse, so callers can see what the model got wrong.
package jsonrepair
