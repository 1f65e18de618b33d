package jsonrepair

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Attempt records one repair strategy that changed the candidate string.
type Attempt struct {
	Strategy string
	Detail   string
}

// Result is the outcome of a repair cascade.
type Result struct {
	OK       bool
	Value    string
	Attempts []Attempt
	Err      error
}

const (
	strategyCodeFence   = "code_fence"
	strategyBracketSpan = "bracket_span"
	strategyCommonFixes = "common_fixes"
	strategyAggressive  = "aggressive_fixes"
	strategyPrefixScan  = "prefix_scan"
)

// Repair runs the cascade over raw model output and returns the first
// candidate that parses as JSON. Valid input passes through with an empty
// attempt log.
func Repair(raw string) Result {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return Result{Err: errors.New("jsonrepair: empty input")}
	}

	var attempts []Attempt
	apply := func(strategy string, fn func(string) string) {
		next := strings.TrimSpace(fn(candidate))
		if next == "" || next == candidate {
			return
		}
		attempts = append(attempts, Attempt{
			Strategy: strategy,
			Detail:   fmt.Sprintf("%d -> %d chars", len(candidate), len(next)),
		})
		candidate = next
	}
	succeed := func() Result {
		return Result{OK: true, Value: candidate, Attempts: attempts}
	}

	apply(strategyCodeFence, extractCodeFence)
	apply(strategyBracketSpan, extractBracketSpan)
	if json.Valid([]byte(candidate)) {
		return succeed()
	}

	apply(strategyCommonFixes, applyCommonFixes)
	if json.Valid([]byte(candidate)) {
		return succeed()
	}

	apply(strategyAggressive, applyAggressiveFixes)
	if json.Valid([]byte(candidate)) {
		return succeed()
	}

	if prefix := longestValidPrefix(candidate); prefix != "" {
		attempts = append(attempts, Attempt{
			Strategy: strategyPrefixScan,
			Detail:   fmt.Sprintf("%d -> %d chars", len(candidate), len(prefix)),
		})
		return Result{OK: true, Value: prefix, Attempts: attempts}
	}

	return Result{
		Attempts: attempts,
		Err:      fmt.Errorf("jsonrepair: no strategy produced valid JSON (candidate snippet: %s)", Snippet(candidate)),
	}
}

// Decode runs Repair and unmarshals the repaired value into target.
func Decode(raw string, target any) ([]Attempt, error) {
	res := Repair(raw)
	if !res.OK {
		return res.Attempts, res.Err
	}
	if err := json.Unmarshal([]byte(res.Value), target); err != nil {
		return res.Attempts, fmt.Errorf("jsonrepair: decode repaired value: %w", err)
	}
	return res.Attempts, nil
}

// extractCodeFence returns the content of the first fenced code block, or the
// input unchanged when no fence is present.
func extractCodeFence(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	body := s[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		// The first fence line is a language tag unless it already holds data.
		if !strings.ContainsAny(body[:nl], "{[\"") {
			body = body[nl+1:]
		}
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// extractBracketSpan returns the longest balanced {...} or [...] span,
// preferring whichever is longer. Brackets inside double-quoted strings are
// ignored. Returns the input unchanged when no balanced span exists.
func extractBracketSpan(s string) string {
	type span struct{ start, length int }
	var bestObj, bestArr span

	var starts []int
	var openers []byte
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			starts = append(starts, i)
			openers = append(openers, c)
		case '}', ']':
			if len(starts) == 0 {
				continue
			}
			opener := openers[len(openers)-1]
			if (c == '}' && opener != '{') || (c == ']' && opener != '[') {
				starts = starts[:0]
				openers = openers[:0]
				continue
			}
			start := starts[len(starts)-1]
			starts = starts[:len(starts)-1]
			openers = openers[:len(openers)-1]
			if len(starts) == 0 {
				length := i - start + 1
				if opener == '{' && length > bestObj.length {
					bestObj = span{start: start, length: length}
				}
				if opener == '[' && length > bestArr.length {
					bestArr = span{start: start, length: length}
				}
			}
		}
	}

	best := bestObj
	if bestArr.length > best.length {
		best = bestArr
	}
	if best.length == 0 {
		return s
	}
	return s[best.start : best.start+best.length]
}

var quoteNormalizer = strings.NewReplacer(
	"“", `"`, // left double quotation
	"”", `"`, // right double quotation
	"„", `"`,
	"＂", `"`, // fullwidth quotation
	"‘", "'",
	"’", "'",
	"＇", "'", // fullwidth apostrophe
	"，", ",", // fullwidth comma
	"：", ":", // fullwidth colon
)

// applyCommonFixes rewrites the most frequent model mistakes in one pass:
// normalized quotation marks, single-quoted strings, bare identifier keys,
// trailing and duplicated commas, missing commas between adjacent literals,
// and `undefined` values.
func applyCommonFixes(s string) string {
	runes := []rune(quoteNormalizer.Replace(s))
	var b strings.Builder
	b.Grow(len(runes) + 16)

	inString := false
	quote := rune(0)
	escaped := false

	nextNonSpace := func(from int) (rune, int) {
		for j := from; j < len(runes); j++ {
			if !unicode.IsSpace(runes[j]) {
				return runes[j], j
			}
		}
		return 0, -1
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if inString {
			switch {
			case escaped:
				b.WriteRune(r)
				escaped = false
			case r == '\\':
				// \' is not a valid escape once the string is double-quoted.
				if quote == '\'' && i+1 < len(runes) && runes[i+1] == '\'' {
					b.WriteRune('\'')
					i++
					continue
				}
				b.WriteRune(r)
				escaped = true
			case r == quote:
				b.WriteRune('"')
				inString = false
			case r == '"' && quote == '\'':
				b.WriteString(`\"`)
			default:
				b.WriteRune(r)
			}
			continue
		}

		switch {
		case r == '"' || r == '\'':
			inString = true
			quote = r
			b.WriteRune('"')
		case r == ',':
			next, _ := nextNonSpace(i + 1)
			if next == ',' || next == '}' || next == ']' {
				// duplicate or trailing comma
				continue
			}
			b.WriteRune(',')
		case r == '}' || r == ']':
			b.WriteRune(r)
			if next, _ := nextNonSpace(i + 1); next == '{' || next == '[' {
				b.WriteRune(',')
			}
		case unicode.IsLetter(r) || r == '_':
			word, end := scanIdentifier(runes, i)
			switch {
			case word == "undefined" || word == "NaN":
				b.WriteString("null")
			case word == "true" || word == "false" || word == "null":
				b.WriteString(word)
			default:
				if next, _ := nextNonSpace(end); next == ':' {
					b.WriteByte('"')
					b.WriteString(word)
					b.WriteByte('"')
				} else {
					b.WriteString(word)
				}
			}
			i = end - 1
		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}

func scanIdentifier(runes []rune, start int) (string, int) {
	end := start
	for end < len(runes) {
		r := runes[end]
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$' {
			end++
			continue
		}
		break
	}
	return string(runes[start:end]), end
}

// applyAggressiveFixes trims prose outside the outermost brackets and decodes
// literal \uXXXX escape sequences that leaked outside string context.
func applyAggressiveFixes(s string) string {
	s = trimOutsideBrackets(s)
	return decodeUnicodeEscapes(s)
}

func trimOutsideBrackets(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	var closer string
	if s[start] == '{' {
		closer = "}"
	} else {
		closer = "]"
	}
	end := strings.LastIndex(s, closer)
	if end <= start {
		return s
	}
	return s[start : end+1]
}

func decodeUnicodeEscapes(s string) string {
	var b strings.Builder
	for {
		idx := strings.Index(s, `\u`)
		if idx < 0 || idx+6 > len(s) {
			b.WriteString(s)
			return b.String()
		}
		code, err := strconv.ParseUint(s[idx+2:idx+6], 16, 32)
		if err != nil {
			b.WriteString(s[:idx+2])
			s = s[idx+2:]
			continue
		}
		r := rune(code)
		// Keep escapes that JSON needs escaped.
		if r == '"' || r == '\\' || r < 0x20 {
			b.WriteString(s[:idx+6])
		} else {
			b.WriteString(s[:idx])
			b.WriteRune(r)
		}
		s = s[idx+6:]
	}
}

// longestValidPrefix scans from the full length downward for the longest
// prefix that parses as JSON.
func longestValidPrefix(s string) string {
	for i := len(s); i > 0; i-- {
		prefix := strings.TrimSpace(s[:i])
		if prefix == "" {
			continue
		}
		if json.Valid([]byte(prefix)) {
			return prefix
		}
	}
	return ""
}

// Snippet condenses a candidate string for error messages.
func Snippet(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "<empty>"
	}
	replacer := strings.NewReplacer("\r", " ", "\n", " ", "\t", " ")
	clean := strings.Join(strings.Fields(replacer.Replace(trimmed)), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
