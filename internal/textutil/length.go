package textutil

import "unicode/utf8"

// charsPerToken approximates tokenizer density for CJK-heavy narrative text,
// where one token covers roughly 1.5 characters.
const charsPerToken = 1.5

// EstimateTokens approximates the token count of text for budget decisions.
// The estimate is deliberately conservative rather than exact.
func EstimateTokens(text string) int {
	runes := utf8.RuneCountInString(text)
	if runes == 0 {
		return 0
	}
	estimated := int(float64(runes) / charsPerToken)
	if estimated < 1 {
		return 1
	}
	return estimated
}

// TruncateRunes returns text cut to at most limit runes. Byte-safe for
// multi-byte scripts.
func TruncateRunes(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	count := 0
	for i := range text {
		if count == limit {
			return text[:i]
		}
		count++
	}
	return text
}
