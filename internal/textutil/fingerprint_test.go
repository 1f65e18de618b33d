package textutil

import (
	"strings"
	"testing"
)

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	got := Normalize("  第一章 \n\n 黎明  之前 ")
	want := "第一章 黎明 之前"
	if got != want {
		t.Fatalf("Normalize = %q, want %q", got, want)
	}
}

func TestNormalizeFoldsFullwidthPunctuation(t *testing.T) {
	if got := Normalize("（ｈｅｌｌｏ）"); got != "(hello)" {
		t.Fatalf("fullwidth forms should fold to ASCII, got %q", got)
	}
	if Normalize("你好，世界！") != Normalize("你好,世界!") {
		t.Fatal("fullwidth comma and bang should fold to ASCII equivalents")
	}
}

func TestFingerprintStableAcrossSpacing(t *testing.T) {
	a := Fingerprint("hello   world")
	b := Fingerprint("hello world")
	if a != b {
		t.Fatalf("fingerprints differ for equivalent content: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if Fingerprint("hello world") == Fingerprint("hello moon") {
		t.Fatal("distinct content should not collide")
	}
}

func TestShortFingerprint(t *testing.T) {
	full := Fingerprint("sample")
	short := ShortFingerprint("sample")
	if len(short) != 16 || !strings.HasPrefix(full, short) {
		t.Fatalf("ShortFingerprint = %q, want 16-char prefix of %q", short, full)
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 2},
		{"一", 1},
		{strings.Repeat("字", 300), 200},
	}
	for _, tc := range cases {
		if got := EstimateTokens(tc.text); got != tc.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := TruncateRunes("第一章黎明", 3); got != "第一章" {
		t.Fatalf("TruncateRunes = %q", got)
	}
	if got := TruncateRunes("ab", 10); got != "ab" {
		t.Fatalf("TruncateRunes should leave short text alone, got %q", got)
	}
	if got := TruncateRunes("ab", 0); got != "" {
		t.Fatalf("zero limit should return empty, got %q", got)
	}
}

func TestSanitizeToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "unknown"},
		{"Li Wei", "li_wei"},
		{"铁匠铺", "unknown"},
		{"Scene-3_final", "scene-3_final"},
		{"  !!  ", "unknown"},
	}
	for _, tc := range cases {
		if got := SanitizeToken(tc.in); got != tc.want {
			t.Errorf("SanitizeToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
