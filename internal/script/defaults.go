package script

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const (
	defaultUnknown         = "unknown"
	defaultUnspecified     = "unspecified"
	defaultShotDuration    = 3.0
	maxShotDuration        = 30.0
	wordsPerMinuteEstimate = 220
)

// FillMetadataDefaults returns a copy of m with every absent field replaced
// by a deterministic default derived from the source text.
func FillMetadataDefaults(m Metadata, sourceText string) Metadata {
	if strings.TrimSpace(m.Title) == "" {
		m.Title = "Untitled Script"
	}
	if m.WordCount <= 0 {
		m.WordCount = estimateWordCount(sourceText)
	}
	if m.EstimatedDurationMinutes <= 0 {
		m.EstimatedDurationMinutes = m.WordCount / wordsPerMinuteEstimate
		if m.EstimatedDurationMinutes < 1 {
			m.EstimatedDurationMinutes = 1
		}
	}
	if m.CharacterNames == nil {
		m.CharacterNames = []string{}
	}
	if m.SceneNames == nil {
		m.SceneNames = []string{}
	}
	if m.CharacterCount <= 0 {
		m.CharacterCount = len(m.CharacterNames)
	}
	if m.SceneCount <= 0 {
		m.SceneCount = len(m.SceneNames)
	}
	if m.ChapterCount <= 0 {
		m.ChapterCount = 1
	}
	if strings.TrimSpace(m.Genre) == "" {
		m.Genre = defaultUnknown
	}
	if strings.TrimSpace(m.Tone) == "" {
		m.Tone = "neutral"
	}
	return m
}

// estimateWordCount counts each CJK rune as one word and the remaining text
// as space-separated words, so mixed-language prose is counted sensibly.
func estimateWordCount(text string) int {
	cjk := 0
	var rest strings.Builder
	for _, r := range text {
		if isCJK(r) {
			cjk++
			rest.WriteByte(' ')
			continue
		}
		rest.WriteRune(r)
	}
	return cjk + len(strings.Fields(rest.String()))
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// FillCharacterDefaults returns a copy of c with every absent field replaced
// by a deterministic default. A non-empty name overrides c.Name so records
// stay aligned with the requested entity list; the model's own naming is kept
// only when no name was requested.
func FillCharacterDefaults(c Character, name string) Character {
	if strings.TrimSpace(name) != "" {
		c.Name = name
	}
	c.Gender = orDefault(c.Gender, defaultUnknown)
	c.Age = orDefault(c.Age, defaultUnknown)
	c.Identity = orDefault(c.Identity, defaultUnknown)
	c.Appearance.Face = orDefault(c.Appearance.Face, defaultUnspecified)
	c.Appearance.Hair = orDefault(c.Appearance.Hair, defaultUnspecified)
	c.Appearance.Clothing = orDefault(c.Appearance.Clothing, defaultUnspecified)
	c.Appearance.Build = orDefault(c.Appearance.Build, "average")
	c.Appearance.Height = orDefault(c.Appearance.Height, "average")
	if c.PersonalityTags == nil {
		c.PersonalityTags = []string{}
	}
	if c.SignatureItems == nil {
		c.SignatureItems = []string{}
	}
	if c.ArcPhases == nil {
		c.ArcPhases = []ArcPhase{}
	}
	if c.Relationships == nil {
		c.Relationships = []Relationship{}
	}
	if strings.TrimSpace(c.VisualPrompt) == "" {
		c.VisualPrompt = fmt.Sprintf("%s, %s, %s build, wearing %s",
			c.Name, c.Appearance.Hair, c.Appearance.Build, c.Appearance.Clothing)
	}
	return c
}

// FillSceneDefaults returns a copy of s with every absent field replaced by a
// deterministic default. As with characters, a non-empty name overrides the
// decoded name.
func FillSceneDefaults(s Scene, name string) Scene {
	if strings.TrimSpace(name) != "" {
		s.Name = name
	}
	s.LocationType = orDefault(s.LocationType, "interior")
	s.Description = orDefault(s.Description, s.Name)
	s.TimeOfDay = orDefault(s.TimeOfDay, "day")
	s.Season = orDefault(s.Season, defaultUnspecified)
	s.Weather = orDefault(s.Weather, "clear")
	s.Environment.Architecture = orDefault(s.Environment.Architecture, defaultUnspecified)
	s.Environment.Furnishings = orDefault(s.Environment.Furnishings, defaultUnspecified)
	s.Environment.Lighting = orDefault(s.Environment.Lighting, "natural")
	s.Environment.ColorTone = orDefault(s.Environment.ColorTone, "neutral")
	s.Function = orDefault(s.Function, "narrative")
	if s.Characters == nil {
		s.Characters = []string{}
	}
	if strings.TrimSpace(s.VisualPrompt) == "" {
		s.VisualPrompt = fmt.Sprintf("%s, %s, %s lighting, %s tones",
			s.Name, s.LocationType, s.Environment.Lighting, s.Environment.ColorTone)
	}
	return s
}

// FillShotDefaults returns a copy of s bound to sceneName and sequence, with
// an identifier assigned and enum fields normalized.
func FillShotDefaults(s Shot, sceneName string, sequence int) Shot {
	if strings.TrimSpace(s.ID) == "" {
		s.ID = uuid.NewString()
	}
	s.SceneName = sceneName
	if s.Sequence <= 0 {
		s.Sequence = sequence
	}
	s.Type = NormalizeShotType(string(s.Type))
	s.CameraMovement = NormalizeCameraMovement(string(s.CameraMovement))
	s.Description = orDefault(s.Description, fmt.Sprintf("Shot %d of %s", s.Sequence, sceneName))
	if s.DurationSeconds <= 0 {
		s.DurationSeconds = defaultShotDuration
	}
	if s.DurationSeconds > maxShotDuration {
		s.DurationSeconds = maxShotDuration
	}
	if s.Characters == nil {
		s.Characters = []string{}
	}
	return s
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
