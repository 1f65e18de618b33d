// Package prompts centralizes the instruction text sent to the model for each
// extraction stage. Keep updates here so prompt wording is easy to tweak
// without hunting through stage logic.
package prompts

import (
	"fmt"
	"strings"

	"scriptforge/internal/script"
)

// ExtractionSystemPrompt is shared by every stage call. The stages rely on
// JSON-only output; everything else is repaired downstream.
const ExtractionSystemPrompt = `You are a script analysis assistant that converts narrative text into structured production data.

Rules:

- Respond ONLY with a JSON object or array. No prose, no explanations, no markdown fences.

- Use the exact field names requested. Omit nothing; use empty strings or empty arrays when the text gives no answer.

- Keep all names exactly as they appear in the source text, including non-Latin characters.`

// Metadata builds the user prompt for the metadata stage. textPrefix is a
// bounded prefix of the script, not the whole text.
func Metadata(textPrefix string) string {
	var b strings.Builder
	b.WriteString(`Analyze the following script excerpt and return a JSON object with fields:
"title", "word_count", "estimated_duration_minutes", "character_count", "scene_count", "chapter_count", "character_names" (array, in order of first appearance), "scene_names" (array, in narrative order), "genre", "tone".

Script excerpt:
`)
	b.WriteString(textPrefix)
	return b.String()
}

const characterFields = `"name", "gender", "age", "identity", "appearance" (object with "face", "hair", "clothing", "build", "height"), "personality_tags" (array), "signature_items" (array), "arc_phases" (array of {"phase", "emotion"}), "relationships" (array of {"character", "relation"}), "visual_prompt"`

// CharacterBatch builds the user prompt extracting every named character in
// one call. The response must be a JSON array aligned to the requested name
// order.
func CharacterBatch(names []string, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Extract the following characters from the script: %s.

Return a JSON array with one object per requested name, in the same order. Each object has fields:
%s

Script:
`, quotedList(names), characterFields)
	b.WriteString(text)
	return b.String()
}

// CharacterSingle builds the user prompt extracting one character.
func CharacterSingle(name, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Extract the character %q from the script.

Return a single JSON object with fields:
%s

Script:
`, name, characterFields)
	b.WriteString(text)
	return b.String()
}

const sceneFields = `"name", "location_type", "description", "time_of_day", "season", "weather", "environment" (object with "architecture", "furnishings", "lighting", "color_tone"), "function", "visual_prompt", "characters" (array of character names present)`

// SceneBatch builds the user prompt extracting every named scene in one call.
func SceneBatch(names []string, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Extract the following scenes from the script: %s.

Return a JSON array with one object per requested name, in the same order. Each object has fields:
%s

Script:
`, quotedList(names), sceneFields)
	b.WriteString(text)
	return b.String()
}

// SceneSingle builds the user prompt extracting one scene.
func SceneSingle(name, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Extract the scene %q from the script.

Return a single JSON object with fields:
%s

Script:
`, name, sceneFields)
	b.WriteString(text)
	return b.String()
}

// Shots builds the user prompt generating camera shots for one scene. The
// story bible, when locked, pins visual identity for the listed characters.
func Shots(scene script.Scene, bible *script.StoryBible, minShots, maxShots int) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Design between %d and %d camera shots for the scene %q.

Return a JSON array. Each shot object has fields:
"sequence" (number, starting at 1), "type" (one of "extreme_wide", "wide", "medium", "close_up", "extreme_close_up"), "camera_movement" (one of "static", "pan", "tilt", "dolly", "zoom", "tracking", "handheld"), "description", "dialogue", "sound", "duration_seconds" (number), "characters" (array of names).

Scene description: %s
Location: %s, %s, %s light, %s tones.
Characters present: %s.
`,
		minShots, maxShots, scene.Name,
		scene.Description,
		scene.LocationType, scene.TimeOfDay, scene.Environment.Lighting, scene.Environment.ColorTone,
		strings.Join(scene.Characters, ", "))

	if bible != nil {
		fmt.Fprintf(&b, "\nVisual style (locked): %s\n", bible.VisualStyle)
		for _, c := range bible.Characters {
			if containsName(scene.Characters, c.Name) {
				fmt.Fprintf(&b, "Character %s looks like: %s\n", c.Name, c.VisualPrompt)
			}
		}
	}
	return b.String()
}

// ShotsBatch builds the user prompt generating camera shots for several
// scenes in one call. Each shot carries a "scene_name" field so the flat
// response can be grouped per scene afterwards.
func ShotsBatch(scenes []script.Scene, bible *script.StoryBible, minShots, maxShots int) string {
	names := make([]string, len(scenes))
	for i, s := range scenes {
		names[i] = s.Name
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Design between %d and %d camera shots for each of the following scenes: %s.

Return a single flat JSON array covering every scene. Each shot object has fields:
"scene_name" (the scene the shot belongs to, exactly as requested), "sequence" (number, starting at 1 within its scene), "type" (one of "extreme_wide", "wide", "medium", "close_up", "extreme_close_up"), "camera_movement" (one of "static", "pan", "tilt", "dolly", "zoom", "tracking", "handheld"), "description", "dialogue", "sound", "duration_seconds" (number), "characters" (array of names).

`, minShots, maxShots, quotedList(names))

	for _, scene := range scenes {
		fmt.Fprintf(&b, "Scene %q: %s\nLocation: %s, %s, %s light, %s tones. Characters present: %s.\n\n",
			scene.Name, scene.Description,
			scene.LocationType, scene.TimeOfDay, scene.Environment.Lighting, scene.Environment.ColorTone,
			strings.Join(scene.Characters, ", "))
	}

	if bible != nil {
		fmt.Fprintf(&b, "Visual style (locked): %s\n", bible.VisualStyle)
		for _, c := range bible.Characters {
			for _, scene := range scenes {
				if containsName(scene.Characters, c.Name) {
					fmt.Fprintf(&b, "Character %s looks like: %s\n", c.Name, c.VisualPrompt)
					break
				}
			}
		}
	}
	return b.String()
}

func quotedList(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = fmt.Sprintf("%q", name)
	}
	return strings.Join(quoted, ", ")
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
