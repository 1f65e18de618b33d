// Package script defines the structured production records produced by the
// parsing pipeline: metadata, characters, scenes, and camera shots. Every
// record type has a companion fill function that replaces missing fields with
// deterministic defaults so downstream consumers never see an absent field.
package script

// Metadata is the script-wide summary extracted before any entity stage runs.
type Metadata struct {
	Title                    string   `json:"title"`
	WordCount                int      `json:"word_count"`
	EstimatedDurationMinutes int      `json:"estimated_duration_minutes"`
	CharacterCount           int      `json:"character_count"`
	SceneCount               int      `json:"scene_count"`
	ChapterCount             int      `json:"chapter_count"`
	CharacterNames           []string `json:"character_names"`
	SceneNames               []string `json:"scene_names"`
	Genre                    string   `json:"genre"`
	Tone                     string   `json:"tone"`
}

// Appearance is the structured physical description of a character.
type Appearance struct {
	Face     string `json:"face"`
	Hair     string `json:"hair"`
	Clothing string `json:"clothing"`
	Build    string `json:"build"`
	Height   string `json:"height"`
}

// ArcPhase is one stage of a character's emotional arc.
type ArcPhase struct {
	Phase   string `json:"phase"`
	Emotion string `json:"emotion"`
}

// Relationship links a character to another named character.
type Relationship struct {
	Character string `json:"character"`
	Relation  string `json:"relation"`
}

// Character is one extracted character record. Name is the unique key within
// a script.
type Character struct {
	Name            string         `json:"name"`
	Gender          string         `json:"gender"`
	Age             string         `json:"age"`
	Identity        string         `json:"identity"`
	Appearance      Appearance     `json:"appearance"`
	PersonalityTags []string       `json:"personality_tags"`
	SignatureItems  []string       `json:"signature_items"`
	ArcPhases       []ArcPhase     `json:"arc_phases"`
	Relationships   []Relationship `json:"relationships"`
	VisualPrompt    string         `json:"visual_prompt"`
}

// Environment is the structured setting description of a scene.
type Environment struct {
	Architecture string `json:"architecture"`
	Furnishings  string `json:"furnishings"`
	Lighting     string `json:"lighting"`
	ColorTone    string `json:"color_tone"`
}

// Scene is one extracted scene record. Name is the unique key within a
// script.
type Scene struct {
	Name         string      `json:"name"`
	LocationType string      `json:"location_type"`
	Description  string      `json:"description"`
	TimeOfDay    string      `json:"time_of_day"`
	Season       string      `json:"season"`
	Weather      string      `json:"weather"`
	Environment  Environment `json:"environment"`
	Function     string      `json:"function"`
	VisualPrompt string      `json:"visual_prompt"`
	Characters   []string    `json:"characters"`
}

// Shot is one camera shot belonging to a scene.
type Shot struct {
	ID              string         `json:"id"`
	SceneName       string         `json:"scene_name"`
	Sequence        int            `json:"sequence"`
	Type            ShotType       `json:"type"`
	CameraMovement  CameraMovement `json:"camera_movement"`
	Description     string         `json:"description"`
	Dialogue        string         `json:"dialogue,omitempty"`
	Sound           string         `json:"sound,omitempty"`
	DurationSeconds float64        `json:"duration_seconds"`
	Characters      []string       `json:"characters"`
}

// StoryBible is the immutable snapshot taken once characters and scenes are
// established. Later stages must not alter identities or visual prompts after
// it is locked.
type StoryBible struct {
	VisualStyle string      `json:"visual_style"`
	Characters  []Character `json:"characters"`
	Scenes      []Scene     `json:"scenes"`
	LockedAt    string      `json:"locked_at"`
}
