package parsestate

import (
	"encoding/json"
	"time"

	"scriptforge/internal/script"
)

// SubTaskType classifies the entity a sub-task extracts.
type SubTaskType string

const (
	TaskCharacter SubTaskType = "character"
	TaskScene     SubTaskType = "scene"
	TaskShot      SubTaskType = "shot"
	TaskProp      SubTaskType = "prop"
)

// SubTaskStatus is the lifecycle state of a sub-task.
type SubTaskStatus string

const (
	StatusPending    SubTaskStatus = "pending"
	StatusProcessing SubTaskStatus = "processing"
	StatusCompleted  SubTaskStatus = "completed"
	StatusFailed     SubTaskStatus = "failed"
)

// Usage reports model and token consumption for one completed sub-task.
type Usage struct {
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// SubTaskState tracks one resumable unit of extraction work. Identity is the
// (type, entity name) pair; ID is derived from it.
type SubTaskState struct {
	ID          string          `json:"id"`
	Type        SubTaskType     `json:"type"`
	EntityName  string          `json:"entity_name"`
	Status      SubTaskStatus   `json:"status"`
	RetryCount  int             `json:"retry_count"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	ModelUsed   string          `json:"model_used,omitempty"`
	TokensUsed  int             `json:"tokens_used"`
}

// Progress is the coarse progress snapshot reported to callers.
type Progress struct {
	Stage          Stage   `json:"stage"`
	StagePercent   float64 `json:"stage_percent"`
	OverallPercent float64 `json:"overall_percent"`
}

// State is the full persisted session for one (scriptID, projectID) pair.
type State struct {
	ScriptID      string                   `json:"script_id"`
	ProjectID     string                   `json:"project_id"`
	Stage         Stage                    `json:"stage"`
	SubTasks      map[string]*SubTaskState `json:"sub_tasks"`
	Metadata      *script.Metadata         `json:"metadata,omitempty"`
	Characters    []script.Character       `json:"characters"`
	Scenes        []script.Scene           `json:"scenes"`
	Shots         []script.Shot            `json:"shots"`
	Progress      Progress                 `json:"progress"`
	StoryBible    *script.StoryBible       `json:"story_bible,omitempty"`
	PromptTokens  int                      `json:"prompt_tokens"`
	TotalTokens   int                      `json:"total_tokens"`
	EstimatedCost float64                  `json:"estimated_cost"`
	Error         string                   `json:"error,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at"`
}

// HasCharacter reports whether a character with the given name is already in
// the accumulated collection.
func (s *State) HasCharacter(name string) bool {
	for _, c := range s.Characters {
		if c.Name == name {
			return true
		}
	}
	return false
}

// HasScene reports whether a scene with the given name is already in the
// accumulated collection.
func (s *State) HasScene(name string) bool {
	for _, sc := range s.Scenes {
		if sc.Name == name {
			return true
		}
	}
	return false
}

// HasShotsForScene reports whether any shot is already associated with the
// named scene.
func (s *State) HasShotsForScene(sceneName string) bool {
	for _, shot := range s.Shots {
		if shot.SceneName == sceneName {
			return true
		}
	}
	return false
}
