// Package parsestate owns the resumable session state of a parse run: the
// per-entity sub-task map, the accumulated records, progress, and the story
// bible. All mutation of a session flows through the Manager; the script
// store holds the durable mirror.
package parsestate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"scriptforge/internal/logging"
	"scriptforge/internal/script"
)

// retryCeiling is the number of failures after which a sub-task needs human
// intervention instead of another automatic retry.
const retryCeiling = 3

// ErrUnknownSubTask is returned when an operation names a sub-task that was
// never created.
var ErrUnknownSubTask = errors.New("unknown sub-task")

// ErrStoryBibleLocked is returned when a mutation would alter records frozen
// by the story bible.
var ErrStoryBibleLocked = errors.New("story bible is locked")

// ErrSubTaskCompleted is returned when a completed sub-task would be moved
// back into processing without a reset.
var ErrSubTaskCompleted = errors.New("sub-task already completed")

// Store is the persistence capability the manager saves through.
type Store interface {
	GetParseState(ctx context.Context, scriptID, projectID string) (string, bool, error)
	UpdateParseState(ctx context.Context, scriptID, projectID string, mutate func(current string) (string, error)) error
}

// Pricing converts token usage into an estimated cost.
type Pricing struct {
	PromptPer1K     float64
	CompletionPer1K float64
}

// Manager mutates and persists one session's State.
type Manager struct {
	store   Store
	logger  *slog.Logger
	pricing Pricing
	now     func() time.Time
	state   *State
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logging.NewComponentLogger(logger, "parsestate")
		}
	}
}

// WithPricing sets the per-1k-token rates used for cost accumulation.
func WithPricing(p Pricing) Option {
	return func(m *Manager) { m.pricing = p }
}

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager constructs a Manager for the (scriptID, projectID) session.
// Call Load before any other operation.
func NewManager(store Store, scriptID, projectID string, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	m.state = &State{
		ScriptID:  scriptID,
		ProjectID: projectID,
		Stage:     StageIdle,
		SubTasks:  map[string]*SubTaskState{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State exposes the live session state. Callers must treat it as read-only;
// mutation goes through Manager methods.
func (m *Manager) State() *State {
	return m.state
}

// Load restores a previously saved session if one exists, returning whether
// a session was resumed. Saved sessions predating the sub-task map get an
// empty one.
func (m *Manager) Load(ctx context.Context) (bool, error) {
	blob, ok, err := m.store.GetParseState(ctx, m.state.ScriptID, m.state.ProjectID)
	if err != nil {
		return false, fmt.Errorf("load parse state: %w", err)
	}
	if !ok {
		now := m.now()
		m.state.CreatedAt = now
		m.state.UpdatedAt = now
		return false, nil
	}

	var loaded State
	if err := json.Unmarshal([]byte(blob), &loaded); err != nil {
		return false, fmt.Errorf("decode parse state: %w", err)
	}
	if loaded.SubTasks == nil {
		loaded.SubTasks = map[string]*SubTaskState{}
	}
	loaded.ScriptID = m.state.ScriptID
	loaded.ProjectID = m.state.ProjectID
	m.state = &loaded
	m.logger.Info("resumed parse session",
		logging.String(logging.FieldScriptID, loaded.ScriptID),
		logging.String(logging.FieldStage, string(loaded.Stage)),
		logging.Int("sub_tasks", len(loaded.SubTasks)))
	return true, nil
}

// Save persists the full session through the store.
func (m *Manager) Save(ctx context.Context) error {
	m.state.UpdatedAt = m.now()
	encoded, err := json.Marshal(m.state)
	if err != nil {
		return fmt.Errorf("encode parse state: %w", err)
	}
	err = m.store.UpdateParseState(ctx, m.state.ScriptID, m.state.ProjectID, func(string) (string, error) {
		return string(encoded), nil
	})
	if err != nil {
		return fmt.Errorf("save parse state: %w", err)
	}
	return nil
}

// SubTaskID derives the canonical identifier for a (type, entity) pair.
func SubTaskID(taskType SubTaskType, entityName string) string {
	return fmt.Sprintf("%s_%s", taskType, entityName)
}

// CreateSubTask registers a sub-task for (taskType, entityName). Creation is
// idempotent by identity: an existing task is returned unchanged.
func (m *Manager) CreateSubTask(taskType SubTaskType, entityName string) *SubTaskState {
	id := SubTaskID(taskType, entityName)
	if existing, ok := m.state.SubTasks[id]; ok {
		return existing
	}
	task := &SubTaskState{
		ID:         id,
		Type:       taskType,
		EntityName: entityName,
		Status:     StatusPending,
		CreatedAt:  m.now(),
	}
	m.state.SubTasks[id] = task
	return task
}

// StartSubTask moves a pending or failed sub-task into processing. Completed
// sub-tasks must be reset before they can run again.
func (m *Manager) StartSubTask(id string) error {
	task, ok := m.state.SubTasks[id]
	if !ok {
		return fmt.Errorf("start %s: %w", id, ErrUnknownSubTask)
	}
	if task.Status == StatusCompleted {
		return fmt.Errorf("start %s: %w", id, ErrSubTaskCompleted)
	}
	now := m.now()
	task.Status = StatusProcessing
	task.StartedAt = &now
	return nil
}

// CompleteSubTask marks a sub-task done, storing its result payload and
// accumulating token usage into the session totals.
func (m *Manager) CompleteSubTask(id string, result any, usage Usage) error {
	task, ok := m.state.SubTasks[id]
	if !ok {
		return fmt.Errorf("complete %s: %w", id, ErrUnknownSubTask)
	}
	if result != nil {
		encoded, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode sub-task result: %w", err)
		}
		task.Result = encoded
	}
	now := m.now()
	task.Status = StatusCompleted
	task.CompletedAt = &now
	task.Error = ""
	task.ModelUsed = usage.Model
	task.TokensUsed = usage.TotalTokens

	m.AccumulateUsage(usage)
	return nil
}

// AccumulateUsage folds token usage into the session totals outside any
// sub-task (the metadata stage is atomic and has none).
func (m *Manager) AccumulateUsage(usage Usage) {
	m.state.PromptTokens += usage.PromptTokens
	m.state.TotalTokens += usage.TotalTokens
	m.state.EstimatedCost += m.pricing.PromptPer1K*float64(usage.PromptTokens)/1000 +
		m.pricing.CompletionPer1K*float64(usage.CompletionTokens)/1000
}

// FailSubTask records a failure and increments the retry counter. The
// returned flag is true once the counter reaches the retry ceiling; callers
// must not auto-retry past it without an explicit reset.
func (m *Manager) FailSubTask(id string, cause error) (bool, error) {
	task, ok := m.state.SubTasks[id]
	if !ok {
		return false, fmt.Errorf("fail %s: %w", id, ErrUnknownSubTask)
	}
	task.Status = StatusFailed
	task.RetryCount++
	if cause != nil {
		task.Error = cause.Error()
	}
	needsIntervention := task.RetryCount >= retryCeiling
	if needsIntervention {
		m.logger.Warn("sub-task needs human intervention",
			logging.String(logging.FieldSubTask, id),
			logging.Int(logging.FieldAttempt, task.RetryCount))
	}
	return needsIntervention, nil
}

// ResetSubTask returns a failed sub-task to pending for a fresh attempt. The
// retry counter is preserved.
func (m *Manager) ResetSubTask(id string) error {
	task, ok := m.state.SubTasks[id]
	if !ok {
		return fmt.Errorf("reset %s: %w", id, ErrUnknownSubTask)
	}
	task.Status = StatusPending
	task.Error = ""
	task.StartedAt = nil
	task.CompletedAt = nil
	return nil
}

// GetUncompletedTasks returns every sub-task not yet completed, ordered by
// identifier for determinism.
func (m *Manager) GetUncompletedTasks() []*SubTaskState {
	var tasks []*SubTaskState
	for _, task := range m.state.SubTasks {
		if task.Status != StatusCompleted {
			tasks = append(tasks, task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks
}

// GetTasksByType returns every sub-task of the given type, ordered by
// identifier.
func (m *Manager) GetTasksByType(taskType SubTaskType) []*SubTaskState {
	var tasks []*SubTaskState
	for _, task := range m.state.SubTasks {
		if task.Type == taskType {
			tasks = append(tasks, task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks
}

// SetMetadata records the metadata stage's output.
func (m *Manager) SetMetadata(meta script.Metadata) {
	m.state.Metadata = &meta
}

// AddCharacter appends a character, replacing an existing record with the
// same name. Appending fails once the story bible is locked.
func (m *Manager) AddCharacter(c script.Character) error {
	if m.state.StoryBible != nil {
		return fmt.Errorf("add character %q: %w", c.Name, ErrStoryBibleLocked)
	}
	for i := range m.state.Characters {
		if m.state.Characters[i].Name == c.Name {
			m.state.Characters[i] = c
			return nil
		}
	}
	m.state.Characters = append(m.state.Characters, c)
	return nil
}

// AddScene appends a scene, replacing an existing record with the same name.
// Appending fails once the story bible is locked.
func (m *Manager) AddScene(s script.Scene) error {
	if m.state.StoryBible != nil {
		return fmt.Errorf("add scene %q: %w", s.Name, ErrStoryBibleLocked)
	}
	for i := range m.state.Scenes {
		if m.state.Scenes[i].Name == s.Name {
			m.state.Scenes[i] = s
			return nil
		}
	}
	m.state.Scenes = append(m.state.Scenes, s)
	return nil
}

// AddShots appends the given shots to the session.
func (m *Manager) AddShots(shots []script.Shot) {
	m.state.Shots = append(m.state.Shots, shots...)
}

// LockStoryBible snapshots the accumulated characters and scenes into an
// immutable record. Locking twice keeps the first snapshot.
func (m *Manager) LockStoryBible(visualStyle string) *script.StoryBible {
	if m.state.StoryBible != nil {
		return m.state.StoryBible
	}
	bible := &script.StoryBible{
		VisualStyle: visualStyle,
		Characters:  append([]script.Character(nil), m.state.Characters...),
		Scenes:      append([]script.Scene(nil), m.state.Scenes...),
		LockedAt:    m.now().UTC().Format(time.RFC3339),
	}
	m.state.StoryBible = bible
	m.logger.Info("story bible locked",
		logging.Int("characters", len(bible.Characters)),
		logging.Int("scenes", len(bible.Scenes)))
	return bible
}

// UpdateStage moves the session to a new stage and resets the in-stage
// percentage.
func (m *Manager) UpdateStage(stage Stage) {
	m.state.Stage = stage
	m.state.Progress = Progress{
		Stage:          stage,
		StagePercent:   0,
		OverallPercent: OverallProgress(stage, 0),
	}
}

// UpdateStageProgress sets the completion percentage within the current
// stage and recomputes the weighted overall percentage.
func (m *Manager) UpdateStageProgress(percent float64) {
	m.state.Progress.StagePercent = percent
	m.state.Progress.OverallPercent = OverallProgress(m.state.Stage, percent)
}

// SetError records a session-level error message alongside the error stage.
func (m *Manager) SetError(cause error) {
	m.state.Stage = StageError
	m.state.Progress.Stage = StageError
	if cause != nil {
		m.state.Error = cause.Error()
	}
}
