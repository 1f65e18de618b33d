package parsestate

import (
	"context"
	"errors"
	"testing"
	"time"

	"scriptforge/internal/script"
)

type memStore struct {
	blobs map[string]string
}

func newMemStore() *memStore {
	return &memStore{blobs: map[string]string{}}
}

func (s *memStore) key(scriptID, projectID string) string {
	return scriptID + "/" + projectID
}

func (s *memStore) GetParseState(_ context.Context, scriptID, projectID string) (string, bool, error) {
	blob, ok := s.blobs[s.key(scriptID, projectID)]
	return blob, ok, nil
}

func (s *memStore) UpdateParseState(_ context.Context, scriptID, projectID string, mutate func(string) (string, error)) error {
	next, err := mutate(s.blobs[s.key(scriptID, projectID)])
	if err != nil {
		return err
	}
	s.blobs[s.key(scriptID, projectID)] = next
	return nil
}

func newTestManager(t *testing.T) (*Manager, *memStore) {
	t.Helper()
	store := newMemStore()
	m := NewManager(store, "script-1", "project-1",
		WithClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }))
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m, store
}

func TestCreateSubTaskIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)

	first := m.CreateSubTask(TaskCharacter, "林婆婆")
	if first.ID != "character_林婆婆" {
		t.Fatalf("unexpected id %q", first.ID)
	}
	if first.Status != StatusPending {
		t.Fatalf("unexpected status %q", first.Status)
	}

	first.RetryCount = 2
	second := m.CreateSubTask(TaskCharacter, "林婆婆")
	if second != first {
		t.Fatal("re-creating the same (type, entity) pair must return the existing task")
	}
	if second.RetryCount != 2 {
		t.Fatal("existing task must be returned unchanged")
	}
	if len(m.State().SubTasks) != 1 {
		t.Fatalf("expected one task, got %d", len(m.State().SubTasks))
	}
}

func TestSubTaskLifecycle(t *testing.T) {
	m, _ := newTestManager(t)
	task := m.CreateSubTask(TaskScene, "灯塔")

	if err := m.StartSubTask(task.ID); err != nil {
		t.Fatalf("StartSubTask: %v", err)
	}
	if task.Status != StatusProcessing || task.StartedAt == nil {
		t.Fatalf("unexpected state after start: %+v", task)
	}

	usage := Usage{Model: "deepseek/deepseek-chat", PromptTokens: 800, CompletionTokens: 200, TotalTokens: 1000}
	if err := m.CompleteSubTask(task.ID, script.Scene{Name: "灯塔"}, usage); err != nil {
		t.Fatalf("CompleteSubTask: %v", err)
	}
	if task.Status != StatusCompleted || task.CompletedAt == nil {
		t.Fatalf("unexpected state after complete: %+v", task)
	}
	if task.TokensUsed != 1000 || task.ModelUsed != "deepseek/deepseek-chat" {
		t.Fatalf("usage not recorded: %+v", task)
	}
	if m.State().TotalTokens != 1000 {
		t.Fatalf("session totals not accumulated: %d", m.State().TotalTokens)
	}
}

func TestStartUnknownSubTask(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.StartSubTask("character_nobody"); !errors.Is(err, ErrUnknownSubTask) {
		t.Fatalf("expected ErrUnknownSubTask, got %v", err)
	}
}

func TestStartCompletedSubTaskRequiresReset(t *testing.T) {
	m, _ := newTestManager(t)
	task := m.CreateSubTask(TaskCharacter, "A")
	_ = m.StartSubTask(task.ID)
	if err := m.CompleteSubTask(task.ID, nil, Usage{}); err != nil {
		t.Fatalf("CompleteSubTask: %v", err)
	}

	if err := m.StartSubTask(task.ID); !errors.Is(err, ErrSubTaskCompleted) {
		t.Fatalf("expected ErrSubTaskCompleted, got %v", err)
	}
	if task.Status != StatusCompleted {
		t.Fatalf("rejected start must not change status: %+v", task)
	}

	if err := m.ResetSubTask(task.ID); err != nil {
		t.Fatalf("ResetSubTask: %v", err)
	}
	if err := m.StartSubTask(task.ID); err != nil {
		t.Fatalf("StartSubTask after reset: %v", err)
	}
}

func TestFailSubTaskNeedsInterventionAtThirdFailure(t *testing.T) {
	m, _ := newTestManager(t)
	task := m.CreateSubTask(TaskCharacter, "A")

	for attempt := 1; attempt <= 3; attempt++ {
		_ = m.StartSubTask(task.ID)
		needs, err := m.FailSubTask(task.ID, errors.New("parse failed"))
		if err != nil {
			t.Fatalf("FailSubTask attempt %d: %v", attempt, err)
		}
		want := attempt >= 3
		if needs != want {
			t.Fatalf("attempt %d: needs intervention = %v, want %v", attempt, needs, want)
		}
		if attempt < 3 {
			if err := m.ResetSubTask(task.ID); err != nil {
				t.Fatalf("ResetSubTask: %v", err)
			}
			if task.Status != StatusPending || task.Error != "" {
				t.Fatalf("reset left task in state %+v", task)
			}
			if task.RetryCount != attempt {
				t.Fatal("reset must preserve the retry counter")
			}
		}
	}
}

func TestUncompletedAndByTypeQueries(t *testing.T) {
	m, _ := newTestManager(t)
	m.CreateSubTask(TaskCharacter, "A")
	done := m.CreateSubTask(TaskCharacter, "B")
	m.CreateSubTask(TaskScene, "S")

	_ = m.StartSubTask(done.ID)
	if err := m.CompleteSubTask(done.ID, nil, Usage{}); err != nil {
		t.Fatalf("CompleteSubTask: %v", err)
	}

	uncompleted := m.GetUncompletedTasks()
	if len(uncompleted) != 2 {
		t.Fatalf("expected two uncompleted tasks, got %d", len(uncompleted))
	}
	if uncompleted[0].ID != "character_A" || uncompleted[1].ID != "scene_S" {
		t.Fatalf("unexpected order: %s, %s", uncompleted[0].ID, uncompleted[1].ID)
	}

	chars := m.GetTasksByType(TaskCharacter)
	if len(chars) != 2 {
		t.Fatalf("expected two character tasks, got %d", len(chars))
	}
}

func TestStageProgressWeights(t *testing.T) {
	m, _ := newTestManager(t)

	cases := []struct {
		stage   Stage
		percent float64
		overall float64
	}{
		{StageMetadata, 0, 0},
		{StageMetadata, 100, 10},
		{StageCharacters, 50, 25},
		{StageScenes, 0, 40},
		{StageShots, 40, 85},
		{StageCompleted, 0, 100},
	}
	for _, tc := range cases {
		m.UpdateStage(tc.stage)
		m.UpdateStageProgress(tc.percent)
		if got := m.State().Progress.OverallPercent; got != tc.overall {
			t.Errorf("%s at %.0f%%: overall = %v, want %v", tc.stage, tc.percent, got, tc.overall)
		}
	}
}

func TestLockStoryBibleFreezesCollections(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.AddCharacter(script.FillCharacterDefaults(script.Character{}, "A")); err != nil {
		t.Fatalf("AddCharacter: %v", err)
	}
	if err := m.AddScene(script.FillSceneDefaults(script.Scene{}, "S")); err != nil {
		t.Fatalf("AddScene: %v", err)
	}

	bible := m.LockStoryBible("ink wash")
	if bible.VisualStyle != "ink wash" || len(bible.Characters) != 1 || len(bible.Scenes) != 1 {
		t.Fatalf("unexpected bible %+v", bible)
	}

	if err := m.AddCharacter(script.Character{Name: "B"}); !errors.Is(err, ErrStoryBibleLocked) {
		t.Fatalf("expected ErrStoryBibleLocked, got %v", err)
	}
	if again := m.LockStoryBible("other"); again != bible {
		t.Fatal("second lock must keep the first snapshot")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	m, store := newTestManager(t)
	m.UpdateStage(StageCharacters)
	m.CreateSubTask(TaskCharacter, "A")
	m.SetMetadata(script.Metadata{Title: "T", CharacterNames: []string{"A"}})
	if err := m.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	restored := NewManager(store, "script-1", "project-1")
	resumed, err := restored.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !resumed {
		t.Fatal("expected to resume the saved session")
	}
	st := restored.State()
	if st.Stage != StageCharacters {
		t.Fatalf("unexpected stage %q", st.Stage)
	}
	if _, ok := st.SubTasks["character_A"]; !ok {
		t.Fatal("sub-task map not restored")
	}
	if st.Metadata == nil || st.Metadata.Title != "T" {
		t.Fatalf("metadata not restored: %+v", st.Metadata)
	}
}

func TestLoadToleratesLegacyStateWithoutSubTasks(t *testing.T) {
	store := newMemStore()
	store.blobs[store.key("script-1", "project-1")] = `{"stage":"characters","characters":[],"scenes":[],"shots":[]}`

	m := NewManager(store, "script-1", "project-1")
	resumed, err := m.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !resumed {
		t.Fatal("expected resume")
	}
	if m.State().SubTasks == nil {
		t.Fatal("legacy state must get an empty sub-task map")
	}
	m.CreateSubTask(TaskCharacter, "A")
}

func TestCostAccumulation(t *testing.T) {
	store := newMemStore()
	m := NewManager(store, "s", "p", WithPricing(Pricing{PromptPer1K: 0.5, CompletionPer1K: 1.0}))
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	task := m.CreateSubTask(TaskCharacter, "A")
	_ = m.StartSubTask(task.ID)
	if err := m.CompleteSubTask(task.ID, nil, Usage{PromptTokens: 2000, CompletionTokens: 1000, TotalTokens: 3000}); err != nil {
		t.Fatalf("CompleteSubTask: %v", err)
	}

	if got := m.State().EstimatedCost; got != 2.0 {
		t.Fatalf("estimated cost = %v, want 2.0", got)
	}
}
