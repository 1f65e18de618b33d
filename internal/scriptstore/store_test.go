package scriptstore

import (
	"context"
	"errors"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGetParseStateMissing(t *testing.T) {
	store := openTestStore(t)

	state, ok, err := store.GetParseState(context.Background(), "script-1", "project-1")
	if err != nil {
		t.Fatalf("GetParseState: %v", err)
	}
	if ok || state != "" {
		t.Fatalf("expected absent session, got ok=%v state=%q", ok, state)
	}
}

func TestUpdateParseStateCreatesAndMutates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.UpdateParseState(ctx, "script-1", "project-1", func(current string) (string, error) {
		if current != "" {
			t.Fatalf("expected empty blob on first update, got %q", current)
		}
		return `{"stage":"metadata"}`, nil
	})
	if err != nil {
		t.Fatalf("UpdateParseState: %v", err)
	}

	err = store.UpdateParseState(ctx, "script-1", "project-1", func(current string) (string, error) {
		if current != `{"stage":"metadata"}` {
			t.Fatalf("mutator received %q", current)
		}
		return `{"stage":"characters"}`, nil
	})
	if err != nil {
		t.Fatalf("UpdateParseState: %v", err)
	}

	state, ok, err := store.GetParseState(ctx, "script-1", "project-1")
	if err != nil {
		t.Fatalf("GetParseState: %v", err)
	}
	if !ok || state != `{"stage":"characters"}` {
		t.Fatalf("unexpected state ok=%v %q", ok, state)
	}
}

func TestUpdateParseStateMutatorErrorRollsBack(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.UpdateParseState(ctx, "script-1", "project-1", func(string) (string, error) {
		return `{"stage":"metadata"}`, nil
	}); err != nil {
		t.Fatalf("UpdateParseState: %v", err)
	}

	boom := errors.New("boom")
	err := store.UpdateParseState(ctx, "script-1", "project-1", func(string) (string, error) {
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutator error, got %v", err)
	}

	state, ok, err := store.GetParseState(ctx, "script-1", "project-1")
	if err != nil {
		t.Fatalf("GetParseState: %v", err)
	}
	if !ok || state != `{"stage":"metadata"}` {
		t.Fatalf("expected previous state to survive, got ok=%v %q", ok, state)
	}
}

func TestSessionsAreKeyedByScriptAndProject(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, pair := range []struct{ script, project, state string }{
		{"script-1", "project-1", `{"n":1}`},
		{"script-1", "project-2", `{"n":2}`},
		{"script-2", "project-1", `{"n":3}`},
	} {
		if err := store.UpdateParseState(ctx, pair.script, pair.project, func(string) (string, error) {
			return pair.state, nil
		}); err != nil {
			t.Fatalf("UpdateParseState %s/%s: %v", pair.script, pair.project, err)
		}
	}

	state, ok, err := store.GetParseState(ctx, "script-1", "project-2")
	if err != nil || !ok || state != `{"n":2}` {
		t.Fatalf("unexpected lookup result ok=%v state=%q err=%v", ok, state, err)
	}

	records, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected three sessions, got %d", len(records))
	}
}

func TestDeleteParseState(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.UpdateParseState(ctx, "script-1", "project-1", func(string) (string, error) {
		return `{}`, nil
	}); err != nil {
		t.Fatalf("UpdateParseState: %v", err)
	}
	if err := store.Delete(ctx, "script-1", "project-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, err := store.GetParseState(ctx, "script-1", "project-1"); err != nil || ok {
		t.Fatalf("expected session gone, ok=%v err=%v", ok, err)
	}
	if err := store.Delete(ctx, "script-1", "project-1"); err != nil {
		t.Fatalf("Delete absent: %v", err)
	}
}
