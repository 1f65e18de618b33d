package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scriptforge/internal/testsupport"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	server     *httptest.Server
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	server := newFakeLLMServer(t, []string{"A", "B"}, []string{"S1"})
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithBaseURL(server.URL))
	configPath := testsupport.WriteConfig(t, cfg)

	return &cliTestEnv{
		baseDir:    testsupport.BaseDir(cfg),
		configPath: configPath,
		server:     server,
	}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

// newFakeLLMServer answers chat completion requests with well-formed payloads
// for the given entity lists.
func newFakeLLMServer(t *testing.T, characters, scenes []string) *httptest.Server {
	t.Helper()

	respond := func(w http.ResponseWriter, content string) {
		payload := map[string]any{
			"model": "fake-model",
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
			"usage": map[string]any{
				"prompt_tokens":     40,
				"completion_tokens": 10,
				"total_tokens":      50,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var prompt string
		if len(req.Messages) > 0 {
			prompt = req.Messages[len(req.Messages)-1].Content
		}

		switch {
		case strings.Contains(prompt, `{"ok":true}`):
			respond(w, `{"ok":true}`)
		case strings.Contains(prompt, "Analyze the following script excerpt"):
			encoded, _ := json.Marshal(map[string]any{
				"title":           "Fake Script",
				"character_names": characters,
				"scene_names":     scenes,
				"genre":           "drama",
				"tone":            "quiet",
			})
			respond(w, string(encoded))
		case strings.Contains(prompt, "Extract the following characters"):
			items := make([]map[string]any, len(characters))
			for i, name := range characters {
				items[i] = map[string]any{"name": name}
			}
			encoded, _ := json.Marshal(items)
			respond(w, string(encoded))
		case strings.Contains(prompt, "Extract the character"):
			for _, name := range characters {
				if strings.Contains(prompt, name) {
					encoded, _ := json.Marshal(map[string]any{"name": name})
					respond(w, string(encoded))
					return
				}
			}
			http.Error(w, "unknown character", http.StatusBadRequest)
		case strings.Contains(prompt, "Extract the following scenes"):
			items := make([]map[string]any, len(scenes))
			for i, name := range scenes {
				items[i] = map[string]any{"name": name, "location_type": "exterior"}
			}
			encoded, _ := json.Marshal(items)
			respond(w, string(encoded))
		case strings.Contains(prompt, "Extract the scene"):
			for _, name := range scenes {
				if strings.Contains(prompt, name) {
					encoded, _ := json.Marshal(map[string]any{"name": name})
					respond(w, string(encoded))
					return
				}
			}
			http.Error(w, "unknown scene", http.StatusBadRequest)
		case strings.Contains(prompt, "Design between"):
			shots := make([]map[string]any, 4)
			for i := range shots {
				shots[i] = map[string]any{
					"sequence":    i + 1,
					"type":        "wide",
					"description": fmt.Sprintf("shot %d", i+1),
				}
			}
			encoded, _ := json.Marshal(shots)
			respond(w, string(encoded))
		default:
			http.Error(w, "unexpected prompt: "+prompt, http.StatusBadRequest)
		}
	}))
}

func TestParseStatusRoundTrip(t *testing.T) {
	env := setupCLITestEnv(t)

	scriptPath := filepath.Join(env.baseDir, "my-script.txt")
	script := "Once there was A, and B lived in S1. They talked for a long while."
	if err := os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	out, err := runCLI(t, env.configPath, "parse", scriptPath)
	if err != nil {
		t.Fatalf("parse: %v\n%s", err, out)
	}
	requireContains(t, out, "Parse complete")
	requireContains(t, out, "Characters: 2")
	requireContains(t, out, "Scenes:     1")
	requireContains(t, out, "Shots:      4")

	out, err = runCLI(t, env.configPath, "status")
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	requireContains(t, out, "my-script")
	requireContains(t, out, "completed")

	out, err = runCLI(t, env.configPath, "status", "my-script")
	if err != nil {
		t.Fatalf("status detail: %v\n%s", err, out)
	}
	requireContains(t, out, "Stage:    completed")
	requireContains(t, out, "Title:    Fake Script")
	requireContains(t, out, "character")
	requireContains(t, out, "2/2")
}

func TestParseRejectsEmptyScript(t *testing.T) {
	env := setupCLITestEnv(t)

	scriptPath := filepath.Join(env.baseDir, "empty.txt")
	if err := os.WriteFile(scriptPath, []byte("   \n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	if _, err := runCLI(t, env.configPath, "parse", scriptPath); err == nil {
		t.Fatal("expected error for empty script")
	}
}

func TestStatusUnknownSession(t *testing.T) {
	env := setupCLITestEnv(t)

	_, err := runCLI(t, env.configPath, "status", "missing")
	if err == nil || !strings.Contains(err.Error(), "no session") {
		t.Fatalf("expected no-session error, got %v", err)
	}
}

func TestCacheStatsAndClear(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env.configPath, "cache", "stats")
	if err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	requireContains(t, out, "Entries: 0")

	scriptPath := filepath.Join(env.baseDir, "cached.txt")
	if err := os.WriteFile(scriptPath, []byte("A meets B in S1."), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	if out, err := runCLI(t, env.configPath, "parse", scriptPath); err != nil {
		t.Fatalf("parse: %v\n%s", err, out)
	}

	out, err = runCLI(t, env.configPath, "cache", "stats")
	if err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	if strings.Contains(out, "Entries: 0") {
		t.Fatalf("expected cached entries after parse, got:\n%s", out)
	}

	out, err = runCLI(t, env.configPath, "cache", "clear")
	if err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	requireContains(t, out, "Removed")
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	requireContains(t, out, "scriptforge")
}

func TestConfigInitAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, err := runCLI(t, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	// init refuses to overwrite
	if _, err := runCLI(t, "", "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when config already exists")
	}

	out, err = runCLI(t, env.configPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "API key set:     yes")
	requireContains(t, out, "Concurrency:")
}
