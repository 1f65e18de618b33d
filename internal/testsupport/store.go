package testsupport

import (
	"testing"

	"scriptforge/internal/cachestore"
	"scriptforge/internal/config"
	"scriptforge/internal/scriptstore"
)

// MustOpenScriptStore opens a parse-state store under the config's data
// directory and registers cleanup.
func MustOpenScriptStore(t testing.TB, cfg *config.Config) *scriptstore.Store {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store, err := scriptstore.Open(cfg.Paths.DataDir)
	if err != nil {
		t.Fatalf("scriptstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenCacheStore opens a cache store under the config's data directory
// and registers cleanup.
func MustOpenCacheStore(t testing.TB, cfg *config.Config) *cachestore.Store {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store, err := cachestore.Open(cfg.Paths.DataDir)
	if err != nil {
		t.Fatalf("cachestore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
