package auth_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"storyforge/internal/auth"
)

func TestFileTokenStoreLoadMissingFile(t *testing.T) {
	store := auth.NewFileTokenStore(filepath.Join(t.TempDir(), "missing.json"))

	pair, ok, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok || !pair.IsZero() {
		t.Fatalf("expected absent pair, got ok=%v pair=%#v", ok, pair)
	}
}

func TestFileTokenStoreRoundTripAndClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := auth.NewFileTokenStore(path)

	want := auth.TokenPair{AccessToken: "access", RefreshToken: "refresh"}
	if err := store.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	got, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Fatalf("pair mismatch: got %#v want %#v", got, want)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, err := store.Load(); err != nil || ok {
		t.Fatalf("expected cleared store, ok=%v err=%v", ok, err)
	}
}

func TestFileTokenStoreUsesNamespacedKeyAndKeepsOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(`{"unrelated":{"keep":true}}`), 0o600); err != nil {
		t.Fatalf("seed state: %v", err)
	}
	store := auth.NewFileTokenStore(path)
	if err := store.Save(auth.TokenPair{AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := doc["unrelated"]; !ok {
		t.Fatalf("expected unrelated key to survive, got %s", data)
	}
	if _, ok := doc[auth.StorageKey]; ok {
		t.Fatalf("expected token key removed, got %s", data)
	}
}
