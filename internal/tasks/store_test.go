package tasks

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/openhive/orch/internal/logging"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), logging.New(logging.LevelSilent))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	task := New("do the thing")

	if err := s.Save(task); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(task.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ID != task.ID || got.Prompt != task.Prompt || got.Status != task.Status {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, task)
	}
}

func TestStorePreservesUnknownFields(t *testing.T) {
	s := newTestStore(t)
	task := New("do the thing")
	if err := s.Save(task); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Simulate a task file touched by a newer/different process that
	// wrote a field this struct doesn't model.
	raw, err := os.ReadFile(filepath.Join(s.dir, task.ID+".json"))
	if err != nil {
		t.Fatalf("reading task file: %v", err)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		t.Fatalf("unmarshaling task file: %v", err)
	}
	obj["cost_usd"] = json.RawMessage(`1.25`)
	patched, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshaling patched task: %v", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, task.ID+".json"), patched, 0o644); err != nil {
		t.Fatalf("writing patched task: %v", err)
	}

	loaded, err := s.Load(task.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(loaded.Extra["cost_usd"]) != "1.25" {
		t.Fatalf("expected cost_usd preserved in Extra, got %v", loaded.Extra)
	}

	if err := s.Save(loaded); err != nil {
		t.Fatalf("Save after load: %v", err)
	}
	rewritten, err := s.Load(task.ID)
	if err != nil {
		t.Fatalf("Load after resave: %v", err)
	}
	if string(rewritten.Extra["cost_usd"]) != "1.25" {
		t.Fatalf("expected cost_usd to survive a save/load round trip, got %v", rewritten.Extra)
	}
}

func TestStoreLoadAllSkipsCorruptFiles(t *testing.T) {
	s := newTestStore(t)
	good := New("keep me")
	if err := s.Save(good); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, "bad.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing corrupt file: %v", err)
	}

	all, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 1 || all[0].ID != good.ID {
		t.Fatalf("expected only the well-formed task, got %+v", all)
	}
}
