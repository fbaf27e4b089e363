// internal/tasks/store.go
package tasks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/openhive/orch/internal/logging"
)

// Store persists one JSON-text file per task under a root directory, per
// the external interfaces contract. Writes are whole-file (no partial
// updates), made atomic via a temp-file-then-rename, the filesystem
// analogue of the teacher's atomic INSERT ... ON CONFLICT upsert in
// tasks/store.go. Corrupt files are skipped with a warning at load time
// rather than failing the whole load.
type Store struct {
	dir string
	log *logging.Logger
}

// NewStore creates a Store rooted at dir, creating the directory if
// necessary.
func NewStore(dir string, log *logging.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating task storage dir %s: %w", dir, err)
	}
	return &Store{dir: dir, log: log.With("TASK-STORE")}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes the task's full JSON representation atomically.
func (s *Store) Save(t *Task) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling task %s: %w", t.ID, err)
	}

	tmp := s.path(t.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing task %s: %w", t.ID, err)
	}
	if err := os.Rename(tmp, s.path(t.ID)); err != nil {
		return fmt.Errorf("committing task %s: %w", t.ID, err)
	}
	return nil
}

// Load reads a single task by id.
func (s *Store) Load(id string) (*Task, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("reading task %s: %w", id, err)
	}
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing task %s: %w", id, err)
	}
	return &t, nil
}

// LoadAll reads every task file in the store directory, skipping and
// warning on any that fail to parse, and returns them ordered by
// creation timestamp ascending.
func (s *Store) LoadAll() ([]*Task, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing task storage dir %s: %w", s.dir, err)
	}

	var out []*Task
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := e.Name()[:len(e.Name())-len(".json")]
		t, err := s.Load(id)
		if err != nil {
			s.log.Warnf("skipping corrupt task file %s: %v", e.Name(), err)
			continue
		}
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Delete removes a task's file. Deleting a file that doesn't exist is
// not an error (idempotent, matching the queue's Remove semantics).
func (s *Store) Delete(id string) error {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	return nil
}
