package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Status is the lifecycle position of one watched directory.
type Status string

const (
	StatusDiscovered Status = "discovered"
	StatusPending    Status = "pending"
	StatusSettled    Status = "settled"
	StatusPlanned    Status = "planned"
	StatusApplying   Status = "applying"
	StatusArchived   Status = "archived"
	StatusFailed     Status = "failed"
)

// DirState is the persisted record for one watched directory. The state file
// is the sole source of truth across restarts.
type DirState struct {
	Path         string    `json:"path"`
	Status       Status    `json:"status"`
	FirstSeenAt  time.Time `json:"first_seen_at"`
	LastChangeAt time.Time `json:"last_change_at"`
	Snapshot     Snapshot  `json:"snapshot,omitempty"`
	PlanRef      string    `json:"plan_ref,omitempty"`
	Attempts     int       `json:"attempts,omitempty"`
	NextRetryAt  time.Time `json:"next_retry_at,omitzero"`
	Reason       string    `json:"reason,omitempty"`
}

const stateVersion = 1

type stateFile struct {
	Version  int                  `json:"version"`
	Baseline []string             `json:"baseline,omitempty"`
	Dirs     map[string]*DirState `json:"dirs"`
}

// StateTable holds the tracked directory records plus the baseline set of
// directories that pre-dated the monitor and are ignored.
type StateTable struct {
	path     string
	baseline map[string]struct{}
	dirs     map[string]*DirState

	baselineSet bool
}

// LoadState reads the state file, or returns an empty table when the file
// does not exist yet. A corrupt file is an error; the operator decides
// whether to delete it.
func LoadState(path string) (*StateTable, error) {
	table := &StateTable{
		path:     path,
		baseline: make(map[string]struct{}),
		dirs:     make(map[string]*DirState),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return table, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var file stateFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", path, err)
	}
	if file.Version != stateVersion {
		return nil, fmt.Errorf("state file %s has version %d, expected %d", path, file.Version, stateVersion)
	}
	for _, dir := range file.Baseline {
		table.baseline[dir] = struct{}{}
	}
	table.baselineSet = true
	for path, state := range file.Dirs {
		if state == nil {
			continue
		}
		state.Path = path
		table.dirs[path] = state
	}
	return table, nil
}

// Save writes the table with write-new-then-rename semantics so a crash
// mid-write never corrupts the previous state.
func (t *StateTable) Save() error {
	file := stateFile{
		Version: stateVersion,
		Dirs:    t.dirs,
	}
	for dir := range t.baseline {
		file.Baseline = append(file.Baseline, dir)
	}
	sort.Strings(file.Baseline)

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state file: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(t.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Get returns the record for a directory path, or nil when untracked.
func (t *StateTable) Get(path string) *DirState {
	return t.dirs[path]
}

// Put inserts or replaces a record keyed by its path.
func (t *StateTable) Put(state *DirState) {
	t.dirs[state.Path] = state
}

// Delete removes the record for a path.
func (t *StateTable) Delete(path string) {
	delete(t.dirs, path)
}

// Paths returns tracked directory paths in sorted order.
func (t *StateTable) Paths() []string {
	paths := make([]string, 0, len(t.dirs))
	for path := range t.dirs {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// HasBaseline reports whether a baseline has been recorded, distinguishing a
// fresh state file from one loaded off disk.
func (t *StateTable) HasBaseline() bool {
	return t.baselineSet
}

// SetBaseline records the directories that existed before the first monitor
// iteration. Baseline directories are skipped at discovery.
func (t *StateTable) SetBaseline(paths []string) {
	t.baseline = make(map[string]struct{}, len(paths))
	for _, path := range paths {
		t.baseline[path] = struct{}{}
	}
	t.baselineSet = true
}

// InBaseline reports whether a path belongs to the recorded baseline.
func (t *StateTable) InBaseline(path string) bool {
	_, ok := t.baseline[path]
	return ok
}
