package monitor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStateTableRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	table, err := LoadState(path)
	if err != nil {
		t.Fatal(err)
	}
	if table.HasBaseline() {
		t.Fatal("fresh table should have no baseline")
	}

	table.SetBaseline([]string{"/watch/old"})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	table.Put(&DirState{
		Path:         "/watch/show",
		Status:       StatusPlanned,
		FirstSeenAt:  now,
		LastChangeAt: now,
		Snapshot:     Snapshot{"ep01.mkv": {Size: 7, ModTime: 42}},
		PlanRef:      "/logs/plans/show.plan.json",
		Attempts:     1,
		Reason:       "retrying",
	})
	if err := table.Save(); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadState(path)
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.HasBaseline() || !loaded.InBaseline("/watch/old") {
		t.Fatal("baseline lost")
	}
	state := loaded.Get("/watch/show")
	if state == nil {
		t.Fatal("record lost")
	}
	if state.Status != StatusPlanned || state.PlanRef != "/logs/plans/show.plan.json" {
		t.Fatalf("record mangled: %+v", state)
	}
	if state.Snapshot["ep01.mkv"] != (Stamp{Size: 7, ModTime: 42}) {
		t.Fatalf("snapshot mangled: %+v", state.Snapshot)
	}
	if !state.FirstSeenAt.Equal(now) {
		t.Fatalf("first_seen_at = %v", state.FirstSeenAt)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	table, err := LoadState(path)
	if err != nil {
		t.Fatal(err)
	}
	table.SetBaseline(nil)
	if err := table.Save(); err != nil {
		t.Fatal(err)
	}
	if err := table.Save(); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp-") {
			t.Fatalf("leftover temp file %s", entry.Name())
		}
	}
}

func TestLoadStateRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{truncated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadState(path); err == nil {
		t.Fatal("expected error for corrupt state file")
	}
}

func TestLoadStateRejectsVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(`{"version": 99, "dirs": {}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadState(path); err == nil {
		t.Fatal("expected error for version mismatch")
	}
}

func TestDeleteAndPaths(t *testing.T) {
	table, err := LoadState(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatal(err)
	}
	table.Put(&DirState{Path: "/b"})
	table.Put(&DirState{Path: "/a"})
	paths := table.Paths()
	if len(paths) != 2 || paths[0] != "/a" || paths[1] != "/b" {
		t.Fatalf("paths = %v", paths)
	}
	table.Delete("/a")
	if table.Get("/a") != nil {
		t.Fatal("delete failed")
	}
}
