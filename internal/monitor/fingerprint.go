package monitor

import (
	"io/fs"
	"path/filepath"

	"aninamer/internal/services"
)

// Stamp records the observable state of one file inside a watched directory.
type Stamp struct {
	Size    int64 `json:"size"`
	ModTime int64 `json:"mtime_ns"`
}

// Snapshot is a recursive size+mtime fingerprint of a directory, keyed by
// path relative to the directory root. An unchanged snapshot across the
// settle window is the signal that writers have finished.
type Snapshot map[string]Stamp

// TakeSnapshot walks dir and records every regular file. A missing dir
// yields a not-found error so callers can distinguish "gone" from "empty".
func TakeSnapshot(dir string) (Snapshot, error) {
	snap := make(Snapshot)
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		snap[rel] = Stamp{Size: info.Size(), ModTime: info.ModTime().UnixNano()}
		return nil
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "monitor", "snapshot", "walk directory", err)
	}
	return snap, nil
}

// Equal reports whether two snapshots cover the same files with the same
// sizes and modification times.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for rel, stamp := range s {
		if other[rel] != stamp {
			return false
		}
	}
	return true
}
