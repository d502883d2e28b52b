// Package scanner walks a series directory and enumerates the video and
// subtitle files that can participate in a rename run. Candidates carry
// small integer ids that the episode mapping refers back to; the ids are
// stable for a single scan only.
package scanner

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"aninamer/internal/logging"
	"aninamer/internal/services"
)

var videoExts = map[string]struct{}{
	".mkv": {}, ".mp4": {}, ".avi": {}, ".m4v": {},
	".mov": {}, ".ts": {}, ".m2ts": {}, ".webm": {},
}

var subtitleExts = map[string]struct{}{
	".ass": {}, ".ssa": {}, ".srt": {}, ".sub": {},
	".vtt": {}, ".idx": {}, ".sup": {},
}

// Directory names that hold bonus material rather than episodes.
var skipDirNames = map[string]struct{}{
	"sample": {}, "samples": {},
	"trailer": {}, "trailers": {},
	"bonus": {}, "extra": {}, "extras": {},
	"sp": {}, "sps": {},
	"cd": {}, "cds": {},
	"music": {}, "musics": {},
	"scan": {}, "scans": {},
	"menu": {}, "menus": {},
	"preview": {}, "previews": {},
	"映像特典": {},
}

// Candidate is one file found during a scan. RelPath is slash-separated and
// relative to the scanned directory.
type Candidate struct {
	ID      int    `json:"id"`
	RelPath string `json:"rel_path"`
	Ext     string `json:"ext"`
	Size    int64  `json:"size_bytes"`
}

// Result holds the candidates of one directory scan. Videos are numbered
// 1..n in relative-path order; subtitles continue the sequence at n+1.
type Result struct {
	Dir       string
	Videos    []Candidate
	Subtitles []Candidate
}

// Candidate returns the candidate with the given id, or nil.
func (r *Result) Candidate(id int) *Candidate {
	if id >= 1 && id <= len(r.Videos) {
		return &r.Videos[id-1]
	}
	subIdx := id - len(r.Videos) - 1
	if subIdx >= 0 && subIdx < len(r.Subtitles) {
		return &r.Subtitles[subIdx]
	}
	return nil
}

// Scan walks dir depth-first, skipping bonus-material directories and
// symlinked subtrees, and collects video and subtitle candidates.
func Scan(dir string, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "scanner", "scan",
			"scan target must be an existing directory", err)
	}

	var videos, subtitles []Candidate
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir {
				if _, skip := skipDirNames[strings.ToLower(d.Name())]; skip {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == "" {
			return nil
		}
		_, isVideo := videoExts[ext]
		_, isSubtitle := subtitleExts[ext]
		if !isVideo && !isSubtitle {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		candidate := Candidate{
			RelPath: filepath.ToSlash(rel),
			Ext:     ext,
			Size:    fi.Size(),
		}
		if isVideo {
			videos = append(videos, candidate)
		} else {
			subtitles = append(subtitles, candidate)
		}
		return nil
	})
	if walkErr != nil {
		return nil, services.Wrap(services.ErrTransient, "scanner", "scan",
			"directory walk failed", walkErr)
	}

	sort.Slice(videos, func(i, j int) bool { return videos[i].RelPath < videos[j].RelPath })
	sort.Slice(subtitles, func(i, j int) bool { return subtitles[i].RelPath < subtitles[j].RelPath })
	for i := range videos {
		videos[i].ID = i + 1
	}
	for i := range subtitles {
		subtitles[i].ID = len(videos) + i + 1
	}

	logger.Info("scan complete",
		logging.String(logging.FieldDirectory, dir),
		logging.Int("videos", len(videos)),
		logging.Int("subtitles", len(subtitles)))

	return &Result{Dir: dir, Videos: videos, Subtitles: subtitles}, nil
}
