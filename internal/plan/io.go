package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"aninamer/internal/services"
)

// Version of the plan file format.
const Version = 1

type planFile struct {
	Version     int    `json:"version"`
	TMDBID      int64  `json:"tmdb_id"`
	SeriesTitle string `json:"series_title"`
	Year        int    `json:"year"`
	SourceDir   string `json:"source_dir"`
	OutputRoot  string `json:"output_root"`
	Fingerprint string `json:"fingerprint"`
	Ops         []Op   `json:"ops"`
}

// WriteFile serializes the plan as indented JSON, writing a temporary file
// in the target directory and renaming it into place.
func WriteFile(path string, p *Plan) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ioErr("write", err)
	}
	payload := planFile{
		Version:     Version,
		TMDBID:      p.TMDBID,
		SeriesTitle: p.SeriesTitle,
		Year:        p.Year,
		SourceDir:   p.SourceDir,
		OutputRoot:  p.OutputRoot,
		Fingerprint: p.Fingerprint,
		Ops:         p.Ops,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return ioErr("write", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return ioErr("write", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return ioErr("write", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return ioErr("write", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return ioErr("write", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return ioErr("write", err)
	}
	return nil
}

// ReadFile loads and strictly validates a plan file. Unknown keys, a wrong
// version, or malformed operations are rejected.
func ReadFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, services.Wrap(services.ErrNotFound, "plan", "read", path, err)
		}
		return nil, ioErr("read", err)
	}
	return Decode(data)
}

// Decode parses plan JSON with strict validation.
func Decode(data []byte) (*Plan, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var payload planFile
	if err := dec.Decode(&payload); err != nil {
		return nil, invalidPlan(fmt.Sprintf("invalid json: %v", err))
	}
	if payload.Version != Version {
		return nil, invalidPlan(fmt.Sprintf("version must be %d, got %d", Version, payload.Version))
	}
	if payload.TMDBID <= 0 {
		return nil, invalidPlan("tmdb_id must be positive")
	}
	if payload.SeriesTitle == "" {
		return nil, invalidPlan("series_title must not be empty")
	}
	if payload.SourceDir == "" || payload.OutputRoot == "" {
		return nil, invalidPlan("source_dir and output_root must not be empty")
	}
	if payload.Fingerprint == "" {
		return nil, invalidPlan("fingerprint must not be empty")
	}
	for i, op := range payload.Ops {
		if op.Kind != KindVideo && op.Kind != KindSubtitle {
			return nil, invalidPlan(fmt.Sprintf("ops[%d].kind must be video or subtitle", i))
		}
		if op.Src == "" || op.Dst == "" {
			return nil, invalidPlan(fmt.Sprintf("ops[%d] src and dst must not be empty", i))
		}
		if !filepath.IsAbs(op.Src) || !filepath.IsAbs(op.Dst) {
			return nil, invalidPlan(fmt.Sprintf("ops[%d] paths must be absolute", i))
		}
		if op.SrcSize < 0 {
			return nil, invalidPlan(fmt.Sprintf("ops[%d].src_size must not be negative", i))
		}
	}
	return &Plan{
		TMDBID:      payload.TMDBID,
		SeriesTitle: payload.SeriesTitle,
		Year:        payload.Year,
		SourceDir:   payload.SourceDir,
		OutputRoot:  payload.OutputRoot,
		Fingerprint: payload.Fingerprint,
		Ops:         payload.Ops,
	}, nil
}

func invalidPlan(message string) error {
	return services.Wrap(services.ErrValidation, "plan", "decode", message, nil)
}

func ioErr(op string, err error) error {
	return services.Wrap(services.ErrTransient, "plan", op, "", err)
}
