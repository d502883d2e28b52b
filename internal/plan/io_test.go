package plan

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aninamer/internal/services"
)

func samplePlan() *Plan {
	p := &Plan{
		TMDBID:      123,
		SeriesTitle: "葬送的芙莉莲",
		Year:        2023,
		SourceDir:   "/watch/frieren",
		OutputRoot:  "/library",
		Ops: []Op{
			{SrcID: 1, Kind: KindVideo, Src: "/watch/frieren/ep01.mkv",
				Dst: "/library/葬送的芙莉莲 (2023) {tmdb-123}/S01/葬送的芙莉莲 S01E01.mkv", SrcSize: 42},
		},
	}
	p.Fingerprint = FingerprintOps(p.Ops)
	return p
}

func TestPlanFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plans", "frieren.plan.json")

	want := samplePlan()
	if err := WriteFile(path, want); err != nil {
		t.Fatal(err)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.TMDBID != want.TMDBID || got.SeriesTitle != want.SeriesTitle ||
		got.Fingerprint != want.Fingerprint || len(got.Ops) != 1 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Ops[0] != want.Ops[0] {
		t.Fatalf("op mismatch: %+v vs %+v", got.Ops[0], want.Ops[0])
	}

	// No temporary files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("leftover temp file %s", e.Name())
		}
	}
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestDecodeRejects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", "hello"},
		{"unknown key", `{"version":1,"tmdb_id":1,"series_title":"x","year":0,"source_dir":"/a","output_root":"/b","fingerprint":"f","ops":[],"extra":true}`},
		{"wrong version", `{"version":2,"tmdb_id":1,"series_title":"x","year":0,"source_dir":"/a","output_root":"/b","fingerprint":"f","ops":[]}`},
		{"zero tmdb", `{"version":1,"tmdb_id":0,"series_title":"x","year":0,"source_dir":"/a","output_root":"/b","fingerprint":"f","ops":[]}`},
		{"empty title", `{"version":1,"tmdb_id":1,"series_title":"","year":0,"source_dir":"/a","output_root":"/b","fingerprint":"f","ops":[]}`},
		{"missing fingerprint", `{"version":1,"tmdb_id":1,"series_title":"x","year":0,"source_dir":"/a","output_root":"/b","fingerprint":"","ops":[]}`},
		{"bad kind", `{"version":1,"tmdb_id":1,"series_title":"x","year":0,"source_dir":"/a","output_root":"/b","fingerprint":"f","ops":[{"src_id":1,"kind":"audio","src":"/a/x","dst":"/b/x","src_size":1}]}`},
		{"relative path", `{"version":1,"tmdb_id":1,"series_title":"x","year":0,"source_dir":"/a","output_root":"/b","fingerprint":"f","ops":[{"src_id":1,"kind":"video","src":"x","dst":"/b/x","src_size":1}]}`},
		{"negative size", `{"version":1,"tmdb_id":1,"series_title":"x","year":0,"source_dir":"/a","output_root":"/b","fingerprint":"f","ops":[{"src_id":1,"kind":"video","src":"/a/x","dst":"/b/x","src_size":-1}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.raw))
			if err == nil {
				t.Fatalf("accepted: %s", tc.raw)
			}
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation marker, got %v", err)
			}
		})
	}
}

func TestVerifyFingerprint(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	src := filepath.Join(srcDir, "ep01.mkv")
	dst := filepath.Join(dstDir, "ep01.mkv")
	if err := os.WriteFile(src, []byte("twelve bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := &Plan{
		Ops: []Op{{SrcID: 1, Kind: KindVideo, Src: src, Dst: dst, SrcSize: 12}},
	}
	p.Fingerprint = FingerprintOps(p.Ops)

	if err := p.VerifyFingerprint(); err != nil {
		t.Fatalf("untouched source should verify: %v", err)
	}

	// Source grew since planning.
	if err := os.WriteFile(src, []byte("now it is bigger"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := p.VerifyFingerprint(); err == nil {
		t.Fatal("changed source must read as stale")
	}

	// Source already moved to its destination with matching provenance.
	if err := os.WriteFile(src, []byte("twelve bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(src, dst); err != nil {
		t.Fatal(err)
	}
	if err := p.VerifyFingerprint(); err != nil {
		t.Fatalf("completed op should not read as stale: %v", err)
	}
	if !p.Ops[0].Completed() {
		t.Fatal("op should report completed")
	}

	// Destination present but with the wrong size.
	if err := os.WriteFile(dst, []byte("wrong"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := p.VerifyFingerprint(); err == nil {
		t.Fatal("mismatched destination must read as stale")
	}
}
