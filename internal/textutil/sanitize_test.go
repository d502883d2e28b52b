package textutil

import (
	"errors"
	"testing"

	"aninamer/internal/services"
)

func TestSanitizeComponent(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Frieren", "Frieren"},
		{"unsafe chars become spaces", `a<b>c:d"e|f?g*h`, "a b c d e f g h"},
		{"whitespace collapsed", "  spaced   out  ", "spaced out"},
		{"trailing dots stripped", "Dr. Stone.", "Dr. Stone"},
		{"cjk preserved", "葬送的芙莉莲", "葬送的芙莉莲"},
		{"control chars removed", "a\x00b\tc", "a b c"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SanitizeComponent(tc.in)
			if err != nil {
				t.Fatalf("SanitizeComponent(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("SanitizeComponent(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitizeComponentDeterministic(t *testing.T) {
	const in = "Re:Zero − Starting Life"
	first, err := SanitizeComponent(in)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		got, err := SanitizeComponent(in)
		if err != nil {
			t.Fatal(err)
		}
		if got != first {
			t.Fatalf("non-deterministic output: %q vs %q", got, first)
		}
	}
}

func TestSanitizeComponentRejections(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"only unsafe", `<>:?*`},
		{"only dots", "..."},
		{"slash", "a/b"},
		{"backslash", `a\b`},
		{"dot segment", "."},
		{"dotdot segment", ".."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := SanitizeComponent(tc.in)
			if err == nil {
				t.Fatalf("SanitizeComponent(%q) accepted", tc.in)
			}
			if !errors.Is(err, ErrInvalidName) {
				t.Fatalf("expected ErrInvalidName, got %v", err)
			}
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation marker, got %v", err)
			}
		})
	}
}

func TestSeriesRootFolder(t *testing.T) {
	got, err := SeriesRootFolder("葬送的芙莉莲", 2023, 209867)
	if err != nil {
		t.Fatal(err)
	}
	if got != "葬送的芙莉莲 (2023) {tmdb-209867}" {
		t.Fatalf("unexpected folder: %q", got)
	}

	got, err = SeriesRootFolder("Unknown Year Show", 0, 42)
	if err != nil {
		t.Fatal(err)
	}
	if got != "Unknown Year Show {tmdb-42}" {
		t.Fatalf("unexpected folder without year: %q", got)
	}
}

func TestEpisodeBase(t *testing.T) {
	single, err := EpisodeBase("名", 1, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if single != "名 S01E01" {
		t.Fatalf("single episode stem: %q", single)
	}

	ranged, err := EpisodeBase("名", 1, 11, 12)
	if err != nil {
		t.Fatal(err)
	}
	if ranged != "名 S01E11-E12" {
		t.Fatalf("ranged episode stem: %q", ranged)
	}
}

func TestSeasonFolder(t *testing.T) {
	if got := SeasonFolder(0); got != "S00" {
		t.Fatalf("specials folder: %q", got)
	}
	if got := SeasonFolder(12); got != "S12" {
		t.Fatalf("season folder: %q", got)
	}
}
