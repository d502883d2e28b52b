package mapping

import (
	"errors"
	"strings"
	"testing"

	"aninamer/internal/services"
)

func testInput() ValidateInput {
	return ValidateInput{
		ExpectedTMDBID: 123,
		VideoIDs:       map[int]struct{}{1: {}, 2: {}},
		SubtitleIDs:    map[int]struct{}{3: {}, 4: {}},
		SeasonEpisodeCounts: map[int]int{
			0: 2,
			1: 12,
		},
	}
}

func TestValidateAccepts(t *testing.T) {
	raw := []byte(`{"tmdb":123,"eps":[
		{"v":1,"s":1,"e1":1,"e2":1,"u":[3]},
		{"v":2,"s":1,"e1":2,"e2":3,"u":[4]}
	]}`)
	res, err := Validate(raw, testInput())
	if err != nil {
		t.Fatal(err)
	}
	if res.TMDBID != 123 || len(res.Entries) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Entries[1].EpStart != 2 || res.Entries[1].EpEnd != 3 {
		t.Fatalf("range entry: %+v", res.Entries[1])
	}
}

func TestValidateSpecialsBounds(t *testing.T) {
	ok := []byte(`{"tmdb":123,"eps":[{"v":1,"s":0,"e1":1,"e2":2,"u":[]}]}`)
	if _, err := Validate(ok, testInput()); err != nil {
		t.Fatalf("specials within bounds rejected: %v", err)
	}
	over := []byte(`{"tmdb":123,"eps":[{"v":1,"s":0,"e1":1,"e2":3,"u":[]}]}`)
	if _, err := Validate(over, testInput()); err == nil {
		t.Fatal("specials beyond count accepted")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		reason string
		index  int
	}{
		{"not json", "hello", "invalid json", 0},
		{"not object", `[1,2]`, "expected JSON object", 0},
		{"extra key", `{"tmdb":123,"eps":[],"note":"x"}`, "only 'tmdb' and 'eps'", 0},
		{"missing eps", `{"tmdb":123}`, "only 'tmdb' and 'eps'", 0},
		{"tmdb float", `{"tmdb":123.5,"eps":[]}`, "tmdb must be int", 0},
		{"tmdb string", `{"tmdb":"123","eps":[]}`, "tmdb must be int", 0},
		{"tmdb mismatch", `{"tmdb":999,"eps":[]}`, "does not match expected", 0},
		{"eps not list", `{"tmdb":123,"eps":{}}`, "eps must be list", 0},
		{"entry not object", `{"tmdb":123,"eps":[5]}`, "must be object", 1},
		{"entry extra key", `{"tmdb":123,"eps":[{"v":1,"s":1,"e1":1,"e2":1,"u":[],"x":1}]}`, "only keys", 1},
		{"unknown video", `{"tmdb":123,"eps":[{"v":9,"s":1,"e1":1,"e2":1,"u":[]}]}`, "not in video ids", 1},
		{"subtitle used as video", `{"tmdb":123,"eps":[{"v":3,"s":1,"e1":1,"e2":1,"u":[]}]}`, "not in video ids", 1},
		{"video reused", `{"tmdb":123,"eps":[{"v":1,"s":1,"e1":1,"e2":1,"u":[]},{"v":1,"s":1,"e1":2,"e2":2,"u":[]}]}`, "appears more than once", 2},
		{"unknown season", `{"tmdb":123,"eps":[{"v":1,"s":7,"e1":1,"e2":1,"u":[]}]}`, "no known episode count", 1},
		{"episode zero", `{"tmdb":123,"eps":[{"v":1,"s":1,"e1":0,"e2":1,"u":[]}]}`, "must be >= 1", 1},
		{"inverted range", `{"tmdb":123,"eps":[{"v":1,"s":1,"e1":3,"e2":2,"u":[]}]}`, "is invalid", 1},
		{"beyond season count", `{"tmdb":123,"eps":[{"v":1,"s":1,"e1":12,"e2":13,"u":[]}]}`, "exceeds season 1 count 12", 1},
		{"unknown subtitle", `{"tmdb":123,"eps":[{"v":1,"s":1,"e1":1,"e2":1,"u":[9]}]}`, "not in subtitle ids", 1},
		{"video used as subtitle", `{"tmdb":123,"eps":[{"v":1,"s":1,"e1":1,"e2":1,"u":[2]}]}`, "not in subtitle ids", 1},
		{"subtitle reused across entries", `{"tmdb":123,"eps":[{"v":1,"s":1,"e1":1,"e2":1,"u":[3]},{"v":2,"s":1,"e1":2,"e2":2,"u":[3]}]}`, "already used", 2},
		{"episode overlap", `{"tmdb":123,"eps":[{"v":1,"s":1,"e1":1,"e2":2,"u":[]},{"v":2,"s":1,"e1":2,"e2":2,"u":[]}]}`, "already claimed", 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Validate([]byte(tc.raw), testInput())
			if err == nil {
				t.Fatalf("accepted: %s", tc.raw)
			}
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation marker, got %v", err)
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if !strings.Contains(vErr.Reason, tc.reason) {
				t.Fatalf("reason %q does not contain %q", vErr.Reason, tc.reason)
			}
			if vErr.EntryIndex != tc.index {
				t.Fatalf("entry index %d, want %d", vErr.EntryIndex, tc.index)
			}
		})
	}
}

func TestExtractFirstJSONObject(t *testing.T) {
	text := "Here is the mapping:\n```json\n{\"tmdb\":123,\"eps\":[]}\n```\nDone."
	got, err := ExtractFirstJSONObject(text)
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"tmdb":123,"eps":[]}` {
		t.Fatalf("extracted %q", got)
	}

	if _, err := ExtractFirstJSONObject("no braces here"); err == nil {
		t.Fatal("expected error when no object present")
	}

	// A stray opening brace before the real object is skipped.
	got, err = ExtractFirstJSONObject("{oops {\"tmdb\":1,\"eps\":[]}")
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"tmdb":1,"eps":[]}` {
		t.Fatalf("extracted %q", got)
	}
}
