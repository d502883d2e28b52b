package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"aninamer/internal/metadata/tmdb"
	"aninamer/internal/scanner"
	"aninamer/internal/services"
)

type fakeCompleter struct {
	replies []string
	errs    []error
	calls   int
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, _, userPrompt string, _ int) (string, error) {
	idx := f.calls
	f.calls++
	f.prompts = append(f.prompts, userPrompt)
	if idx < len(f.errs) && f.errs[idx] != nil {
		return "", f.errs[idx]
	}
	if idx < len(f.replies) {
		return f.replies[idx], nil
	}
	return "", fmt.Errorf("no scripted reply for call %d", idx)
}

func mappingInput() MappingPromptInput {
	return MappingPromptInput{
		TMDBID:      123,
		SeriesTitle: "葬送的芙莉莲",
		Year:        2023,
		SeasonEpisodeCounts: map[int]int{
			1: 12,
		},
		Scan: &scanner.Result{
			Dir: "/watch/frieren",
			Videos: []scanner.Candidate{
				{ID: 1, RelPath: "ep01.mkv", Ext: ".mkv", Size: 100},
			},
			Subtitles: []scanner.Candidate{
				{ID: 2, RelPath: "ep01.chs.ass", Ext: ".ass", Size: 10},
			},
		},
	}
}

func TestMapEpisodesAcceptsValidReply(t *testing.T) {
	llm := &fakeCompleter{replies: []string{
		"Here you go:\n" + `{"tmdb":123,"eps":[{"v":1,"s":1,"e1":1,"e2":1,"u":[2]}]}`,
	}}
	o := New(llm, 3, nil)

	res, err := o.MapEpisodes(context.Background(), mappingInput())
	if err != nil {
		t.Fatal(err)
	}
	if res.TMDBID != 123 || len(res.Entries) != 1 {
		t.Fatalf("result: %+v", res)
	}
	if llm.calls != 1 {
		t.Fatalf("calls: %d", llm.calls)
	}
	prompt := llm.prompts[0]
	for _, want := range []string{"tmdb_id: 123", "S01=12", "1|ep01.mkv|100", "2|ep01.chs.ass|10"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestMapEpisodesRetriesInvalidReply(t *testing.T) {
	llm := &fakeCompleter{replies: []string{
		`{"tmdb":123,"eps":[{"v":1,"s":9,"e1":1,"e2":1,"u":[]}]}`,
		`{"tmdb":123,"eps":[{"v":1,"s":1,"e1":1,"e2":1,"u":[]}]}`,
	}}
	o := New(llm, 3, nil)

	res, err := o.MapEpisodes(context.Background(), mappingInput())
	if err != nil {
		t.Fatal(err)
	}
	if llm.calls != 2 {
		t.Fatalf("expected retry, calls: %d", llm.calls)
	}
	if len(res.Entries) != 1 {
		t.Fatalf("result: %+v", res)
	}
}

func TestMapEpisodesExhaustsAttempts(t *testing.T) {
	llm := &fakeCompleter{replies: []string{"garbage", "garbage", "garbage"}}
	o := New(llm, 3, nil)

	_, err := o.MapEpisodes(context.Background(), mappingInput())
	if err == nil {
		t.Fatal("expected failure")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", err)
	}
	if llm.calls != 3 {
		t.Fatalf("calls: %d", llm.calls)
	}
}

func TestMapEpisodesPropagatesTransportError(t *testing.T) {
	transportErr := services.Wrap(services.ErrTransient, "oracle", "complete", "boom", nil)
	llm := &fakeCompleter{errs: []error{transportErr}}
	o := New(llm, 3, nil)

	_, err := o.MapEpisodes(context.Background(), mappingInput())
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transport error to propagate, got %v", err)
	}
	if llm.calls != 1 {
		t.Fatalf("transport errors must not burn attempts: %d", llm.calls)
	}
}

func TestSelectTVID(t *testing.T) {
	candidates := []tmdb.SearchResult{
		{ID: 10, Name: "a"},
		{ID: 20, Name: "b"},
	}

	llm := &fakeCompleter{replies: []string{`{"tmdb":20}`}}
	o := New(llm, 1, nil)
	id, err := o.SelectTVID(context.Background(), "some dir", candidates)
	if err != nil {
		t.Fatal(err)
	}
	if id != 20 {
		t.Fatalf("id: %d", id)
	}

	// Single candidate short-circuits without an LLM call.
	llm2 := &fakeCompleter{}
	o2 := New(llm2, 1, nil)
	id, err = o2.SelectTVID(context.Background(), "some dir", candidates[:1])
	if err != nil {
		t.Fatal(err)
	}
	if id != 10 || llm2.calls != 0 {
		t.Fatalf("id %d calls %d", id, llm2.calls)
	}
}

func TestSelectTVIDRejectsUnlistedID(t *testing.T) {
	candidates := []tmdb.SearchResult{{ID: 10}, {ID: 20}}
	llm := &fakeCompleter{replies: []string{`{"tmdb":999}`}}
	o := New(llm, 1, nil)

	_, err := o.SelectTVID(context.Background(), "dir", candidates)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCleanTitle(t *testing.T) {
	llm := &fakeCompleter{replies: []string{"```json\n{\"title\":\"Frieren\"}\n```"}}
	o := New(llm, 1, nil)

	title, err := o.CleanTitle(context.Background(), "[Group] Frieren [1080p][BDRip]")
	if err != nil {
		t.Fatal(err)
	}
	if title != "Frieren" {
		t.Fatalf("title: %q", title)
	}
}
