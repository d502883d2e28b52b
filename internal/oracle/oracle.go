// Package oracle asks an LLM to map scanned video files onto TMDB episode
// numbers and to disambiguate TMDB search results. Raw oracle output is
// untrusted; everything it returns is funneled through the mapping
// validator before any use.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"aninamer/internal/logging"
	"aninamer/internal/mapping"
	"aninamer/internal/metadata/tmdb"
	"aninamer/internal/scanner"
	"aninamer/internal/services"
)

const (
	mappingMaxTokens    = 2048
	selectMaxTokens     = 64
	titleMaxTokens      = 128
	maxSelectCandidates = 5
)

// Completer is the LLM surface the oracle needs.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

// Oracle wraps a Completer with prompt construction and output validation.
type Oracle struct {
	llm         Completer
	maxAttempts int
	logger      *slog.Logger
}

// New builds an Oracle. maxAttempts bounds how many times a malformed or
// invalid mapping reply is retried with a fresh completion.
func New(llm Completer, maxAttempts int, logger *slog.Logger) *Oracle {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Oracle{llm: llm, maxAttempts: maxAttempts, logger: logger}
}

// MapEpisodes produces a validated episode mapping. Each attempt gets a
// fresh completion; validation failures are retried up to the attempt
// budget, transport errors propagate immediately.
func (o *Oracle) MapEpisodes(ctx context.Context, in MappingPromptInput) (*mapping.Result, error) {
	userPrompt := buildMappingPrompt(in)
	validateIn := mapping.ValidateInput{
		ExpectedTMDBID:      in.TMDBID,
		VideoIDs:            candidateIDs(in.Scan.Videos),
		SubtitleIDs:         candidateIDs(in.Scan.Subtitles),
		SeasonEpisodeCounts: in.SeasonEpisodeCounts,
	}

	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		reply, err := o.llm.Complete(ctx, mappingSystemPrompt, userPrompt, mappingMaxTokens)
		if err != nil {
			return nil, err
		}
		raw, err := mapping.ExtractFirstJSONObject(reply)
		if err != nil {
			lastErr = services.Wrap(services.ErrValidation, "oracle", "map episodes", err.Error(), nil)
			o.logger.Warn("mapping reply had no JSON object",
				logging.Int("attempt", attempt))
			continue
		}
		result, err := mapping.Validate([]byte(raw), validateIn)
		if err != nil {
			lastErr = err
			o.logger.Warn("mapping reply failed validation",
				logging.Int("attempt", attempt),
				logging.Error(err))
			continue
		}
		return result, nil
	}
	return nil, services.Wrap(services.ErrValidation, "oracle", "map episodes",
		fmt.Sprintf("no valid mapping after %d attempts", o.maxAttempts), lastErr)
}

// SelectTVID picks the matching TMDB id for a directory name from search
// candidates. A single candidate is returned without consulting the LLM.
func (o *Oracle) SelectTVID(ctx context.Context, dirname string, candidates []tmdb.SearchResult) (int64, error) {
	if len(candidates) == 0 {
		return 0, services.Wrap(services.ErrValidation, "oracle", "select tv id", "candidates must be non-empty", nil)
	}
	if len(candidates) == 1 {
		return candidates[0].ID, nil
	}
	trimmed := candidates
	if len(trimmed) > maxSelectCandidates {
		trimmed = trimmed[:maxSelectCandidates]
	}

	reply, err := o.llm.Complete(ctx, selectSystemPrompt, buildSelectPrompt(dirname, trimmed), selectMaxTokens)
	if err != nil {
		return 0, err
	}
	raw, err := mapping.ExtractFirstJSONObject(reply)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "oracle", "select tv id", err.Error(), nil)
	}
	var parsed struct {
		TMDB int64 `json:"tmdb"`
	}
	if err := strictUnmarshal(raw, &parsed); err != nil {
		return 0, services.Wrap(services.ErrValidation, "oracle", "select tv id", err.Error(), nil)
	}
	for _, c := range trimmed {
		if c.ID == parsed.TMDB {
			return parsed.TMDB, nil
		}
	}
	return 0, services.Wrap(services.ErrValidation, "oracle", "select tv id",
		fmt.Sprintf("tmdb id %d not in allowed ids", parsed.TMDB), nil)
}

// CleanTitle extracts a searchable series title from a noisy directory name.
func (o *Oracle) CleanTitle(ctx context.Context, dirname string) (string, error) {
	reply, err := o.llm.Complete(ctx, titleCleanSystemPrompt, buildTitleCleanPrompt(dirname), titleMaxTokens)
	if err != nil {
		return "", err
	}
	raw, err := mapping.ExtractFirstJSONObject(reply)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "oracle", "clean title", err.Error(), nil)
	}
	var parsed struct {
		Title string `json:"title"`
	}
	if err := strictUnmarshal(raw, &parsed); err != nil {
		return "", services.Wrap(services.ErrValidation, "oracle", "clean title", err.Error(), nil)
	}
	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		return "", services.Wrap(services.ErrValidation, "oracle", "clean title", "empty title", nil)
	}
	return title, nil
}

func strictUnmarshal(raw string, out any) error {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func candidateIDs(candidates []scanner.Candidate) map[int]struct{} {
	ids := make(map[int]struct{}, len(candidates))
	for _, c := range candidates {
		ids[c.ID] = struct{}{}
	}
	return ids
}
