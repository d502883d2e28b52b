package monitor

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"aninamer/internal/config"
	"aninamer/internal/logging"
	"aninamer/internal/mapping"
	"aninamer/internal/metadata/tmdb"
	"aninamer/internal/oracle"
	"aninamer/internal/plan"
	"aninamer/internal/scanner"
	"aninamer/internal/services"
	"aninamer/internal/subtitles"
	"aninamer/internal/textutil"
)

// EpisodeMapper is the mapping-oracle surface the planner depends on.
type EpisodeMapper interface {
	MapEpisodes(ctx context.Context, in oracle.MappingPromptInput) (*mapping.Result, error)
	SelectTVID(ctx context.Context, dirname string, candidates []tmdb.SearchResult) (int64, error)
	CleanTitle(ctx context.Context, dirname string) (string, error)
}

// Pipeline turns one settled directory into a written rename plan.
type Pipeline interface {
	PlanDirectory(ctx context.Context, dir string) (*PlanOutcome, error)
}

// PlanOutcome describes a successfully written plan.
type PlanOutcome struct {
	PlanPath    string
	SeriesTitle string
	TMDBID      int64
	MoveCount   int
}

// Planner is the production Pipeline: scan, resolve metadata, consult the
// mapping oracle, build and persist the plan.
type Planner struct {
	cfg    *config.Config
	tmdb   tmdb.Provider
	oracle EpisodeMapper
	logger *slog.Logger
}

// NewPlanner wires a planner from its collaborators.
func NewPlanner(cfg *config.Config, provider tmdb.Provider, mapper EpisodeMapper, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Planner{cfg: cfg, tmdb: provider, oracle: mapper, logger: logger}
}

// PlanDirectory runs the full planning pipeline for one series directory and
// writes the plan file under the configured plan directory.
func (p *Planner) PlanDirectory(ctx context.Context, dir string) (*PlanOutcome, error) {
	scan, err := scanner.Scan(dir, p.logger)
	if err != nil {
		return nil, err
	}
	if len(scan.Videos) == 0 {
		return nil, services.Wrap(services.ErrValidation, "planner", "scan", "no video files found", nil)
	}

	dirname := filepath.Base(dir)
	tmdbID, err := p.resolveTMDBID(ctx, dirname)
	if err != nil {
		return nil, err
	}

	seriesTitle, details, err := p.tmdb.ResolveSeriesTitle(ctx, tmdbID)
	if err != nil {
		return nil, err
	}
	year := details.Year()
	counts := details.EpisodeCounts()

	var specialsZH, specialsEN *tmdb.SeasonDetails
	if counts[0] > 0 {
		if specialsZH, err = p.tmdb.GetSeasonDetails(ctx, tmdbID, 0, "zh-CN"); err != nil {
			return nil, err
		}
		if specialsEN, err = p.tmdb.GetSeasonDetails(ctx, tmdbID, 0, "en-US"); err != nil {
			return nil, err
		}
	}

	existingS00, err := p.listExistingS00Files(seriesTitle, year, tmdbID)
	if err != nil {
		return nil, err
	}

	result, err := p.oracle.MapEpisodes(ctx, oracle.MappingPromptInput{
		TMDBID:              tmdbID,
		SeriesTitle:         seriesTitle,
		Year:                year,
		SeasonEpisodeCounts: counts,
		SpecialsZH:          specialsZH,
		SpecialsEN:          specialsEN,
		Scan:                scan,
		ExistingS00Files:    existingS00,
	})
	if err != nil {
		return nil, err
	}

	variants := make(map[int]subtitles.Variant, len(scan.Subtitles))
	for _, sub := range scan.Subtitles {
		variant, err := subtitles.DetectVariant(filepath.Join(dir, sub.RelPath))
		if err != nil {
			p.logger.Warn("subtitle variant detection failed",
				logging.String("rel_path", sub.RelPath),
				logging.Error(err),
			)
			variant = subtitles.VariantCHI
		}
		variants[sub.ID] = variant
	}

	built, err := plan.Build(plan.BuildInput{
		Scan:              scan,
		Mapping:           result,
		SeriesTitle:       seriesTitle,
		Year:              year,
		OutputRoot:        p.cfg.Paths.LibraryDir,
		AllowExistingDest: p.cfg.Apply.AllowExistingDest,
		SubtitleVariants:  variants,
	})
	if err != nil {
		return nil, err
	}

	planPath := PlanFilePath(p.cfg.PlanDir(), dir)
	if err := plan.WriteFile(planPath, built); err != nil {
		return nil, err
	}

	p.logger.Info("plan written",
		logging.String(logging.FieldDirectory, dir),
		logging.String(logging.FieldPlanPath, planPath),
		logging.Int("moves", len(built.Ops)),
	)
	return &PlanOutcome{
		PlanPath:    planPath,
		SeriesTitle: seriesTitle,
		TMDBID:      tmdbID,
		MoveCount:   len(built.Ops),
	}, nil
}

// resolveTMDBID prefers an explicit {tmdb-N} dirname tag, then searches with
// cleaned query variants, then retries with an oracle-cleaned title, and
// finally asks the oracle to pick among multiple candidates.
func (p *Planner) resolveTMDBID(ctx context.Context, dirname string) (int64, error) {
	if id := tmdb.ExtractID(dirname); id > 0 {
		p.logger.Info("using tmdb id from dirname tag", logging.Int64("tmdb_id", id))
		return id, nil
	}

	queries := textutil.QueryVariants(dirname)
	candidates, err := p.searchQueries(ctx, queries)
	if err != nil {
		return 0, err
	}

	if len(candidates) == 0 {
		title, cleanErr := p.oracle.CleanTitle(ctx, dirname)
		if cleanErr != nil {
			return 0, services.Wrap(services.ErrNotFound, "planner", "tmdb_search",
				fmt.Sprintf("no results for %q", dirname), cleanErr)
		}
		attempted := make(map[string]struct{}, len(queries))
		for _, query := range queries {
			attempted[strings.ToLower(query)] = struct{}{}
		}
		var fresh []string
		for _, query := range textutil.QueryVariants(title) {
			if _, ok := attempted[strings.ToLower(query)]; !ok {
				fresh = append(fresh, query)
			}
		}
		if candidates, err = p.searchQueries(ctx, fresh); err != nil {
			return 0, err
		}
	}

	switch len(candidates) {
	case 0:
		return 0, services.Wrap(services.ErrNotFound, "planner", "tmdb_search",
			fmt.Sprintf("no results for %q", dirname), nil)
	case 1:
		return candidates[0].ID, nil
	default:
		return p.oracle.SelectTVID(ctx, dirname, candidates)
	}
}

func (p *Planner) searchQueries(ctx context.Context, queries []string) ([]tmdb.SearchResult, error) {
	for _, query := range queries {
		results, err := p.tmdb.SearchTV(ctx, query, 0)
		if err != nil {
			return nil, err
		}
		if len(results) == 0 {
			continue
		}
		byID := make(map[int64]struct{}, len(results))
		deduped := results[:0]
		for _, result := range results {
			if _, ok := byID[result.ID]; ok {
				continue
			}
			byID[result.ID] = struct{}{}
			deduped = append(deduped, result)
		}
		p.logger.Info("tmdb search matched",
			logging.String("query", query),
			logging.Int("candidates", len(deduped)),
		)
		return deduped, nil
	}
	return nil, nil
}

// listExistingS00Files reports the specials already present in the library
// for this series so the oracle can avoid episode-number clashes.
func (p *Planner) listExistingS00Files(seriesTitle string, year int, tmdbID int64) ([]string, error) {
	folder, err := textutil.SeriesRootFolder(seriesTitle, year, tmdbID)
	if err != nil {
		return nil, err
	}
	s00 := filepath.Join(p.cfg.Paths.LibraryDir, folder, textutil.SeasonFolder(0))
	entries, err := os.ReadDir(s00)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrTransient, "planner", "list_s00", "read specials folder", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
	return names, nil
}

// PlanFilePath computes the deterministic plan file location for a series
// directory: a sanitized dirname plus a short path hash, so distinct
// directories with the same name cannot share a plan file.
func PlanFilePath(planDir, seriesDir string) string {
	abs, err := filepath.Abs(seriesDir)
	if err != nil {
		abs = seriesDir
	}
	sum := sha1.Sum([]byte(abs))
	hash8 := hex.EncodeToString(sum[:])[:8]
	return filepath.Join(planDir, planFileStem(filepath.Base(seriesDir))+"_"+hash8+".plan.json")
}

func planFileStem(name string) string {
	const maxLen = 80
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned == "" {
		cleaned = "Unknown"
	}
	runes := []rune(cleaned)
	if len(runes) > maxLen {
		cleaned = strings.TrimRight(string(runes[:maxLen]), " ")
		if cleaned == "" {
			cleaned = "Unknown"
		}
	}
	return cleaned
}
