package oracle

import (
	"fmt"
	"sort"
	"strings"

	"aninamer/internal/metadata/tmdb"
	"aninamer/internal/scanner"
)

const mappingSystemPrompt = "Map episode video files to TMDB season/episode numbers. " +
	"Output ONLY valid JSON with no markdown or extra text. " +
	`Use the exact schema {"tmdb": <int>, "eps": [{"v": <int>, "s": <int>, ` +
	`"e1": <int>, "e2": <int>, "u": [<int>...]}]}. ` +
	"Include ONLY regular episodes (seasons >=1) and OVA/OAD specials in season 0. " +
	"Omit OP/ED/PV/trailer/promo/NCOP/NCED/recap/credits/shorts/extras and any uncertain items. " +
	"Never map two videos to the same episode range. " +
	"If duplicate releases exist, choose only one (prefer larger size)."

const selectSystemPrompt = "Select the correct TMDB TV id from the candidate list. " +
	`Respond with ONLY valid JSON in the form {"tmdb": <int>} with no other keys, ` +
	"no markdown, and no commentary. The id must be selected from the candidates."

const titleCleanSystemPrompt = "Extract the canonical TV series title from a noisy folder name for TMDB search. " +
	`Respond with ONLY valid JSON in the form {"title": "..."} with no other keys, ` +
	"no markdown, and no commentary. The title should exclude release groups, " +
	"quality tags, season/episode markers, and other non-title metadata."

const maxSpecialOverviewChars = 160

// MappingPromptInput carries everything the episode mapping prompt lists.
type MappingPromptInput struct {
	TMDBID              int64
	SeriesTitle         string
	Year                int
	SeasonEpisodeCounts map[int]int
	SpecialsZH          *tmdb.SeasonDetails
	SpecialsEN          *tmdb.SeasonDetails
	Scan                *scanner.Result
	ExistingS00Files    []string
}

func buildMappingPrompt(in MappingPromptInput) string {
	var lines []string
	add := func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}

	add("schema (no extra keys):")
	add(`{"tmdb": <int>, "eps": [{"v": <int>, "s": <int>, "e1": <int>, "e2": <int>, "u": [<int>...]}]}`)
	add("rules:")
	add("only output items to rename")
	add("s must be 0 or in season_episode_counts keys")
	add("for s==0: 1..season_episode_counts[0]")
	add("for s>=1: 1..season_episode_counts[s]")
	add("sort eps by v ascending")
	add("u must contain only subtitle ids for that episode video; otherwise leave u empty")
	add("put OVA/OAD in S00")
	add("prefer matching OVA/OAD using TMDB specials name/overview that mention OVA/OAD")
	add("if no explicit OVA/OAD info, assume local OVA/OAD order matches TMDB specials order")

	add("TMDB:")
	add("tmdb_id: %d", in.TMDBID)
	add("series_title: %s", cleanCell(in.SeriesTitle, 0))
	if in.Year > 0 {
		add("year: %d", in.Year)
	} else {
		add("year: -")
	}
	add("season_episode_counts:")
	seasons := make([]int, 0, len(in.SeasonEpisodeCounts))
	for season := range in.SeasonEpisodeCounts {
		seasons = append(seasons, season)
	}
	sort.Ints(seasons)
	for _, season := range seasons {
		add("S%02d=%d", season, in.SeasonEpisodeCounts[season])
	}

	if _, hasSpecials := in.SeasonEpisodeCounts[0]; hasSpecials && (in.SpecialsZH != nil || in.SpecialsEN != nil) {
		add("specials (season 0):")
		add("ep|name_zh|name_en")
		zh := episodesByNumber(in.SpecialsZH)
		en := episodesByNumber(in.SpecialsEN)
		numbers := make(map[int]struct{})
		for n := range zh {
			numbers[n] = struct{}{}
		}
		for n := range en {
			numbers[n] = struct{}{}
		}
		ordered := make([]int, 0, len(numbers))
		for n := range numbers {
			ordered = append(ordered, n)
		}
		sort.Ints(ordered)
		for _, n := range ordered {
			add("%d|%s|%s",
				n,
				cleanCell(zh[n], maxSpecialOverviewChars),
				cleanCell(en[n], maxSpecialOverviewChars))
		}
	}

	if len(in.ExistingS00Files) > 0 {
		add("existing destination S00 files:")
		add("name")
		for _, name := range in.ExistingS00Files {
			if cleaned := cleanCell(name, 0); cleaned != "" {
				lines = append(lines, cleaned)
			}
		}
	}

	add("FILES:")
	add("videos:")
	add("id|rel_path|size_bytes")
	for _, v := range in.Scan.Videos {
		add("%d|%s|%d", v.ID, cleanCell(v.RelPath, 0), v.Size)
	}
	add("subtitles:")
	add("id|rel_path|size_bytes")
	for _, s := range in.Scan.Subtitles {
		add("%d|%s|%d", s.ID, cleanCell(s.RelPath, 0), s.Size)
	}

	return strings.Join(lines, "\n")
}

func buildSelectPrompt(dirname string, candidates []tmdb.SearchResult) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("dirname: %s", cleanCell(dirname, 0)))
	lines = append(lines, "candidates:")
	lines = append(lines, "id|name|first_air_date|original_name")
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		lines = append(lines, fmt.Sprintf("%d|%s|%s|%s",
			c.ID,
			cleanCell(c.Name, 0),
			cleanCell(c.FirstAirDate, 0),
			cleanCell(c.OriginalName, 0)))
		ids = append(ids, fmt.Sprintf("%d", c.ID))
	}
	lines = append(lines, fmt.Sprintf("allowed ids: [%s]", strings.Join(ids, ", ")))
	lines = append(lines, `required output schema: {"tmdb": <one of allowed ids>}`)
	return strings.Join(lines, "\n")
}

func buildTitleCleanPrompt(dirname string) string {
	return fmt.Sprintf("dirname: %s\nrequired output schema: {\"title\": \"<string>\"}",
		cleanCell(dirname, 0))
}

func episodesByNumber(season *tmdb.SeasonDetails) map[int]string {
	out := make(map[int]string)
	if season == nil {
		return out
	}
	for _, ep := range season.Episodes {
		out[ep.EpisodeNumber] = ep.Name
	}
	return out
}

// cleanCell flattens a value into a single prompt-table cell: newlines and
// pipes become spaces, and maxChars > 0 truncates.
func cleanCell(value string, maxChars int) string {
	value = strings.NewReplacer("\n", " ", "\r", " ", "|", " ").Replace(value)
	value = strings.Join(strings.Fields(value), " ")
	if maxChars > 0 {
		if runes := []rune(value); len(runes) > maxChars {
			value = string(runes[:maxChars])
		}
	}
	if value == "" {
		return "-"
	}
	return value
}
