package textutil

import "fmt"

// SeriesRootFolder formats the library folder for a series:
// "Title (2020) {tmdb-123}". The year is omitted when zero.
func SeriesRootFolder(title string, year int, tmdbID int64) (string, error) {
	segment, err := SanitizeComponent(title)
	if err != nil {
		return "", err
	}
	tag := fmt.Sprintf("{tmdb-%d}", tmdbID)
	if year == 0 {
		return fmt.Sprintf("%s %s", segment, tag), nil
	}
	return fmt.Sprintf("%s (%d) %s", segment, year, tag), nil
}

// SeasonFolder formats a season directory name, e.g. "S01". Season 0 is the
// specials season, "S00".
func SeasonFolder(season int) string {
	return fmt.Sprintf("S%02d", season)
}

// EpisodeBase formats the filename stem for an episode or episode range:
// "Title S01E01" or "Title S01E01-E03".
func EpisodeBase(title string, season, epStart, epEnd int) (string, error) {
	segment, err := SanitizeComponent(title)
	if err != nil {
		return "", err
	}
	if epStart == epEnd {
		return fmt.Sprintf("%s S%02dE%02d", segment, season, epStart), nil
	}
	return fmt.Sprintf("%s S%02dE%02d-E%02d", segment, season, epStart, epEnd), nil
}
