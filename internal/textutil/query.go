package textutil

import (
	"regexp"
	"strings"
)

var bracketPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[[^\[\]]*\]`),
	regexp.MustCompile(`\([^()]*\)`),
	regexp.MustCompile(`\{[^{}]*\}`),
}

var releaseTokens = []string{
	"2160p", "1080p", "720p", "480p", "4k",
	"x264", "x265", "h264", "h265", "hevc", "avc",
	"aac", "flac", "10bit", "8bit", "hi10p", "ma10p",
	"bdrip", "bluray", "bd", "web", "webrip", "web-dl",
	"hdr", "dv", "remux", "vcb", "vcb-studio", "batch",
}

var seasonPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bs\d{1,2}\b`),
	regexp.MustCompile(`(?i)\bseason\s*\d{1,2}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)\s*season\b`),
	regexp.MustCompile(`第\s*(?:\d+|[一二三四五六七八九十]+)\s*季`),
}

var releaseTokenPattern = buildReleaseTokenPattern()

func buildReleaseTokenPattern() *regexp.Regexp {
	escaped := make([]string, len(releaseTokens))
	for i, token := range releaseTokens {
		escaped[i] = regexp.QuoteMeta(token)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(escaped, "|") + `)\b`)
}

func normalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func stripBracketedSegments(text string) string {
	previous := ""
	for previous != text {
		previous = text
		for _, pattern := range bracketPatterns {
			text = pattern.ReplaceAllString(text, " ")
		}
	}
	return text
}

func stripUnbalancedBrackets(text string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', '(', ')', '{', '}':
			return ' '
		}
		return r
	}, text)
}

// CleanQuery strips release-group noise from a directory name to produce a
// metadata search query: bracketed segments, resolution and codec tokens,
// and season markers.
func CleanQuery(name string) string {
	working := strings.NewReplacer("_", " ", ".", " ").Replace(name)
	working = stripBracketedSegments(working)
	working = stripUnbalancedBrackets(working)
	for _, pattern := range seasonPatterns {
		working = pattern.ReplaceAllString(working, " ")
	}
	working = releaseTokenPattern.ReplaceAllString(working, " ")
	working = normalizeWhitespace(working)
	if working != "" {
		return working
	}

	// Everything was noise. Retry with only bracket stripping.
	fallback := stripBracketedSegments(name)
	fallback = stripUnbalancedBrackets(fallback)
	fallback = strings.NewReplacer("_", " ", ".", " ").Replace(fallback)
	return normalizeWhitespace(fallback)
}

// QueryVariants returns search query candidates for a directory name, most
// specific first: the raw name, the cleaned name, then word-count prefixes
// of the cleaned name. Variants shorter than two characters are dropped.
func QueryVariants(name string) []string {
	var variants []string
	if base := normalizeWhitespace(name); base != "" {
		variants = append(variants, base)
	}
	cleaned := CleanQuery(name)
	if cleaned != "" {
		variants = append(variants, cleaned)
	}
	words := strings.Fields(cleaned)
	for _, count := range []int{8, 6, 4, 2} {
		if len(words) > count {
			variants = append(variants, strings.Join(words[:count], " "))
		}
	}

	seen := make(map[string]struct{}, len(variants))
	deduped := variants[:0]
	for _, variant := range variants {
		if len(variant) < 2 {
			continue
		}
		if _, ok := seen[variant]; ok {
			continue
		}
		seen[variant] = struct{}{}
		deduped = append(deduped, variant)
	}
	const maxVariants = 6
	if len(deduped) > maxVariants {
		deduped = deduped[:maxVariants]
	}
	return deduped
}
