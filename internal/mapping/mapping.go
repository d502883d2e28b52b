// Package mapping validates episode-mapping output produced by the mapping
// oracle. This is the single trust boundary between the oracle and the
// filesystem: output that passes here is not re-validated downstream.
package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"aninamer/internal/services"
)

// Entry assigns one video candidate to an episode or episode range, with the
// subtitle candidates that belong to it.
type Entry struct {
	VideoID     int
	Season      int
	EpStart     int
	EpEnd       int
	SubtitleIDs []int
}

// Result is a fully validated mapping: every id resolves to a scanned
// candidate of the right kind, bounds hold, and no two entries claim the
// same episode.
type Result struct {
	TMDBID  int64
	Entries []Entry
}

// ValidationError reports the first violation found. EntryIndex is the
// 1-based index of the offending eps entry, or 0 for document-level problems.
type ValidationError struct {
	Reason     string
	EntryIndex int
}

func (e *ValidationError) Error() string {
	if e.EntryIndex > 0 {
		return fmt.Sprintf("eps[%d]: %s", e.EntryIndex, e.Reason)
	}
	return e.Reason
}

// ValidateInput carries the trusted context a mapping is checked against.
type ValidateInput struct {
	ExpectedTMDBID int64
	VideoIDs       map[int]struct{}
	SubtitleIDs    map[int]struct{}
	// SeasonEpisodeCounts maps season number to episode count. Season 0 is
	// the specials season; a season absent from the map is unknown and any
	// reference to it fails validation.
	SeasonEpisodeCounts map[int]int
}

// ExtractFirstJSONObject returns the first complete JSON object embedded in
// text. Oracle replies often wrap the object in prose or code fences.
func ExtractFirstJSONObject(text string) (string, error) {
	for idx := 0; idx < len(text); idx++ {
		if text[idx] != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[idx:]))
		var obj json.RawMessage
		if err := dec.Decode(&obj); err != nil {
			continue
		}
		if len(obj) > 0 && obj[0] == '{' {
			return string(obj), nil
		}
	}
	return "", fmt.Errorf("no JSON object found")
}

// Validate checks raw oracle output. Checks run in a fixed order and fail
// fast: schema, referential integrity, bounds, exclusivity. No filesystem
// access happens here.
func Validate(raw []byte, in ValidateInput) (*Result, error) {
	res, vErr := validate(raw, in)
	if vErr != nil {
		return nil, services.Wrap(services.ErrValidation, "mapping", "validate", "", vErr)
	}
	return res, nil
}

func validate(raw []byte, in ValidateInput) (*Result, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("invalid json: %v", err)}
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, &ValidationError{Reason: "expected JSON object"}
	}
	if err := exactKeys(obj, "tmdb", "eps"); err != nil {
		return nil, &ValidationError{Reason: "expected object with only 'tmdb' and 'eps' keys"}
	}

	tmdbID, ok := asInt64(obj["tmdb"])
	if !ok {
		return nil, &ValidationError{Reason: "tmdb must be int"}
	}
	if tmdbID != in.ExpectedTMDBID {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("tmdb id %d does not match expected %d", tmdbID, in.ExpectedTMDBID),
		}
	}

	epsRaw, ok := obj["eps"].([]any)
	if !ok {
		return nil, &ValidationError{Reason: "eps must be list"}
	}

	entries := make([]Entry, 0, len(epsRaw))
	usedVideos := make(map[int]struct{})
	usedSubtitles := make(map[int]int)
	claimedEpisodes := make(map[int]map[int]int)

	for i, entryRaw := range epsRaw {
		idx := i + 1
		entryObj, ok := entryRaw.(map[string]any)
		if !ok {
			return nil, &ValidationError{Reason: "must be object", EntryIndex: idx}
		}
		if err := exactKeys(entryObj, "v", "s", "e1", "e2", "u"); err != nil {
			return nil, &ValidationError{
				Reason: "must have only keys 'v', 's', 'e1', 'e2', 'u'", EntryIndex: idx,
			}
		}

		v, ok := asInt(entryObj["v"])
		if !ok {
			return nil, &ValidationError{Reason: "v must be int", EntryIndex: idx}
		}
		if _, exists := in.VideoIDs[v]; !exists {
			return nil, &ValidationError{
				Reason: fmt.Sprintf("v %d not in video ids", v), EntryIndex: idx,
			}
		}
		if _, dup := usedVideos[v]; dup {
			return nil, &ValidationError{
				Reason: fmt.Sprintf("video id %d appears more than once", v), EntryIndex: idx,
			}
		}
		usedVideos[v] = struct{}{}

		season, ok := asInt(entryObj["s"])
		if !ok {
			return nil, &ValidationError{Reason: "s must be int", EntryIndex: idx}
		}
		maxEpisode, known := in.SeasonEpisodeCounts[season]
		if !known {
			return nil, &ValidationError{
				Reason: fmt.Sprintf("season %d has no known episode count", season), EntryIndex: idx,
			}
		}

		e1, ok := asInt(entryObj["e1"])
		if !ok {
			return nil, &ValidationError{Reason: "e1 must be int", EntryIndex: idx}
		}
		e2, ok := asInt(entryObj["e2"])
		if !ok {
			return nil, &ValidationError{Reason: "e2 must be int", EntryIndex: idx}
		}
		if e1 < 1 || e2 < 1 {
			return nil, &ValidationError{Reason: "episodes must be >= 1", EntryIndex: idx}
		}
		if e1 > e2 {
			return nil, &ValidationError{
				Reason: fmt.Sprintf("episode range %d-%d is invalid", e1, e2), EntryIndex: idx,
			}
		}
		if e2 > maxEpisode {
			return nil, &ValidationError{
				Reason: fmt.Sprintf("episode range %d-%d exceeds season %d count %d",
					e1, e2, season, maxEpisode),
				EntryIndex: idx,
			}
		}

		uRaw, ok := entryObj["u"].([]any)
		if !ok {
			return nil, &ValidationError{Reason: "u must be list", EntryIndex: idx}
		}
		subtitleIDs := make([]int, 0, len(uRaw))
		seenHere := make(map[int]struct{}, len(uRaw))
		for _, subRaw := range uRaw {
			subID, ok := asInt(subRaw)
			if !ok {
				return nil, &ValidationError{Reason: "u must contain only ints", EntryIndex: idx}
			}
			if _, exists := in.SubtitleIDs[subID]; !exists {
				return nil, &ValidationError{
					Reason: fmt.Sprintf("subtitle id %d not in subtitle ids", subID), EntryIndex: idx,
				}
			}
			if _, dup := seenHere[subID]; dup {
				return nil, &ValidationError{
					Reason: fmt.Sprintf("duplicate subtitle id %d", subID), EntryIndex: idx,
				}
			}
			if owner, taken := usedSubtitles[subID]; taken {
				return nil, &ValidationError{
					Reason:     fmt.Sprintf("subtitle id %d already used by eps[%d]", subID, owner),
					EntryIndex: idx,
				}
			}
			seenHere[subID] = struct{}{}
			usedSubtitles[subID] = idx
			subtitleIDs = append(subtitleIDs, subID)
		}

		claimed := claimedEpisodes[season]
		if claimed == nil {
			claimed = make(map[int]int)
			claimedEpisodes[season] = claimed
		}
		for ep := e1; ep <= e2; ep++ {
			if owner, taken := claimed[ep]; taken {
				return nil, &ValidationError{
					Reason: fmt.Sprintf("season %d episode %d already claimed by eps[%d]",
						season, ep, owner),
					EntryIndex: idx,
				}
			}
			claimed[ep] = idx
		}

		entries = append(entries, Entry{
			VideoID:     v,
			Season:      season,
			EpStart:     e1,
			EpEnd:       e2,
			SubtitleIDs: subtitleIDs,
		})
	}

	return &Result{TMDBID: tmdbID, Entries: entries}, nil
}

func exactKeys(obj map[string]any, keys ...string) error {
	if len(obj) != len(keys) {
		return fmt.Errorf("key count mismatch")
	}
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			return fmt.Errorf("missing key %q", k)
		}
	}
	return nil
}

func asInt64(v any) (int64, bool) {
	num, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	n, err := num.Int64()
	if err != nil || strings.ContainsAny(num.String(), ".eE") {
		return 0, false
	}
	return n, true
}

func asInt(v any) (int, bool) {
	n, ok := asInt64(v)
	if !ok {
		return 0, false
	}
	return int(n), true
}
