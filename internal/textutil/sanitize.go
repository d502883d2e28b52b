package textutil

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"aninamer/internal/services"
)

// ErrInvalidName reports a name that cannot become a single safe path segment.
var ErrInvalidName = errors.New("invalid name")

var unsafeSegmentChars = map[rune]struct{}{
	'<': {}, '>': {}, ':': {}, '"': {}, '|': {}, '?': {}, '*': {},
}

// SanitizeComponent converts a metadata-derived name into a single
// filesystem-safe path segment. Path separators and ".." traversal are
// rejected outright rather than repaired; other unsafe characters become
// spaces, whitespace is collapsed, and trailing dots and spaces are
// stripped. An input that strips down to nothing fails.
func SanitizeComponent(name string) (string, error) {
	normalized := norm.NFC.String(name)

	if strings.ContainsAny(normalized, "/\\") {
		return "", invalidName(name, "contains path separator")
	}
	if trimmed := strings.TrimSpace(normalized); trimmed == "." || trimmed == ".." {
		return "", invalidName(name, "resolves outside a single segment")
	}

	var b strings.Builder
	for _, r := range normalized {
		if _, unsafe := unsafeSegmentChars[r]; unsafe || r < 0x20 || r == 0x7f {
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}

	cleaned := strings.Join(strings.Fields(b.String()), " ")
	cleaned = strings.TrimRight(cleaned, " .")
	if cleaned == "" {
		return "", invalidName(name, "empty after sanitization")
	}
	return cleaned, nil
}

func invalidName(name, reason string) error {
	return services.Wrap(services.ErrValidation, "sanitize", "",
		fmt.Sprintf("%s: %q", reason, name), ErrInvalidName)
}
