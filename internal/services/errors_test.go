package services

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("episode 99 exceeds season 1 count 12")
	err := Wrap(ErrValidation, "mapping", "check bounds", "oracle output rejected", base)

	if !errors.Is(err, ErrValidation) {
		t.Fatal("expected validation marker")
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped cause to survive")
	}
	if !strings.Contains(err.Error(), "mapping: check bounds: oracle output rejected") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := Wrap(nil, "", "", "", nil)
	if !errors.Is(err, ErrTransient) {
		t.Fatal("nil marker should default to transient")
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestClassification(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		recoverable bool
		retryable   bool
	}{
		{"validation", Wrap(ErrValidation, "mapping", "schema", "", nil), true, false},
		{"plan collision", Wrap(ErrPlan, "plan", "collision", "", nil), true, false},
		{"stale", Wrap(ErrStale, "apply", "fingerprint", "", nil), true, false},
		{"apply", Wrap(ErrApply, "apply", "move", "", nil), false, false},
		{"provider", Wrap(ErrExternalTool, "tmdb", "search", "", nil), false, true},
		{"transient", Wrap(ErrTransient, "oracle", "chat", "", nil), false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Recoverable(tc.err); got != tc.recoverable {
				t.Fatalf("Recoverable = %v, want %v", got, tc.recoverable)
			}
			if got := Retryable(tc.err); got != tc.retryable {
				t.Fatalf("Retryable = %v, want %v", got, tc.retryable)
			}
		})
	}
}
