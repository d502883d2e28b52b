package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks untrusted input that failed validation before any
	// filesystem mutation (oracle output, plan files, unsafe name segments).
	ErrValidation = errors.New("validation error")
	// ErrPlan marks plan construction failures (collisions, root escapes).
	ErrPlan = errors.New("plan error")
	// ErrApply marks transaction executor failures after mutation may have begun.
	ErrApply = errors.New("apply error")
	// ErrStale marks plans whose source inputs changed since planning.
	ErrStale = errors.New("stale input")
	// ErrExternalTool marks failures of external collaborators (metadata
	// provider, mapping oracle, notifier).
	ErrExternalTool = errors.New("external tool error")
	// ErrConfiguration marks unusable configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks missing resources (plan files, directories).
	ErrNotFound = errors.New("not found")
	// ErrTransient marks failures worth retrying with backoff.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Recoverable reports whether an error can be resolved by re-planning the
// directory rather than operator intervention.
func Recoverable(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrPlan) || errors.Is(err, ErrStale)
}

// Retryable reports whether an error came from an external collaborator and
// is worth retrying with backoff before a directory is failed.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrExternalTool)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
