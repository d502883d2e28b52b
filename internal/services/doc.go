// Package services defines the shared error taxonomy used to classify
// failures across the rename pipeline. Components wrap errors with a
// sentinel marker so callers can decide, via errors.Is, whether a failure
// is locally recoverable (re-plan), terminal for a directory, or a
// transient external-collaborator problem worth retrying with backoff.
package services
