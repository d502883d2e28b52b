// Package logging centralizes slog construction and the structured field
// conventions used across aninamer. Every component logs through a *slog.Logger
// tagged with a component attribute; field key constants keep attribute names
// consistent between the monitor, the rename engine, and the CLI.
package logging
