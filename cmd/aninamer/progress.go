package main

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// newMoveProgress returns a Progress callback backed by a terminal progress
// bar, or nil when out is not a terminal.
func newMoveProgress(out io.Writer, label string) func(done, total int) {
	if !isTerminal(out) {
		return nil
	}
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription(label),
				progressbar.OptionSetWriter(out),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = bar.Set(done)
	}
}
