package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"aninamer/internal/config"
	"aninamer/internal/monitor"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run <directory>",
		Short: "Plan and apply a series directory in one step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}

			logger, err := ctx.newLogger(true)
			if err != nil {
				return err
			}
			deps, store, err := ctx.buildDeps(logger)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			out := cmd.OutOrStdout()
			outcome, runErr := monitor.ProcessDirectory(cmd.Context(), deps, dir, monitor.ProcessOptions{
				Apply:    true,
				DryRun:   dryRun,
				Progress: newMoveProgress(out, "moving"),
			})
			if outcome == nil {
				return runErr
			}

			if dryRun {
				fmt.Fprintf(out, "Dry run: %d moves verified for %s\n", outcome.MoveCount, outcome.SeriesTitle)
				return runErr
			}
			fmt.Fprintf(out, "%s {tmdb-%d}: %d of %d moves applied\n",
				outcome.SeriesTitle, outcome.TMDBID, outcome.Applied, outcome.MoveCount)
			if outcome.RollbackPath != "" {
				fmt.Fprintf(out, "Rollback: %s\n", outcome.RollbackPath)
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Plan and verify without moving anything")
	return cmd
}
