package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"aninamer/internal/config"
	"aninamer/internal/monitor"
	"aninamer/internal/plan"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "plan <directory>",
		Short: "Resolve a series directory and write a rename plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}

			logger, err := ctx.newLogger(false)
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

			outcome, err := monitor.ProcessDirectory(cmd.Context(), deps, dir, monitor.ProcessOptions{})
			if err != nil {
				return err
			}

			pl, err := plan.ReadFile(outcome.PlanPath)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, map[string]any{
					"plan_path":    outcome.PlanPath,
					"series_title": pl.SeriesTitle,
					"tmdb_id":      pl.TMDBID,
					"year":         pl.Year,
					"ops":          pl.Ops,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%d) {tmdb-%d}\n", pl.SeriesTitle, pl.Year, pl.TMDBID)
			fmt.Fprintln(out, renderTable(out, []string{"#", "Kind", "Source", "Destination"}, planRows(pl), 1))
			fmt.Fprintf(out, "%d moves planned\n", len(pl.Ops))
			fmt.Fprintf(out, "Plan written to %s\n", outcome.PlanPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the plan as JSON")
	return cmd
}

func planRows(pl *plan.Plan) [][]string {
	rows := make([][]string, 0, len(pl.Ops))
	for i, op := range pl.Ops {
		dst := op.Dst
		if rel, err := filepath.Rel(pl.OutputRoot, op.Dst); err == nil {
			dst = rel
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			string(op.Kind),
			filepath.Base(op.Src),
			dst,
		})
	}
	return rows
}
