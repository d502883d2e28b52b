package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"aninamer/internal/apply"
	"aninamer/internal/config"
	"aninamer/internal/plan"
)

func newApplyCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var twoStage bool

	cmd := &cobra.Command{
		Use:   "apply <plan-file>",
		Short: "Execute a previously written rename plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			planPath, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.newLogger(true)
			if err != nil {
				return err
			}

			pl, err := plan.ReadFile(planPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			res, runErr := apply.Execute(cmd.Context(), pl, apply.Options{
				TwoStage: twoStage || cfg.Apply.TwoStage,
				DryRun:   dryRun,
				Progress: newMoveProgress(out, "moving"),
				Logger:   logger,
			})
			resultPath, rollbackPath, artErr := apply.WriteArtifacts(planPath, res, runErr)
			if artErr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warn: write apply artifacts: %v\n", artErr)
			}

			printApplySummary(cmd, pl, res, resultPath, rollbackPath)
			return runErr
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Verify the plan without moving anything")
	cmd.Flags().BoolVar(&twoStage, "two-stage", false, "Force staged copy-then-rename moves")
	return cmd
}

func printApplySummary(cmd *cobra.Command, pl *plan.Plan, res *apply.Result, resultPath, rollbackPath string) {
	out := cmd.OutOrStdout()
	if res.DryRun {
		fmt.Fprintf(out, "Dry run: %d moves verified for %s\n", len(pl.Ops), pl.SeriesTitle)
		return
	}
	fmt.Fprintf(out, "%s: %d of %d moves applied", pl.SeriesTitle, len(res.Applied), len(pl.Ops))
	if res.Skipped > 0 {
		fmt.Fprintf(out, " (%d already done)", res.Skipped)
	}
	fmt.Fprintln(out)
	if resultPath != "" {
		fmt.Fprintf(out, "Result: %s\n", resultPath)
	}
	if rollbackPath != "" {
		fmt.Fprintf(out, "Rollback: %s\n", rollbackPath)
	}
}
