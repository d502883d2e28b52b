package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"aninamer/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Run history utilities",
	}

	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryPruneCommand(ctx))

	return historyCmd
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, map[string]any{"runs": entries})
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					fmt.Sprintf("%d", e.ID),
					e.FinishedAt.Local().Format("2006-01-02 15:04"),
					filepath.Base(e.Directory),
					e.SeriesTitle,
					string(e.Outcome),
					fmt.Sprintf("%d", e.MovesApplied),
					e.Duration.Round(time.Second).String(),
				})
			}
			fmt.Fprintln(out, renderTable(out,
				[]string{"ID", "Finished", "Directory", "Series", "Outcome", "Moves", "Took"},
				rows, 1, 6))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit runs as JSON")
	return cmd
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if keep < 0 {
				return fmt.Errorf("--keep must be >= 0")
			}
			store, err := history.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			deleted, err := store.Prune(cmd.Context(), keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d runs, kept newest %d\n", deleted, keep)
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 0, "Number of newest runs to keep")
	cmd.MarkFlagRequired("keep")
	return cmd
}
