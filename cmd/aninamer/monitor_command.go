package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"aninamer/internal/monitor"
)

func newMonitorCommand(ctx *commandContext) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch the configured roots and process settled directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if len(cfg.Paths.WatchRoots) == 0 {
				return fmt.Errorf("no watch roots configured; set paths.watch_roots")
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

			m, err := monitor.New(deps)
			if err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if once {
				return m.RunOnce(signalCtx)
			}
			return m.Run(signalCtx)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run a single scan pass and exit")
	return cmd
}
