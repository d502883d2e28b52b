package monitor

import (
	"context"
	"time"

	"aninamer/internal/apply"
	"aninamer/internal/history"
	"aninamer/internal/logging"
	"aninamer/internal/plan"
)

// Outcome summarizes one end-to-end directory run.
type Outcome struct {
	PlanPath     string
	ResultPath   string
	RollbackPath string
	SeriesTitle  string
	TMDBID       int64
	MoveCount    int
	Applied      int
	Skipped      int
	State        apply.RunState
}

// ProcessOptions control a one-shot directory run.
type ProcessOptions struct {
	Apply    bool
	DryRun   bool
	Progress func(done, total int)
}

// ProcessDirectory plans one directory and, when requested, applies the plan
// and writes the result and rollback artifacts. It is the entry point shared
// by the run command and the watch loop's semantics; it does not touch the
// monitor state table.
func ProcessDirectory(ctx context.Context, deps Deps, dir string, opts ProcessOptions) (*Outcome, error) {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	started := time.Now()

	planned, err := deps.Pipeline.PlanDirectory(ctx, dir)
	if err != nil {
		recordProcessRun(deps, dir, "", 0, history.OutcomeFailed, 0, "", "", err, started)
		return nil, err
	}
	outcome := &Outcome{
		PlanPath:    planned.PlanPath,
		SeriesTitle: planned.SeriesTitle,
		TMDBID:      planned.TMDBID,
		MoveCount:   planned.MoveCount,
	}
	if !opts.Apply {
		return outcome, nil
	}

	pl, err := plan.ReadFile(planned.PlanPath)
	if err != nil {
		return outcome, err
	}
	res, runErr := apply.Execute(ctx, pl, apply.Options{
		TwoStage: deps.Cfg.Apply.TwoStage,
		DryRun:   opts.DryRun,
		Progress: opts.Progress,
		Logger:   logger,
	})
	resultPath, rollbackPath, artErr := apply.WriteArtifacts(planned.PlanPath, res, runErr)
	if artErr != nil {
		logger.Warn("failed to write apply artifacts", logging.Error(artErr))
	}
	outcome.ResultPath = resultPath
	outcome.RollbackPath = rollbackPath
	outcome.Applied = len(res.Applied)
	outcome.Skipped = res.Skipped
	outcome.State = res.State

	if !opts.DryRun {
		runOutcome := history.OutcomeApplied
		if runErr != nil {
			runOutcome = history.OutcomePartialFailure
		}
		recordProcessRun(deps, dir, planned.SeriesTitle, planned.TMDBID, runOutcome,
			len(res.Applied), planned.PlanPath, rollbackPath, runErr, started)
	}
	return outcome, runErr
}

func recordProcessRun(deps Deps, dir, title string, tmdbID int64, outcome history.Outcome, applied int, planPath, rollbackPath string, cause error, started time.Time) {
	if deps.History == nil {
		return
	}
	entry := history.Entry{
		Directory:    dir,
		SeriesTitle:  title,
		TMDBID:       tmdbID,
		Outcome:      outcome,
		MovesApplied: applied,
		PlanPath:     planPath,
		RollbackPath: rollbackPath,
		StartedAt:    started,
		FinishedAt:   time.Now(),
		Duration:     time.Since(started),
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	if _, err := deps.History.Record(context.Background(), entry); err != nil && deps.Logger != nil {
		deps.Logger.Warn("failed to record run history", logging.Error(err))
	}
}
