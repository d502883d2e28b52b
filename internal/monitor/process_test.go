package monitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"aninamer/internal/apply"
	"aninamer/internal/logging"
	"aninamer/internal/plan"
)

func TestProcessDirectoryPlanOnly(t *testing.T) {
	f := newFixture(t)
	dir := filepath.Join(f.root, "show")
	src := filepath.Join(dir, "ep01.mkv")
	writeFile(t, src, "payload")

	planPath := filepath.Join(f.cfg.PlanDir(), "show.plan.json")
	dst := filepath.Join(f.cfg.Paths.LibraryDir, "Show (2023) {tmdb-123}", "S01", "Show S01E01.mkv")
	pipeline := &fakePipeline{t: t, fn: func(_ context.Context, d string) (*PlanOutcome, error) {
		writePlan(t, planPath, d, f.cfg.Paths.LibraryDir, []plan.Op{
			{SrcID: 1, Kind: plan.KindVideo, Src: src, Dst: dst, SrcSize: int64(len("payload"))},
		})
		return &PlanOutcome{PlanPath: planPath, SeriesTitle: "Show", TMDBID: 123, MoveCount: 1}, nil
	}}

	deps := Deps{Cfg: f.cfg, Pipeline: pipeline, Logger: logging.NewNop()}
	outcome, err := ProcessDirectory(context.Background(), deps, dir, ProcessOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if outcome.PlanPath != planPath || outcome.MoveCount != 1 {
		t.Fatalf("outcome = %+v", outcome)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("plan-only run must not move files: %v", err)
	}
}

func TestProcessDirectoryApplies(t *testing.T) {
	f := newFixture(t)
	dir := filepath.Join(f.root, "show")
	src := filepath.Join(dir, "ep01.mkv")
	writeFile(t, src, "payload")

	planPath := filepath.Join(f.cfg.PlanDir(), "show.plan.json")
	dst := filepath.Join(f.cfg.Paths.LibraryDir, "Show (2023) {tmdb-123}", "S01", "Show S01E01.mkv")
	pipeline := &fakePipeline{t: t, fn: func(_ context.Context, d string) (*PlanOutcome, error) {
		writePlan(t, planPath, d, f.cfg.Paths.LibraryDir, []plan.Op{
			{SrcID: 1, Kind: plan.KindVideo, Src: src, Dst: dst, SrcSize: int64(len("payload"))},
		})
		return &PlanOutcome{PlanPath: planPath, SeriesTitle: "Show", TMDBID: 123, MoveCount: 1}, nil
	}}

	var progressCalls int
	deps := Deps{Cfg: f.cfg, Pipeline: pipeline, Logger: logging.NewNop()}
	outcome, err := ProcessDirectory(context.Background(), deps, dir, ProcessOptions{
		Apply:    true,
		Progress: func(done, total int) { progressCalls++ },
	})
	if err != nil {
		t.Fatal(err)
	}
	if outcome.State != apply.StateCompleted || outcome.Applied != 1 {
		t.Fatalf("outcome = %+v", outcome)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("destination missing: %v", err)
	}
	if progressCalls != 1 {
		t.Fatalf("progress calls = %d", progressCalls)
	}
	if _, err := os.Stat(outcome.RollbackPath); err != nil {
		t.Fatalf("rollback missing: %v", err)
	}
	if _, err := os.Stat(outcome.ResultPath); err != nil {
		t.Fatalf("result missing: %v", err)
	}
}

func TestProcessDirectoryDryRun(t *testing.T) {
	f := newFixture(t)
	dir := filepath.Join(f.root, "show")
	src := filepath.Join(dir, "ep01.mkv")
	writeFile(t, src, "payload")

	planPath := filepath.Join(f.cfg.PlanDir(), "show.plan.json")
	dst := filepath.Join(f.cfg.Paths.LibraryDir, "Show (2023) {tmdb-123}", "S01", "Show S01E01.mkv")
	pipeline := &fakePipeline{t: t, fn: func(_ context.Context, d string) (*PlanOutcome, error) {
		writePlan(t, planPath, d, f.cfg.Paths.LibraryDir, []plan.Op{
			{SrcID: 1, Kind: plan.KindVideo, Src: src, Dst: dst, SrcSize: int64(len("payload"))},
		})
		return &PlanOutcome{PlanPath: planPath, SeriesTitle: "Show", TMDBID: 123, MoveCount: 1}, nil
	}}

	deps := Deps{Cfg: f.cfg, Pipeline: pipeline, Logger: logging.NewNop()}
	outcome, err := ProcessDirectory(context.Background(), deps, dir, ProcessOptions{Apply: true, DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Applied != 0 {
		t.Fatalf("dry run applied %d", outcome.Applied)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("dry run must not move files: %v", err)
	}
}
