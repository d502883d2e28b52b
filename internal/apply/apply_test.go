package apply

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"aninamer/internal/plan"
	"aninamer/internal/services"
)

func makePlan(t *testing.T, names ...string) (*plan.Plan, string, string) {
	t.Helper()
	srcDir := t.TempDir()
	outRoot := t.TempDir()

	var ops []plan.Op
	for i, name := range names {
		src := filepath.Join(srcDir, name)
		content := []byte("payload " + name)
		if err := os.WriteFile(src, content, 0o644); err != nil {
			t.Fatal(err)
		}
		ops = append(ops, plan.Op{
			SrcID:   i + 1,
			Kind:    plan.KindVideo,
			Src:     src,
			Dst:     filepath.Join(outRoot, "S01", name),
			SrcSize: int64(len(content)),
		})
	}
	p := &plan.Plan{
		TMDBID:      123,
		SeriesTitle: "t",
		SourceDir:   srcDir,
		OutputRoot:  outRoot,
		Ops:         ops,
	}
	p.Fingerprint = plan.FingerprintOps(ops)
	return p, srcDir, outRoot
}

func TestExecuteMovesAllOps(t *testing.T) {
	p, srcDir, _ := makePlan(t, "a.mkv", "b.mkv")

	res, err := Execute(context.Background(), p, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateCompleted {
		t.Fatalf("state %s", res.State)
	}
	if len(res.Applied) != 2 || res.Skipped != 0 {
		t.Fatalf("applied %d skipped %d", len(res.Applied), res.Skipped)
	}
	for _, op := range p.Ops {
		if _, err := os.Stat(op.Dst); err != nil {
			t.Fatalf("destination missing: %v", err)
		}
	}
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("sources left behind: %v", entries)
	}
	if len(res.Rollback.Ops) != 2 {
		t.Fatalf("rollback should cover both ops: %+v", res.Rollback.Ops)
	}
}

func TestExecuteDryRunTouchesNothing(t *testing.T) {
	p, _, _ := makePlan(t, "a.mkv")

	res, err := Execute(context.Background(), p, Options{DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateCompleted || !res.DryRun {
		t.Fatalf("result: %+v", res)
	}
	if _, err := os.Stat(p.Ops[0].Src); err != nil {
		t.Fatal("dry run must not move the source")
	}
	if _, err := os.Stat(p.Ops[0].Dst); !os.IsNotExist(err) {
		t.Fatal("dry run must not create the destination")
	}
}

func TestExecuteStaleInput(t *testing.T) {
	p, _, _ := makePlan(t, "a.mkv")
	if err := os.WriteFile(p.Ops[0].Src, []byte("grown since planning"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Execute(context.Background(), p, Options{})
	if err == nil {
		t.Fatal("stale plan accepted")
	}
	if !errors.Is(err, services.ErrStale) {
		t.Fatalf("expected stale marker, got %v", err)
	}
	var aErr *Error
	if !errors.As(err, &aErr) || aErr.Kind != KindStaleInput || aErr.FailedIndex != -1 {
		t.Fatalf("expected stale-input error, got %v", err)
	}
	if res.State != StateNotStarted {
		t.Fatalf("no mutation before verification: %s", res.State)
	}
	if _, err := os.Stat(p.Ops[0].Src); err != nil {
		t.Fatal("source must be untouched")
	}
}

func TestExecutePartialFailure(t *testing.T) {
	p, _, _ := makePlan(t, "a.mkv", "b.mkv")

	// Occupy the second destination after planning so the second op fails.
	if err := os.MkdirAll(filepath.Dir(p.Ops[1].Dst), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p.Ops[1].Dst, []byte("intruder"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Execute(context.Background(), p, Options{})
	if err == nil {
		t.Fatal("expected failure")
	}
	var aErr *Error
	if !errors.As(err, &aErr) {
		t.Fatalf("expected apply Error, got %v", err)
	}
	if aErr.Kind != KindMoveFailed || aErr.FailedIndex != 1 {
		t.Fatalf("kind %s index %d", aErr.Kind, aErr.FailedIndex)
	}
	if res.State != StatePartiallyFailed {
		t.Fatalf("state %s", res.State)
	}
	if len(res.Applied) != 1 {
		t.Fatalf("first op should have completed: %+v", res.Applied)
	}
	// The failed op's source survives.
	if _, err := os.Stat(p.Ops[1].Src); err != nil {
		t.Fatal("failed op source must survive")
	}
	// Rollback covers only the completed op.
	if len(res.Rollback.Ops) != 1 || res.Rollback.Ops[0].Src != p.Ops[0].Dst {
		t.Fatalf("rollback: %+v", res.Rollback.Ops)
	}
}

func TestExecuteIdempotentRerun(t *testing.T) {
	p, _, _ := makePlan(t, "a.mkv", "b.mkv")

	if _, err := Execute(context.Background(), p, Options{}); err != nil {
		t.Fatal(err)
	}
	res, err := Execute(context.Background(), p, Options{})
	if err != nil {
		t.Fatalf("re-run must be safe: %v", err)
	}
	if res.State != StateCompleted {
		t.Fatalf("state %s", res.State)
	}
	if res.Skipped != 2 || len(res.Applied) != 0 {
		t.Fatalf("re-run should skip everything: skipped %d applied %d",
			res.Skipped, len(res.Applied))
	}
}

func TestExecuteTwoStageLeavesNoStaging(t *testing.T) {
	p, _, outRoot := makePlan(t, "a.mkv")

	res, err := Execute(context.Background(), p, Options{TwoStage: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateCompleted {
		t.Fatalf("state %s", res.State)
	}
	if _, err := os.Stat(p.Ops[0].Dst); err != nil {
		t.Fatalf("destination missing: %v", err)
	}
	entries, err := os.ReadDir(outRoot)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.IsDir() && e.Name() != "S01" {
			t.Fatalf("staging directory left behind: %s", e.Name())
		}
	}
}

func TestRollbackRoundTrip(t *testing.T) {
	p, srcDir, _ := makePlan(t, "a.mkv", "b.mkv")

	res, err := Execute(context.Background(), p, Options{})
	if err != nil {
		t.Fatal(err)
	}
	rbRes, err := Execute(context.Background(), res.Rollback, Options{})
	if err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	if rbRes.State != StateCompleted {
		t.Fatalf("rollback state %s", rbRes.State)
	}
	for _, op := range p.Ops {
		if _, err := os.Stat(op.Src); err != nil {
			t.Fatalf("file not restored to %s: %v", op.Src, err)
		}
		if _, err := os.Stat(op.Dst); !os.IsNotExist(err) {
			t.Fatalf("destination still present: %s", op.Dst)
		}
	}
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 restored files, got %d", len(entries))
	}
}

func TestWriteArtifacts(t *testing.T) {
	p, _, _ := makePlan(t, "a.mkv")
	planDir := t.TempDir()
	planPath := filepath.Join(planDir, "dir.plan.json")
	if err := plan.WriteFile(planPath, p); err != nil {
		t.Fatal(err)
	}

	res, err := Execute(context.Background(), p, Options{})
	if err != nil {
		t.Fatal(err)
	}
	resultPath, rollbackPath, err := WriteArtifacts(planPath, res, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resultPath != filepath.Join(planDir, "dir.result.json") {
		t.Fatalf("result path %s", resultPath)
	}
	rb, err := plan.ReadFile(rollbackPath)
	if err != nil {
		t.Fatalf("rollback file must be a valid plan: %v", err)
	}
	if len(rb.Ops) != 1 || rb.Ops[0].Src != p.Ops[0].Dst {
		t.Fatalf("rollback content: %+v", rb.Ops)
	}
}
