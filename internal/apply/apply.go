// Package apply executes a rename plan against the real filesystem. Moves
// run strictly in plan order; the first failure stops the run and the result
// carries a rollback plan covering everything that completed, so a partial
// failure is always recoverable. A source file is never removed without a
// completed destination write.
package apply

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"aninamer/internal/fileutil"
	"aninamer/internal/logging"
	"aninamer/internal/plan"
	"aninamer/internal/services"
)

// RunState describes one plan execution.
type RunState string

const (
	StateNotStarted      RunState = "not_started"
	StateRunning         RunState = "running"
	StateCompleted       RunState = "completed"
	StatePartiallyFailed RunState = "partially_failed"
)

// ErrorKind classifies executor failures.
type ErrorKind string

const (
	KindStaleInput       ErrorKind = "stale_input"
	KindMoveFailed       ErrorKind = "move_failed"
	KindPermissionDenied ErrorKind = "permission_denied"
)

// Error reports why and where a run stopped. FailedIndex is the position of
// the failed operation in the plan, or -1 when no operation ran.
type Error struct {
	Kind        ErrorKind
	FailedIndex int
	Err         error
}

func (e *Error) Error() string {
	if e.FailedIndex >= 0 {
		return fmt.Sprintf("%s at operation %d: %v", e.Kind, e.FailedIndex, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options control a plan execution.
type Options struct {
	// TwoStage forces the staged copy path even for same-device moves.
	// Cross-device moves always stage.
	TwoStage bool
	// DryRun verifies the fingerprint and reports without touching anything.
	DryRun bool
	// Progress, when set, is called after each operation settles.
	Progress func(done, total int)
	Logger   *slog.Logger
}

// Result is the outcome of one execution. Rollback is always populated, also
// on success, and covers completed operations only.
type Result struct {
	State    RunState
	DryRun   bool
	Applied  []plan.Op
	Skipped  int
	Rollback *plan.Plan
}

// Execute runs the plan. The fingerprint is re-verified before any mutation;
// a mismatch aborts with a stale-input Error and an empty rollback. An
// operation whose destination already exists with matching provenance while
// its source is gone is treated as done and skipped, which makes re-running
// a partially applied plan safe.
func Execute(ctx context.Context, p *plan.Plan, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	res := &Result{State: StateNotStarted, DryRun: opts.DryRun}
	res.Rollback = p.Rollback(nil)

	if err := p.VerifyFingerprint(); err != nil {
		return res, applyErr(&Error{Kind: KindStaleInput, FailedIndex: -1, Err: err}, services.ErrStale)
	}

	if opts.DryRun {
		res.State = StateCompleted
		return res, nil
	}

	res.State = StateRunning
	var completed []plan.Op
	staging := ""
	defer func() {
		if staging != "" {
			_, _ = fileutil.RemoveDirIfEmpty(staging)
		}
	}()

	for i, op := range p.Ops {
		if err := ctx.Err(); err != nil {
			res.State = StatePartiallyFailed
			res.Applied = completed
			res.Rollback = p.Rollback(completed)
			return res, applyErr(&Error{Kind: KindMoveFailed, FailedIndex: i, Err: err}, services.ErrApply)
		}

		if op.Completed() {
			res.Skipped++
			logger.Info("operation already applied",
				logging.String("src", op.Src),
				logging.String("dst", op.Dst))
			if opts.Progress != nil {
				opts.Progress(i+1, len(p.Ops))
			}
			continue
		}

		if err := moveOp(op, p.OutputRoot, opts.TwoStage, &staging); err != nil {
			res.State = StatePartiallyFailed
			res.Applied = completed
			res.Rollback = p.Rollback(completed)
			kind := KindMoveFailed
			if errors.Is(err, fs.ErrPermission) {
				kind = KindPermissionDenied
			}
			logger.Error("operation failed",
				logging.Int("index", i),
				logging.String("src", op.Src),
				logging.String("dst", op.Dst),
				logging.Error(err))
			return res, applyErr(&Error{Kind: kind, FailedIndex: i, Err: err}, services.ErrApply)
		}

		completed = append(completed, op)
		logger.Info("moved",
			logging.String("kind", string(op.Kind)),
			logging.String("src", op.Src),
			logging.String("dst", op.Dst))
		if opts.Progress != nil {
			opts.Progress(i+1, len(p.Ops))
		}
	}

	res.State = StateCompleted
	res.Applied = completed
	res.Rollback = p.Rollback(completed)
	return res, nil
}

// moveOp relocates a single file. Same-device moves rename atomically unless
// two-stage is forced; everything else is staged: verified copy into a
// staging directory under the output root, rename into place, then source
// removal.
func moveOp(op plan.Op, outputRoot string, forceTwoStage bool, staging *string) error {
	if err := os.MkdirAll(filepath.Dir(op.Dst), 0o755); err != nil {
		return err
	}
	if _, err := os.Lstat(op.Dst); err == nil {
		return fmt.Errorf("destination already exists: %s", op.Dst)
	}

	if !forceTwoStage {
		same, err := fileutil.SameDevice(op.Src, op.Dst)
		if err != nil {
			return err
		}
		if same {
			return os.Rename(op.Src, op.Dst)
		}
	}

	if *staging == "" {
		dir := filepath.Join(outputRoot, ".aninamer-staging-"+uuid.NewString())
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		*staging = dir
	}
	staged := filepath.Join(*staging, fmt.Sprintf("%s_%d%s", op.Kind, op.SrcID, filepath.Ext(op.Src)))
	if err := fileutil.CopyFileVerified(op.Src, staged); err != nil {
		return err
	}
	if err := os.Rename(staged, op.Dst); err != nil {
		_ = os.Remove(staged)
		return err
	}
	return os.Remove(op.Src)
}

func applyErr(e *Error, marker error) error {
	return services.Wrap(marker, "apply", "execute", "", e)
}
