// Package monitor drives the directory lifecycle state machine: discover
// series directories under the watched roots, wait for writers to settle,
// plan, apply, then archive or fail each directory. The persisted state
// table is the sole source of truth across restarts.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"aninamer/internal/apply"
	"aninamer/internal/config"
	"aninamer/internal/fileutil"
	"aninamer/internal/history"
	"aninamer/internal/logging"
	"aninamer/internal/notify"
	"aninamer/internal/plan"
	"aninamer/internal/services"
)

const (
	transientRetryBase = 30 * time.Second
	transientRetryMax  = 10 * time.Minute
)

// Deps are the collaborators shared by the watch loop and the one-shot
// process-directory entry point.
type Deps struct {
	Cfg      *config.Config
	Pipeline Pipeline
	History  *history.Store
	Notifier notify.Service
	Logger   *slog.Logger
}

// Monitor owns the watch loop and the persisted state table.
type Monitor struct {
	deps  Deps
	state *StateTable
	lock  *flock.Flock
	now   func() time.Time
}

// New loads the state table and prepares the monitor. The instance lock is
// acquired in Run, not here.
func New(deps Deps) (*Monitor, error) {
	if deps.Cfg == nil || deps.Pipeline == nil {
		return nil, errors.New("monitor requires config and pipeline")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewService(deps.Cfg)
	}

	state, err := LoadState(deps.Cfg.Paths.StateFile)
	if err != nil {
		return nil, err
	}
	return &Monitor{
		deps:  deps,
		state: state,
		lock:  flock.New(deps.Cfg.LockPath()),
		now:   time.Now,
	}, nil
}

// Run acquires the single-instance lock and iterates until ctx is done. The
// in-flight directory transition always completes before the loop exits.
func (m *Monitor) Run(ctx context.Context) error {
	ok, err := m.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire monitor lock: %w", err)
	}
	if !ok {
		return errors.New("another aninamer monitor instance is already running")
	}
	defer func() {
		if err := m.lock.Unlock(); err != nil {
			m.deps.Logger.Warn("failed to release monitor lock", logging.Error(err))
		}
	}()

	interval := time.Duration(m.deps.Cfg.Monitor.Interval) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	m.deps.Logger.Info("monitor started",
		logging.Int("roots", len(m.deps.Cfg.Paths.WatchRoots)),
		logging.Duration("interval", interval),
	)
	for {
		if err := m.RunOnce(ctx); err != nil {
			m.deps.Logger.Error("monitor iteration failed", logging.Error(err))
		}
		select {
		case <-ctx.Done():
			m.deps.Logger.Info("monitor stopped")
			return nil
		case <-time.After(interval):
		}
	}
}

// RunOnce performs one scan iteration over all watched roots. Roots are
// processed sequentially; the stop flag is checked between directory
// transitions, never during one.
func (m *Monitor) RunOnce(ctx context.Context) error {
	if !m.state.HasBaseline() {
		if done, err := m.bootstrapBaseline(); done || err != nil {
			return err
		}
	}
	for _, root := range m.deps.Cfg.Paths.WatchRoots {
		if ctx.Err() != nil {
			return nil
		}
		if err := m.processRoot(ctx, root); err != nil {
			m.deps.Logger.Error("watch root failed",
				logging.String("root", root),
				logging.Error(err),
			)
		}
	}
	m.pruneTerminal()
	return nil
}

// bootstrapBaseline runs on the first iteration of a fresh state file. When
// existing directories are excluded, they are recorded and the iteration
// ends; processing begins with the next scan.
func (m *Monitor) bootstrapBaseline() (bool, error) {
	if m.deps.Cfg.Monitor.IncludeExisting {
		m.state.SetBaseline(nil)
		return false, m.state.Save()
	}
	var existing []string
	for _, root := range m.deps.Cfg.Paths.WatchRoots {
		dirs, err := m.discover(root)
		if err != nil {
			return true, err
		}
		existing = append(existing, dirs...)
	}
	m.state.SetBaseline(existing)
	m.deps.Logger.Info("baseline recorded", logging.Int("count", len(existing)))
	return true, m.state.Save()
}

func (m *Monitor) processRoot(ctx context.Context, root string) error {
	discovered, err := m.discover(root)
	if err != nil {
		return err
	}

	for _, dir := range discovered {
		if m.state.Get(dir) != nil || m.state.InBaseline(dir) {
			continue
		}
		now := m.now()
		m.state.Put(&DirState{
			Path:         dir,
			Status:       StatusDiscovered,
			FirstSeenAt:  now,
			LastChangeAt: now,
		})
		if err := m.state.Save(); err != nil {
			return err
		}
		m.deps.Logger.Info("directory discovered",
			logging.String(logging.FieldDirectory, dir),
		)
	}

	for _, path := range m.state.Paths() {
		if ctx.Err() != nil {
			return nil
		}
		if filepath.Dir(path) != root {
			continue
		}
		state := m.state.Get(path)
		if state == nil {
			continue
		}
		// The in-flight transition finishes even when shutdown is requested.
		if err := m.advance(context.WithoutCancel(ctx), state); err != nil {
			m.deps.Logger.Error("directory transition failed",
				logging.String(logging.FieldDirectory, path),
				logging.String(logging.FieldStatus, string(state.Status)),
				logging.Error(err),
			)
		}
	}
	return nil
}

// discover lists direct subdirectories of a watch root, skipping dot
// directories and the archive/fail areas.
func (m *Monitor) discover(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read watch root: %w", err)
	}

	skip := map[string]struct{}{
		m.deps.Cfg.Monitor.ArchiveDirName: {},
		m.deps.Cfg.Monitor.FailDirName:    {},
	}
	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if _, ok := skip[name]; ok {
			continue
		}
		dirs = append(dirs, filepath.Join(root, name))
	}
	return dirs, nil
}

func (m *Monitor) advance(ctx context.Context, state *DirState) error {
	switch state.Status {
	case StatusDiscovered:
		return m.startSettling(state)
	case StatusPending:
		return m.checkSettled(state)
	case StatusSettled:
		return m.planSettled(ctx, state)
	case StatusPlanned, StatusApplying:
		// Applying at startup means the process died mid-apply; re-running
		// the stored plan is safe because completed operations are skipped.
		if !m.deps.Cfg.Monitor.Apply {
			return nil
		}
		return m.applyPlanned(ctx, state)
	default:
		return nil
	}
}

func (m *Monitor) startSettling(state *DirState) error {
	snap, err := TakeSnapshot(state.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.state.Delete(state.Path)
			return m.state.Save()
		}
		return err
	}
	state.Snapshot = snap
	state.Status = StatusPending
	state.LastChangeAt = m.now()
	return m.state.Save()
}

func (m *Monitor) checkSettled(state *DirState) error {
	snap, err := TakeSnapshot(state.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.state.Delete(state.Path)
			return m.state.Save()
		}
		return err
	}
	if !snap.Equal(state.Snapshot) {
		state.Snapshot = snap
		state.LastChangeAt = m.now()
		m.deps.Logger.Debug("directory still changing",
			logging.String(logging.FieldDirectory, state.Path),
		)
		return m.state.Save()
	}

	settle := time.Duration(m.deps.Cfg.Monitor.SettleSeconds) * time.Second
	if m.now().Sub(state.LastChangeAt) < settle {
		return nil
	}
	state.Status = StatusSettled
	m.deps.Logger.Info("directory settled",
		logging.String(logging.FieldDirectory, state.Path),
	)
	return m.state.Save()
}

func (m *Monitor) planSettled(ctx context.Context, state *DirState) error {
	if !state.NextRetryAt.IsZero() && m.now().Before(state.NextRetryAt) {
		return nil
	}

	outcome, err := m.deps.Pipeline.PlanDirectory(ctx, state.Path)
	if err != nil {
		if services.Retryable(err) {
			return m.deferTransient(state, err)
		}
		return m.failDirectory(state, err)
	}

	state.Status = StatusPlanned
	state.PlanRef = outcome.PlanPath
	state.Reason = ""
	state.Attempts = 0
	state.NextRetryAt = time.Time{}
	if err := m.state.Save(); err != nil {
		return err
	}
	m.deps.Logger.Info("directory planned",
		logging.String(logging.FieldDirectory, state.Path),
		logging.String(logging.FieldPlanPath, outcome.PlanPath),
		logging.Int("moves", outcome.MoveCount),
	)
	m.notifyPlanned(ctx, state.Path, outcome.SeriesTitle, outcome.MoveCount)
	return nil
}

// deferTransient backs off on provider errors and fails the directory once
// the attempt budget is spent.
func (m *Monitor) deferTransient(state *DirState, cause error) error {
	state.Attempts++
	state.Reason = cause.Error()
	if state.Attempts >= m.deps.Cfg.Monitor.MaxAttempts {
		return m.failDirectory(state, cause)
	}

	delay := transientRetryBase << (state.Attempts - 1)
	if delay > transientRetryMax {
		delay = transientRetryMax
	}
	state.NextRetryAt = m.now().Add(delay)
	m.deps.Logger.Warn("transient planning failure, will retry",
		logging.String(logging.FieldDirectory, state.Path),
		logging.Int("attempt", state.Attempts),
		logging.Duration("retry_in", delay),
		logging.Error(cause),
	)
	return m.state.Save()
}

func (m *Monitor) applyPlanned(ctx context.Context, state *DirState) error {
	pl, err := plan.ReadFile(state.PlanRef)
	if err != nil {
		return m.failDirectory(state, err)
	}

	state.Status = StatusApplying
	if err := m.state.Save(); err != nil {
		return err
	}
	started := m.now()

	res, runErr := apply.Execute(ctx, pl, apply.Options{
		TwoStage: m.deps.Cfg.Apply.TwoStage,
		Logger:   m.deps.Logger,
	})
	_, rollbackPath, artErr := apply.WriteArtifacts(state.PlanRef, res, runErr)
	if artErr != nil {
		m.deps.Logger.Warn("failed to write apply artifacts", logging.Error(artErr))
	}

	if runErr != nil {
		if errors.Is(runErr, services.ErrStale) {
			return m.returnToPending(state, "plan inputs changed since planning")
		}
		m.recordRun(state.Path, pl.SeriesTitle, pl.TMDBID, history.OutcomePartialFailure,
			len(res.Applied), state.PlanRef, rollbackPath, runErr, started)
		// The directory stays in place so the operator can re-run or roll
		// back from the recorded artifacts.
		state.Status = StatusFailed
		state.Reason = runErr.Error()
		if err := m.state.Save(); err != nil {
			return err
		}
		m.notifyFailed(ctx, state.Path, runErr.Error())
		return runErr
	}

	m.recordRun(state.Path, pl.SeriesTitle, pl.TMDBID, history.OutcomeApplied,
		len(res.Applied), state.PlanRef, rollbackPath, nil, started)
	m.deps.Logger.Info("directory applied",
		logging.String(logging.FieldDirectory, state.Path),
		logging.Int("applied", len(res.Applied)),
		logging.Int("skipped", res.Skipped),
	)
	m.notifyApplied(ctx, state.Path, pl.SeriesTitle, len(res.Applied))
	return m.archive(state)
}

// archive finalizes a fully applied directory: delete it when empty,
// otherwise move it into the archive area. The race guard returns the
// directory to pending instead when unexpected writes appeared after settle.
func (m *Monitor) archive(state *DirState) error {
	snap, err := TakeSnapshot(state.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			state.Status = StatusArchived
			return m.state.Save()
		}
		return err
	}
	for rel, stamp := range snap {
		prev, ok := state.Snapshot[rel]
		if !ok || prev != stamp {
			m.deps.Logger.Warn("directory changed during apply, skipping archive",
				logging.String(logging.FieldDirectory, state.Path),
				logging.String("rel_path", rel),
			)
			return m.returnToPending(state, "new writes appeared during apply")
		}
	}

	if len(snap) == 0 {
		if err := removeEmptyTree(state.Path); err != nil {
			return err
		}
		state.Status = StatusArchived
		m.deps.Logger.Info("directory removed after apply",
			logging.String(logging.FieldDirectory, state.Path),
		)
		return m.state.Save()
	}

	root := filepath.Dir(state.Path)
	area := filepath.Join(root, m.deps.Cfg.Monitor.ArchiveDirName)
	if err := os.MkdirAll(area, 0o755); err != nil {
		return fmt.Errorf("create archive area: %w", err)
	}
	target, err := fileutil.UniqueDirPath(filepath.Join(area, filepath.Base(state.Path)))
	if err != nil {
		return err
	}
	if err := os.Rename(state.Path, target); err != nil {
		return fmt.Errorf("archive directory: %w", err)
	}
	state.Status = StatusArchived
	m.deps.Logger.Info("directory archived",
		logging.String(logging.FieldDirectory, state.Path),
		logging.String("archived_to", target),
	)
	return m.state.Save()
}

func (m *Monitor) returnToPending(state *DirState, reason string) error {
	snap, err := TakeSnapshot(state.Path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	state.Status = StatusPending
	state.Snapshot = snap
	state.PlanRef = ""
	state.Reason = reason
	state.LastChangeAt = m.now()
	return m.state.Save()
}

// failDirectory is the terminal failure transition: the directory moves to
// the fail area and its state record follows the new path, so relocating it
// back into the root makes it a fresh discovery.
func (m *Monitor) failDirectory(state *DirState, cause error) error {
	reason := cause.Error()
	m.deps.Logger.Error("directory failed",
		logging.String(logging.FieldDirectory, state.Path),
		logging.Error(cause),
	)
	m.recordRun(state.Path, "", 0, history.OutcomeFailed, 0, state.PlanRef, "", cause, m.now())
	m.notifyFailed(context.Background(), state.Path, reason)

	root := filepath.Dir(state.Path)
	area := filepath.Join(root, m.deps.Cfg.Monitor.FailDirName)
	if err := os.MkdirAll(area, 0o755); err != nil {
		return fmt.Errorf("create fail area: %w", err)
	}
	target, err := fileutil.UniqueDirPath(filepath.Join(area, filepath.Base(state.Path)))
	if err != nil {
		return err
	}
	if err := os.Rename(state.Path, target); err != nil {
		// Leave the record in place when the move is impossible.
		state.Status = StatusFailed
		state.Reason = reason
		if saveErr := m.state.Save(); saveErr != nil {
			return saveErr
		}
		return fmt.Errorf("move to fail area: %w", err)
	}

	m.state.Delete(state.Path)
	now := m.now()
	m.state.Put(&DirState{
		Path:         target,
		Status:       StatusFailed,
		FirstSeenAt:  state.FirstSeenAt,
		LastChangeAt: now,
		Reason:       reason,
	})
	return m.state.Save()
}

// pruneTerminal drops archived records whose directory no longer exists.
func (m *Monitor) pruneTerminal() {
	dirty := false
	for _, path := range m.state.Paths() {
		state := m.state.Get(path)
		if state == nil || state.Status != StatusArchived {
			continue
		}
		if _, err := os.Lstat(path); os.IsNotExist(err) {
			m.state.Delete(path)
			dirty = true
		}
	}
	if dirty {
		if err := m.state.Save(); err != nil {
			m.deps.Logger.Warn("failed to prune state table", logging.Error(err))
		}
	}
}

// removeEmptyTree removes dir and its subdirectories bottom-up, stopping at
// the first non-empty directory.
func removeEmptyTree(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			return nil
		}
		if err := removeEmptyTree(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	_, err = fileutil.RemoveDirIfEmpty(dir)
	return err
}

func (m *Monitor) recordRun(dir, title string, tmdbID int64, outcome history.Outcome, applied int, planPath, rollbackPath string, cause error, started time.Time) {
	if m.deps.History == nil {
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
		FinishedAt:   m.now(),
		Duration:     m.now().Sub(started),
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	if _, err := m.deps.History.Record(context.Background(), entry); err != nil {
		m.deps.Logger.Warn("failed to record run history", logging.Error(err))
	}
}

func (m *Monitor) notifyPlanned(ctx context.Context, dir, title string, moves int) {
	if err := m.deps.Notifier.NotifyPlanned(ctx, dir, title, moves); err != nil {
		m.deps.Logger.Warn("plan notification failed", logging.Error(err))
	}
}

func (m *Monitor) notifyApplied(ctx context.Context, dir, title string, moves int) {
	if err := m.deps.Notifier.NotifyApplied(ctx, dir, title, moves); err != nil {
		m.deps.Logger.Warn("apply notification failed", logging.Error(err))
	}
}

func (m *Monitor) notifyFailed(ctx context.Context, dir, reason string) {
	if err := m.deps.Notifier.NotifyFailed(ctx, dir, reason); err != nil {
		m.deps.Logger.Warn("failure notification failed", logging.Error(err))
	}
}
