package apply

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"aninamer/internal/plan"
	"aninamer/internal/services"
)

type resultFile struct {
	Version      int      `json:"version"`
	State        RunState `json:"state"`
	DryRun       bool     `json:"dry_run"`
	AppliedCount int      `json:"applied_count"`
	Skipped      int      `json:"skipped"`
	PlanPath     string   `json:"plan_path"`
	RollbackPath string   `json:"rollback_path"`
	Error        string   `json:"error,omitempty"`
	FinishedAt   string   `json:"finished_at"`
}

// WriteArtifacts persists the run result and rollback plan next to the plan
// file. Both are written on success and on partial failure. Returns the
// result and rollback paths.
func WriteArtifacts(planPath string, res *Result, runErr error) (string, string, error) {
	base := strings.TrimSuffix(planPath, ".plan.json")
	resultPath := base + ".result.json"
	rollbackPath := base + ".rollback.json"

	if err := plan.WriteFile(rollbackPath, res.Rollback); err != nil {
		return "", "", err
	}

	payload := resultFile{
		Version:      1,
		State:        res.State,
		DryRun:       res.DryRun,
		AppliedCount: len(res.Applied),
		Skipped:      res.Skipped,
		PlanPath:     planPath,
		RollbackPath: rollbackPath,
		FinishedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	if runErr != nil {
		payload.Error = runErr.Error()
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", "", services.Wrap(services.ErrTransient, "apply", "write result", "", err)
	}
	data = append(data, '\n')

	tmp := filepath.Join(filepath.Dir(resultPath), "."+filepath.Base(resultPath)+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", "", services.Wrap(services.ErrTransient, "apply", "write result", "", err)
	}
	if err := os.Rename(tmp, resultPath); err != nil {
		os.Remove(tmp)
		return "", "", services.Wrap(services.ErrTransient, "apply", "write result", "", err)
	}
	return resultPath, rollbackPath, nil
}
