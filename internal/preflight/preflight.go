package preflight

import (
	"context"

	"rendition/internal/config"
	"rendition/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the directory checks for the given config. Binary checks
// are reported separately through CheckSystemDeps so optional tools do not
// fail the run.
func RunAll(_ context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	return []Result{
		CheckDirectoryAccess("Upload directory", cfg.Paths.UploadDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
}

// CheckSystemDeps evaluates the external binary requirements. Both the
// daemon and the CLI status command use this to avoid duplicating the list.
func CheckSystemDeps(_ context.Context, cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.Requirements(cfg))
}

// AllPassed reports whether every result and every required dependency is
// satisfied.
func AllPassed(results []Result, statuses []deps.Status) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			return false
		}
	}
	return true
}
