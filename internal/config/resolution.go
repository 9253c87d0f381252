package config

import (
	"fmt"
	"os"

	"github.com/dkoosis/fanout/pkg/matrix"
)

// Resolved holds the final configuration after applying all priority rules.
// Every field is populated; callers never consult flags, environment, or the
// project file again.
type Resolved struct {
	Mode    matrix.RunMode
	Skip    string
	Upload  bool
	Debug   bool
	Theme   string
	Jobs    []matrix.Job
	Project *Project

	// Resolution metadata for debugging.
	ModeSource   string // "cli", "env", "file", "default"
	SkipSource   string // "cli", "env", "file", "default"
	UploadSource string // "cli", "env", "file", "default"
}

// Resolve resolves configuration from all sources with explicit priority
// order. This is the single source of truth for config resolution.
func Resolve(flags Flags) (*Resolved, error) {
	proj, err := LoadProject(flags.File)
	if err != nil {
		return nil, err
	}

	resolved := &Resolved{
		Skip:         proj.Skip,
		Upload:       proj.Upload.Enabled,
		Debug:        proj.Debug,
		Jobs:         proj.Jobs,
		Project:      proj,
		ModeSource:   "file",
		SkipSource:   "file",
		UploadSource: "file",
	}

	if flags.Branch != "" {
		proj.Reconcile.Branch = flags.Branch
	}
	if flags.Base != "" {
		proj.Reconcile.Base = flags.Base
	}

	// Mode: CLI > env > file > default. A CI=true environment with no
	// explicit mode selects the lightened matrix, matching how automated
	// runs want the cheap configuration by default.
	mode := proj.Mode
	switch {
	case flags.ModeSet:
		mode = flags.Mode
		resolved.ModeSource = "cli"
	case os.Getenv("FANOUT_MODE") != "":
		mode = os.Getenv("FANOUT_MODE")
		resolved.ModeSource = "env"
	case proj.Mode == "" || proj.Mode == matrix.ModeFull.String():
		if ci := getEnvBool("CI"); ci != nil && *ci {
			mode = matrix.ModeLightened.String()
			resolved.ModeSource = "env"
		}
	}
	resolved.Mode, err = parseMode(mode)
	if err != nil {
		return nil, err
	}
	if resolved.ModeSource == "file" && proj.Mode == "" {
		resolved.ModeSource = "default"
	}

	// Skip: CLI > env > file.
	switch {
	case flags.SkipSet:
		resolved.Skip = flags.Skip
		resolved.SkipSource = "cli"
	case os.Getenv("FANOUT_SKIP") != "":
		resolved.Skip = os.Getenv("FANOUT_SKIP")
		resolved.SkipSource = "env"
	}

	// Upload: CLI > env > file.
	switch {
	case flags.UploadSet:
		resolved.Upload = flags.Upload
		resolved.UploadSource = "cli"
	default:
		if env := getEnvBool("FANOUT_UPLOAD"); env != nil {
			resolved.Upload = *env
			resolved.UploadSource = "env"
		}
	}

	// Debug: CLI > env > file.
	if flags.DebugSet {
		resolved.Debug = flags.Debug
	} else if os.Getenv("FANOUT_DEBUG") != "" {
		resolved.Debug = true
	}

	// Theme: CLI > env > file. Unknown names degrade to the default theme in
	// the renderer rather than failing the run.
	resolved.Theme = proj.Theme
	switch {
	case flags.ThemeSet:
		resolved.Theme = flags.Theme
	case os.Getenv("FANOUT_THEME") != "":
		resolved.Theme = os.Getenv("FANOUT_THEME")
	}

	if err := validate(resolved); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return resolved, nil
}

func parseMode(s string) (matrix.RunMode, error) {
	switch s {
	case "", matrix.ModeFull.String():
		return matrix.ModeFull, nil
	case matrix.ModeLightened.String():
		return matrix.ModeLightened, nil
	default:
		return 0, fmt.Errorf("invalid mode %q (must be: %s, %s)", s, matrix.ModeFull, matrix.ModeLightened)
	}
}

// validate rejects resolved configurations that cannot be acted on.
func validate(r *Resolved) error {
	if len(r.Jobs) == 0 {
		return fmt.Errorf("no jobs declared")
	}
	seen := make(map[matrix.JobKey]bool, len(r.Jobs))
	for _, job := range r.Jobs {
		if job.Key == "" {
			return fmt.Errorf("job with empty key")
		}
		if job.Command == "" {
			return fmt.Errorf("job %q: command is required", job.Key)
		}
		if job.Shards < 0 {
			return fmt.Errorf("job %q: shards must not be negative, got: %d", job.Key, job.Shards)
		}
		if seen[job.Key] {
			return fmt.Errorf("duplicate job key %q", job.Key)
		}
		seen[job.Key] = true
	}
	if r.Upload && r.Project.Upload.URL == "" {
		return fmt.Errorf("upload enabled but upload.url is not set")
	}
	return nil
}
