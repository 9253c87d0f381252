// Package config provides configuration resolution with explicit priority order.
//
// Priority order (highest to lowest):
//  1. CLI flags (--mode, --skip, --upload, ...)
//  2. Environment variables (FANOUT_MODE, FANOUT_SKIP, FANOUT_UPLOAD, CI)
//  3. .fanout.yaml project file
//  4. Built-in defaults
//
// This keeps behavior predictable: user intent (CLI) > environment > file >
// defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/dkoosis/fanout/internal/artifacts"
	"github.com/dkoosis/fanout/pkg/matrix"
	"github.com/dkoosis/fanout/pkg/reconcile"
)

// Flags holds the values of command-line flags, with *Set fields tracking
// whether the user passed them explicitly.
type Flags struct {
	Mode   string
	Skip   string
	Upload bool
	Debug  bool
	Theme  string
	File   string
	Branch string
	Base   string

	ModeSet   bool
	SkipSet   bool
	UploadSet bool
	DebugSet  bool
	ThemeSet  bool
}

// ReconcileConfig is the project file section driving artifact
// reconciliation.
type ReconcileConfig struct {
	Scope         []string `yaml:"scope"`
	Branch        string   `yaml:"branch"`
	Base          string   `yaml:"base"`
	PRTitle       string   `yaml:"pr_title"`
	PRBody        string   `yaml:"pr_body"`
	MessageSuffix string   `yaml:"message_suffix"`
	AuthorName    string   `yaml:"author_name"`
	AuthorEmail   string   `yaml:"author_email"`
}

// UploadConfig is the project file section for coverage uploads.
type UploadConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Glob    string `yaml:"glob"`
}

// Project represents the .fanout.yaml project configuration.
type Project struct {
	Mode      string           `yaml:"mode"`
	Skip      string           `yaml:"skip"`
	Jobs      []matrix.Job     `yaml:"jobs"`
	Reconcile ReconcileConfig  `yaml:"reconcile"`
	Upload    UploadConfig     `yaml:"upload"`
	Artifacts artifacts.Config `yaml:"artifacts"`
	Debug     bool             `yaml:"debug"`
	Theme     string           `yaml:"theme"`
}

// Constants for default values.
const (
	DefaultBranch      = "bot/artifact-refresh"
	DefaultBase        = "master"
	DefaultPRTitle     = "Update regenerated build artifacts"
	DefaultPRBody      = "Automated artifact refresh. Review and merge."
	DefaultAuthorName  = "fanout-bot"
	DefaultAuthorEmail = "fanout-bot@users.noreply.github.com"
	DefaultUploadGlob  = "coverage*.xml"
	DefaultConfigFile  = ".fanout.yaml"
)

// DefaultJobs returns the built-in job declarations used when the project
// file declares none.
func DefaultJobs() []matrix.Job {
	return []matrix.Job{
		{Key: "core-tests", Command: "make test-core", Shards: 5, PinPackages: []string{"numpy"}},
		{Key: "torch-tests", Command: "make test-torch", PinPackages: []string{"torch", "numpy"}},
		{Key: "tf-tests", Command: "make test-tf", Shards: 3, PinPackages: []string{"tensorflow", "numpy"}},
		{Key: "jax-tests", Command: "make test-jax", PinPackages: []string{"jax", "jaxlib", "numpy"}},
		{Key: "qcut-tests", Command: "make test-qcut", PinPackages: []string{"numpy"}},
		{Key: "data-tests", Command: "make test-data", PinPackages: []string{"numpy"}},
	}
}

// LoadProject loads the project file at path, falling back to built-in
// defaults when the default file does not exist. An explicitly named file
// that is missing is an error; the implicit .fanout.yaml is optional.
func LoadProject(path string) (*Project, error) {
	proj := &Project{
		Mode: matrix.ModeFull.String(),
		Reconcile: ReconcileConfig{
			Branch:      DefaultBranch,
			Base:        DefaultBase,
			PRTitle:     DefaultPRTitle,
			PRBody:      DefaultPRBody,
			AuthorName:  DefaultAuthorName,
			AuthorEmail: DefaultAuthorEmail,
		},
		Upload: UploadConfig{Glob: DefaultUploadGlob},
	}

	explicit := path != ""
	if path == "" {
		path = DefaultConfigFile
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			proj.Jobs = DefaultJobs()
			return proj, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, proj); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", filepath.Base(path), err)
	}
	if len(proj.Jobs) == 0 {
		proj.Jobs = DefaultJobs()
	}
	return proj, nil
}

// AuthorOrDefault returns the configured commit identity.
func (r ReconcileConfig) AuthorOrDefault() reconcile.Author {
	a := reconcile.Author{Name: r.AuthorName, Email: r.AuthorEmail}
	if a.Name == "" {
		a.Name = DefaultAuthorName
	}
	if a.Email == "" {
		a.Email = DefaultAuthorEmail
	}
	return a
}

// getEnvBool reads a boolean from environment variables, trying multiple
// keys. Returns nil if none are set.
func getEnvBool(keys ...string) *bool {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			if b, err := strconv.ParseBool(val); err == nil {
				return &b
			}
		}
	}
	return nil
}
