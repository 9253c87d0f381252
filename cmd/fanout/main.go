// fanout plans, executes, and reconciles a CI test matrix.
//
// Usage:
//
//	fanout plan [-mode lightened] [-skip "qcut-tests, data-tests"]
//	fanout run [-mode full] [-upload]
//	fanout reconcile [-branch bot/artifact-refresh] [-base master]
//	fanout gate [-upload] < results.json
//	fanout versions
//
// Subcommands:
//
//	plan       print the dispatch plan without executing anything
//	run        execute the matrix and report the aggregation verdict
//	reconcile  commit regenerated artifacts and converge the bot PR
//	gate       evaluate recorded results against the aggregation gate
//	versions   print the pinned dependency table
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/dkoosis/fanout/internal/artifacts"
	"github.com/dkoosis/fanout/internal/config"
	"github.com/dkoosis/fanout/internal/coverage"
	"github.com/dkoosis/fanout/internal/dashboard"
	"github.com/dkoosis/fanout/internal/gitcli"
	"github.com/dkoosis/fanout/internal/render"
	"github.com/dkoosis/fanout/internal/runner"
	"github.com/dkoosis/fanout/internal/version"
	"github.com/dkoosis/fanout/pkg/gate"
	"github.com/dkoosis/fanout/pkg/matrix"
	"github.com/dkoosis/fanout/pkg/pins"
	"github.com/dkoosis/fanout/pkg/reconcile"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	switch args[0] {
	case "plan":
		return runPlan(args[1:], stdout, stderr)
	case "run":
		return runRun(args[1:], stdout, stderr)
	case "reconcile":
		return runReconcile(args[1:], stdout, stderr)
	case "gate":
		return runGate(args[1:], stdin, stdout, stderr)
	case "versions":
		fmt.Fprint(stdout, render.ForWriter(stdout, os.Getenv("FANOUT_THEME")).Versions(pins.Versions()))
		return 0
	case "version", "--version", "-version":
		fmt.Fprintf(stdout, "fanout %s (%s, built %s)\n", version.Version, version.CommitHash, version.BuildDate)
		return 0
	default:
		fmt.Fprintf(stderr, "fanout: unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: fanout <plan|run|reconcile|gate|versions> [flags]")
}

// commonFlags registers the flags shared by plan and run and returns the
// destination Flags struct, populated after fs.Parse.
func commonFlags(fs *flag.FlagSet) *config.Flags {
	flags := &config.Flags{}
	fs.StringVar(&flags.Mode, "mode", "", "Run mode: full or lightened")
	fs.StringVar(&flags.Skip, "skip", "", "Jobs to skip in lightened mode (comma or space separated)")
	fs.BoolVar(&flags.Upload, "upload", false, "Enable coverage upload")
	fs.BoolVar(&flags.Debug, "debug", false, "Enable debug logging")
	fs.StringVar(&flags.Theme, "theme", "", "Output theme: default or mono")
	fs.StringVar(&flags.File, "config", "", "Project config file (default .fanout.yaml)")
	return flags
}

// markSet records which flags were passed explicitly, after parsing.
func markSet(fs *flag.FlagSet, flags *config.Flags) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			flags.ModeSet = true
		case "skip":
			flags.SkipSet = true
		case "upload":
			flags.UploadSet = true
		case "debug":
			flags.DebugSet = true
		case "theme":
			flags.ThemeSet = true
		}
	})
}

func newLogger(debug bool, stderr io.Writer) *zap.Logger {
	if !debug {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(stderr, "fanout: logger init: %v\n", err)
		return zap.NewNop()
	}
	return log
}

func resolve(name string, args []string, stderr io.Writer) (*config.Resolved, int) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, 2
	}
	markSet(fs, flags)
	resolved, err := config.Resolve(*flags)
	if err != nil {
		fmt.Fprintf(stderr, "fanout: %v\n", err)
		return nil, 2
	}
	return resolved, 0
}

func plan(resolved *config.Resolved) ([]matrix.JobInstance, matrix.SkipSet, error) {
	versions, caps, skip := matrix.Resolve(resolved.Mode, resolved.Skip)
	instances, err := matrix.Dispatch(resolved.Jobs, versions, caps, skip)
	return instances, skip, err
}

func runPlan(args []string, stdout, stderr io.Writer) int {
	resolved, code := resolve("plan", args, stderr)
	if resolved == nil {
		return code
	}
	instances, _, err := plan(resolved)
	if err != nil {
		fmt.Fprintf(stderr, "fanout: %v\n", err)
		return 2
	}
	fmt.Fprint(stdout, render.ForWriter(stdout, resolved.Theme).Plan(instances))
	return 0
}

func runRun(args []string, stdout, stderr io.Writer) int {
	resolved, code := resolve("run", args, stderr)
	if resolved == nil {
		return code
	}
	log := newLogger(resolved.Debug, stderr)
	defer log.Sync()

	instances, skip, err := plan(resolved)
	if err != nil {
		fmt.Fprintf(stderr, "fanout: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runID := uuid.NewString()
	tasks, updates := runner.Start(ctx, instances, runner.WithLogger(log), runner.WithRunID(runID))
	if isTTYWriter(stdout) {
		if _, err := dashboard.Run(ctx, tasks, updates); err != nil {
			fmt.Fprintf(stderr, "fanout: dashboard: %v\n", err)
			return 1
		}
	} else {
		dashboard.RunNonTTY(tasks, updates, stdout)
	}

	results := runner.Results(tasks)
	for _, job := range resolved.Jobs {
		if skip.Has(job.Key) {
			results = append(results, gate.JobResult{InstanceID: string(job.Key), Key: job.Key, Status: gate.StatusSkipped})
		}
	}

	aggregate := gate.ShouldAggregate(results, resolved.Upload)
	fmt.Fprint(stdout, render.ForWriter(stdout, resolved.Theme).Results(results, aggregate))

	if err := uploadArtifacts(ctx, resolved, runID, log); err != nil {
		fmt.Fprintf(stderr, "fanout: %v\n", err)
		return 1
	}
	if aggregate {
		if err := uploadCoverage(ctx, resolved, log); err != nil {
			fmt.Fprintf(stderr, "fanout: %v\n", err)
			return 1
		}
	}

	for _, r := range results {
		if r.Status == gate.StatusFailed || r.Status == gate.StatusCancelled {
			return 1
		}
	}
	return 0
}

func uploadArtifacts(ctx context.Context, resolved *config.Resolved, runID string, log *zap.Logger) error {
	cfg := resolved.Project.Artifacts
	if !cfg.Enabled() {
		return nil
	}
	glob := cfg.Glob
	if glob == "" {
		glob = "artifact-*"
	}
	store, err := artifacts.New(cfg, log)
	if err != nil {
		return err
	}
	uploaded, err := store.UploadGlob(ctx, ".", glob, "run-"+runID)
	if err != nil {
		return err
	}
	log.Info("uploaded artifacts", zap.Int("count", len(uploaded)), zap.String("run", runID))
	return nil
}

func uploadCoverage(ctx context.Context, resolved *config.Resolved, log *zap.Logger) error {
	up := resolved.Project.Upload
	paths, err := coverage.Glob(".", up.Glob)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		log.Info("no coverage reports matched", zap.String("glob", up.Glob))
		return nil
	}
	uploader := coverage.NewUploader(up.URL, up.Token, log)
	return uploader.UploadAll(ctx, paths)
}

func runReconcile(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags := commonFlags(fs)
	fs.StringVar(&flags.Branch, "branch", "", "Bot branch to converge onto")
	fs.StringVar(&flags.Base, "base", "", "Base branch for the pull request")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	markSet(fs, flags)
	resolved, err := config.Resolve(*flags)
	if err != nil {
		fmt.Fprintf(stderr, "fanout: %v\n", err)
		return 2
	}
	log := newLogger(resolved.Debug, stderr)
	defer log.Sync()

	rc := resolved.Project.Reconcile
	if len(rc.Scope) == 0 {
		fmt.Fprintln(stderr, "fanout: reconcile.scope is not configured")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	rec := reconcile.New(gitcli.NewGit(".", log), gitcli.NewGitHub(".", log), log)
	res, err := rec.Reconcile(ctx, reconcile.Request{
		Scope:         rc.Scope,
		Branch:        rc.Branch,
		Base:          rc.Base,
		Title:         rc.PRTitle,
		Body:          rc.PRBody,
		MessageSuffix: rc.MessageSuffix,
		Author:        rc.AuthorOrDefault(),
	})
	if err != nil {
		fmt.Fprintf(stderr, "fanout: reconcile: %v\n", err)
		return 1
	}
	fmt.Fprint(stdout, render.ForWriter(stdout, resolved.Theme).Reconcile(res))
	return 0
}

// recordedResult is the JSON shape the gate subcommand accepts, one entry per
// job instance.
type recordedResult struct {
	ID       string `json:"id"`
	Key      string `json:"key"`
	Status   string `json:"status"`
	ExitCode int    `json:"exit_code"`
}

func runGate(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("gate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	upload := fs.Bool("upload", false, "Whether coverage upload is enabled")
	file := fs.String("file", "", "Results file (default stdin)")
	theme := fs.String("theme", os.Getenv("FANOUT_THEME"), "Output theme: default or mono")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	in := stdin
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			fmt.Fprintf(stderr, "fanout: %v\n", err)
			return 2
		}
		defer f.Close()
		in = f
	}

	var recorded []recordedResult
	if err := json.NewDecoder(in).Decode(&recorded); err != nil {
		fmt.Fprintf(stderr, "fanout: parse results: %v\n", err)
		return 2
	}

	results := make([]gate.JobResult, 0, len(recorded))
	for _, r := range recorded {
		status, err := parseStatus(r.Status)
		if err != nil {
			fmt.Fprintf(stderr, "fanout: %v\n", err)
			return 2
		}
		results = append(results, gate.JobResult{
			InstanceID: r.ID,
			Key:        matrix.JobKey(r.Key),
			Status:     status,
			ExitCode:   r.ExitCode,
		})
	}

	aggregate := gate.ShouldAggregate(results, *upload)
	fmt.Fprint(stdout, render.ForWriter(stdout, *theme).Results(results, aggregate))
	if !aggregate {
		return 1
	}
	return 0
}

func parseStatus(s string) (gate.Status, error) {
	switch s {
	case "success":
		return gate.StatusSuccess, nil
	case "failed":
		return gate.StatusFailed, nil
	case "cancelled":
		return gate.StatusCancelled, nil
	case "skipped":
		return gate.StatusSkipped, nil
	default:
		return 0, fmt.Errorf("unknown status %q", s)
	}
}

// isTTYWriter reports whether w is a terminal.
func isTTYWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
