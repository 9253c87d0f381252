// Package runner is the local job execution collaborator: it runs each job
// instance as a shell command, bounds per-job parallelism with the advisory
// concurrency caps, and streams line updates for live rendering.
//
// Instances share nothing but the read-only pin snapshot baked into their
// environment; no instance may observe another's intermediate state.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/dkoosis/fanout/pkg/gate"
	"github.com/dkoosis/fanout/pkg/matrix"
	"github.com/dkoosis/fanout/pkg/pins"
)

const outputBufferLines = 50000

// Status is the lifecycle state of a running instance.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusSuccess
	StatusFailed
	StatusCancelled
)

// Task is the execution state of one job instance.
type Task struct {
	Instance   matrix.JobInstance
	Status     Status
	ExitCode   int
	StartedAt  time.Time
	FinishedAt time.Time
	Output     []string
	mu         sync.Mutex
}

// Update describes a runtime change, streamed to the TUI and non-tty paths.
type Update struct {
	Index      int
	Status     Status
	Line       string
	ExitCode   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Option configures Start.
type Option func(*config)

type config struct {
	runID string
	shell string
	env   []string
	log   *zap.Logger
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(c *config) { c.runID = id }
}

// WithEnv appends extra environment entries to every instance.
func WithEnv(env []string) Option {
	return func(c *config) { c.env = append(c.env, env...) }
}

// WithLogger sets the debug logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *config) { c.log = log }
}

// Start launches all instances concurrently and streams updates. Parallelism
// within one job key is bounded by the instance's advisory cap via a weighted
// semaphore; instances of different keys do not contend. The updates channel
// is closed after every instance reaches a terminal state.
func Start(ctx context.Context, instances []matrix.JobInstance, opts ...Option) ([]*Task, <-chan Update) {
	cfg := &config{runID: uuid.NewString(), shell: "bash", log: zap.NewNop()}
	for _, opt := range opts {
		opt(cfg)
	}

	sems := make(map[matrix.JobKey]*semaphore.Weighted)
	for _, inst := range instances {
		if _, ok := sems[inst.Key]; !ok {
			cap := inst.Cap
			if cap < 1 {
				cap = 1
			}
			sems[inst.Key] = semaphore.NewWeighted(int64(cap))
		}
	}

	updates := make(chan Update)
	tasks := make([]*Task, len(instances))
	var wg sync.WaitGroup
	wg.Add(len(instances))
	for i, inst := range instances {
		tasks[i] = &Task{Instance: inst, Status: StatusPending, ExitCode: -1}
		go runInstance(ctx, cfg, i, tasks[i], sems[inst.Key], updates, &wg)
	}

	go func() {
		wg.Wait()
		close(updates)
	}()

	return tasks, updates
}

func runInstance(ctx context.Context, cfg *config, index int, task *Task, sem *semaphore.Weighted, updates chan<- Update, wg *sync.WaitGroup) {
	defer wg.Done()

	if err := sem.Acquire(ctx, 1); err != nil {
		finish(task, StatusCancelled, -1, updates, index)
		return
	}
	defer sem.Release(1)

	inst := task.Instance
	cmd := exec.CommandContext(ctx, cfg.shell, "-c", inst.Command)
	cmd.Env = instanceEnv(cfg, inst)

	stdout, _ := cmd.StdoutPipe()
	stderr, _ := cmd.StderrPipe()

	task.StartedAt = time.Now()
	task.Status = StatusRunning
	updates <- Update{Index: index, Status: StatusRunning, StartedAt: task.StartedAt}
	cfg.log.Debug("instance started", zap.String("id", inst.ID))

	merged := make(chan string)
	var streams sync.WaitGroup
	streams.Add(2)
	go readStream(&streams, stdout, merged)
	go readStream(&streams, stderr, merged)

	if err := cmd.Start(); err != nil {
		go func() {
			streams.Wait()
			close(merged)
		}()
		for range merged {
		}
		cfg.log.Debug("instance failed to start", zap.String("id", inst.ID), zap.Error(err))
		finish(task, StatusFailed, -1, updates, index)
		return
	}

	go func() {
		streams.Wait()
		close(merged)
	}()

	for line := range merged {
		task.appendLine(line)
		updates <- Update{Index: index, Status: StatusRunning, Line: line}
	}

	err := cmd.Wait()
	switch {
	case err == nil:
		finish(task, StatusSuccess, 0, updates, index)
	case ctx.Err() != nil:
		finish(task, StatusCancelled, -1, updates, index)
	default:
		code := 1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		finish(task, StatusFailed, code, updates, index)
	}
	cfg.log.Debug("instance finished", zap.String("id", inst.ID), zap.Int("exit", task.ExitCode))
}

func finish(task *Task, status Status, code int, updates chan<- Update, index int) {
	task.FinishedAt = time.Now()
	task.Status = status
	task.ExitCode = code
	updates <- Update{Index: index, Status: status, ExitCode: code, FinishedAt: task.FinishedAt}
}

func instanceEnv(cfg *config, inst matrix.JobInstance) []string {
	env := append(os.Environ(), cfg.env...)
	env = append(env,
		"FANOUT_RUN_ID="+cfg.runID,
		"FANOUT_JOB="+string(inst.Key),
		"FANOUT_RUNTIME_VERSION="+inst.Version,
		"FANOUT_ARTIFACT="+inst.ID,
	)
	if inst.Shard > 0 {
		env = append(env, fmt.Sprintf("FANOUT_SHARD=%d", inst.Shard))
	}
	return append(env, pins.Env(inst.Pins)...)
}

func readStream(wg *sync.WaitGroup, r io.Reader, merged chan<- string) {
	defer wg.Done()
	if r == nil {
		return
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		merged <- scanner.Text()
	}
}

func (t *Task) appendLine(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Output = append(t.Output, line)
	if len(t.Output) > outputBufferLines {
		t.Output = t.Output[len(t.Output)-outputBufferLines:]
	}
}

// GetOutput returns a copy of the buffered output lines.
func (t *Task) GetOutput() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.Output))
	copy(out, t.Output)
	return out
}

// Duration returns elapsed time, live while the task runs.
func (t *Task) Duration() time.Duration {
	if t.StartedAt.IsZero() {
		return 0
	}
	if t.FinishedAt.IsZero() {
		return time.Since(t.StartedAt)
	}
	return t.FinishedAt.Sub(t.StartedAt)
}

// Results converts finished tasks into terminal job results for the gate.
func Results(tasks []*Task) []gate.JobResult {
	out := make([]gate.JobResult, 0, len(tasks))
	for _, t := range tasks {
		r := gate.JobResult{
			InstanceID: t.Instance.ID,
			Key:        t.Instance.Key,
			ExitCode:   t.ExitCode,
			Duration:   t.Duration(),
		}
		switch t.Status {
		case StatusSuccess:
			r.Status = gate.StatusSuccess
		case StatusCancelled:
			r.Status = gate.StatusCancelled
		default:
			r.Status = gate.StatusFailed
		}
		out = append(out, r)
	}
	return out
}
