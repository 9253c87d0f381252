// Package gate is the fan-in barrier for a matrix run: it collects terminal
// job results and decides whether coverage aggregation may proceed.
package gate

import (
	"context"
	"time"

	"github.com/dkoosis/fanout/pkg/matrix"
)

// Status is the terminal state of one job instance.
type Status int

const (
	// StatusSuccess means the instance ran and exited zero.
	StatusSuccess Status = iota
	// StatusFailed means the instance ran and failed.
	StatusFailed
	// StatusCancelled means the scheduler cancelled the instance before it
	// reached a verdict.
	StatusCancelled
	// StatusSkipped means the instance was intentionally not run.
	// Skipped is not failure: it never suppresses aggregation.
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// JobResult records the terminal outcome of one job instance.
type JobResult struct {
	InstanceID string
	Key        matrix.JobKey
	Status     Status
	ExitCode   int
	Duration   time.Duration
}

// ShouldAggregate reports whether the coverage upload may run: uploads must
// be enabled and no upstream result may be failed or cancelled. Skipped
// results count as non-failing, so an intentionally thinned matrix still
// aggregates.
func ShouldAggregate(results []JobResult, uploadEnabled bool) bool {
	if !uploadEnabled {
		return false
	}
	for _, r := range results {
		if r.Status == StatusFailed || r.Status == StatusCancelled {
			return false
		}
	}
	return true
}

// Collect blocks until every expected instance has reported a terminal
// result on updates, then returns results in expected order. Results for
// instances outside the expected set are dropped; they never count toward the
// barrier. If ctx is done first, instances that never reported are recorded
// as cancelled. Collect is the single synchronization point of a run; it
// evaluates nothing itself.
func Collect(ctx context.Context, updates <-chan JobResult, expected []string) []JobResult {
	want := make(map[string]struct{}, len(expected))
	for _, id := range expected {
		want[id] = struct{}{}
	}
	seen := make(map[string]JobResult, len(want))

	for len(seen) < len(want) {
		select {
		case r, ok := <-updates:
			if !ok {
				return finalize(seen, expected)
			}
			if _, known := want[r.InstanceID]; !known {
				continue
			}
			seen[r.InstanceID] = r
		case <-ctx.Done():
			return finalize(seen, expected)
		}
	}
	return finalize(seen, expected)
}

func finalize(seen map[string]JobResult, expected []string) []JobResult {
	out := make([]JobResult, 0, len(expected))
	for _, id := range expected {
		if r, ok := seen[id]; ok {
			out = append(out, r)
			continue
		}
		out = append(out, JobResult{InstanceID: id, Status: StatusCancelled})
	}
	return out
}
