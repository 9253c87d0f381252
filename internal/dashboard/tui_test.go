package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dkoosis/fanout/internal/runner"
	"github.com/dkoosis/fanout/pkg/matrix"
)

func TestModel_DerivesDisplayState_FromUpdateMessages(t *testing.T) {
	t.Parallel()

	tasks := []*runner.Task{
		{Instance: matrix.JobInstance{ID: "core-tests-3.12"}},
		{Instance: matrix.JobInstance{ID: "torch-tests-3.12"}},
	}
	m := newModel(tasks, nil)
	started := time.Now()

	// Task structs stay untouched by the view; only received updates move the
	// model. Mutating them here stands in for the runner goroutines that own
	// those fields while the program renders.
	tasks[0].Status = runner.StatusRunning
	tasks[0].StartedAt = started

	next, _ := m.Update(updateMsg(runner.Update{Index: 0, Status: runner.StatusRunning, StartedAt: started}))
	m = next.(model)
	assert.Equal(t, runner.StatusRunning, m.states[0].status)
	assert.Equal(t, runner.StatusPending, m.states[1].status)
	assert.False(t, m.done)

	next, _ = m.Update(updateMsg(runner.Update{Index: 0, Status: runner.StatusSuccess, FinishedAt: started.Add(time.Second)}))
	m = next.(model)
	assert.False(t, m.done, "one instance still pending")

	next, _ = m.Update(updateMsg(runner.Update{Index: 1, Status: runner.StatusFailed, ExitCode: 2, FinishedAt: time.Now()}))
	m = next.(model)

	assert.True(t, m.done)
	assert.Equal(t, 1, m.exitCode())
	assert.Equal(t, time.Second, m.states[0].duration())
}

func TestModel_IgnoresUpdates_WithOutOfRangeIndex(t *testing.T) {
	t.Parallel()

	m := newModel([]*runner.Task{{Instance: matrix.JobInstance{ID: "a-3.12"}}}, nil)
	m.applyUpdate(runner.Update{Index: 5, Status: runner.StatusFailed})
	m.applyUpdate(runner.Update{Index: -1, Status: runner.StatusFailed})
	assert.Equal(t, runner.StatusPending, m.states[0].status)
	assert.Equal(t, 0, m.exitCode())
}
