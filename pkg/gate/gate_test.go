package gate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldAggregate_ReturnsFalse_When_UploadDisabled(t *testing.T) {
	t.Parallel()

	results := []JobResult{{InstanceID: "core-tests-3.12", Status: StatusSuccess}}
	assert.False(t, ShouldAggregate(results, false))
}

func TestShouldAggregate_ReturnsTrue_When_AllSucceed(t *testing.T) {
	t.Parallel()

	results := []JobResult{
		{InstanceID: "core-tests-3.12", Status: StatusSuccess},
		{InstanceID: "torch-tests-3.12", Status: StatusSuccess},
	}
	assert.True(t, ShouldAggregate(results, true))
}

func TestShouldAggregate_ReturnsFalse_When_AnyFailed(t *testing.T) {
	t.Parallel()

	results := []JobResult{
		{InstanceID: "core-tests-3.12", Status: StatusSuccess},
		{InstanceID: "torch-tests-3.12", Status: StatusFailed},
	}
	assert.False(t, ShouldAggregate(results, true))
}

func TestShouldAggregate_ReturnsFalse_When_AnyCancelled(t *testing.T) {
	t.Parallel()

	results := []JobResult{{InstanceID: "jax-tests-3.12", Status: StatusCancelled}}
	assert.False(t, ShouldAggregate(results, true))
}

func TestShouldAggregate_TreatsSkippedAsNonFailing(t *testing.T) {
	t.Parallel()

	results := []JobResult{
		{InstanceID: "core-tests-3.12", Status: StatusSuccess},
		{InstanceID: "qcut-tests", Status: StatusSkipped},
		{InstanceID: "data-tests", Status: StatusSkipped},
	}
	assert.True(t, ShouldAggregate(results, true))
}

func TestShouldAggregate_ReturnsTrue_When_NoResults(t *testing.T) {
	t.Parallel()

	assert.True(t, ShouldAggregate(nil, true))
}

func TestCollect_ReturnsResultsInExpectedOrder(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	updates := make(chan JobResult, 3)
	updates <- JobResult{InstanceID: "b", Status: StatusSuccess}
	updates <- JobResult{InstanceID: "c", Status: StatusFailed}
	updates <- JobResult{InstanceID: "a", Status: StatusSuccess}

	results := Collect(ctx, updates, []string{"a", "b", "c"})
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].InstanceID)
	assert.Equal(t, "b", results[1].InstanceID)
	assert.Equal(t, "c", results[2].InstanceID)
	assert.Equal(t, StatusFailed, results[2].Status)
}

func TestCollect_IgnoresResults_ForUnknownInstances(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// A result for an instance that was never dispatched must not trip the
	// barrier early and push expected instances into cancelled.
	updates := make(chan JobResult, 2)
	updates <- JobResult{InstanceID: "stray-3.12", Status: StatusSuccess}
	updates <- JobResult{InstanceID: "a", Status: StatusSuccess}

	results := Collect(ctx, updates, []string{"a"})
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].InstanceID)
	assert.Equal(t, StatusSuccess, results[0].Status)
}

func TestCollect_RecordsMissingAsCancelled_When_ContextExpires(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan JobResult, 1)
	updates <- JobResult{InstanceID: "a", Status: StatusSuccess}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	results := Collect(ctx, updates, []string{"a", "b"})
	require.Len(t, results, 2)
	assert.Equal(t, StatusSuccess, results[0].Status)
	assert.Equal(t, StatusCancelled, results[1].Status)
}

func TestCollect_Finalizes_When_ChannelClosesEarly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	updates := make(chan JobResult)
	close(updates)

	results := Collect(ctx, updates, []string{"a"})
	require.Len(t, results, 1)
	assert.Equal(t, StatusCancelled, results[0].Status)
}
